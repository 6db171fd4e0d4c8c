package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"payrollxml/internal/config"
	"payrollxml/internal/odoo"
	"payrollxml/internal/pipeline"
	"payrollxml/internal/resolver"

	"github.com/spf13/cobra"
)

type options struct {
	url            string
	db             string
	user           string
	password       string
	output         string
	listStructures bool
	structureID    int
	modulePrefix   string
	noXMLIDLookup  bool
	configPath     string
	report         string
	noParameters   bool
	noInputTypes   bool
	noCategories   bool
	noStructures   bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		if errors.Is(err, pipeline.ErrStructureNotFound) {
			fmt.Fprintln(stderr, "Use --list-structures to see available structures.")
		}
		return 1
	}
	return 0
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "payroll-export",
		Short:         "Export Odoo payroll configuration as an XML data file",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return export(cmd, opts, stdout, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	f := cmd.Flags()
	f.StringVar(&opts.url, "url", "", "Odoo server URL (e.g., http://localhost:8069)")
	f.StringVar(&opts.db, "db", "", "Database name")
	f.StringVar(&opts.user, "user", "", "Username")
	f.StringVar(&opts.password, "password", "", "Password or API key")
	f.StringVar(&opts.output, "output", "", "Output XML file (derived from the structure name if not specified)")
	f.BoolVar(&opts.listStructures, "list-structures", false, "List all available payroll structures and exit")
	f.IntVar(&opts.structureID, "structure-id", 0, "Export rules only for the specified structure ID")
	f.StringVar(&opts.modulePrefix, "module-prefix", "l10n_do_hr_payroll", "Module the XML file is loaded into")
	f.BoolVar(&opts.noXMLIDLookup, "no-xmlid-lookup", false, "Skip looking up existing XML IDs (faster but may generate inconsistent IDs)")
	f.StringVar(&opts.configPath, "config", "payroll-export.yaml", "Path to the optional YAML config file")
	f.StringVar(&opts.report, "report", "", "Write a JSON run report to this path")
	f.BoolVar(&opts.noParameters, "no-parameters", false, "Do not export rule parameters and their values")
	f.BoolVar(&opts.noInputTypes, "no-input-types", false, "Do not export payslip input types")
	f.BoolVar(&opts.noCategories, "no-categories", false, "Reference categories without writing their records")
	f.BoolVar(&opts.noStructures, "no-structures", false, "Reference structures without writing their records")
	return cmd
}

// loadSettings layers explicit flags over the config file and environment.
func loadSettings(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}
	f := cmd.Flags()
	set := func(name string, target *string, value string) {
		if f.Changed(name) {
			*target = value
		}
	}
	set("url", &cfg.Odoo.URL, opts.url)
	set("db", &cfg.Odoo.DB, opts.db)
	set("user", &cfg.Odoo.User, opts.user)
	set("password", &cfg.Odoo.Password, opts.password)
	set("output", &cfg.Export.Output, opts.output)
	set("module-prefix", &cfg.Export.ModulePrefix, opts.modulePrefix)
	set("report", &cfg.Export.Report, opts.report)

	if opts.noXMLIDLookup {
		cfg.Export.XMLIDLookup = false
	}
	if opts.noParameters {
		cfg.Stages.Parameters = false
		cfg.Stages.ParameterValues = false
	}
	if opts.noInputTypes {
		cfg.Stages.InputTypes = false
	}
	if opts.noCategories {
		cfg.Stages.Categories = false
	}
	if opts.noStructures {
		cfg.Stages.Structures = false
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func export(cmd *cobra.Command, opts *options, stdout, stderr io.Writer) error {
	cfg, err := loadSettings(cmd, opts)
	if err != nil {
		return err
	}
	if opts.structureID < 0 {
		return fmt.Errorf("invalid structure id %d", opts.structureID)
	}

	ctx := context.Background()
	logger := log.New(stderr, "", log.LstdFlags)

	fmt.Fprintf(stdout, "Connecting to Odoo at %s...\n", cfg.Odoo.URL)
	session, err := odoo.Connect(ctx, odoo.Credentials{
		URL:      cfg.Odoo.URL,
		DB:       cfg.Odoo.DB,
		User:     cfg.Odoo.User,
		Password: cfg.Odoo.Password,
	})
	if err != nil {
		return err
	}
	defer session.Close()
	fmt.Fprintf(stdout, "Connected successfully (uid: %d)\n", session.UID())

	exp := pipeline.NewExporter(session, session, stdout, logger)
	if opts.listStructures {
		return exp.ListStructures(ctx, stdout)
	}

	_, err = exp.Run(ctx, pipeline.Options{
		Server:       cfg.Odoo.URL,
		Database:     cfg.Odoo.DB,
		StructureID:  opts.structureID,
		Output:       cfg.Export.Output,
		ModulePrefix: cfg.Export.ModulePrefix,
		Prefixes:     prefixes(cfg.Prefixes),
		XMLIDLookup:  cfg.Export.XMLIDLookup,
		RuleFields:   cfg.Rules.Fields,
		Stages: pipeline.Stages{
			Categories:      cfg.Stages.Categories,
			Structures:      cfg.Stages.Structures,
			Parameters:      cfg.Stages.Parameters,
			ParameterValues: cfg.Stages.ParameterValues,
			InputTypes:      cfg.Stages.InputTypes,
		},
		ReportPath: cfg.Export.Report,
	})
	return err
}

// prefixes fills prefixes left empty in the config with the defaults.
func prefixes(p config.Prefixes) resolver.Prefixes {
	out := resolver.DefaultPrefixes()
	pick := func(target *string, v string) {
		if v != "" {
			*target = v
		}
	}
	pick(&out.Category, p.Category)
	pick(&out.Structure, p.Structure)
	pick(&out.Rule, p.Rule)
	pick(&out.Parameter, p.Parameter)
	pick(&out.ParameterValue, p.ParameterValue)
	pick(&out.InputType, p.InputType)
	return out
}
