package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"payrollxml/internal/config"
	"payrollxml/internal/inspect"
	"payrollxml/internal/odoo"

	"github.com/spf13/cobra"
)

var errNoFields = errors.New("no fields found")

type options struct {
	url        string
	db         string
	user       string
	password   string
	model      string
	export     bool
	configPath string
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdout)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "odoo-fields",
		Short:         "Inspect the fields available on an Odoo model",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return inspectModel(cmd, opts, stdout)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.url, "url", "", "Odoo server URL")
	f.StringVar(&opts.db, "db", "", "Database name")
	f.StringVar(&opts.user, "user", "", "Username")
	f.StringVar(&opts.password, "password", "", "Password or API key")
	f.StringVar(&opts.model, "model", odoo.ModelRule, "Model to inspect")
	f.BoolVar(&opts.export, "export", false, "Print the field names as a payroll-export config snippet")
	f.StringVar(&opts.configPath, "config", "payroll-export.yaml", "Path to the optional YAML config file")
	return cmd
}

func inspectModel(cmd *cobra.Command, opts *options, stdout io.Writer) error {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}
	f := cmd.Flags()
	for name, pair := range map[string]struct {
		target *string
		value  string
	}{
		"url":      {&cfg.Odoo.URL, opts.url},
		"db":       {&cfg.Odoo.DB, opts.db},
		"user":     {&cfg.Odoo.User, opts.user},
		"password": {&cfg.Odoo.Password, opts.password},
	} {
		if f.Changed(name) {
			*pair.target = pair.value
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := context.Background()
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
	fmt.Fprintf(stdout, "Connected successfully (uid: %d)\n\n", session.UID())

	fmt.Fprintf(stdout, "Inspecting model: %s\n\n", opts.model)
	fields, err := inspect.Fetch(ctx, session, opts.model)
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return fmt.Errorf("%w on %s", errNoFields, opts.model)
	}

	report := inspect.NewReport(opts.model, fields)
	report.Print(stdout)
	if opts.export {
		return report.PrintExport(stdout)
	}
	return nil
}
