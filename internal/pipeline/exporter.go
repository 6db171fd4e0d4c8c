package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"unicode"

	"payrollxml/internal/extractor"
	"payrollxml/internal/generator"
	"payrollxml/internal/odoo"
	"payrollxml/internal/resolver"
)

// ErrStructureNotFound is returned when the structure filter names no known
// structure. Nothing is written in that case.
var ErrStructureNotFound = errors.New("structure not found")

const defaultOutput = "payroll_rules_complete.xml"

// Signal codes raised into the run report.
const (
	SignalFallbackProjection   = "fallback_projection"
	SignalOptionalUnavailable  = "optional_unavailable"
	SignalSkippedRecords       = "records_without_identifier"
	SignalDuplicateIdentifiers = "duplicate_identifiers"
	SignalLookupFailures       = "xmlid_lookup_failures"
)

// Stages toggle the optional parts of a run. Categories and Structures only
// control whether their records are written; both sets are always fetched
// because rules refer to them.
type Stages struct {
	Categories      bool
	Structures      bool
	Parameters      bool
	ParameterValues bool
	InputTypes      bool
}

func AllStages() Stages {
	return Stages{Categories: true, Structures: true, Parameters: true, ParameterValues: true, InputTypes: true}
}

// Options describe one export.
type Options struct {
	// Server and Database only label the run report.
	Server   string
	Database string

	StructureID  int
	Output       string
	ModulePrefix string
	Prefixes     resolver.Prefixes
	// XMLIDLookup reuses the identifiers the server already knows.
	XMLIDLookup bool
	RuleFields  []string
	Stages      Stages
	ReportPath  string
}

// Result is the outcome of a run that did not fail.
type Result struct {
	Output    string
	Structure *extractor.Structure
	// NoRules is set when the filter matched no rule; no file is written.
	NoRules    bool
	Rules      int
	Parameters int
	Values     int
	Inputs     int
	Tier       extractor.Tier
	Build      generator.BuildStats
	Identifier resolver.Stats
	Report     *RunReport
}

// Exporter runs the fetch, build and write stages in order.
type Exporter struct {
	caller odoo.Caller
	lookup resolver.Lookup
	out    io.Writer
	logger *log.Logger
}

// NewExporter creates an exporter. lookup may be nil, in which case every
// identifier is generated.
func NewExporter(caller odoo.Caller, lookup resolver.Lookup, out io.Writer, logger *log.Logger) *Exporter {
	if out == nil {
		out = io.Discard
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Exporter{caller: caller, lookup: lookup, out: out, logger: logger}
}

func (e *Exporter) printf(format string, args ...any) {
	fmt.Fprintf(e.out, format, args...)
}

// Run performs the export. The report is saved even when the run fails, if a
// report path is set.
func (e *Exporter) Run(ctx context.Context, opts Options) (*Result, error) {
	report := NewRunReport(opts.Server, opts.Database)
	report.StructureID = opts.StructureID

	res, err := e.run(ctx, opts, report)
	if opts.ReportPath != "" {
		if saveErr := report.Save(opts.ReportPath); saveErr != nil {
			e.logger.Printf("Warning: failed to save run report: %v", saveErr)
		} else {
			e.printf("📊 Run report saved to %s\n", opts.ReportPath)
		}
	}
	return res, err
}

func (e *Exporter) run(ctx context.Context, opts Options, report *RunReport) (*Result, error) {
	ext := extractor.NewExtractor(e.caller, e.logger)
	res := &Result{Report: report}
	seen := 0
	noteWarnings := func(stage string) {
		for _, w := range ext.Warnings()[seen:] {
			report.AddSignal(SignalOptionalUnavailable, stage, SeverityWarning, w.String(), 0)
		}
		seen = len(ext.Warnings())
	}

	e.printf("Fetching salary rule categories...\n")
	h := report.BeginStage("categories")
	categories, err := ext.Categories(ctx)
	report.EndStage(h, "ok", map[string]float64{"fetched": float64(len(categories))}, nil, err)
	if err != nil {
		return nil, err
	}
	e.printf("Found %d categories\n", len(categories))

	e.printf("Fetching payroll structures...\n")
	h = report.BeginStage("structures")
	structures := ext.Structures(ctx)
	noteWarnings("structures")
	report.EndStage(h, "ok", map[string]float64{"fetched": float64(len(structures))}, nil, nil)
	e.printf("Found %d structures\n", len(structures))

	if opts.StructureID != 0 {
		s, ok := findStructure(structures, opts.StructureID)
		if !ok {
			return nil, fmt.Errorf("%w: id %d", ErrStructureNotFound, opts.StructureID)
		}
		res.Structure = &s
		e.printf("Filtering by structure: %s (ID: %d)\n", s.Name, s.ID)
	}

	e.printf("Fetching salary rules...\n")
	h = report.BeginStage("rules")
	rules, tier, err := ext.Rules(ctx, extractor.RuleQuery{StructureID: opts.StructureID, Fields: opts.RuleFields})
	report.EndStage(h, "ok", map[string]float64{"fetched": float64(len(rules))}, []string{"projection: " + string(tier)}, err)
	if err != nil {
		return nil, err
	}
	seen = len(ext.Warnings())
	res.Tier = tier
	res.Rules = len(rules)
	if tier == extractor.TierFallback {
		report.AddSignal(SignalFallbackProjection, "rules", SeverityWarning, "salary rules were fetched with the reduced field list", 0)
	}
	e.printf("Found %d rules\n", len(rules))

	if len(rules) == 0 {
		res.NoRules = true
		e.printf("No rules found for the specified criteria.\n")
		return res, nil
	}

	ds := generator.Dataset{Categories: categories, Structures: structures, Rules: rules}

	if opts.Stages.Parameters {
		e.printf("Fetching rule parameters...\n")
		h = report.BeginStage("parameters")
		ds.Parameters = ext.Parameters(ctx)
		noteWarnings("parameters")
		report.EndStage(h, "ok", map[string]float64{"fetched": float64(len(ds.Parameters))}, nil, nil)
		e.printf("Found %d rule parameters\n", len(ds.Parameters))
	} else {
		report.SkipStage("parameters")
	}

	// Values only make sense next to their parameter records.
	if opts.Stages.Parameters && opts.Stages.ParameterValues && len(ds.Parameters) > 0 {
		e.printf("Fetching parameter values...\n")
		h = report.BeginStage("parameter_values")
		ids := make([]int, len(ds.Parameters))
		for i, p := range ds.Parameters {
			ids[i] = p.ID
		}
		ds.ParameterValues = ext.ParameterValues(ctx, ids)
		noteWarnings("parameter_values")
		report.EndStage(h, "ok", map[string]float64{"fetched": float64(len(ds.ParameterValues))}, nil, nil)
		e.printf("Found %d parameter values\n", len(ds.ParameterValues))
	} else {
		report.SkipStage("parameter_values")
	}

	if opts.Stages.InputTypes {
		e.printf("Fetching salary rule inputs...\n")
		h = report.BeginStage("input_types")
		ds.InputTypes = ext.InputTypes(ctx)
		noteWarnings("input_types")
		report.EndStage(h, "ok", map[string]float64{"fetched": float64(len(ds.InputTypes))}, nil, nil)
		e.printf("Found %d inputs\n", len(ds.InputTypes))
	} else {
		report.SkipStage("input_types")
	}

	e.printf("Generating XML with proper references...\n")
	h = report.BeginStage("build")
	ropts := resolver.Options{Prefixes: opts.Prefixes, ModulePrefix: opts.ModulePrefix}
	if opts.XMLIDLookup && e.lookup != nil {
		ropts.Lookup = e.lookup
	}
	idr := resolver.NewResolver(ropts)
	bopts := generator.Options{Categories: opts.Stages.Categories, Structures: opts.Stages.Structures}
	if res.Structure != nil {
		bopts.Title = res.Structure.Name
	}
	doc, stats := generator.NewBuilder(idr, bopts).Build(ctx, ds)
	res.Build = stats
	res.Identifier = idr.Stats()
	for model, n := range stats.Records {
		report.Records[model] = n
	}
	report.EndStage(h, "ok", map[string]float64{
		"records":   float64(stats.Total()),
		"reused":    float64(res.Identifier.Reused),
		"generated": float64(res.Identifier.Generated),
		"skipped":   float64(res.Identifier.Skipped),
	}, nil, nil)
	e.identifierSignals(report, idr, stats)

	h = report.BeginStage("write")
	content, err := generator.Render(doc, e.logger)
	if err == nil {
		res.Output = OutputName(opts.Output, res.Structure)
		report.Output = res.Output
		err = generator.WriteFile(res.Output, content)
	}
	report.EndStage(h, "ok", map[string]float64{"bytes": float64(len(content))}, nil, err)
	if err != nil {
		return nil, err
	}

	res.Parameters = stats.Records[odoo.ModelParameter]
	res.Values = stats.Records[odoo.ModelParameterValue]
	res.Inputs = stats.Records[odoo.ModelInputType] + stats.Records[odoo.ModelRuleInput]
	e.printSummary(res)
	return res, nil
}

func (e *Exporter) identifierSignals(report *RunReport, idr *resolver.Resolver, stats generator.BuildStats) {
	skipped := 0
	for _, n := range stats.Skipped {
		skipped += n
	}
	if skipped > 0 {
		report.AddSignal(SignalSkippedRecords, "build", SeverityWarning,
			fmt.Sprintf("%d records were left out for lack of a code or name", skipped), float64(skipped))
	}
	if dupes := idr.Duplicates(); len(dupes) > 0 {
		e.logger.Printf("Warning: duplicate XML IDs: %s", strings.Join(dupes, ", "))
		report.AddSignal(SignalDuplicateIdentifiers, "build", SeverityCritical,
			"identifiers shared by several records: "+strings.Join(dupes, ", "), float64(len(dupes)))
	}
	if n := idr.Stats().LookupFailures; n > 0 {
		report.AddSignal(SignalLookupFailures, "build", SeverityInfo,
			fmt.Sprintf("%d XML ID lookups failed and were generated instead", n), float64(n))
	}
}

func (e *Exporter) printSummary(res *Result) {
	e.printf("\n✓ XML exported successfully to: %s\n", res.Output)
	e.printf("✓ Total rules exported: %d\n", res.Build.Records[odoo.ModelRule])
	e.printf("✓ Total rule parameters exported: %d\n", res.Parameters)
	e.printf("✓ Total parameter values exported: %d\n", res.Values)
	e.printf("✓ Total inputs exported: %d\n", res.Inputs)
	if res.Identifier.Reused > 0 {
		e.printf("✓ XML IDs reused from the server: %d\n", res.Identifier.Reused)
	}
}

// ListStructures prints every structure as an id / code / name table.
func (e *Exporter) ListStructures(ctx context.Context, w io.Writer) error {
	ext := extractor.NewExtractor(e.caller, e.logger)
	structures := ext.Structures(ctx)
	if len(structures) == 0 {
		fmt.Fprintln(w, "No payroll structures found.")
		return nil
	}
	sort.Slice(structures, func(i, j int) bool { return structures[i].ID < structures[j].ID })

	rule := strings.Repeat("-", 70)
	fmt.Fprintln(w, "\nAvailable Payroll Structures:")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "%-6s %-25s %s\n", "ID", "Code", "Name")
	fmt.Fprintln(w, rule)
	for _, s := range structures {
		fmt.Fprintf(w, "%-6d %-25s %s\n", s.ID, s.Code, s.Name)
	}
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Total: %d structures\n", len(structures))
	return nil
}

func findStructure(structures []extractor.Structure, id int) (extractor.Structure, bool) {
	for _, s := range structures {
		if s.ID == id {
			return s, true
		}
	}
	return extractor.Structure{}, false
}

// OutputName picks the output file: the explicit path, else one derived from
// the selected structure, else the complete export name.
func OutputName(explicit string, structure *extractor.Structure) string {
	if explicit != "" {
		return explicit
	}
	if structure != nil {
		if name := SanitizeFilename(structure.Name); name != "" {
			return "payroll_rules_" + name + ".xml"
		}
	}
	return defaultOutput
}

// SanitizeFilename lowercases name and keeps letters and digits, joining the
// rest with single underscores.
func SanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	s := b.String()
	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	return strings.Trim(s, "_")
}
