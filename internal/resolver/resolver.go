package resolver

import (
	"context"
	"sort"

	"payrollxml/internal/odoo"
)

// Kind is a record category that carries its own identifier prefix.
type Kind string

const (
	KindCategory       Kind = "category"
	KindStructure      Kind = "structure"
	KindRule           Kind = "rule"
	KindParameter      Kind = "parameter"
	KindParameterValue Kind = "parameter_value"
	KindInputType      Kind = "input_type"
)

var kindModels = map[Kind]string{
	KindCategory:       odoo.ModelRuleCategory,
	KindStructure:      odoo.ModelStructure,
	KindRule:           odoo.ModelRule,
	KindParameter:      odoo.ModelParameter,
	KindParameterValue: odoo.ModelParameterValue,
	KindInputType:      odoo.ModelInputType,
}

// Prefixes are the per-kind prefixes of generated XML IDs.
type Prefixes struct {
	Category       string
	Structure      string
	Rule           string
	Parameter      string
	ParameterValue string
	InputType      string
}

func DefaultPrefixes() Prefixes {
	return Prefixes{
		Category:       "aginc_category",
		Structure:      "aginc_structure",
		Rule:           "aginc_hr_salary_rule",
		Parameter:      "aginc_rule_parameter",
		ParameterValue: "aginc_rule_parameter_value",
		InputType:      "aginc_payslip_input_type",
	}
}

func (p Prefixes) For(kind Kind) string {
	switch kind {
	case KindCategory:
		return p.Category
	case KindStructure:
		return p.Structure
	case KindRule:
		return p.Rule
	case KindParameter:
		return p.Parameter
	case KindParameterValue:
		return p.ParameterValue
	case KindInputType:
		return p.InputType
	}
	return ""
}

// Lookup finds the XML ID the server recorded for a record ("module.name"),
// returning "" when there is none.
type Lookup interface {
	ExternalID(ctx context.Context, model string, id int) (string, error)
}

// Subject is what the resolver needs to know about a record.
type Subject struct {
	ID   int
	Name string
	Code string
	// Model overrides the model of the kind, for records of a legacy model.
	Model string
}

// Options configure a Resolver.
type Options struct {
	Prefixes Prefixes
	// ModulePrefix is the module the output file is loaded into. Server XML
	// IDs owned by it are written in their local form.
	ModulePrefix string
	// Lookup is consulted for server XML IDs; nil disables the lookup.
	Lookup Lookup
}

// Stats count how identifiers were obtained.
type Stats struct {
	Reused         int
	Generated      int
	Skipped        int
	LookupFailures int
}

type key struct {
	kind Kind
	id   int
}

type entry struct {
	xmlid     string
	ok        bool
	generated bool
}

// Resolver maps (kind, record id) to XML IDs. Each record is resolved once;
// later calls read the identifier map.
type Resolver struct {
	opts   Options
	ids    map[key]entry
	owners map[string]key
	dupes  map[string]bool
	stats  Stats
}

func NewResolver(opts Options) *Resolver {
	return &Resolver{
		opts:   opts,
		ids:    make(map[key]entry),
		owners: make(map[string]key),
		dupes:  make(map[string]bool),
	}
}

func (r *Resolver) Prefixes() Prefixes {
	return r.opts.Prefixes
}

// Resolve returns the XML ID of s. A server XML ID is reused when the lookup
// finds one; otherwise one is derived from the code or name. ok is false when
// the record has neither, and such records must not be emitted.
func (r *Resolver) Resolve(ctx context.Context, kind Kind, s Subject) (string, bool) {
	k := key{kind: kind, id: s.ID}
	if e, seen := r.ids[k]; seen {
		return e.xmlid, e.ok
	}

	if xmlid := r.lookup(ctx, kind, s); xmlid != "" {
		r.store(k, entry{xmlid: r.localize(xmlid), ok: true})
		r.stats.Reused++
		return r.ids[k].xmlid, true
	}

	xmlid := Derive(r.opts.Prefixes.For(kind), s.Name, s.Code)
	if xmlid == "" {
		r.ids[k] = entry{}
		r.stats.Skipped++
		return "", false
	}
	r.store(k, entry{xmlid: xmlid, ok: true, generated: true})
	r.stats.Generated++
	return xmlid, true
}

// Generated reports whether the identifier of (kind, id) was derived rather
// than reused from the server.
func (r *Resolver) Generated(kind Kind, id int) bool {
	return r.ids[key{kind: kind, id: id}].generated
}

// IsLocal reports whether xmlid belongs to the output module.
func (r *Resolver) IsLocal(xmlid string) bool {
	module, _ := SplitXMLID(xmlid)
	return module == ""
}

// ValueID derives a parameter value identifier with the configured prefixes.
func (r *Resolver) ValueID(parameterID, dateFrom string, index, siblings int) string {
	return ValueID(r.opts.Prefixes, parameterID, dateFrom, index, siblings)
}

func (r *Resolver) Stats() Stats {
	return r.stats
}

// Duplicates lists identifiers handed to more than one record, sorted.
func (r *Resolver) Duplicates() []string {
	out := make([]string, 0, len(r.dupes))
	for id := range r.dupes {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (r *Resolver) lookup(ctx context.Context, kind Kind, s Subject) string {
	if r.opts.Lookup == nil {
		return ""
	}
	model := s.Model
	if model == "" {
		model = kindModels[kind]
	}
	xmlid, err := r.opts.Lookup.ExternalID(ctx, model, s.ID)
	if err != nil {
		r.stats.LookupFailures++
		return ""
	}
	return xmlid
}

func (r *Resolver) localize(xmlid string) string {
	module, name := SplitXMLID(xmlid)
	if module != "" && module == r.opts.ModulePrefix {
		return name
	}
	return xmlid
}

func (r *Resolver) store(k key, e entry) {
	if owner, taken := r.owners[e.xmlid]; taken && owner != k {
		r.dupes[e.xmlid] = true
	} else {
		r.owners[e.xmlid] = k
	}
	r.ids[k] = e
}
