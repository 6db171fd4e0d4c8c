package generator

import (
	"context"
	"fmt"
	"strings"

	"payrollxml/internal/extractor"
	"payrollxml/internal/odoo"
	"payrollxml/internal/resolver"
)

// Dataset is everything fetched for one run.
type Dataset struct {
	Categories      []extractor.Category
	Structures      []extractor.Structure
	Rules           []extractor.Rule
	Parameters      []extractor.Parameter
	ParameterValues []extractor.ParameterValue
	InputTypes      []extractor.InputType
}

// Options toggle the optional sections of the document.
type Options struct {
	// Categories and Structures emit the categories and structures the rules
	// and inputs point to, when their XML ID belongs to the output module.
	Categories bool
	Structures bool
	// Title names the rule section, usually the selected structure.
	Title string
}

func DefaultOptions() Options {
	return Options{Categories: true, Structures: true}
}

// BuildStats count what went into the document.
type BuildStats struct {
	Records map[string]int
	// Skipped counts records left out because they have neither code nor name,
	// or because their parent record was left out.
	Skipped map[string]int
}

func (s BuildStats) Total() int {
	n := 0
	for _, c := range s.Records {
		n += c
	}
	return n
}

// Builder turns a Dataset into a Document, resolving references through the
// resolver. It does no I/O besides the resolver's lookups.
type Builder struct {
	resolver *resolver.Resolver
	opts     Options
}

func NewBuilder(r *resolver.Resolver, opts Options) *Builder {
	return &Builder{resolver: r, opts: opts}
}

type buildState struct {
	ctx        context.Context
	ds         Dataset
	doc        *Document
	stats      BuildStats
	categories map[int]extractor.Category
	structures map[int]extractor.Structure
	rules      map[int]extractor.Rule
	emitted    map[string]bool
}

// Build assembles the document: categories, structures, rules, parameters
// each followed by their values, then input types.
func (b *Builder) Build(ctx context.Context, ds Dataset) (*Document, BuildStats) {
	st := &buildState{
		ctx:        ctx,
		ds:         ds,
		doc:        NewDocument(),
		stats:      BuildStats{Records: map[string]int{}, Skipped: map[string]int{}},
		categories: make(map[int]extractor.Category, len(ds.Categories)),
		structures: make(map[int]extractor.Structure, len(ds.Structures)),
		rules:      make(map[int]extractor.Rule, len(ds.Rules)),
		emitted:    map[string]bool{},
	}
	for _, c := range ds.Categories {
		st.categories[c.ID] = c
	}
	for _, s := range ds.Structures {
		st.structures[s.ID] = s
	}
	for _, r := range ds.Rules {
		st.rules[r.ID] = r
	}

	if b.opts.Categories {
		b.buildCategories(st)
	}
	if b.opts.Structures {
		b.buildStructures(st)
	}
	b.buildRules(st)
	b.buildParameters(st)
	b.buildInputTypes(st)

	return st.doc, st.stats
}

// categoryRef, structureRef and ruleRef resolve a related record. Records not
// in the dataset are resolved from the label of the many2one pair.
func (b *Builder) categoryRef(st *buildState, id int, label string) (string, bool) {
	s := resolver.Subject{ID: id, Name: label}
	if c, ok := st.categories[id]; ok {
		s = resolver.Subject{ID: c.ID, Name: c.Name, Code: c.Code}
	}
	return b.resolver.Resolve(st.ctx, resolver.KindCategory, s)
}

func (b *Builder) structureRef(st *buildState, id int, label string) (string, bool) {
	s := resolver.Subject{ID: id, Name: label}
	if x, ok := st.structures[id]; ok {
		s = resolver.Subject{ID: x.ID, Name: x.Name, Code: x.Code}
	}
	return b.resolver.Resolve(st.ctx, resolver.KindStructure, s)
}

func (b *Builder) ruleRef(st *buildState, id int, label string) (string, bool) {
	s := resolver.Subject{ID: id, Name: label}
	if r, ok := st.rules[id]; ok {
		s = resolver.Subject{ID: r.ID, Name: r.Name, Code: r.Code}
	}
	return b.resolver.Resolve(st.ctx, resolver.KindRule, s)
}

// buildCategories emits the categories referenced by the rules, parents first.
func (b *Builder) buildCategories(st *buildState) {
	var order []int
	seen := map[int]bool{}
	var visit func(id int)
	visit = func(id int) {
		if seen[id] {
			return
		}
		seen[id] = true
		c, ok := st.categories[id]
		if !ok {
			return
		}
		if c.Parent != nil {
			visit(c.Parent.ID)
		}
		order = append(order, id)
	}
	for _, r := range st.ds.Rules {
		if r.Category != nil {
			visit(r.Category.ID)
		}
	}
	if len(order) == 0 {
		return
	}

	commented := false
	for _, id := range order {
		c := st.categories[id]
		xmlid, ok := b.categoryRef(st, id, c.Name)
		if !ok {
			st.stats.Skipped[odoo.ModelRuleCategory]++
			continue
		}
		if !b.resolver.IsLocal(xmlid) || st.emitted[xmlid] {
			continue
		}
		if !commented {
			st.doc.AddComment(" Salary rule categories (hr.salary.rule.category) ")
			commented = true
		}
		rec := st.doc.AddRecord(xmlid, odoo.ModelRuleCategory)
		st.emitted[xmlid] = true
		rec.Set("name", c.Name)
		if c.Code != "" {
			rec.Set("code", c.Code)
		}
		if c.Parent != nil {
			if ref, ok := b.categoryRef(st, c.Parent.ID, c.Parent.Label); ok {
				rec.SetRef("parent_id", ref)
			}
		}
		st.stats.Records[odoo.ModelRuleCategory]++
	}
}

// buildStructures emits the structures referenced by rules and input types.
func (b *Builder) buildStructures(st *buildState) {
	referenced := map[int]bool{}
	for _, r := range st.ds.Rules {
		if r.Struct != nil {
			referenced[r.Struct.ID] = true
		}
	}
	for _, in := range st.ds.InputTypes {
		for _, id := range in.StructIDs {
			referenced[id] = true
		}
	}

	commented := false
	for _, s := range st.ds.Structures {
		if !referenced[s.ID] {
			continue
		}
		xmlid, ok := b.structureRef(st, s.ID, s.Name)
		if !ok {
			st.stats.Skipped[odoo.ModelStructure]++
			continue
		}
		if !b.resolver.IsLocal(xmlid) || st.emitted[xmlid] {
			continue
		}
		if !commented {
			st.doc.AddComment(" Payroll structures (hr.payroll.structure) ")
			commented = true
		}
		rec := st.doc.AddRecord(xmlid, odoo.ModelStructure)
		st.emitted[xmlid] = true
		rec.Set("name", s.Name)
		if s.Code != "" {
			rec.Set("code", s.Code)
		}
		st.stats.Records[odoo.ModelStructure]++
	}
}

func (b *Builder) buildRules(st *buildState) {
	if len(st.ds.Rules) == 0 {
		return
	}
	title := " Salary rules (hr.salary.rule) "
	if b.opts.Title != "" {
		title = fmt.Sprintf(" Salary rules for structure %s (hr.salary.rule) ", b.opts.Title)
	}
	st.doc.AddComment(title)

	for _, r := range st.ds.Rules {
		xmlid, ok := b.ruleRef(st, r.ID, r.Name)
		if !ok {
			st.stats.Skipped[odoo.ModelRule]++
			continue
		}
		rec := st.doc.AddRecord(xmlid, odoo.ModelRule)
		b.ruleFields(st, rec, r)
		st.stats.Records[odoo.ModelRule]++
	}
}

func (b *Builder) ruleFields(st *buildState, rec *Record, r extractor.Rule) {
	rec.Set("name", r.Name)

	if r.Category != nil {
		if ref, ok := b.categoryRef(st, r.Category.ID, r.Category.Label); ok {
			rec.SetRef("category_id", ref)
		}
	}
	if r.Struct != nil {
		if ref, ok := b.structureRef(st, r.Struct.ID, r.Struct.Label); ok {
			rec.SetRef("struct_id", ref)
		}
	}
	if r.Code != "" {
		rec.Set("code", r.Code)
	}

	sequence := "0"
	if r.Sequence.Present {
		sequence = r.Sequence.Text
	}
	rec.Set("sequence", sequence)

	if r.AppearsOnPayslip != nil {
		rec.SetBool("appears_on_payslip", *r.AppearsOnPayslip)
	}

	condition := r.ConditionSelect
	if condition == "" {
		condition = "none"
	}
	rec.Set("condition_select", condition)
	switch condition {
	case "python":
		if r.ConditionPython != "" {
			rec.SetText("condition_python", r.ConditionPython)
		}
	case "range":
		if r.ConditionRange != "" {
			rec.Set("condition_range", r.ConditionRange)
		}
		if r.ConditionRangeMin.Present {
			rec.Set("condition_range_min", r.ConditionRangeMin.Text)
		}
		if r.ConditionRangeMax.Present {
			rec.Set("condition_range_max", r.ConditionRangeMax.Text)
		}
	}

	amount := r.AmountSelect
	if amount == "" {
		amount = "fix"
	}
	rec.Set("amount_select", amount)
	switch amount {
	case "fix":
		rec.Set("amount_fix", orZero(r.AmountFix))
	case "percentage":
		rec.Set("amount_percentage", orZero(r.AmountPercentage))
		if r.AmountPercentageBase != "" {
			rec.Set("amount_percentage_base", r.AmountPercentageBase)
		}
	case "code":
		rec.SetText("amount_python_compute", r.AmountPythonCompute)
	}

	if r.Quantity != "" {
		rec.Set("quantity", r.Quantity)
	}
	if r.Active != nil {
		rec.SetBool("active", *r.Active)
	}
	if r.Note != "" {
		rec.SetText("note", r.Note)
	}
}

// orZero fills an amount the projection did not carry with the server default.
func orZero(v extractor.Optional) string {
	if v.Present {
		return v.Text
	}
	return "0.0"
}

func (b *Builder) buildParameters(st *buildState) {
	if len(st.ds.Parameters) == 0 {
		return
	}

	known := make(map[int]bool, len(st.ds.Parameters))
	for _, p := range st.ds.Parameters {
		known[p.ID] = true
	}
	byParam := map[int][]extractor.ParameterValue{}
	for _, v := range st.ds.ParameterValues {
		if !known[v.ParameterID] {
			st.stats.Skipped[odoo.ModelParameterValue]++
			continue
		}
		byParam[v.ParameterID] = append(byParam[v.ParameterID], v)
	}

	st.doc.AddComment(" Salary rule parameters (hr.rule.parameter) with their values ")
	for _, p := range st.ds.Parameters {
		values := byParam[p.ID]
		xmlid, ok := b.resolver.Resolve(st.ctx, resolver.KindParameter, resolver.Subject{ID: p.ID, Name: p.Name, Code: p.Code})
		if !ok {
			st.stats.Skipped[odoo.ModelParameter]++
			st.stats.Skipped[odoo.ModelParameterValue] += len(values)
			continue
		}

		if p.Code != "" {
			st.doc.AddComment(" " + p.Code + " ")
		}
		rec := st.doc.AddRecord(xmlid, odoo.ModelParameter)
		rec.Set("name", p.Name)
		if p.Code != "" {
			rec.Set("code", p.Code)
		}
		if p.Description != "" {
			rec.SetText("description", p.Description)
		}
		st.stats.Records[odoo.ModelParameter]++

		for i, v := range values {
			vrec := st.doc.AddRecord(b.resolver.ValueID(xmlid, v.DateFrom, i, len(values)), odoo.ModelParameterValue)
			vrec.SetRef("rule_parameter_id", xmlid)
			if v.DateFrom != "" {
				vrec.Set("date_from", v.DateFrom)
			}
			if v.Value.Present {
				vrec.SetText("parameter_value", v.Value.Text)
			}
			st.stats.Records[odoo.ModelParameterValue]++
		}
	}
}

func (b *Builder) buildInputTypes(st *buildState) {
	if len(st.ds.InputTypes) == 0 {
		return
	}
	st.doc.AddComment(" Payslip input types (" + inputModel(st.ds.InputTypes[0]) + ") ")

	for _, in := range st.ds.InputTypes {
		model := inputModel(in)
		xmlid, ok := b.resolver.Resolve(st.ctx, resolver.KindInputType, resolver.Subject{ID: in.ID, Name: in.Name, Code: in.Code, Model: model})
		if !ok {
			st.stats.Skipped[model]++
			continue
		}

		rec := st.doc.AddRecord(xmlid, model)
		rec.Set("name", in.Name)
		if in.Code != "" {
			rec.Set("code", in.Code)
		}

		var refs []string
		for _, id := range in.StructIDs {
			if ref, ok := b.structureRef(st, id, ""); ok {
				refs = append(refs, ref)
			}
		}
		if len(refs) > 0 {
			rec.SetEval("struct_ids", replaceLinks(refs))
		}
		if in.Rule != nil {
			if ref, ok := b.ruleRef(st, in.Rule.ID, in.Rule.Label); ok {
				rec.SetRef("input_id", ref)
			}
		}
		st.stats.Records[model]++
	}
}

func inputModel(in extractor.InputType) string {
	if in.Model == "" {
		return odoo.ModelInputType
	}
	return in.Model
}

// replaceLinks renders the loader's "replace all links" command:
// [(6, 0, [ref('a'), ref('b')])].
func replaceLinks(xmlids []string) string {
	refs := make([]string, len(xmlids))
	for i, id := range xmlids {
		refs[i] = "ref('" + id + "')"
	}
	return "[(6, 0, [" + strings.Join(refs, ", ") + "])]"
}
