package extractor

import (
	"context"
	"fmt"

	"payrollxml/internal/odoo"
)

// Categories fetches every salary rule category. The set is required.
func (e *Extractor) Categories(ctx context.Context) ([]Category, error) {
	res, err := e.Fetch(ctx, Query{Model: odoo.ModelRuleCategory}, Projection{Preferred: CategoryFields})
	if err != nil {
		return nil, err
	}
	out := make([]Category, 0, len(res.Records))
	for _, r := range res.Records {
		out = append(out, decodeCategory(r))
	}
	return out, nil
}

// Structures fetches every payroll structure, or none when the model is unavailable.
func (e *Extractor) Structures(ctx context.Context) []Structure {
	rows, _ := e.bestEffort(ctx, Query{Model: odoo.ModelStructure}, StructureFields, "payroll structures")
	out := make([]Structure, 0, len(rows))
	for _, r := range rows {
		out = append(out, decodeStructure(r))
	}
	return out
}

// RuleQuery narrows the rule fetch.
type RuleQuery struct {
	// StructureID restricts rules to one structure when non-zero.
	StructureID int
	// Fields replaces the preferred projection when set. The reduced
	// projection stays the documented fallback.
	Fields []string
}

// Rules fetches salary rules ordered by (sequence, id). The full projection is
// tried first, then the reduced one; a second failure is fatal.
func (e *Extractor) Rules(ctx context.Context, rq RuleQuery) ([]Rule, Tier, error) {
	q := Query{Model: odoo.ModelRule, Order: "sequence, id"}
	if rq.StructureID != 0 {
		q.Domain = []any{[]any{"struct_id", "=", rq.StructureID}}
	}
	p := RuleProjection
	if len(rq.Fields) > 0 {
		p.Preferred = withID(rq.Fields)
	}

	res, err := e.Fetch(ctx, q, p)
	if err != nil {
		return nil, "", fmt.Errorf("salary rules: %w", err)
	}
	out := make([]Rule, 0, len(res.Records))
	for _, r := range res.Records {
		out = append(out, decodeRule(r))
	}
	return out, res.Tier, nil
}

// Parameters fetches rule parameters, or none when the model is unavailable.
func (e *Extractor) Parameters(ctx context.Context) []Parameter {
	rows, _ := e.bestEffort(ctx, Query{Model: odoo.ModelParameter}, ParameterFields, "rule parameters")
	out := make([]Parameter, 0, len(rows))
	for _, r := range rows {
		out = append(out, decodeParameter(r))
	}
	return out
}

// ParameterValues fetches the dated values of the given parameters, ordered by
// parameter then date. An empty id list fetches every value.
func (e *Extractor) ParameterValues(ctx context.Context, parameterIDs []int) []ParameterValue {
	q := Query{Model: odoo.ModelParameterValue, Order: "rule_parameter_id, date_from"}
	if len(parameterIDs) > 0 {
		ids := make([]any, len(parameterIDs))
		for i, id := range parameterIDs {
			ids[i] = id
		}
		q.Domain = []any{[]any{"rule_parameter_id", "in", ids}}
	}
	rows, _ := e.bestEffort(ctx, q, ParameterValueFields, "rule parameter values")
	out := make([]ParameterValue, 0, len(rows))
	for _, r := range rows {
		out = append(out, decodeParameterValue(r))
	}
	return out
}

// InputTypes fetches payslip input types. Servers without hr.payslip.input.type
// are asked for the legacy hr.salary.rule.input model instead.
func (e *Extractor) InputTypes(ctx context.Context) []InputType {
	model := odoo.ModelInputType
	rows, ok := e.bestEffort(ctx, Query{Model: model}, InputTypeFields, model)
	if !ok {
		model = odoo.ModelRuleInput
		rows, _ = e.bestEffort(ctx, Query{Model: model}, RuleInputFields, model)
	}
	out := make([]InputType, 0, len(rows))
	for _, r := range rows {
		out = append(out, decodeInputType(r, model))
	}
	return out
}

func withID(fields []string) []string {
	for _, f := range fields {
		if f == "id" {
			return fields
		}
	}
	return append([]string{"id"}, fields...)
}
