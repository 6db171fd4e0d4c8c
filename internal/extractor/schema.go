package extractor

import "payrollxml/internal/odoo"

// Optional is a scalar whose presence matters: absent fields are never emitted,
// while a present zero still is.
type Optional struct {
	Text    string
	Present bool
}

func optional(r odoo.Record, field string) Optional {
	text, ok := r.Scalar(field)
	return Optional{Text: text, Present: ok}
}

// Category is an hr.salary.rule.category row.
type Category struct {
	ID     int
	Name   string
	Code   string
	Parent *odoo.Ref
}

// Structure is an hr.payroll.structure row.
type Structure struct {
	ID      int
	Name    string
	Code    string
	RuleIDs []int
}

// Rule is an hr.salary.rule row. Fields outside the projection that served the
// fetch stay at their zero value.
type Rule struct {
	ID       int
	Name     string
	Code     string
	Sequence Optional
	Category *odoo.Ref
	Struct   *odoo.Ref

	ConditionSelect   string // none, python or range
	ConditionPython   string
	ConditionRange    string
	ConditionRangeMin Optional
	ConditionRangeMax Optional

	AmountSelect         string // fix, percentage or code
	AmountFix            Optional
	AmountPercentage     Optional
	AmountPercentageBase string
	AmountPythonCompute  string

	Quantity         string
	AppearsOnPayslip *bool
	Active           *bool
	Note             string
}

// Parameter is an hr.rule.parameter row.
type Parameter struct {
	ID          int
	Name        string
	Code        string
	Description string
}

// ParameterValue is a dated hr.rule.parameter.value row.
type ParameterValue struct {
	ID          int
	ParameterID int
	DateFrom    string
	Value       Optional
}

// InputType is an hr.payslip.input.type row, or a legacy hr.salary.rule.input
// row when Model says so.
type InputType struct {
	ID        int
	Model     string
	Name      string
	Code      string
	StructIDs []int
	Rule      *odoo.Ref // legacy input_id
}

// Field projections. RuleProjection carries the reduced set used when the
// server rejects the full one.
var (
	CategoryFields  = []string{"id", "name", "code", "parent_id"}
	StructureFields = []string{"id", "name", "code", "rule_ids"}

	RuleProjection = Projection{
		Preferred: []string{
			"id", "name", "code", "sequence", "category_id",
			"condition_select", "condition_python", "condition_range",
			"condition_range_min", "condition_range_max",
			"amount_select", "amount_fix", "amount_percentage",
			"amount_python_compute", "amount_percentage_base",
			"quantity", "appears_on_payslip", "active",
			"note", "struct_id",
		},
		Fallback: []string{
			"id", "name", "code", "sequence", "category_id",
			"condition_select", "condition_python",
			"amount_select", "amount_python_compute",
			"appears_on_payslip", "active", "struct_id",
		},
	}

	ParameterFields      = []string{"id", "name", "code", "description", "country_id"}
	ParameterValueFields = []string{"id", "rule_parameter_id", "date_from", "parameter_value"}
	InputTypeFields      = []string{"id", "name", "code", "struct_ids", "country_id"}
	RuleInputFields      = []string{"id", "name", "code", "input_id"}
)

func boolPtr(r odoo.Record, field string) *bool {
	v, ok := r.Bool(field)
	if !ok {
		return nil
	}
	return &v
}

func refPtr(r odoo.Record, field string) *odoo.Ref {
	ref, ok := r.Many2One(field)
	if !ok {
		return nil
	}
	return &ref
}

func decodeCategory(r odoo.Record) Category {
	return Category{
		ID:     r.ID(),
		Name:   r.String("name"),
		Code:   r.String("code"),
		Parent: refPtr(r, "parent_id"),
	}
}

func decodeStructure(r odoo.Record) Structure {
	return Structure{
		ID:      r.ID(),
		Name:    r.String("name"),
		Code:    r.String("code"),
		RuleIDs: r.IDs("rule_ids"),
	}
}

func decodeRule(r odoo.Record) Rule {
	return Rule{
		ID:                   r.ID(),
		Name:                 r.String("name"),
		Code:                 r.String("code"),
		Sequence:             optional(r, "sequence"),
		Category:             refPtr(r, "category_id"),
		Struct:               refPtr(r, "struct_id"),
		ConditionSelect:      r.String("condition_select"),
		ConditionPython:      r.String("condition_python"),
		ConditionRange:       r.String("condition_range"),
		ConditionRangeMin:    optional(r, "condition_range_min"),
		ConditionRangeMax:    optional(r, "condition_range_max"),
		AmountSelect:         r.String("amount_select"),
		AmountFix:            optional(r, "amount_fix"),
		AmountPercentage:     optional(r, "amount_percentage"),
		AmountPercentageBase: r.String("amount_percentage_base"),
		AmountPythonCompute:  r.String("amount_python_compute"),
		Quantity:             r.String("quantity"),
		AppearsOnPayslip:     boolPtr(r, "appears_on_payslip"),
		Active:               boolPtr(r, "active"),
		Note:                 r.String("note"),
	}
}

func decodeParameter(r odoo.Record) Parameter {
	return Parameter{
		ID:          r.ID(),
		Name:        r.String("name"),
		Code:        r.String("code"),
		Description: r.String("description"),
	}
}

func decodeParameterValue(r odoo.Record) ParameterValue {
	v := ParameterValue{
		ID:       r.ID(),
		DateFrom: r.String("date_from"),
		Value:    optional(r, "parameter_value"),
	}
	if ref, ok := r.Many2One("rule_parameter_id"); ok {
		v.ParameterID = ref.ID
	}
	return v
}

func decodeInputType(r odoo.Record, model string) InputType {
	return InputType{
		ID:        r.ID(),
		Model:     model,
		Name:      r.String("name"),
		Code:      r.String("code"),
		StructIDs: r.IDs("struct_ids"),
		Rule:      refPtr(r, "input_id"),
	}
}
