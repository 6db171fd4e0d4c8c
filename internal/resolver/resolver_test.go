package resolver

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"testing/quick"

	"payrollxml/internal/odoo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLookup struct {
	ids   map[string]string
	err   error
	calls int
}

func (f *fakeLookup) ExternalID(_ context.Context, model string, id int) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.ids[model+":"+strconv.Itoa(id)], nil
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"BASIC_SAL", "basic_sal"},
		{"Base Salary", "base_salary"},
		{"  --Horas Extra (35%)--  ", "horas_extra_35"},
		{"a__b", "a_b"},
		{"Año 2024/Q1", "a_o_2024_q1"},
		{"___", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.in))
		})
	}
}

func TestSanitize_Properties(t *testing.T) {
	prop := func(s string) bool {
		token := Sanitize(s)
		if token != Sanitize(s) {
			return false
		}
		if strings.HasPrefix(token, "_") || strings.HasSuffix(token, "_") || strings.Contains(token, "__") {
			return false
		}
		for _, c := range token {
			if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '_') {
				return false
			}
		}
		return true
	}
	require.NoError(t, quick.Check(prop, &quick.Config{MaxCount: 2000}))
}

func TestDerive(t *testing.T) {
	assert.Equal(t, "aginc_hr_salary_rule_basic_sal", Derive("aginc_hr_salary_rule", "Base Salary", "BASIC_SAL"))
	assert.Equal(t, "aginc_structure_regular_payroll", Derive("aginc_structure", "Regular Payroll", ""))
	assert.Equal(t, "x_y", Derive("x_", "", "Y"))
	assert.Equal(t, "token", Derive("", "Token", ""))
	assert.Empty(t, Derive("aginc", "", ""))
	assert.Empty(t, Derive("aginc", "!!!", ""))
}

func TestResolver_GeneratesDeterministically(t *testing.T) {
	subject := Subject{ID: 100, Name: "Base Salary", Code: "BASIC_SAL"}

	first := NewResolver(Options{Prefixes: DefaultPrefixes()})
	second := NewResolver(Options{Prefixes: DefaultPrefixes()})

	a, ok := first.Resolve(context.Background(), KindRule, subject)
	require.True(t, ok)
	b, _ := second.Resolve(context.Background(), KindRule, subject)
	c, _ := first.Resolve(context.Background(), KindRule, subject)

	assert.Equal(t, "aginc_hr_salary_rule_basic_sal", a)
	assert.Equal(t, a, b)
	assert.Equal(t, a, c)
	assert.True(t, first.Generated(KindRule, 100))
	assert.Equal(t, Stats{Generated: 1}, first.Stats())
}

func TestResolver_CustomPrefixes(t *testing.T) {
	p := DefaultPrefixes()
	p.Rule = "acme_rule"
	p.Category = "acme_cat"
	r := NewResolver(Options{Prefixes: p})

	rule, _ := r.Resolve(context.Background(), KindRule, Subject{ID: 1, Name: "Base Salary", Code: "BASIC_SAL"})
	cat, _ := r.Resolve(context.Background(), KindCategory, Subject{ID: 1, Name: "Basic", Code: "BASIC"})
	assert.Equal(t, "acme_rule_basic_sal", rule)
	assert.Equal(t, "acme_cat_basic", cat)
}

func TestResolver_ReusesServerXMLID(t *testing.T) {
	lookup := &fakeLookup{ids: map[string]string{
		odoo.ModelRuleCategory + ":1": "hr_payroll.BASIC",
		odoo.ModelRule + ":100":       "l10n_do_hr_payroll.rule_basic",
	}}
	r := NewResolver(Options{Prefixes: DefaultPrefixes(), ModulePrefix: "l10n_do_hr_payroll", Lookup: lookup})
	ctx := context.Background()

	cat, ok := r.Resolve(ctx, KindCategory, Subject{ID: 1, Name: "Basic", Code: "BASIC"})
	require.True(t, ok)
	assert.Equal(t, "hr_payroll.BASIC", cat)
	assert.False(t, r.IsLocal(cat))
	assert.False(t, r.Generated(KindCategory, 1))

	rule, ok := r.Resolve(ctx, KindRule, Subject{ID: 100, Name: "Base Salary", Code: "BASIC_SAL"})
	require.True(t, ok)
	assert.Equal(t, "rule_basic", rule, "identifiers of the output module are written locally")
	assert.True(t, r.IsLocal(rule))

	_, _ = r.Resolve(ctx, KindCategory, Subject{ID: 1, Name: "Basic", Code: "BASIC"})
	assert.Equal(t, 2, lookup.calls, "resolved records are read from the identifier map")
	assert.Equal(t, 2, r.Stats().Reused)
}

func TestResolver_LegacyModelOverride(t *testing.T) {
	lookup := &fakeLookup{ids: map[string]string{odoo.ModelRuleInput + ":3": "hr_payroll.input_commission"}}
	r := NewResolver(Options{Prefixes: DefaultPrefixes(), Lookup: lookup})

	id, ok := r.Resolve(context.Background(), KindInputType, Subject{ID: 3, Name: "Commission", Model: odoo.ModelRuleInput})
	require.True(t, ok)
	assert.Equal(t, "hr_payroll.input_commission", id)
}

func TestResolver_LookupFailureIsNotFound(t *testing.T) {
	lookup := &fakeLookup{err: errors.New("access denied to ir.model.data")}
	r := NewResolver(Options{Prefixes: DefaultPrefixes(), Lookup: lookup})

	id, ok := r.Resolve(context.Background(), KindStructure, Subject{ID: 10, Name: "Regular Payroll", Code: "REG"})
	require.True(t, ok)
	assert.Equal(t, "aginc_structure_reg", id)
	assert.Equal(t, 1, r.Stats().LookupFailures)
}

func TestResolver_SkipsRecordsWithoutNameOrCode(t *testing.T) {
	r := NewResolver(Options{Prefixes: DefaultPrefixes()})

	id, ok := r.Resolve(context.Background(), KindParameter, Subject{ID: 5})
	assert.False(t, ok)
	assert.Empty(t, id)
	assert.Equal(t, 1, r.Stats().Skipped)

	_, ok = r.Resolve(context.Background(), KindParameter, Subject{ID: 5, Name: "late name"})
	assert.False(t, ok, "the first resolution is final")
}

func TestResolver_Duplicates(t *testing.T) {
	r := NewResolver(Options{Prefixes: DefaultPrefixes()})
	ctx := context.Background()
	_, _ = r.Resolve(ctx, KindRule, Subject{ID: 1, Name: "Gross", Code: "GROSS"})
	_, _ = r.Resolve(ctx, KindRule, Subject{ID: 2, Name: "Gross", Code: "GROSS"})
	_, _ = r.Resolve(ctx, KindRule, Subject{ID: 3, Name: "Net", Code: "NET"})

	assert.Equal(t, []string{"aginc_hr_salary_rule_gross"}, r.Duplicates())
}

func TestValueID(t *testing.T) {
	p := DefaultPrefixes()
	tests := []struct {
		name     string
		param    string
		date     string
		index    int
		siblings int
		want     string
	}{
		{"single value", "aginc_rule_parameter_isr", "2024-01-01", 0, 1, "aginc_rule_parameter_value_isr"},
		{"dated siblings", "aginc_rule_parameter_isr", "2024-01-01", 0, 2, "aginc_rule_parameter_value_isr_2024_01_01"},
		{"undated sibling", "aginc_rule_parameter_isr", "", 1, 2, "aginc_rule_parameter_value_isr_1"},
		{"server parameter id", "hr_payroll.rule_parameter_isr", "", 0, 1, "aginc_rule_parameter_value_hr_payroll_rule_parameter_isr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValueID(p, tt.param, tt.date, tt.index, tt.siblings))
		})
	}
}

func TestSplitXMLID(t *testing.T) {
	module, name := SplitXMLID("hr_payroll.BASIC")
	assert.Equal(t, "hr_payroll", module)
	assert.Equal(t, "BASIC", name)

	module, name = SplitXMLID("aginc_category_basic")
	assert.Empty(t, module)
	assert.Equal(t, "aginc_category_basic", name)
}
