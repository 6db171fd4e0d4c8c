package extractor

import (
	"bytes"
	"context"
	"errors"
	"log"
	"testing"

	"payrollxml/internal/odoo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	Model  string
	Method string
	Args   []any
	Kwargs map[string]any
}

type fakeCaller struct {
	calls []call
	reply func(c call) (any, error)
}

func (f *fakeCaller) Execute(_ context.Context, model, method string, args []any, kwargs map[string]any) (any, error) {
	c := call{Model: model, Method: method, Args: args, Kwargs: kwargs}
	f.calls = append(f.calls, c)
	return f.reply(c)
}

func rows(records ...map[string]any) []any {
	out := make([]any, len(records))
	for i, r := range records {
		out[i] = r
	}
	return out
}

func newTestExtractor(reply func(c call) (any, error)) (*Extractor, *fakeCaller, *bytes.Buffer) {
	fc := &fakeCaller{reply: reply}
	var buf bytes.Buffer
	return NewExtractor(fc, log.New(&buf, "", 0)), fc, &buf
}

func fieldsOf(c call) []string {
	f, _ := c.Kwargs["fields"].([]string)
	return f
}

func TestFetch_PreferredProjection(t *testing.T) {
	ext, fc, logs := newTestExtractor(func(c call) (any, error) {
		return rows(map[string]any{"id": int64(1)}), nil
	})

	res, err := ext.Fetch(context.Background(), Query{Model: "m"}, Projection{Preferred: []string{"id", "a"}, Fallback: []string{"id"}})
	require.NoError(t, err)
	assert.Equal(t, TierPreferred, res.Tier)
	assert.Len(t, res.Records, 1)
	assert.Len(t, fc.calls, 1)
	assert.Empty(t, logs.String())
	assert.Empty(t, ext.Warnings())
}

func TestFetch_FallsBackToReducedProjection(t *testing.T) {
	ext, fc, logs := newTestExtractor(func(c call) (any, error) {
		if len(fieldsOf(c)) > 1 {
			return nil, errors.New("Invalid field 'a'")
		}
		return rows(map[string]any{"id": int64(1)}), nil
	})

	res, err := ext.Fetch(context.Background(), Query{Model: "m"}, Projection{Preferred: []string{"id", "a"}, Fallback: []string{"id"}})
	require.NoError(t, err)
	assert.Equal(t, TierFallback, res.Tier)
	assert.EqualError(t, res.PreferredErr, "Invalid field 'a'")
	require.Len(t, fc.calls, 2)
	assert.Equal(t, []string{"id"}, fieldsOf(fc.calls[1]))
	assert.Contains(t, logs.String(), "Warning: Some fields not available")
	require.Len(t, ext.Warnings(), 1)
}

func TestFetch_FallbackFailureIsFatal(t *testing.T) {
	ext, fc, _ := newTestExtractor(func(c call) (any, error) {
		return nil, errors.New("boom")
	})

	_, err := ext.Fetch(context.Background(), Query{Model: "m"}, Projection{Preferred: []string{"id", "a"}, Fallback: []string{"id"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFetch)
	assert.Len(t, fc.calls, 2)
}

func TestFetch_NoFallbackSingleAttempt(t *testing.T) {
	ext, fc, _ := newTestExtractor(func(c call) (any, error) {
		return nil, errors.New("boom")
	})

	_, err := ext.Fetch(context.Background(), Query{Model: "m"}, Projection{Preferred: []string{"id"}})
	assert.ErrorIs(t, err, ErrFetch)
	assert.Len(t, fc.calls, 1)
}

func TestRules_OrderDomainAndDecode(t *testing.T) {
	ext, fc, _ := newTestExtractor(func(c call) (any, error) {
		return rows(map[string]any{
			"id":                 int64(100),
			"name":               "Base Salary",
			"code":               "BASIC_SAL",
			"sequence":           int64(10),
			"category_id":        []any{int64(1), "Basic"},
			"struct_id":          []any{int64(10), "Regular Payroll"},
			"condition_select":   "none",
			"amount_select":      "fix",
			"amount_fix":         1000.0,
			"amount_percentage":  0.0,
			"appears_on_payslip": true,
			"active":             true,
			"note":               false,
		}), nil
	})

	rules, tier, err := ext.Rules(context.Background(), RuleQuery{StructureID: 10})
	require.NoError(t, err)
	assert.Equal(t, TierPreferred, tier)
	require.Len(t, rules, 1)

	c := fc.calls[0]
	assert.Equal(t, odoo.ModelRule, c.Model)
	assert.Equal(t, "search_read", c.Method)
	assert.Equal(t, "sequence, id", c.Kwargs["order"])
	assert.Equal(t, []any{[]any{[]any{"struct_id", "=", 10}}}, c.Args)
	assert.Equal(t, RuleProjection.Preferred, fieldsOf(c))

	r := rules[0]
	assert.Equal(t, 100, r.ID)
	assert.Equal(t, "BASIC_SAL", r.Code)
	assert.Equal(t, Optional{Text: "10", Present: true}, r.Sequence)
	require.NotNil(t, r.Category)
	assert.Equal(t, 1, r.Category.ID)
	require.NotNil(t, r.Struct)
	assert.Equal(t, 10, r.Struct.ID)
	assert.Equal(t, Optional{Text: "1000.0", Present: true}, r.AmountFix)
	assert.Equal(t, Optional{Text: "0.0", Present: true}, r.AmountPercentage)
	assert.False(t, r.ConditionRangeMin.Present)
	require.NotNil(t, r.AppearsOnPayslip)
	assert.True(t, *r.AppearsOnPayslip)
	assert.Empty(t, r.Note)
}

func TestRules_ConfiguredFieldsKeepFallback(t *testing.T) {
	ext, fc, _ := newTestExtractor(func(c call) (any, error) {
		if len(fieldsOf(c)) == 3 {
			return nil, errors.New("Invalid field 'custom'")
		}
		return rows(), nil
	})

	_, tier, err := ext.Rules(context.Background(), RuleQuery{Fields: []string{"name", "custom"}})
	require.NoError(t, err)
	assert.Equal(t, TierFallback, tier)
	assert.Equal(t, []string{"id", "name", "custom"}, fieldsOf(fc.calls[0]))
	assert.Equal(t, RuleProjection.Fallback, fieldsOf(fc.calls[1]))
	assert.Equal(t, []any{[]any{}}, fc.calls[0].Args)
}

func TestCategories_Required(t *testing.T) {
	ext, _, _ := newTestExtractor(func(c call) (any, error) {
		return nil, errors.New("access denied")
	})
	_, err := ext.Categories(context.Background())
	assert.ErrorIs(t, err, ErrFetch)
}

func TestOptionalCategories_EmptyOnFailure(t *testing.T) {
	ext, fc, logs := newTestExtractor(func(c call) (any, error) {
		return nil, errors.New("Object " + c.Model + " doesn't exist")
	})
	ctx := context.Background()

	assert.Empty(t, ext.Structures(ctx))
	assert.Empty(t, ext.Parameters(ctx))
	assert.Empty(t, ext.ParameterValues(ctx, []int{1}))
	assert.Empty(t, ext.InputTypes(ctx))

	// input types try the legacy model too
	assert.Len(t, fc.calls, 5)
	assert.Equal(t, odoo.ModelRuleInput, fc.calls[4].Model)
	assert.Len(t, ext.Warnings(), 5)
	assert.Contains(t, logs.String(), "Warning: Could not fetch rule parameters")
}

func TestParameterValues_DomainAndDecode(t *testing.T) {
	ext, fc, _ := newTestExtractor(func(c call) (any, error) {
		return rows(
			map[string]any{"id": int64(1), "rule_parameter_id": []any{int64(5), "ISR"}, "date_from": "2024-01-01", "parameter_value": "[(0, 416220.0)]"},
			map[string]any{"id": int64(2), "rule_parameter_id": []any{int64(5), "ISR"}, "date_from": false, "parameter_value": false},
		), nil
	})

	values := ext.ParameterValues(context.Background(), []int{5, 6})
	require.Len(t, values, 2)
	assert.Equal(t, []any{[]any{[]any{"rule_parameter_id", "in", []any{5, 6}}}}, fc.calls[0].Args)
	assert.Equal(t, "rule_parameter_id, date_from", fc.calls[0].Kwargs["order"])

	assert.Equal(t, 5, values[0].ParameterID)
	assert.Equal(t, "2024-01-01", values[0].DateFrom)
	assert.Equal(t, Optional{Text: "[(0, 416220.0)]", Present: true}, values[0].Value)
	assert.Empty(t, values[1].DateFrom)
	assert.False(t, values[1].Value.Present)
}

func TestInputTypes_LegacyModel(t *testing.T) {
	ext, _, _ := newTestExtractor(func(c call) (any, error) {
		if c.Model == odoo.ModelInputType {
			return nil, errors.New("Object hr.payslip.input.type doesn't exist")
		}
		return rows(map[string]any{"id": int64(3), "name": "Commission", "code": "COMM", "input_id": []any{int64(100), "Base Salary"}}), nil
	})

	inputs := ext.InputTypes(context.Background())
	require.Len(t, inputs, 1)
	assert.Equal(t, odoo.ModelRuleInput, inputs[0].Model)
	require.NotNil(t, inputs[0].Rule)
	assert.Equal(t, 100, inputs[0].Rule.ID)
}

func TestInputTypes_StructureLinks(t *testing.T) {
	ext, fc, _ := newTestExtractor(func(c call) (any, error) {
		return rows(map[string]any{"id": int64(3), "name": "Overtime", "code": "OT", "struct_ids": []any{int64(10), int64(11)}, "country_id": false}), nil
	})

	inputs := ext.InputTypes(context.Background())
	require.Len(t, inputs, 1)
	assert.Len(t, fc.calls, 1)
	assert.Equal(t, odoo.ModelInputType, inputs[0].Model)
	assert.Equal(t, []int{10, 11}, inputs[0].StructIDs)
	assert.Nil(t, inputs[0].Rule)
}
