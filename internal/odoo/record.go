package odoo

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Record is a single row decoded from a search_read reply.
// Odoo sends `false` for empty scalar and relational values; the accessors below
// treat it as "absent".
type Record map[string]any

// Ref is a decoded many2one value: the target id and its display label.
type Ref struct {
	ID    int
	Label string
}

func (r Record) ID() int {
	id, _ := toInt(r["id"])
	return id
}

// Has reports whether the field was returned with a non-empty value.
func (r Record) Has(field string) bool {
	v, ok := r[field]
	if !ok || v == nil {
		return false
	}
	if b, isBool := v.(bool); isBool && !b {
		return false
	}
	return true
}

// Contains reports whether the field was returned at all, even as false.
func (r Record) Contains(field string) bool {
	_, ok := r[field]
	return ok
}

// String returns the field rendered as text, or "" when absent.
func (r Record) String(field string) string {
	if !r.Has(field) {
		return ""
	}
	if s, ok := r[field].(string); ok {
		return s
	}
	return FormatValue(r[field])
}

// Scalar returns the field's string representation and whether it was present.
func (r Record) Scalar(field string) (string, bool) {
	if !r.Has(field) {
		return "", false
	}
	return FormatValue(r[field]), true
}

// Bool returns a boolean field. ok is false when the field was not returned.
func (r Record) Bool(field string) (value bool, ok bool) {
	v, found := r[field]
	if !found || v == nil {
		return false, false
	}
	b, isBool := v.(bool)
	if !isBool {
		return false, false
	}
	return b, true
}

// Many2One decodes an `[id, label]` pair. A bare integer id is accepted too.
func (r Record) Many2One(field string) (Ref, bool) {
	if !r.Has(field) {
		return Ref{}, false
	}
	switch v := r[field].(type) {
	case []any:
		if len(v) == 0 {
			return Ref{}, false
		}
		id, ok := toInt(v[0])
		if !ok || id == 0 {
			return Ref{}, false
		}
		ref := Ref{ID: id}
		if len(v) > 1 {
			if label, isStr := v[1].(string); isStr {
				ref.Label = label
			}
		}
		return ref, true
	default:
		id, ok := toInt(v)
		if !ok || id == 0 {
			return Ref{}, false
		}
		return Ref{ID: id}, true
	}
}

// IDs decodes a one2many/many2many id list.
func (r Record) IDs(field string) []int {
	list, ok := r[field].([]any)
	if !ok {
		return nil
	}
	ids := make([]int, 0, len(list))
	for _, item := range list {
		if id, ok := toInt(item); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// FormatValue renders a decoded XML-RPC value the way the server prints it:
// booleans as True/False, integral floats with a trailing ".0".
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "True"
		}
		return "False"
	case int:
		return strconv.Itoa(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case float32:
		return formatFloat(float64(t))
	case float64:
		return formatFloat(t)
	case []any:
		parts := make([]string, len(t))
		for i, item := range t {
			parts[i] = FormatValue(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprint(t)
	}
}

func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	}
	abs := math.Abs(f)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func toInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int32:
		return int(t), true
	case int64:
		return int(t), true
	case float64:
		if t == math.Trunc(t) {
			return int(t), true
		}
	}
	return 0, false
}

// DecodeRecords converts a search_read reply into records.
func DecodeRecords(reply any) ([]Record, error) {
	if reply == nil {
		return nil, nil
	}
	list, ok := reply.([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected search_read reply of type %T", reply)
	}
	records := make([]Record, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("unexpected record %d of type %T", i, item)
		}
		records = append(records, Record(m))
	}
	return records, nil
}
