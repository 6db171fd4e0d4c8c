package inspect

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"payrollxml/internal/odoo"
)

// Attributes requested from fields_get.
var Attributes = []string{"string", "type", "required", "readonly"}

// Bucket is the class a field falls into.
type Bucket string

const (
	BucketBasic      Bucket = "basic"
	BucketRelational Bucket = "relational"
	BucketComputed   Bucket = "computed"
	BucketSystem     Bucket = "system"
)

var (
	systemFields     = map[string]bool{"id": true, "create_uid": true, "create_date": true, "write_uid": true, "write_date": true}
	relationalTypes  = map[string]bool{"many2one": true, "one2many": true, "many2many": true}
	storedPlainTypes = map[string]bool{"char": true, "text": true, "float": true, "integer": true}
	// never worth exporting
	excluded = map[string]bool{"__last_update": true, "display_name": true}
)

// FieldInfo is the metadata of one field.
type FieldInfo struct {
	Name     string
	Label    string
	Type     string
	Required bool
	Readonly bool
}

// Classify puts a field in its bucket; the first matching rule wins.
func Classify(f FieldInfo) Bucket {
	switch {
	case systemFields[f.Name]:
		return BucketSystem
	case relationalTypes[f.Type]:
		return BucketRelational
	case f.Readonly && !storedPlainTypes[f.Type]:
		return BucketComputed
	default:
		return BucketBasic
	}
}

// Fetch reads the field metadata of model, sorted by field name.
func Fetch(ctx context.Context, c odoo.Caller, model string) ([]FieldInfo, error) {
	raw, err := odoo.FieldsGet(ctx, c, model, Attributes)
	if err != nil {
		return nil, fmt.Errorf("fields of %s: %w", model, err)
	}
	fields := make([]FieldInfo, 0, len(raw))
	for name, v := range raw {
		attrs := odoo.Record{}
		if m, ok := v.(map[string]any); ok {
			attrs = odoo.Record(m)
		}
		f := FieldInfo{Name: name, Label: attrs.String("string"), Type: attrs.String("type")}
		if f.Type == "" {
			f.Type = "unknown"
		}
		f.Required, _ = attrs.Bool("required")
		f.Readonly, _ = attrs.Bool("readonly")
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })
	return fields, nil
}

// Report is a model's fields split into buckets.
type Report struct {
	Model   string
	Fields  []FieldInfo
	Buckets map[Bucket][]FieldInfo
}

func NewReport(model string, fields []FieldInfo) *Report {
	r := &Report{Model: model, Fields: fields, Buckets: map[Bucket][]FieldInfo{}}
	for _, f := range fields {
		b := Classify(f)
		r.Buckets[b] = append(r.Buckets[b], f)
	}
	return r
}

var sections = []struct {
	bucket Bucket
	title  string
}{
	{BucketBasic, "BASIC FIELDS (Recommended for extraction):"},
	{BucketRelational, "RELATION FIELDS:"},
	{BucketComputed, "COMPUTED/READONLY FIELDS:"},
	{BucketSystem, "SYSTEM FIELDS:"},
}

// Print writes the bucketed report. Empty buckets are left out.
func (r *Report) Print(w io.Writer) {
	rule := strings.Repeat("=", 70)
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "AVAILABLE FIELDS IN %s\n", r.Model)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)

	for _, s := range sections {
		fields := r.Buckets[s.bucket]
		if len(fields) == 0 {
			continue
		}
		fmt.Fprintln(w, s.title)
		fmt.Fprintln(w, strings.Repeat("-", 70))
		for _, f := range fields {
			marker := ""
			if f.Required {
				marker = " *"
			}
			fmt.Fprintf(w, "  • %-30s (%-15s) - %s%s\n", f.Name, f.Type, f.Label, marker)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total fields: %d\n", len(r.Fields))
	if len(r.Buckets) > 0 {
		fmt.Fprintln(w, "(* required)")
	}
	fmt.Fprintln(w)
}

// Recommended lists the basic and relational fields worth exporting, sorted.
func (r *Report) Recommended() []string {
	var out []string
	for _, b := range []Bucket{BucketBasic, BucketRelational} {
		for _, f := range r.Buckets[b] {
			if !excluded[f.Name] {
				out = append(out, f.Name)
			}
		}
	}
	sort.Strings(out)
	return out
}

// PrintExport writes the recommended fields as a config snippet for the
// exporter's rules.fields setting, followed by every field with its label.
func (r *Report) PrintExport(w io.Writer) error {
	rule := strings.Repeat("=", 70)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "CONFIG SNIPPET FOR payroll-export.yaml:")
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "# Recommended fields:")
	if err := writeFields(w, r.Recommended(), nil); err != nil {
		return err
	}
	fmt.Fprintln(w)

	var all []string
	labels := map[string]string{}
	for _, f := range r.Fields {
		if excluded[f.Name] {
			continue
		}
		all = append(all, f.Name)
		labels[f.Name] = f.Label
	}
	fmt.Fprintln(w, "# Alternative - All fields:")
	return writeFields(w, all, labels)
}

// writeFields renders rules.fields as YAML, with labels as line comments.
func writeFields(w io.Writer, names []string, labels map[string]string) error {
	list := &yaml.Node{Kind: yaml.SequenceNode}
	for _, n := range names {
		item := &yaml.Node{Kind: yaml.ScalarNode, Value: n}
		if label := labels[n]; label != "" {
			item.LineComment = label
		}
		list.Content = append(list.Content, item)
	}
	doc := &yaml.Node{Kind: yaml.MappingNode, Content: []*yaml.Node{
		{Kind: yaml.ScalarNode, Value: "rules"},
		{Kind: yaml.MappingNode, Content: []*yaml.Node{
			{Kind: yaml.ScalarNode, Value: "fields"},
			list,
		}},
	}}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}
	return enc.Close()
}
