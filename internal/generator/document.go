package generator

import "strings"

// Document is the ordered content of an <odoo> data file.
type Document struct {
	Nodes []Node
}

// Node is either a comment or a record; exactly one of the two is set.
type Node struct {
	Comment string
	Record  *Record
}

// Record is a <record id=".." model=".."> block.
type Record struct {
	ID     string
	Model  string
	Fields []Field
}

// Field is a <field name=".."> element. At most one of Ref, Eval or the text
// content is meaningful.
type Field struct {
	Name  string
	Text  string
	CDATA bool
	Ref   string
	Eval  string
}

func NewDocument() *Document {
	return &Document{}
}

func (d *Document) AddComment(text string) {
	d.Nodes = append(d.Nodes, Node{Comment: text})
}

func (d *Document) AddRecord(id, model string) *Record {
	r := &Record{ID: id, Model: model}
	d.Nodes = append(d.Nodes, Node{Record: r})
	return r
}

// Records returns the records of model in document order; an empty model
// returns every record.
func (d *Document) Records(model string) []*Record {
	var out []*Record
	for _, n := range d.Nodes {
		if n.Record != nil && (model == "" || n.Record.Model == model) {
			out = append(out, n.Record)
		}
	}
	return out
}

// Record returns the record with the given id.
func (d *Document) Record(id string) (*Record, bool) {
	for _, n := range d.Nodes {
		if n.Record != nil && n.Record.ID == id {
			return n.Record, true
		}
	}
	return nil, false
}

// Set adds a plain text field.
func (r *Record) Set(name, text string) {
	r.Fields = append(r.Fields, Field{Name: name, Text: text})
}

// SetBool adds a boolean field as its True/False literal.
func (r *Record) SetBool(name string, v bool) {
	if v {
		r.Set(name, "True")
		return
	}
	r.Set(name, "False")
}

// SetText adds a free-text field, wrapped in a CDATA section when it holds
// markup characters.
func (r *Record) SetText(name, text string) {
	body, cdata := literal(text)
	r.Fields = append(r.Fields, Field{Name: name, Text: body, CDATA: cdata})
}

// SetRef adds a reference to another record's XML ID.
func (r *Record) SetRef(name, xmlid string) {
	r.Fields = append(r.Fields, Field{Name: name, Ref: xmlid})
}

// SetEval adds a field evaluated by the data loader.
func (r *Record) SetEval(name, expr string) {
	r.Fields = append(r.Fields, Field{Name: name, Eval: expr})
}

func (r *Record) Field(name string) (Field, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

func (r *Record) Has(name string) bool {
	_, ok := r.Field(name)
	return ok
}

const (
	cdataOpen  = "<![CDATA["
	cdataClose = "]]>"
)

// literal decides how free text is written. Text with <, > or & goes into a
// CDATA section; text that is already a CDATA section is unwrapped so it is
// not wrapped twice. Text that cannot live in one section stays escaped.
func literal(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, cdataOpen) && strings.HasSuffix(trimmed, cdataClose) {
		inner := strings.TrimSuffix(strings.TrimPrefix(trimmed, cdataOpen), cdataClose)
		if !strings.Contains(inner, cdataClose) {
			return inner, true
		}
	}
	if !strings.ContainsAny(text, "<>&") || strings.Contains(text, cdataClose) {
		return text, false
	}
	return text, true
}
