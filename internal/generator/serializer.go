package generator

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/beevik/etree"
)

const declaration = `<?xml version="1.0" encoding="UTF-8"?>`

// Render serializes doc as an indented Odoo data file. When the compact form
// cannot be reparsed for indentation it is returned as is, after a warning.
func Render(doc *Document, logger *log.Logger) (string, error) {
	rough, err := compact(doc)
	if err != nil {
		return "", err
	}
	pretty, err := Prettify(rough)
	if err != nil {
		if logger != nil {
			logger.Printf("Warning: could not format XML output: %v", err)
		}
		return rough, nil
	}
	return pretty, nil
}

func compact(doc *Document) (string, error) {
	x := etree.NewDocument()
	canonical(x)
	x.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := x.CreateElement("odoo")

	for _, n := range doc.Nodes {
		switch {
		case n.Record != nil:
			writeRecord(root, n.Record)
		case n.Comment != "":
			root.CreateComment(commentText(n.Comment))
		}
	}

	s, err := x.WriteToString()
	if err != nil {
		return "", fmt.Errorf("render xml: %w", err)
	}
	return s, nil
}

func writeRecord(parent *etree.Element, r *Record) {
	el := parent.CreateElement("record")
	el.CreateAttr("id", r.ID)
	el.CreateAttr("model", r.Model)
	for _, f := range r.Fields {
		fe := el.CreateElement("field")
		fe.CreateAttr("name", f.Name)
		switch {
		case f.Ref != "":
			fe.CreateAttr("ref", f.Ref)
		case f.Eval != "":
			fe.CreateAttr("eval", f.Eval)
		case f.CDATA:
			fe.CreateCData(f.Text)
		default:
			fe.SetText(f.Text)
		}
	}
}

// commentText keeps "--" out of comment bodies, which XML forbids.
func commentText(s string) string {
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "- -")
	}
	if strings.HasSuffix(s, "-") {
		s += " "
	}
	return s
}

// canonical limits escaping to what XML requires. Eval expressions quote with
// ' and must stay readable.
func canonical(x *etree.Document) {
	x.WriteSettings.CanonicalAttrVal = true
	x.WriteSettings.CanonicalText = true
}

// Prettify reparses rough XML, indents it by four spaces, drops blank lines
// outside CDATA sections and makes sure the UTF-8 declaration leads.
func Prettify(rough string) (string, error) {
	x := etree.NewDocument()
	x.ReadSettings.PreserveCData = true
	if err := x.ReadFromString(rough); err != nil {
		return "", fmt.Errorf("reparse xml: %w", err)
	}
	if x.Root() == nil {
		return "", fmt.Errorf("reparse xml: no root element")
	}
	canonical(x)
	x.Indent(4)

	s, err := x.WriteToString()
	if err != nil {
		return "", fmt.Errorf("render xml: %w", err)
	}
	return ensureDeclaration(dropBlankLines(s)), nil
}

// dropBlankLines removes whitespace-only lines, leaving CDATA content intact.
func dropBlankLines(s string) string {
	var b strings.Builder
	inCData := false
	for _, line := range strings.Split(s, "\n") {
		if !inCData && strings.TrimSpace(line) == "" {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')

		rest := line
		for {
			if inCData {
				i := strings.Index(rest, cdataClose)
				if i < 0 {
					break
				}
				inCData = false
				rest = rest[i+len(cdataClose):]
				continue
			}
			i := strings.Index(rest, cdataOpen)
			if i < 0 {
				break
			}
			inCData = true
			rest = rest[i+len(cdataOpen):]
		}
	}
	return b.String()
}

func ensureDeclaration(s string) string {
	if strings.HasPrefix(strings.TrimSpace(s), "<?xml") {
		return s
	}
	return declaration + "\n" + s
}

// WriteFile writes rendered XML as UTF-8.
func WriteFile(path, content string) error {
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
