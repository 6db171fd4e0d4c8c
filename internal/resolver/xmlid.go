package resolver

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	invalidRe    = regexp.MustCompile(`[^a-z0-9_]`)
	underscoreRe = regexp.MustCompile(`_+`)
)

// Sanitize turns a name or code into an XML ID token: lowercase, every
// character outside [a-z0-9_] replaced by "_", runs of "_" collapsed and
// leading/trailing "_" trimmed. It is a pure function.
func Sanitize(s string) string {
	token := strings.ToLower(s)
	token = invalidRe.ReplaceAllString(token, "_")
	token = underscoreRe.ReplaceAllString(token, "_")
	return strings.Trim(token, "_")
}

// Derive builds a generated XML ID from a record's code, or its name when the
// code is empty. It returns "" when neither yields a usable token.
func Derive(prefix, name, code string) string {
	base := strings.TrimSpace(code)
	if base == "" {
		base = strings.TrimSpace(name)
	}
	token := Sanitize(base)
	if token == "" {
		return ""
	}
	return join(prefix, token)
}

// ValueID derives the XML ID of a parameter value from its parameter's XML ID.
// With more than one sibling value the effective date (or, lacking one, the
// ordinal index) disambiguates them.
func ValueID(p Prefixes, parameterID, dateFrom string, index, siblings int) string {
	id := parameterID
	from, to := p.Parameter+"_", p.ParameterValue+"_"
	switch {
	case p.Parameter != "" && strings.Contains(id, from):
		id = strings.Replace(id, from, to, 1)
	default:
		id = join(p.ParameterValue, Sanitize(id))
	}
	if siblings > 1 {
		if suffix := Sanitize(dateFrom); suffix != "" {
			id += "_" + suffix
		} else {
			id += "_" + strconv.Itoa(index)
		}
	}
	return id
}

// SplitXMLID splits "module.name" into its parts. Local IDs have no module.
func SplitXMLID(xmlid string) (module, name string) {
	if i := strings.Index(xmlid, "."); i >= 0 {
		return xmlid[:i], xmlid[i+1:]
	}
	return "", xmlid
}

func join(prefix, token string) string {
	prefix = strings.TrimRight(prefix, "_")
	if prefix == "" {
		return token
	}
	return prefix + "_" + token
}
