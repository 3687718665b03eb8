package domain

import (
	"html"
	"regexp"
	"sort"
	"strings"
)

// Variables holds the key→string values substituted into a contract template.
type Variables map[string]string

// Get returns the trimmed value for key and whether it was set.
func (v Variables) Get(key string) (string, bool) {
	if v == nil {
		return "", false
	}
	value, ok := v[key]
	if !ok {
		return "", false
	}
	return strings.TrimSpace(value), true
}

// First returns the first non-empty value among keys.
func (v Variables) First(keys ...string) string {
	for _, key := range keys {
		if value, ok := v.Get(key); ok && value != "" {
			return value
		}
	}
	return ""
}

// Keys returns the variable names in sorted order.
func (v Variables) Keys() []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns an independent copy.
func (v Variables) Clone() Variables {
	out := make(Variables, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

var placeholderRE = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.-]+)\s*\}\}`)

// RenderTemplate substitutes {{key}} placeholders with HTML-escaped values.
// Unknown placeholders are left in place so a reviewer can spot them in the PDF.
func RenderTemplate(templateHTML string, vars Variables) string {
	return placeholderRE.ReplaceAllStringFunc(templateHTML, func(m string) string {
		match := placeholderRE.FindStringSubmatch(m)
		if len(match) != 2 {
			return m
		}
		value, ok := vars.Get(match[1])
		if !ok {
			return m
		}
		return html.EscapeString(value)
	})
}
