// Package prompts holds the built-in LLM prompt templates.
//
// Templates use text/template syntax. User-edited copies written by the
// file prompt store take precedence over these defaults.
package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed templates/*.tmpl
var files embed.FS

// Default returns the built-in template for name.
func Default(name string) (string, bool) {
	data, err := files.ReadFile("templates/" + name + ".tmpl")
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}

// Render executes tmpl with data.
// Missing fields render as errors rather than "<no value>".
func Render(name, tmpl string, data any) (string, error) {
	t, err := template.New(name).Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parse prompt %q: %w", name, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt %q: %w", name, err)
	}
	return buf.String(), nil
}
