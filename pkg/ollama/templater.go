package ollama

import (
	"bytes"
	"fmt"
	"text/template"
)

// RenderTemplate renders a prompt template with the provided data. A key
// missing from data is an error rather than "<no value>".
func RenderTemplate(name, tmpl string, data any) (string, error) {
	tpl, err := template.New(name).Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parse template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render template %s: %w", name, err)
	}
	return buf.String(), nil
}
