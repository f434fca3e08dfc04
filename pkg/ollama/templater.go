package ollama

import (
	"bytes"
	"fmt"
	"text/template"
)

// RenderTemplate renders a prompt template with the provided data. Missing
// keys are reported instead of rendering "<no value>" into the prompt.
func RenderTemplate(tmpl string, data any) (string, error) {
	tpl, err := template.New("prompt").Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parse prompt template: %w", err)
	}

	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt template: %w", err)
	}
	return buf.String(), nil
}
