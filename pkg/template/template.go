// Package template renders text/template strings against the data of a run.
package template

import (
	"fmt"
	"os"
	"strings"
	"text/template"
	"time"
)

// NeedsRendering reports whether input contains template actions.
func NeedsRendering(input string) bool {
	return strings.Contains(input, "{{")
}

// RunData is the data exposed to templates rendered inside a run.
func RunData(workflowID, eventID string, payload any) map[string]any {
	return map[string]any{
		"trigger": payload,
		"env":     envVars(),
		"execution": map[string]any{
			"workflow_id": workflowID,
			"event_id":    eventID,
		},
	}
}

// Render executes input against data. Missing keys are errors.
func Render(input string, data any) (string, error) {
	tmpl, err := template.
		New("render").
		Option("missingkey=error").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
		}).
		Parse(input)
	if err != nil {
		return "", fmt.Errorf("failed to parse template '%s': %w", input, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", input, err)
	}

	return strings.TrimSpace(buf.String()), nil
}

func envVars() map[string]any {
	envMap := make(map[string]any)

	for _, env := range os.Environ() {
		key, value, found := strings.Cut(env, "=")
		if found {
			envMap[key] = value
		}
	}

	return envMap
}
