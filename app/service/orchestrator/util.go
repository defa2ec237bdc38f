package orchestrator

import (
	"fmt"
	"strings"
)

// trimModelJSON strips the code fences models like to wrap JSON in.
func trimModelJSON(raw string) string {
	result := strings.Trim(raw, "`")
	result = strings.TrimSpace(result)
	result = strings.TrimPrefix(result, "json")
	result = strings.TrimSpace(result)

	return result
}

func renderTemplate(template string, values map[string]any) string {
	prompt := template
	for key, value := range values {
		prompt = strings.ReplaceAll(prompt, "{"+key+"}", fmt.Sprint(value))
	}

	return prompt
}
