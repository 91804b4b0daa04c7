package services

import "regexp"

var placeholderRegex = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// RenderMessage performs moustache-style replacement for {{key}} placeholders
// in escalation message templates. Unknown keys are left untouched.
func RenderMessage(template string, variables map[string]string) string {
	if template == "" || len(variables) == 0 {
		return template
	}

	return placeholderRegex.ReplaceAllStringFunc(template, func(match string) string {
		submatch := placeholderRegex.FindStringSubmatch(match)
		if len(submatch) != 2 {
			return match
		}
		if value, ok := variables[submatch[1]]; ok {
			return value
		}
		return match
	})
}
