package notification

import "strings"

// Interpolate substitutes ${key} occurrences in template with values from
// the variable bag. Unknown keys are left in place so a typo in a trigger
// body stays visible in the delivered message.
func Interpolate(template string, variables map[string]string) string {
	if template == "" || len(variables) == 0 {
		return template
	}
	var sb strings.Builder
	sb.Grow(len(template))
	rest := template
	for {
		start := strings.Index(rest, "${")
		if start < 0 {
			sb.WriteString(rest)
			return sb.String()
		}
		end := strings.Index(rest[start:], "}")
		if end < 0 {
			sb.WriteString(rest)
			return sb.String()
		}
		key := rest[start+2 : start+end]
		sb.WriteString(rest[:start])
		if val, ok := variables[key]; ok {
			sb.WriteString(val)
		} else {
			sb.WriteString(rest[start : start+end+1])
		}
		rest = rest[start+end+1:]
	}
}
