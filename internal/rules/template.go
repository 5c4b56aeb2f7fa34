package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var placeholder = regexp.MustCompile(`\$\{([^}]+)\}`)

// Interpolate replaces ${key} with vars[key]. Keys are plain names, never
// expressions; unknown keys render as the empty string.
func Interpolate(template string, vars map[string]any) string {
	if !strings.Contains(template, "${") {
		return template
	}
	return placeholder.ReplaceAllStringFunc(template, func(m string) string {
		key := strings.TrimSpace(m[2 : len(m)-1])
		v, ok := vars[key]
		if !ok || v == nil {
			return ""
		}
		return stringify(v)
	})
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// Placeholders lists the keys referenced by a template, in order of appearance.
func Placeholders(template string) []string {
	var keys []string
	for _, m := range placeholder.FindAllStringSubmatch(template, -1) {
		keys = append(keys, strings.TrimSpace(m[1]))
	}
	return keys
}
