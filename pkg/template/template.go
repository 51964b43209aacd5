// Package template substitutes {{path.to.value}} placeholders in action
// configuration before it is handed to a collaborator.
package template

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z0-9_]+)*)\s*\}\}`)

// Render replaces every placeholder in input with the value found at its dotted
// path in data. Unresolvable paths render as the empty string.
func Render(input string, data map[string]any) string {
	if !strings.Contains(input, "{{") {
		return input
	}

	return placeholder.ReplaceAllStringFunc(input, func(match string) string {
		path := placeholder.FindStringSubmatch(match)[1]

		value, ok := Lookup(data, path)
		if !ok || value == nil {
			return ""
		}

		return format(value)
	})
}

// RenderConfig returns a copy of config with every string value rendered.
// Nested maps and slices are walked; other values are copied as is.
func RenderConfig(config map[string]any, data map[string]any) map[string]any {
	if config == nil {
		return nil
	}

	rendered := make(map[string]any, len(config))

	for key, value := range config {
		rendered[key] = renderValue(value, data)
	}

	return rendered
}

// Lookup resolves a dotted path against nested maps. Numeric segments index slices.
func Lookup(data map[string]any, path string) (any, bool) {
	var current any = data

	for segment := range strings.SplitSeq(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[segment]
			if !ok {
				return nil, false
			}

			current = next
		case map[string]string:
			next, ok := node[segment]
			if !ok {
				return nil, false
			}

			current = next
		case []any:
			index, err := strconv.Atoi(segment)
			if err != nil || index < 0 || index >= len(node) {
				return nil, false
			}

			current = node[index]
		default:
			return nil, false
		}
	}

	return current, true
}

// NeedsTemplating reports whether input contains at least one placeholder.
func NeedsTemplating(input string) bool {
	return placeholder.MatchString(input)
}

func renderValue(value any, data map[string]any) any {
	switch v := value.(type) {
	case string:
		return Render(v, data)
	case map[string]any:
		return RenderConfig(v, data)
	case []any:
		items := make([]any, len(v))
		for i, item := range v {
			items[i] = renderValue(item, data)
		}

		return items
	default:
		return value
	}
}

func format(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	default:
		return fmt.Sprint(v)
	}
}
