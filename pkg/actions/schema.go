package actions

func object(required []string, properties map[string]any) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}

	if len(required) > 0 {
		schema["required"] = required
	}

	return schema
}

func text() map[string]any {
	return map[string]any{"type": "string", "minLength": 1}
}

func optionalText() map[string]any {
	return map[string]any{"type": "string"}
}

func number() map[string]any {
	return map[string]any{"type": "number"}
}

func fields() map[string]any {
	return map[string]any{"type": "object", "minProperties": 1}
}

func stringMap() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": map[string]any{"type": "string"},
	}
}

func enum(values ...string) map[string]any {
	return map[string]any{"type": "string", "enum": values}
}

// oneOfRequired requires at least one of the given fields.
func oneOfRequired(schema map[string]any, names ...string) map[string]any {
	anyOf := make([]any, 0, len(names))
	for _, name := range names {
		anyOf = append(anyOf, map[string]any{"required": []string{name}})
	}

	schema["anyOf"] = anyOf

	return schema
}
