package msg

import "encoding/json"

// DefaultToolCallType is assigned when a raw call carries no type.
const DefaultToolCallType = "tool_call"

// NormalizeToolCalls converts any vendor-specific tool call shape into the
// canonical []ToolCall. Providers disagree on structure (flat list, object
// with a nested list, single call object) and on argument field naming, so
// this is deliberately total: unrecognizable input yields an empty list,
// never an error.
func NormalizeToolCalls(raw any) []ToolCall {
	generic, ok := toGeneric(raw)
	if !ok {
		return []ToolCall{}
	}

	switch v := generic.(type) {
	case nil:
		return []ToolCall{}

	case []any:
		return normalizeList(v)

	case map[string]any:
		// An object with an array-valued toolCalls or calls property wraps
		// the real list.
		for _, key := range []string{"toolCalls", "calls"} {
			if nested, present := v[key]; present {
				if list, isList := nested.([]any); isList {
					return normalizeList(list)
				}
			}
		}

		// An object that looks like a single call is wrapped as a
		// one-element list.
		if _, hasName := v["name"]; hasName {
			return normalizeList([]any{v})
		}
		if _, hasFunction := v["function"]; hasFunction {
			return normalizeList([]any{v})
		}

		return []ToolCall{}

	default:
		return []ToolCall{}
	}
}

// toGeneric reduces arbitrary input (structs, typed slices, maps) to the
// generic JSON shape the normalizer operates on. Canonical and vendor struct
// shapes both survive this because normalization only reads JSON-visible
// fields.
func toGeneric(raw any) (any, bool) {
	switch raw.(type) {
	case nil:
		return nil, true
	case []any, map[string]any:
		return raw, true
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, false
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, false
	}
	return generic, true
}

func normalizeList(list []any) []ToolCall {
	out := make([]ToolCall, 0, len(list))
	for _, element := range list {
		if element == nil {
			continue
		}
		call, ok := normalizeOne(element)
		if !ok {
			continue
		}
		out = append(out, call)
	}
	return out
}

// normalizeOne maps a single raw call to the canonical shape. Calls whose
// name cannot be resolved are dropped; a canonical ToolCall always has a
// non-empty name.
func normalizeOne(element any) (ToolCall, bool) {
	obj, ok := element.(map[string]any)
	if !ok {
		return ToolCall{}, false
	}

	var function map[string]any
	if f, present := obj["function"]; present {
		function, _ = f.(map[string]any)
	}

	name := stringField(obj, "name")
	if name == "" && function != nil {
		name = stringField(function, "name")
	}
	if name == "" {
		return ToolCall{}, false
	}

	args := argsField(obj, function)

	id := stringField(obj, "id")

	callType := stringField(obj, "type")
	if callType == "" {
		callType = DefaultToolCallType
	}

	return ToolCall{Name: name, Args: args, ID: id, Type: callType}, true
}

// argsField resolves call arguments with the cross-provider precedence:
// args, then input, then arguments, then a nested function.arguments.
// Arguments encoded as a JSON string are decoded.
func argsField(obj, function map[string]any) map[string]any {
	for _, key := range []string{"args", "input", "arguments"} {
		if v, present := obj[key]; present {
			if m := asArgsMap(v); m != nil {
				return m
			}
		}
	}
	if function != nil {
		if v, present := function["arguments"]; present {
			if m := asArgsMap(v); m != nil {
				return m
			}
		}
	}
	return map[string]any{}
}

func asArgsMap(v any) map[string]any {
	switch typed := v.(type) {
	case map[string]any:
		return typed
	case string:
		// OpenAI-style: arguments as a JSON-encoded string.
		var decoded map[string]any
		if err := json.Unmarshal([]byte(typed), &decoded); err == nil {
			return decoded
		}
		return nil
	default:
		return nil
	}
}

func stringField(obj map[string]any, key string) string {
	if v, present := obj[key]; present {
		if s, isString := v.(string); isString {
			return s
		}
	}
	return ""
}
