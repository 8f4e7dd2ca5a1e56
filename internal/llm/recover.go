package llm

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"
)

// Alias keys some models use when they emit a tool call as free-text
// JSON instead of a structured tool_calls field.
var (
	toolNameKeys = []string{"tool", "name", "function"}
	argumentKeys = []string{"arguments", "params"}
)

// RecoverToolCall attempts to reinterpret free-text content as an
// intended tool call against the offered tool definitions. It is a
// best-effort compatibility shim, not a parser: any content that does
// not convincingly look like a tool call yields nil, never an error.
// The OpenAI-dialect Chat path applies it when structured tool calls
// are missing; callers driving prompt-block tool use apply it to
// assistant content themselves.
//
// Two forms are recognized:
//
//  1. Explicit: an object carrying a tool-name alias key together with
//     an arguments alias key, e.g. {"tool": "search", "arguments": {...}}.
//     Name and arguments are adopted directly.
//  2. Bare argument bag: the whole object is treated as candidate
//     arguments and matched against each offered tool by counting keys
//     shared with that tool's parameter schema. The strictly highest
//     positive overlap wins; ties keep the first-seen highest candidate.
func RecoverToolCall(content string, tools []map[string]any) *ToolCall {
	if content == "" || len(tools) == 0 {
		return nil
	}

	// Cheap shape filter before attempting a full parse.
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "{") || !strings.HasSuffix(content, "}") {
		return nil
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil
	}

	if tc := explicitToolCall(parsed, content); tc != nil {
		return tc
	}
	return inferToolCall(parsed, tools, content)
}

// explicitToolCall handles objects that name their tool outright.
func explicitToolCall(parsed map[string]any, content string) *ToolCall {
	var name string
	for _, key := range toolNameKeys {
		if s, ok := parsed[key].(string); ok && s != "" {
			name = s
			break
		}
	}
	if name == "" {
		return nil
	}

	var args any
	var found bool
	for _, key := range argumentKeys {
		if v, ok := parsed[key]; ok && v != nil {
			args = v
			found = true
			break
		}
	}
	if !found {
		return nil
	}

	return &ToolCall{
		ID:   callID(content),
		Type: "function",
		Function: ToolCallFunction{
			Name:      name,
			Arguments: serializeArguments(args),
		},
	}
}

// inferToolCall treats the whole object as an argument bag and scores
// it against each offered tool's parameter schema.
func inferToolCall(parsed map[string]any, tools []map[string]any, content string) *ToolCall {
	var bestName string
	bestScore := 0

	for _, tool := range tools {
		name, properties := toolSchema(tool)
		if name == "" {
			continue
		}

		score := 0
		for key := range parsed {
			if _, ok := properties[key]; ok {
				score++
			}
		}

		if score > bestScore {
			bestScore = score
			bestName = name
		}
	}

	if bestScore == 0 {
		return nil
	}

	encoded, err := json.Marshal(parsed)
	if err != nil {
		return nil
	}

	return &ToolCall{
		ID:   callID(content),
		Type: "function",
		Function: ToolCallFunction{
			Name:      bestName,
			Arguments: Arguments(encoded),
		},
	}
}

// toolSchema extracts the name and parameter properties from a
// function-calling tool definition.
func toolSchema(tool map[string]any) (string, map[string]any) {
	fn, ok := tool["function"].(map[string]any)
	if !ok {
		return "", nil
	}
	name, _ := fn["name"].(string)
	params, _ := fn["parameters"].(map[string]any)
	properties, _ := params["properties"].(map[string]any)
	return name, properties
}

// serializeArguments keeps string arguments as-is and renders anything
// else to JSON text.
func serializeArguments(args any) Arguments {
	if s, ok := args.(string); ok {
		return Arguments(s)
	}
	encoded, err := json.Marshal(args)
	if err != nil {
		return Arguments(fmt.Sprintf("%v", args))
	}
	return Arguments(encoded)
}

// callID synthesizes a short call-scoped identifier from the content.
// Collisions across a conversation are tolerable; the ID exists so the
// rest of the pipeline can correlate call and result.
func callID(content string) string {
	h := fnv.New64a()
	h.Write([]byte(content))
	return fmt.Sprintf("call_%016x", h.Sum64())
}
