package mcp

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// ToolDescription is a formatted projection of a catalog entry for
// presentation to an LLM or a human.
type ToolDescription struct {
	Name        string
	Description string
	// Parameters is a rendered listing, one "- name (type): desc" line
	// per schema property, with required parameters marked.
	Parameters string
}

// DescribeTools renders the cached catalog into structured parameter
// listings, fetching the catalog first if it is empty. Output follows
// the order tools were received in.
func (c *Client) DescribeTools(ctx context.Context) ([]ToolDescription, error) {
	if err := c.ensureCatalog(ctx); err != nil {
		return nil, err
	}

	descriptions := make([]ToolDescription, 0, len(c.toolOrder))
	for _, name := range c.toolOrder {
		tool := c.tools[name]
		descriptions = append(descriptions, ToolDescription{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  formatParameters(tool.InputSchema),
		})
	}
	return descriptions, nil
}

// PromptText renders the catalog as a prompt block instructing the
// model to request tool calls as JSON objects with "tool" and
// "arguments" keys. Used with models that lack native function calling.
func (c *Client) PromptText(ctx context.Context) (string, error) {
	descriptions, err := c.DescribeTools(ctx)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("Available MCP Tools:\n\n")
	for _, d := range descriptions {
		fmt.Fprintf(&b, "Tool: %s\n", d.Name)
		fmt.Fprintf(&b, "Description: %s\n", d.Description)
		fmt.Fprintf(&b, "Parameters:\n%s\n\n", d.Parameters)
	}
	b.WriteString("To use a tool, respond with a JSON object in the following format:\n")
	b.WriteString(`{"tool": "tool_name", "arguments": {"param1": "value1", "param2": "value2"}}` + "\n\n")
	b.WriteString("After using a tool, I will show you the result and you can continue the conversation.")

	return b.String(), nil
}

// ToolSchemas renders the catalog as a native function-calling schema
// list, the shape both chat dialects accept in their tools field.
func (c *Client) ToolSchemas(ctx context.Context) ([]map[string]any, error) {
	if err := c.ensureCatalog(ctx); err != nil {
		return nil, err
	}

	schemas := make([]map[string]any, 0, len(c.toolOrder))
	for _, name := range c.toolOrder {
		tool := c.tools[name]
		schemas = append(schemas, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        tool.Name,
				"description": tool.Description,
				"parameters":  tool.InputSchema,
			},
		})
	}
	return schemas, nil
}

// ensureCatalog fetches the tool catalog if nothing is cached yet.
func (c *Client) ensureCatalog(ctx context.Context) error {
	if len(c.tools) > 0 {
		return nil
	}
	_, err := c.ListTools(ctx)
	return err
}

// formatParameters renders a JSON-Schema-like input schema into an
// indented parameter listing.
func formatParameters(schema map[string]any) string {
	properties, _ := schema["properties"].(map[string]any)
	if len(properties) == 0 {
		return "  No parameters"
	}

	required := make(map[string]bool)
	if reqList, ok := schema["required"].([]any); ok {
		for _, r := range reqList {
			if name, ok := r.(string); ok {
				required[name] = true
			}
		}
	}

	// Sort property names for stable output; JSON object order is not
	// preserved through map decoding.
	names := make([]string, 0, len(properties))
	for name := range properties {
		names = append(names, name)
	}
	slices.Sort(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		info, _ := properties[name].(map[string]any)
		paramType := "string"
		if t, ok := info["type"].(string); ok && t != "" {
			paramType = t
		}
		desc, _ := info["description"].(string)

		marker := ""
		if required[name] {
			marker = " [required]"
		}
		lines = append(lines, fmt.Sprintf("  - %s (%s)%s: %s", name, paramType, marker, desc))
	}
	return strings.Join(lines, "\n")
}
