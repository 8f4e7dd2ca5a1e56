package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/relaybot/relay-agent/internal/buildinfo"
)

// protocolVersion is the MCP protocol version we advertise during initialization.
const protocolVersion = "2024-11-05"

// noOutputMarker is returned as the result of a successful tool call
// whose response carried no content items. Absence of output is
// success, not failure.
const noOutputMarker = "Tool executed successfully (no output)"

// Tool is an MCP tool as returned by tools/list.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// ContentBlock is a single content item in a tools/call response.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// callToolResult is the result payload of a tools/call response.
type callToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// toolsListResult is the result payload of a tools/list response.
type toolsListResult struct {
	Tools []Tool `json:"tools"`
}

// CallResult is the outcome of a tool invocation. It is a value, not an
// error: a conversational loop injects failures back into the model's
// context without special-casing, so both shapes travel the same way.
type CallResult struct {
	Success bool   `json:"success"`
	Result  string `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Client connects to a single MCP server and provides typed access to
// the MCP protocol operations (initialize, tools/list, tools/call).
//
// A Client is either uninitialized or initialized; the transition is
// one-way and happens on the first successful handshake. Catalog and
// invocation entry points initialize lazily. The initialized flag and
// the tool catalog are the only mutable fields; the Client performs no
// internal locking, so concurrent callers sharing one instance must
// synchronize externally.
type Client struct {
	transport Transport
	logger    *slog.Logger
	nextID    int64

	initialized bool
	tools       map[string]Tool
	toolOrder   []string
}

// NewClient creates an MCP client over the given transport.
func NewClient(transport Transport, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		transport: transport,
		logger:    logger.With("component", "mcp"),
		tools:     make(map[string]Tool),
	}
}

// Initialized reports whether the session handshake has completed.
func (c *Client) Initialized() bool {
	return c.initialized
}

// Initialize performs the MCP session handshake. It is a probe: it
// returns false and logs the cause on any failure (transport, decode,
// or protocol error) rather than returning an error, because callers
// are expected to invoke it speculatively and retry. Once a handshake
// has succeeded, subsequent calls return true without another request.
func (c *Client) Initialize(ctx context.Context) bool {
	if c.initialized {
		return true
	}

	params := map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    "relay",
			"version": buildinfo.Version,
		},
	}

	if _, err := c.send(ctx, "initialize", params); err != nil {
		c.logger.Error("failed to initialize MCP session", "error", err)
		return false
	}

	c.initialized = true
	c.logger.Info("MCP session initialized")
	return true
}

// ListTools calls tools/list and returns the tool definitions in server
// order. The client's catalog is replaced with the returned set, keyed
// by tool name. Unlike Initialize, transport and protocol errors
// propagate: a caller listing tools already expects a viable session.
// Initializes lazily if the handshake has not happened yet.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	if !c.initialized && !c.Initialize(ctx) {
		return nil, fmt.Errorf("failed to initialize MCP session")
	}

	resp, err := c.send(ctx, "tools/list", map[string]any{})
	if err != nil {
		return nil, fmt.Errorf("tools/list: %w", err)
	}

	var result toolsListResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("unmarshal tools/list result: %w", err)
	}

	c.tools = make(map[string]Tool, len(result.Tools))
	c.toolOrder = c.toolOrder[:0]
	for _, tool := range result.Tools {
		if _, seen := c.tools[tool.Name]; !seen {
			c.toolOrder = append(c.toolOrder, tool.Name)
		}
		c.tools[tool.Name] = tool
	}

	c.logger.Info("loaded tools from MCP server", "count", len(result.Tools))
	return result.Tools, nil
}

// CallTool invokes a tool by name with the given arguments. Failures of
// every kind — initialization, transport, protocol error objects, and
// application-level isError results — come back as a failed CallResult
// so the conversation loop can recover.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) CallResult {
	if !c.initialized && !c.Initialize(ctx) {
		return CallResult{Error: "Failed to initialize MCP session"}
	}

	params := map[string]any{
		"name":      name,
		"arguments": args,
	}

	resp, err := c.send(ctx, "tools/call", params)
	if err != nil {
		c.logger.Error("failed to call tool", "tool", name, "error", err)
		if rpcErr, ok := err.(*RPCError); ok {
			return CallResult{Error: rpcErr.Message}
		}
		return CallResult{Error: err.Error()}
	}

	var result callToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		c.logger.Error("failed to decode tool result", "tool", name, "error", err)
		return CallResult{Error: err.Error()}
	}

	if result.IsError {
		msg := "Unknown error"
		if len(result.Content) > 0 && result.Content[0].Text != "" {
			msg = result.Content[0].Text
		}
		c.logger.Error("tool execution error", "tool", name, "error", msg)
		return CallResult{Error: msg}
	}

	if len(result.Content) == 0 {
		return CallResult{Success: true, Result: noOutputMarker}
	}

	c.logger.Info("tool executed successfully", "tool", name)
	return CallResult{Success: true, Result: result.Content[0].Text}
}

// HealthCheck probes the server's health endpoint. Never returns an
// error; failures are logged and reported as unhealthy.
func (c *Client) HealthCheck(ctx context.Context) bool {
	if err := c.transport.Healthy(ctx); err != nil {
		c.logger.Error("health check failed", "error", err)
		return false
	}
	return true
}

// Close shuts down the client and its transport.
func (c *Client) Close() error {
	return c.transport.Close()
}

// send issues a JSON-RPC request and checks for protocol-level errors.
func (c *Client) send(ctx context.Context, method string, params any) (*Response, error) {
	c.nextID++
	req := NewRequest(c.nextID, method, params)

	resp, err := c.transport.Send(ctx, req)
	if err != nil {
		return nil, err
	}

	if resp.Error != nil {
		return nil, resp.Error
	}

	return resp, nil
}
