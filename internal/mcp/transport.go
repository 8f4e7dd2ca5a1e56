package mcp

import "context"

// Transport is the interface for MCP server communication.
// Implementations handle framing, encoding, and session continuity for
// a specific wire mechanism.
type Transport interface {
	// Send sends a JSON-RPC request and returns the decoded response.
	Send(ctx context.Context, req *Request) (*Response, error)

	// Healthy probes the server's health endpoint. A nil return means
	// the server reported itself healthy.
	Healthy(ctx context.Context) error

	// Close shuts down the transport and releases resources.
	Close() error
}
