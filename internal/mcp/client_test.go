package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
)

// mockTransport is a test double for the Transport interface.
type mockTransport struct {
	responses map[string]*Response // method -> canned response
	sendErrs  map[string]error     // method -> transport failure
	sent      []Request            // captured requests
	healthy   error
	closed    bool
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		responses: make(map[string]*Response),
		sendErrs:  make(map[string]error),
	}
}

func (m *mockTransport) addResponse(method string, result any) {
	data, _ := json.Marshal(result)
	m.responses[method] = &Response{
		JSONRPC: jsonrpcVersion,
		Result:  json.RawMessage(data),
	}
}

func (m *mockTransport) addError(method string, code int, msg string) {
	m.responses[method] = &Response{
		JSONRPC: jsonrpcVersion,
		Error:   &RPCError{Code: code, Message: msg},
	}
}

func (m *mockTransport) Send(_ context.Context, req *Request) (*Response, error) {
	m.sent = append(m.sent, *req)
	if err, ok := m.sendErrs[req.Method]; ok {
		return nil, err
	}
	resp, ok := m.responses[req.Method]
	if !ok {
		return nil, fmt.Errorf("unexpected method: %s", req.Method)
	}
	out := *resp
	out.ID = req.ID
	return &out, nil
}

func (m *mockTransport) Healthy(_ context.Context) error { return m.healthy }

func (m *mockTransport) Close() error {
	m.closed = true
	return nil
}

func initResult() map[string]any {
	return map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"serverInfo":      map[string]any{"name": "test-server", "version": "1.0.0"},
	}
}

func sampleTools() toolsListResult {
	return toolsListResult{
		Tools: []Tool{
			{
				Name:        "search",
				Description: "Search the database",
				InputSchema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"q":     map[string]any{"type": "string", "description": "query text"},
						"limit": map[string]any{"type": "integer", "description": "max results"},
					},
					"required": []any{"q"},
				},
			},
			{
				Name:        "fetch",
				Description: "Fetch a URL",
				InputSchema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"url": map[string]any{"type": "string"},
					},
				},
			},
		},
	}
}

func TestClient_Initialize(t *testing.T) {
	mt := newMockTransport()
	mt.addResponse("initialize", initResult())

	client := NewClient(mt, nil)
	if client.Initialized() {
		t.Fatal("client initialized before handshake")
	}

	if !client.Initialize(context.Background()) {
		t.Fatal("Initialize returned false")
	}
	if !client.Initialized() {
		t.Fatal("client not marked initialized")
	}

	if len(mt.sent) != 1 || mt.sent[0].Method != "initialize" {
		t.Fatalf("sent = %+v, want one initialize request", mt.sent)
	}

	params, ok := mt.sent[0].Params.(map[string]any)
	if !ok {
		t.Fatalf("params type %T", mt.sent[0].Params)
	}
	if params["protocolVersion"] != protocolVersion {
		t.Errorf("protocolVersion = %v, want %v", params["protocolVersion"], protocolVersion)
	}
}

func TestClient_Initialize_Idempotent(t *testing.T) {
	mt := newMockTransport()
	mt.addResponse("initialize", initResult())

	client := NewClient(mt, nil)
	for i := 0; i < 3; i++ {
		if !client.Initialize(context.Background()) {
			t.Fatalf("Initialize call %d returned false", i)
		}
	}

	// Only the first call hits the wire.
	if len(mt.sent) != 1 {
		t.Errorf("sent %d requests, want 1", len(mt.sent))
	}
}

func TestClient_Initialize_ProbeNeverPanics(t *testing.T) {
	tests := []struct {
		name  string
		setup func(mt *mockTransport)
	}{
		{
			name: "transport failure",
			setup: func(mt *mockTransport) {
				mt.sendErrs["initialize"] = fmt.Errorf("connection refused")
			},
		},
		{
			name: "protocol error object",
			setup: func(mt *mockTransport) {
				mt.addError("initialize", -32600, "Invalid Request")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mt := newMockTransport()
			tt.setup(mt)

			client := NewClient(mt, nil)
			if client.Initialize(context.Background()) {
				t.Error("Initialize returned true on failure")
			}
			if client.Initialized() {
				t.Error("client marked initialized after failed handshake")
			}

			// A later attempt against a recovered server succeeds.
			mt.sendErrs = map[string]error{}
			mt.addResponse("initialize", initResult())
			if !client.Initialize(context.Background()) {
				t.Error("Initialize retry returned false")
			}
		})
	}
}

func TestClient_ListTools(t *testing.T) {
	mt := newMockTransport()
	mt.addResponse("initialize", initResult())
	mt.addResponse("tools/list", sampleTools())

	client := NewClient(mt, nil)
	tools, err := client.ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}

	// Lazy initialization happened first.
	if mt.sent[0].Method != "initialize" {
		t.Errorf("first request = %q, want initialize", mt.sent[0].Method)
	}

	if len(tools) != 2 {
		t.Fatalf("got %d tools, want 2", len(tools))
	}
	if tools[0].Name != "search" || tools[1].Name != "fetch" {
		t.Errorf("tool order = %q, %q", tools[0].Name, tools[1].Name)
	}

	// Catalog is keyed by name and matches the returned list.
	if len(client.tools) != len(tools) {
		t.Errorf("catalog size %d != returned %d", len(client.tools), len(tools))
	}
	for name, tool := range client.tools {
		if tool.Name != name {
			t.Errorf("catalog key %q holds tool named %q", name, tool.Name)
		}
	}
}

func TestClient_ListTools_ReplacesCatalog(t *testing.T) {
	mt := newMockTransport()
	mt.addResponse("initialize", initResult())
	mt.addResponse("tools/list", sampleTools())

	client := NewClient(mt, nil)
	if _, err := client.ListTools(context.Background()); err != nil {
		t.Fatalf("ListTools: %v", err)
	}

	// Refresh with a different catalog: last write wins.
	mt.addResponse("tools/list", toolsListResult{
		Tools: []Tool{{Name: "ping", Description: "Ping", InputSchema: map[string]any{}}},
	})
	tools, err := client.ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools refresh: %v", err)
	}
	if len(tools) != 1 || len(client.tools) != 1 {
		t.Errorf("catalog not replaced: returned %d, cached %d", len(tools), len(client.tools))
	}
	if _, ok := client.tools["search"]; ok {
		t.Error("stale catalog entry survived refresh")
	}
}

func TestClient_ListTools_InitFailurePropagates(t *testing.T) {
	mt := newMockTransport()
	mt.sendErrs["initialize"] = fmt.Errorf("connection refused")

	client := NewClient(mt, nil)
	if _, err := client.ListTools(context.Background()); err == nil {
		t.Fatal("expected error when lazy initialization fails")
	}
}

func TestClient_ListTools_RPCErrorPropagates(t *testing.T) {
	mt := newMockTransport()
	mt.addResponse("initialize", initResult())
	mt.addError("tools/list", -32601, "Method not found")

	client := NewClient(mt, nil)
	if _, err := client.ListTools(context.Background()); err == nil {
		t.Fatal("expected error on protocol error object")
	}
}

func TestClient_CallTool_Success(t *testing.T) {
	mt := newMockTransport()
	mt.addResponse("initialize", initResult())
	mt.addResponse("tools/call", callToolResult{
		Content: []ContentBlock{{Type: "text", Text: "3 rows"}},
	})

	client := NewClient(mt, nil)
	result := client.CallTool(context.Background(), "search", map[string]any{"q": "x"})

	if !result.Success {
		t.Fatalf("CallTool failed: %s", result.Error)
	}
	if result.Result != "3 rows" {
		t.Errorf("Result = %q, want %q", result.Result, "3 rows")
	}

	// Lazy initialization happened first.
	if mt.sent[0].Method != "initialize" {
		t.Errorf("first request = %q, want initialize", mt.sent[0].Method)
	}
}

func TestClient_CallTool_FirstContentItemOnly(t *testing.T) {
	mt := newMockTransport()
	mt.addResponse("initialize", initResult())
	mt.addResponse("tools/call", callToolResult{
		Content: []ContentBlock{
			{Type: "text", Text: "first"},
			{Type: "text", Text: "second"},
		},
	})

	client := NewClient(mt, nil)
	result := client.CallTool(context.Background(), "search", nil)
	if result.Result != "first" {
		t.Errorf("Result = %q, want first content item only", result.Result)
	}
}

func TestClient_CallTool_EmptyContentIsSuccess(t *testing.T) {
	mt := newMockTransport()
	mt.addResponse("initialize", initResult())
	mt.addResponse("tools/call", callToolResult{})

	client := NewClient(mt, nil)
	result := client.CallTool(context.Background(), "search", nil)

	if !result.Success {
		t.Fatalf("empty content reported as failure: %s", result.Error)
	}
	if result.Result != noOutputMarker {
		t.Errorf("Result = %q, want %q", result.Result, noOutputMarker)
	}
}

func TestClient_CallTool_IsError(t *testing.T) {
	mt := newMockTransport()
	mt.addResponse("initialize", initResult())
	mt.addResponse("tools/call", callToolResult{
		Content: []ContentBlock{
			{Type: "text", Text: "table not found"},
			{Type: "text", Text: "extra detail"},
		},
		IsError: true,
	})

	client := NewClient(mt, nil)
	result := client.CallTool(context.Background(), "search", nil)

	if result.Success {
		t.Fatal("isError result reported as success")
	}
	if result.Error != "table not found" {
		t.Errorf("Error = %q, want first content item's text", result.Error)
	}
}

func TestClient_CallTool_RPCError(t *testing.T) {
	mt := newMockTransport()
	mt.addResponse("initialize", initResult())
	mt.addError("tools/call", -32602, "Invalid params")

	client := NewClient(mt, nil)
	result := client.CallTool(context.Background(), "search", nil)

	if result.Success {
		t.Fatal("protocol error reported as success")
	}
	if result.Error != "Invalid params" {
		t.Errorf("Error = %q, want protocol error message", result.Error)
	}
}

func TestClient_CallTool_InitFailureIsStructured(t *testing.T) {
	mt := newMockTransport()
	mt.sendErrs["initialize"] = fmt.Errorf("connection refused")

	client := NewClient(mt, nil)
	result := client.CallTool(context.Background(), "search", nil)

	if result.Success {
		t.Fatal("expected structured failure when initialization fails")
	}
	if result.Error != "Failed to initialize MCP session" {
		t.Errorf("Error = %q", result.Error)
	}
}

func TestClient_HealthCheck(t *testing.T) {
	mt := newMockTransport()
	client := NewClient(mt, nil)

	if !client.HealthCheck(context.Background()) {
		t.Error("HealthCheck = false for healthy transport")
	}

	mt.healthy = fmt.Errorf("connection refused")
	if client.HealthCheck(context.Background()) {
		t.Error("HealthCheck = true for unhealthy transport")
	}
}

func TestClient_Close(t *testing.T) {
	mt := newMockTransport()
	client := NewClient(mt, nil)
	if err := client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !mt.closed {
		t.Error("transport was not closed")
	}
}

func TestClient_RequestIDsIncrement(t *testing.T) {
	mt := newMockTransport()
	mt.addResponse("initialize", initResult())
	mt.addResponse("tools/list", sampleTools())

	client := NewClient(mt, nil)
	if _, err := client.ListTools(context.Background()); err != nil {
		t.Fatalf("ListTools: %v", err)
	}

	if len(mt.sent) != 2 {
		t.Fatalf("sent %d requests, want 2", len(mt.sent))
	}
	if mt.sent[0].ID == mt.sent[1].ID {
		t.Errorf("request IDs not distinct: %d, %d", mt.sent[0].ID, mt.sent[1].ID)
	}
}
