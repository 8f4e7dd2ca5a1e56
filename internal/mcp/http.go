package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/relaybot/relay-agent/internal/httpkit"
)

const (
	// sessionHeader carries the negotiated session identifier in both
	// directions: the server issues one on the initialize response and
	// the client echoes it on every subsequent request.
	sessionHeader = "mcp-session-id"

	// sseEventPrefix marks a response body framed as a Server-Sent Event.
	sseEventPrefix = "event: message"

	// sseDataPrefix marks the payload line inside an SSE frame.
	sseDataPrefix = "data: "
)

// HTTPConfig configures an HTTP MCP transport.
type HTTPConfig struct {
	// URL is the MCP server endpoint (e.g., http://localhost:8000/mcp).
	URL string

	// Timeout is the per-request timeout. Zero means 30 seconds.
	Timeout time.Duration

	// Logger is the structured logger for transport diagnostics.
	Logger *slog.Logger
}

// HTTPTransport communicates with an MCP server over HTTP. Each
// JSON-RPC request is sent as an HTTP POST; the response body comes
// back as plain JSON or as a single SSE frame.
type HTTPTransport struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger

	// sessionID starts as a locally generated UUID and is replaced by
	// the server-issued identifier captured from the initialize
	// response. Not internally synchronized; see package docs.
	sessionID string
}

// NewHTTPTransport creates an HTTP transport for the given config.
// The underlying HTTP client is constructed via httpkit.
func NewHTTPTransport(cfg HTTPConfig) *HTTPTransport {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &HTTPTransport{
		url:        strings.TrimRight(cfg.URL, "/"),
		httpClient: httpkit.NewClient(httpkit.WithTimeout(timeout)),
		logger:     logger,
		sessionID:  uuid.NewString(),
	}
}

// SessionID returns the current session identifier.
func (t *HTTPTransport) SessionID() string {
	return t.sessionID
}

// Send sends a JSON-RPC request via HTTP POST and returns the decoded
// response. The initialize handshake is sent without a session header
// so the server can mint one; every other method carries it.
func (t *HTTPTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json, text/event-stream")
	if req.Method != "initialize" {
		httpReq.Header.Set(sessionHeader, t.sessionID)
	}

	httpResp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request to %s: %w", t.url, err)
	}
	defer httpkit.DrainAndClose(httpResp.Body, 1<<20)

	// Adopt the server-issued session identifier when one is present.
	if sid := httpResp.Header.Get(sessionHeader); sid != "" && sid != t.sessionID {
		t.logger.Info("received session ID from server", "session_id", sid)
		t.sessionID = sid
	}

	if httpResp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(httpResp.Body, 1<<20)
		return nil, fmt.Errorf("MCP server returned %d: %s", httpResp.StatusCode, errBody)
	}

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, 10<<20)) // 10 MiB limit
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return decodeRPCBody(respBody)
}

// decodeRPCBody parses a JSON-RPC response that may arrive either as
// plain JSON or wrapped in a single SSE frame. In the SSE case only the
// first data line is used; additional data lines, if a server ever
// emits them, are ignored.
func decodeRPCBody(body []byte) (*Response, error) {
	payload := body
	if bytes.HasPrefix(body, []byte(sseEventPrefix)) {
		payload = nil
		for _, line := range strings.Split(string(body), "\n") {
			if strings.HasPrefix(line, sseDataPrefix) {
				payload = []byte(strings.TrimPrefix(line, sseDataPrefix))
				break
			}
		}
		if payload == nil {
			return nil, fmt.Errorf("SSE response contains no data line")
		}
	}

	var resp Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &resp, nil
}

// Healthy probes the server's health endpoint: the protocol endpoint
// with its /mcp suffix stripped, plus /healthz. A JSON body with a
// recognized status value or a bare 200 both count as healthy.
func (t *HTTPTransport) Healthy(ctx context.Context) error {
	healthURL := strings.TrimSuffix(t.url, "/mcp") + "/healthz"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
	if err != nil {
		return fmt.Errorf("create HTTP request: %w", err)
	}

	httpResp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("HTTP request to %s: %w", healthURL, err)
	}
	defer httpkit.DrainAndClose(httpResp.Body, 1<<20)

	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("health endpoint returned %d", httpResp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read health response: %w", err)
	}

	var status struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &status); err != nil {
		// Not a JSON object; the 200 status alone is enough.
		return nil
	}
	if status.Status == "healthy" || status.Status == "ok" {
		return nil
	}
	return fmt.Errorf("health endpoint reported %q", status.Status)
}

// Close is a no-op for HTTP transports. The underlying HTTP client
// manages its own connection pool via httpkit.
func (t *HTTPTransport) Close() error {
	return nil
}
