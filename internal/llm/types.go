// Package llm implements the chat client for Relay's LLM backend. It
// speaks two dialects — the native Ollama chat API and the
// OpenAI-compatible completions API exposed by vLLM — and normalizes
// both into one response shape so callers never branch on backend.
package llm

import (
	"encoding/json"
	"log/slog"
)

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// Message represents a chat message.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // For tool responses
}

// ToolCall is a normalized tool invocation request from the model,
// produced either by the backend's structured tool-call field or by the
// recovery heuristic.
type ToolCall struct {
	ID       string           `json:"id,omitempty"`
	Type     string           `json:"type,omitempty"`
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction names the target tool and carries its arguments as
// JSON text.
type ToolCallFunction struct {
	Name      string    `json:"name"`
	Arguments Arguments `json:"arguments"`
}

// Arguments is a JSON-encoded argument payload. The two dialects
// disagree on its wire shape — Ollama sends an inline object, the
// OpenAI format sends a JSON string — so it unmarshals from either and
// always holds the JSON text of the arguments.
type Arguments string

// UnmarshalJSON accepts either a JSON string or any inline JSON value.
func (a *Arguments) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*a = Arguments(s)
		return nil
	}
	*a = Arguments(data)
	return nil
}

// MarshalJSON emits the arguments inline when they hold valid JSON,
// and as a quoted string otherwise.
func (a Arguments) MarshalJSON() ([]byte, error) {
	if json.Valid([]byte(a)) {
		return []byte(a), nil
	}
	return json.Marshal(string(a))
}

// Map decodes the arguments into a key/value mapping, the shape tool
// invocations expect. Empty arguments decode to an empty map.
func (a Arguments) Map() (map[string]any, error) {
	if a == "" {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(a), &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ChatResponse is the normalized response shape shared by both
// dialects. Native chat API responses already arrive in this form;
// OpenAI-compatible responses are repackaged into it.
type ChatResponse struct {
	Model     string  `json:"model,omitempty"`
	CreatedAt string  `json:"created_at,omitempty"`
	Message   Message `json:"message"`
	Done      bool    `json:"done"`
}

// GenerateResponse is the response of the raw-completion endpoint.
type GenerateResponse struct {
	Model     string `json:"model,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
	Response  string `json:"response"`
	Done      bool   `json:"done"`
}

// StreamChunk is one decoded line of a streaming response. Field
// presence depends on the endpoint and dialect: Message for native
// chat, Response for native generate, Choices for the OpenAI format.
type StreamChunk struct {
	Model    string         `json:"model,omitempty"`
	Message  *Message       `json:"message,omitempty"`
	Response string         `json:"response,omitempty"`
	Choices  []StreamChoice `json:"choices,omitempty"`
	Done     bool           `json:"done,omitempty"`
}

// StreamChoice is one choice delta in an OpenAI-format stream chunk.
type StreamChoice struct {
	Delta        Message `json:"delta"`
	FinishReason string  `json:"finish_reason,omitempty"`
}

// Text returns the incremental text carried by a chunk, whichever
// field it arrived in.
func (c *StreamChunk) Text() string {
	switch {
	case c.Message != nil:
		return c.Message.Content
	case len(c.Choices) > 0:
		return c.Choices[0].Delta.Content
	default:
		return c.Response
	}
}
