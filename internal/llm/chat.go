package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/relaybot/relay-agent/internal/httpkit"
)

// ollamaOptions is the fixed options block of native chat/generate
// requests.
type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumCtx      int     `json:"num_ctx"`
	TopP        float64 `json:"top_p"`
}

type ollamaChatRequest struct {
	Model    string           `json:"model"`
	Messages []Message        `json:"messages"`
	Stream   bool             `json:"stream"`
	Options  ollamaOptions    `json:"options"`
	Tools    []map[string]any `json:"tools,omitempty"`
}

type openaiChatRequest struct {
	Model       string           `json:"model"`
	Messages    []Message        `json:"messages"`
	Temperature float64          `json:"temperature"`
	MaxTokens   int              `json:"max_tokens"`
	TopP        float64          `json:"top_p"`
	Stream      bool             `json:"stream"`
	Tools       []map[string]any `json:"tools,omitempty"`
}

type openaiChatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
}

// Chat sends a non-streaming chat request and returns the normalized
// response. Transport and protocol errors propagate to the caller.
func (c *Client) Chat(ctx context.Context, messages []Message, tools []map[string]any) (*ChatResponse, error) {
	switch c.backend {
	case BackendVLLM:
		return c.chatOpenAI(ctx, messages, tools)
	default:
		return c.chatOllama(ctx, messages, tools)
	}
}

// chatOllama posts to the native chat path. Native responses already
// carry the normalized shape, so the decoded body is returned as-is;
// the recovery heuristic never runs on this dialect.
func (c *Client) chatOllama(ctx context.Context, messages []Message, tools []map[string]any) (*ChatResponse, error) {
	req := ollamaChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   false,
		Options:  c.options(),
		Tools:    tools,
	}

	body, err := c.postJSON(ctx, c.httpClient, "/api/chat", req)
	if err != nil {
		return nil, err
	}
	defer httpkit.DrainAndClose(body, 1<<20)

	var resp ChatResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &resp, nil
}

// chatOpenAI posts to the OpenAI-compatible completions path and
// repackages the first choice into the normalized shape. When the
// backend returned no structured tool calls but tools were offered and
// the content looks like a misrouted tool call, the recovery heuristic
// reinterprets it.
func (c *Client) chatOpenAI(ctx context.Context, messages []Message, tools []map[string]any) (*ChatResponse, error) {
	req := openaiChatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.numCtx,
		TopP:        defaultTopP,
		Stream:      false,
		Tools:       tools,
	}

	body, err := c.postJSON(ctx, c.httpClient, "/v1/chat/completions", req)
	if err != nil {
		return nil, err
	}
	defer httpkit.DrainAndClose(body, 1<<20)

	var openaiResp openaiChatResponse
	if err := json.NewDecoder(body).Decode(&openaiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(openaiResp.Choices) == 0 {
		return nil, fmt.Errorf("response contains no choices")
	}

	message := openaiResp.Choices[0].Message
	content := message.Content
	toolCalls := message.ToolCalls

	if len(tools) > 0 && len(toolCalls) == 0 && content != "" {
		if tc := RecoverToolCall(content, tools); tc != nil {
			c.logger.Info("detected JSON tool call in content", "tool", tc.Function.Name)
			toolCalls = []ToolCall{*tc}
			// The content was not conversational text, it was the
			// tool call itself.
			content = ""
		}
	}

	return &ChatResponse{
		Model: openaiResp.Model,
		Message: Message{
			Role:      "assistant",
			Content:   content,
			ToolCalls: toolCalls,
		},
		Done: true,
	}, nil
}

// options returns the fixed native options block.
func (c *Client) options() ollamaOptions {
	return ollamaOptions{
		Temperature: c.temperature,
		NumCtx:      c.numCtx,
		TopP:        defaultTopP,
	}
}

// postJSON marshals payload, POSTs it to path, and returns the response
// body after checking the HTTP status. The caller owns the body.
func (c *Client) postJSON(ctx context.Context, client *http.Client, path string, payload any) (io.ReadCloser, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	c.logger.Log(ctx, LevelTrace, "request payload", "path", path, "json", string(data))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(resp.Body, 4096)
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, errBody)
	}

	return resp.Body, nil
}
