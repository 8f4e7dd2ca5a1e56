package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"iter"

	"github.com/relaybot/relay-agent/internal/httpkit"
)

// ChatStream sends a streaming chat request and returns a lazy sequence
// of decoded chunks, one per newline-delimited JSON object read from
// the open connection. The connection is held for the lifetime of the
// sequence and released both on exhaustion and on early abandonment
// (breaking out of the range). A line that fails to decode is logged
// and skipped, not treated as stream-terminating.
//
// The returned sequence is restartable per call, not resumable: ranging
// over it a second time yields nothing.
func (c *Client) ChatStream(ctx context.Context, messages []Message, tools []map[string]any) (iter.Seq[StreamChunk], error) {
	var payload any
	path := "/api/chat"
	switch c.backend {
	case BackendVLLM:
		path = "/v1/chat/completions"
		payload = openaiChatRequest{
			Model:       c.model,
			Messages:    messages,
			Temperature: c.temperature,
			MaxTokens:   c.numCtx,
			TopP:        defaultTopP,
			Stream:      true,
			Tools:       tools,
		}
	default:
		payload = ollamaChatRequest{
			Model:    c.model,
			Messages: messages,
			Stream:   true,
			Options:  c.options(),
			Tools:    tools,
		}
	}

	body, err := c.postJSON(ctx, c.streamClient, path, payload)
	if err != nil {
		return nil, err
	}
	return c.chunks(body), nil
}

// GenerateStream is the streaming variant of Generate.
func (c *Client) GenerateStream(ctx context.Context, prompt string) (iter.Seq[StreamChunk], error) {
	payload := ollamaGenerateRequest{
		Model:   c.model,
		Prompt:  prompt,
		Stream:  true,
		Options: c.options(),
	}

	body, err := c.postJSON(ctx, c.streamClient, "/api/generate", payload)
	if err != nil {
		return nil, err
	}
	return c.chunks(body), nil
}

// chunks adapts an open NDJSON response body into a chunk sequence.
// The body is closed on every exit path.
func (c *Client) chunks(body io.ReadCloser) iter.Seq[StreamChunk] {
	return func(yield func(StreamChunk) bool) {
		defer httpkit.DrainAndClose(body, 1<<20)

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}

			var chunk StreamChunk
			if err := json.Unmarshal(line, &chunk); err != nil {
				c.logger.Warn("failed to parse stream chunk", "line", string(line), "error", err)
				continue
			}

			if !yield(chunk) {
				return
			}
		}

		if err := scanner.Err(); err != nil {
			c.logger.Error("stream read failed", "error", err)
		}
	}
}
