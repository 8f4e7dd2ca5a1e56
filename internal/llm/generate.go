package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/relaybot/relay-agent/internal/httpkit"
)

type ollamaGenerateRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

// Generate sends a raw-completion request against the native generate
// path. Only the native dialect serves this endpoint in practice, but
// the client does not restrict it: a backend that happens to implement
// the path answers normally.
func (c *Client) Generate(ctx context.Context, prompt string) (*GenerateResponse, error) {
	req := ollamaGenerateRequest{
		Model:   c.model,
		Prompt:  prompt,
		Stream:  false,
		Options: c.options(),
	}

	body, err := c.postJSON(ctx, c.httpClient, "/api/generate", req)
	if err != nil {
		return nil, err
	}
	defer httpkit.DrainAndClose(body, 1<<20)

	var resp GenerateResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &resp, nil
}
