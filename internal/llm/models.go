package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"

	"github.com/relaybot/relay-agent/internal/httpkit"
)

// ListModels returns the names of the models the backend serves. The
// catalog shape differs by dialect (models/name vs data/id); both are
// normalized to a plain name list. Errors propagate.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	path := "/api/tags"
	if c.backend == BackendVLLM {
		path = "/v1/models"
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 1<<20)

	if resp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(resp.Body, 4096)
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, errBody)
	}

	if c.backend == BackendVLLM {
		var result struct {
			Data []struct {
				ID string `json:"id"`
			} `json:"data"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		names := make([]string, len(result.Data))
		for i, m := range result.Data {
			names[i] = m.ID
		}
		return names, nil
	}

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	names := make([]string, len(result.Models))
	for i, m := range result.Models {
		names[i] = m.Name
	}
	return names, nil
}

// CheckModelExists reports whether the named model (or the configured
// one, if name is empty) is in the backend's catalog. It is a probe:
// lookup failures are logged and reported as absence.
func (c *Client) CheckModelExists(ctx context.Context, name string) bool {
	if name == "" {
		name = c.model
	}

	models, err := c.ListModels(ctx)
	if err != nil {
		c.logger.Error("failed to check model existence", "error", err)
		return false
	}
	return slices.Contains(models, name)
}

// PullModel asks the backend to download the named model (or the
// configured one, if name is empty). Only the native dialect can load
// models on demand; under the OpenAI-compatible dialect this is a no-op
// that reports failure.
func (c *Client) PullModel(ctx context.Context, name string) bool {
	if c.backend != BackendOllama {
		c.logger.Warn("pull is only supported for the ollama backend")
		return false
	}

	if name == "" {
		name = c.model
	}

	payload, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		c.logger.Error("failed to marshal pull request", "error", err)
		return false
	}

	c.logger.Info("pulling model", "name", name)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/pull", bytes.NewReader(payload))
	if err != nil {
		c.logger.Error("failed to create pull request", "error", err)
		return false
	}
	httpReq.Header.Set("Content-Type", "application/json")

	// Pulls can take a long time; use the streaming client so the
	// configured request timeout does not cut the download short.
	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		c.logger.Error("failed to pull model", "name", name, "error", err)
		return false
	}
	defer httpkit.DrainAndClose(resp.Body, 10<<20)

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("failed to pull model", "name", name, "status", resp.StatusCode)
		return false
	}

	c.logger.Info("model pulled successfully", "name", name)
	return true
}
