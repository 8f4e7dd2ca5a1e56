package llm

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/relaybot/relay-agent/internal/httpkit"
)

// Backend selects the chat protocol dialect.
type Backend string

const (
	// BackendOllama is the native Ollama chat API.
	BackendOllama Backend = "ollama"

	// BackendVLLM is the OpenAI-compatible completions API served by vLLM.
	BackendVLLM Backend = "vllm"
)

// defaultTopP is sent with every request; neither dialect gets a
// caller-tunable top_p in this client.
const defaultTopP = 0.9

// Config holds the settings fixed at client construction.
type Config struct {
	// BaseURL of the backend (default http://localhost:11434).
	BaseURL string

	// Model name sent with every request.
	Model string

	// Temperature is the sampling temperature (0-1).
	Temperature float64

	// NumCtx is the context window budget: num_ctx under the native
	// dialect, max_tokens under the OpenAI-compatible one.
	NumCtx int

	// Timeout is the per-request timeout for non-streaming calls
	// (default 120s). Streaming calls ignore it and rely on ctx.
	Timeout time.Duration

	// Backend selects the dialect. Must be BackendOllama or BackendVLLM.
	Backend Backend

	// Logger for request diagnostics; slog.Default() if nil.
	Logger *slog.Logger
}

// Client sends chat and completion requests to one LLM backend.
// Construction fixes the dialect; there is no re-negotiation.
type Client struct {
	baseURL     string
	model       string
	temperature float64
	numCtx      int
	backend     Backend
	logger      *slog.Logger

	httpClient *http.Client
	// streamClient has no overall timeout: a streaming body stays open
	// for the lifetime of the produced sequence.
	streamClient *http.Client
}

// New creates a chat client. It fails immediately, before any network
// access, if the backend selector is not one of the two dialects.
func New(cfg Config) (*Client, error) {
	backend := Backend(strings.ToLower(string(cfg.Backend)))
	switch backend {
	case BackendOllama, BackendVLLM:
	default:
		return nil, fmt.Errorf("unsupported backend %q (use %q or %q)", cfg.Backend, BackendOllama, BackendVLLM)
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:      baseURL,
		model:        cfg.Model,
		temperature:  cfg.Temperature,
		numCtx:       cfg.NumCtx,
		backend:      backend,
		logger:       logger.With("backend", string(backend), "model", cfg.Model),
		httpClient:   httpkit.NewClient(httpkit.WithTimeout(timeout)),
		streamClient: httpkit.NewClient(httpkit.WithTimeout(0)),
	}, nil
}

// Backend returns the dialect this client was constructed with.
func (c *Client) Backend() Backend {
	return c.backend
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}
