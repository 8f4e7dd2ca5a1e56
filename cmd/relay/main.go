// Relay is a conversational agent that bridges an MCP tool server and
// an LLM chat backend.
//
// It speaks two protocols: the MCP JSON-RPC/SSE session protocol for
// tool discovery and invocation, and the chat protocol of either a
// native Ollama backend or an OpenAI-compatible (vLLM) backend.
// Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	relay chat               Interactive chat session
//	relay ask <question>     Ask a single question
//	relay gen <prompt>       Stream a raw completion
//	relay tools              List tools offered by the MCP server
//	relay models             List models served by the LLM backend
//	relay pull [model]       Pull a model (ollama backend only)
//	relay health             Probe both backends
//	relay version            Print version and build information
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/relaybot/relay-agent/internal/agent"
	"github.com/relaybot/relay-agent/internal/buildinfo"
	"github.com/relaybot/relay-agent/internal/config"
	"github.com/relaybot/relay-agent/internal/history"
	"github.com/relaybot/relay-agent/internal/llm"
	"github.com/relaybot/relay-agent/internal/mcp"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run] so the full
// lifecycle can be driven from tests.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdin, os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the relay command.
func run(ctx context.Context, stdin io.Reader, stdout io.Writer, args []string) error {
	fs := flag.NewFlagSet("relay", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	command := fs.Arg(0)
	if command == "" {
		command = "chat"
	}

	if command == "version" {
		fmt.Fprintln(stdout, buildinfo.String())
		return nil
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	llmClient, err := llm.New(llm.Config{
		BaseURL:     cfg.LLM.URL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		NumCtx:      cfg.LLM.NumCtx,
		Timeout:     time.Duration(cfg.LLM.TimeoutSec) * time.Second,
		Backend:     llm.Backend(cfg.LLM.Backend),
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	mcpClient := mcp.NewClient(mcp.NewHTTPTransport(mcp.HTTPConfig{
		URL:     cfg.MCP.URL,
		Timeout: time.Duration(cfg.MCP.TimeoutSec) * time.Second,
		Logger:  logger,
	}), logger)
	defer mcpClient.Close()

	toolMode, err := agent.ParseToolMode(cfg.LLM.ToolMode)
	if err != nil {
		return err
	}

	switch command {
	case "chat":
		return runChat(ctx, stdin, stdout, cfg, logger, llmClient, mcpClient, toolMode)
	case "ask":
		question := strings.Join(fs.Args()[1:], " ")
		if question == "" {
			return fmt.Errorf("usage: relay ask <question>")
		}
		loop := agent.NewLoop(logger, llmClient, mcpClient, nil, toolMode)
		answer, err := loop.Turn(ctx, question)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, answer)
		return nil
	case "gen":
		prompt := strings.Join(fs.Args()[1:], " ")
		if prompt == "" {
			return fmt.Errorf("usage: relay gen <prompt>")
		}
		return runGenerate(ctx, stdout, llmClient, prompt)
	case "tools":
		return runTools(ctx, stdout, mcpClient)
	case "models":
		models, err := llmClient.ListModels(ctx)
		if err != nil {
			return err
		}
		for _, m := range models {
			fmt.Fprintln(stdout, m)
		}
		return nil
	case "pull":
		if !llmClient.PullModel(ctx, fs.Arg(1)) {
			return fmt.Errorf("model pull failed")
		}
		return nil
	case "health":
		return runHealth(ctx, stdout, llmClient, mcpClient)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

// loadConfig resolves and loads the config file, falling back to
// defaults when none exists and no explicit path was given.
func loadConfig(explicit string) (*config.Config, error) {
	path, err := config.FindConfig(explicit)
	if err != nil {
		if explicit != "" {
			return nil, err
		}
		return config.Default(), nil
	}
	return config.Load(path)
}

func newLogger(level string) (*slog.Logger, error) {
	logLevel, err := config.ParseLogLevel(level)
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:       logLevel,
		ReplaceAttr: config.ReplaceLogLevelNames,
	})), nil
}

// runChat drives an interactive session. Transcripts are persisted when
// a data directory is configured.
func runChat(ctx context.Context, stdin io.Reader, stdout io.Writer, cfg *config.Config, logger *slog.Logger, llmClient *llm.Client, mcpClient *mcp.Client, toolMode agent.ToolMode) error {
	var store *history.Store
	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
		var err error
		store, err = history.NewStore(filepath.Join(cfg.DataDir, "history.db"))
		if err != nil {
			return err
		}
		defer store.Close()
	}

	if !mcpClient.HealthCheck(ctx) {
		logger.Warn("MCP server health check failed; tool calls may not work")
	}
	if !llmClient.CheckModelExists(ctx, "") {
		logger.Warn("configured model not found on backend", "model", llmClient.Model())
	}

	loop := agent.NewLoop(logger, llmClient, mcpClient, store, toolMode)
	fmt.Fprintf(stdout, "%s — type 'exit' to quit\n", buildinfo.String())

	scanner := bufio.NewScanner(stdin)
	for {
		fmt.Fprint(stdout, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}

		answer, err := loop.Turn(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(stdout, "error: %v\n", err)
			continue
		}
		fmt.Fprintln(stdout, answer)
	}
}

// runGenerate streams a raw completion, printing tokens as they arrive.
func runGenerate(ctx context.Context, stdout io.Writer, llmClient *llm.Client, prompt string) error {
	chunks, err := llmClient.GenerateStream(ctx, prompt)
	if err != nil {
		return err
	}
	for chunk := range chunks {
		fmt.Fprint(stdout, chunk.Text())
		if chunk.Done {
			break
		}
	}
	fmt.Fprintln(stdout)
	return nil
}

func runTools(ctx context.Context, stdout io.Writer, mcpClient *mcp.Client) error {
	descriptions, err := mcpClient.DescribeTools(ctx)
	if err != nil {
		return err
	}
	for _, d := range descriptions {
		fmt.Fprintf(stdout, "%s: %s\n%s\n\n", d.Name, d.Description, d.Parameters)
	}
	return nil
}

func runHealth(ctx context.Context, stdout io.Writer, llmClient *llm.Client, mcpClient *mcp.Client) error {
	mcpOK := mcpClient.HealthCheck(ctx)
	fmt.Fprintf(stdout, "mcp: %s\n", healthWord(mcpOK))

	llmOK := llmClient.CheckModelExists(ctx, "")
	fmt.Fprintf(stdout, "llm: %s (model %s)\n", healthWord(llmOK), llmClient.Model())

	if !mcpOK || !llmOK {
		return fmt.Errorf("one or more backends unhealthy")
	}
	return nil
}

func healthWord(ok bool) string {
	if ok {
		return "healthy"
	}
	return "unhealthy"
}
