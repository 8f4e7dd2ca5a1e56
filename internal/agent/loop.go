// Package agent implements the conversation loop that composes the MCP
// tool client and the LLM chat client. The loop decides when a model
// response is an answer and when it is a tool request; the protocol
// details stay in the two clients.
package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/relaybot/relay-agent/internal/history"
	"github.com/relaybot/relay-agent/internal/llm"
	"github.com/relaybot/relay-agent/internal/mcp"
)

// maxToolIterations bounds how many consecutive tool rounds a single
// user turn may trigger before the loop forces a final answer.
const maxToolIterations = 5

const systemPrompt = "You are Relay, an assistant with access to external tools. " +
	"Use a tool when it helps answer the question; otherwise answer directly. " +
	"Be concise."

// ToolMode selects how tools are offered to the model.
type ToolMode string

const (
	// ToolModeNative passes function-calling schemas in the request's
	// tools field and relies on structured tool_calls responses.
	ToolModeNative ToolMode = "native"

	// ToolModePrompt embeds the tool catalog into the system prompt and
	// recovers tool calls from the assistant's text. For models without
	// native tool calling.
	ToolModePrompt ToolMode = "prompt"
)

// ParseToolMode validates a tool mode string from configuration. The
// empty string means native.
func ParseToolMode(s string) (ToolMode, error) {
	switch ToolMode(s) {
	case "", ToolModeNative:
		return ToolModeNative, nil
	case ToolModePrompt:
		return ToolModePrompt, nil
	default:
		return "", fmt.Errorf("unknown tool mode %q (valid: native, prompt)", s)
	}
}

// Loop drives one conversation against the two protocol clients.
type Loop struct {
	logger   *slog.Logger
	llm      *llm.Client
	mcp      *mcp.Client
	history  *history.Store
	toolMode ToolMode

	conversationID string
	messages       []llm.Message
}

// NewLoop creates a conversation loop. The history store is optional;
// when nil, turns are not persisted. An empty mode means ToolModeNative.
func NewLoop(logger *slog.Logger, llmClient *llm.Client, mcpClient *mcp.Client, store *history.Store, mode ToolMode) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	if mode == "" {
		mode = ToolModeNative
	}
	return &Loop{
		logger:         logger.With("component", "agent"),
		llm:            llmClient,
		mcp:            mcpClient,
		history:        store,
		toolMode:       mode,
		conversationID: uuid.NewString(),
	}
}

// ConversationID returns the identifier transcript entries are stored under.
func (l *Loop) ConversationID() string {
	return l.conversationID
}

// Turn runs one user turn: sends the conversation to the backend,
// dispatches any tool calls through the MCP client (feeding results
// back as tool messages), and returns the model's final text answer.
//
// In native mode the tool schemas travel in the request and tool calls
// arrive structured. In prompt mode the catalog is taught through the
// system prompt instead, and assistant text that looks like a tool call
// is recovered against the schemas before being treated as an answer.
func (l *Loop) Turn(ctx context.Context, userText string) (string, error) {
	schemas, err := l.mcp.ToolSchemas(ctx)
	if err != nil {
		return "", fmt.Errorf("load tool catalog: %w", err)
	}

	var tools []map[string]any
	if l.toolMode == ToolModeNative {
		tools = schemas
	}

	if len(l.messages) == 0 {
		system := systemPrompt
		if l.toolMode == ToolModePrompt {
			block, err := l.mcp.PromptText(ctx)
			if err != nil {
				return "", fmt.Errorf("render tool prompt: %w", err)
			}
			system = systemPrompt + "\n\n" + block
		}
		l.messages = append(l.messages, llm.Message{Role: "system", Content: system})
	}
	l.messages = append(l.messages, llm.Message{Role: "user", Content: userText})
	l.record("user", userText, "")

	for iteration := 0; ; iteration++ {
		resp, err := l.llm.Chat(ctx, l.messages, tools)
		if err != nil {
			return "", fmt.Errorf("chat request: %w", err)
		}

		assistant := resp.Message
		if l.toolMode == ToolModePrompt && len(assistant.ToolCalls) == 0 {
			if tc := llm.RecoverToolCall(assistant.Content, schemas); tc != nil {
				l.logger.Info("recovered tool call from assistant text", "tool", tc.Function.Name)
				assistant.ToolCalls = []llm.ToolCall{*tc}
				assistant.Content = ""
			}
		}
		l.messages = append(l.messages, assistant)

		if len(assistant.ToolCalls) == 0 {
			l.record("assistant", assistant.Content, "")
			return assistant.Content, nil
		}

		if iteration >= maxToolIterations {
			l.logger.Warn("tool iteration limit reached", "limit", maxToolIterations)
			l.record("assistant", assistant.Content, "")
			return assistant.Content, nil
		}

		for _, call := range assistant.ToolCalls {
			l.messages = append(l.messages, l.dispatch(ctx, call))
		}
	}
}

// dispatch executes one tool call and wraps the outcome as a tool
// message. Failures are injected as message content rather than
// returned: the model sees what went wrong and can adjust.
func (l *Loop) dispatch(ctx context.Context, call llm.ToolCall) llm.Message {
	name := call.Function.Name

	args, err := call.Function.Arguments.Map()
	if err != nil {
		l.logger.Warn("undecodable tool arguments", "tool", name, "error", err)
		return l.toolMessage(call, fmt.Sprintf("Error: invalid arguments for %s: %v", name, err))
	}

	l.logger.Info("dispatching tool call", "tool", name)
	result := l.mcp.CallTool(ctx, name, args)
	if !result.Success {
		return l.toolMessage(call, fmt.Sprintf("Error: %s", result.Error))
	}
	return l.toolMessage(call, result.Result)
}

func (l *Loop) toolMessage(call llm.ToolCall, content string) llm.Message {
	l.record("tool", content, call.Function.Name)
	return llm.Message{
		Role:       "tool",
		Content:    content,
		ToolCallID: call.ID,
	}
}

// record persists one transcript entry, best-effort.
func (l *Loop) record(role, content, toolName string) {
	if l.history == nil {
		return
	}
	if err := l.history.Add(l.conversationID, role, content, toolName); err != nil {
		l.logger.Error("failed to persist transcript entry", "error", err)
	}
}
