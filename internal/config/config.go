// Package config handles Relay configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/relay/config.yaml, /etc/relay/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "relay", "config.yaml"))
	}

	paths = append(paths, "/etc/relay/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Relay configuration.
type Config struct {
	MCP      MCPConfig `yaml:"mcp"`
	LLM      LLMConfig `yaml:"llm"`
	DataDir  string    `yaml:"data_dir"`
	LogLevel string    `yaml:"log_level"`
}

// MCPConfig defines the MCP tool server connection.
type MCPConfig struct {
	// URL is the MCP server endpoint (e.g., http://localhost:8000/mcp).
	URL string `yaml:"url"`
	// TimeoutSec is the per-request timeout in seconds (default 30).
	TimeoutSec int `yaml:"timeout_sec"`
}

// LLMConfig defines the LLM backend connection.
type LLMConfig struct {
	// Backend selects the chat dialect: "ollama" or "vllm".
	Backend string `yaml:"backend"`
	// URL is the backend base URL (default http://localhost:11434).
	URL string `yaml:"url"`
	// Model is the model name sent with every request.
	Model string `yaml:"model"`
	// Temperature is the sampling temperature (0-1).
	Temperature float64 `yaml:"temperature"`
	// NumCtx is the context window size (ollama num_ctx, vllm max_tokens).
	NumCtx int `yaml:"num_ctx"`
	// TimeoutSec is the per-request timeout in seconds (default 120).
	TimeoutSec int `yaml:"timeout_sec"`
	// ToolMode selects how tools are offered to the model: "native"
	// (function-calling schemas, the default) or "prompt" (a prompt
	// block for models without native tool calling).
	ToolMode string `yaml:"tool_mode"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		MCP: MCPConfig{
			URL:        "http://localhost:8000/mcp",
			TimeoutSec: 30,
		},
		LLM: LLMConfig{
			Backend:     "ollama",
			URL:         "http://localhost:11434",
			Model:       "gpt-oss:20b",
			Temperature: 0.7,
			NumCtx:      4096,
			TimeoutSec:  120,
			ToolMode:    "native",
		},
	}
}
