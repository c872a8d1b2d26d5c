// Package config handles Rocky configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/rocky/config.yaml, /etc/rocky/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "rocky", "config.yaml"))
	}

	paths = append(paths, "/etc/rocky/config.yaml")
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

// Config holds all Rocky configuration.
type Config struct {
	Listen   ListenConfig  `yaml:"listen"`
	OpenAI   OpenAIConfig  `yaml:"openai"`
	Tavily   TavilyConfig  `yaml:"tavily"`
	SearXNG  SearXNGConfig `yaml:"searxng"`
	Agent    AgentConfig   `yaml:"agent"`
	History  HistoryConfig `yaml:"history"`
	DataDir  string        `yaml:"data_dir"`
	LogLevel string        `yaml:"log_level"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// OpenAIConfig defines the model provider settings.
type OpenAIConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`    // Default: https://api.openai.com
	Model      string `yaml:"model"`       // Default: gpt-4o-mini
	ImageModel string `yaml:"image_model"` // Default: dall-e-3
}

// TavilyConfig defines the Tavily web search provider settings.
type TavilyConfig struct {
	APIKey string `yaml:"api_key"`
}

// Configured reports whether a Tavily API key is set.
func (c TavilyConfig) Configured() bool {
	return c.APIKey != ""
}

// SearXNGConfig defines an optional self-hosted SearXNG search provider.
type SearXNGConfig struct {
	BaseURL string `yaml:"base_url"`
}

// Configured reports whether a SearXNG instance URL is set.
func (c SearXNGConfig) Configured() bool {
	return c.BaseURL != ""
}

// AgentConfig tunes the agent loop.
type AgentConfig struct {
	// MaxInputChars rejects user messages longer than this before any
	// model call. Zero means the default (10000).
	MaxInputChars int `yaml:"max_input_chars"`
	// MaxRounds bounds model/tool alternations per turn. Zero means the
	// default (8).
	MaxRounds int `yaml:"max_rounds"`
	// ModelTimeoutSec is the per-model-call timeout in seconds (default 120).
	ModelTimeoutSec int `yaml:"model_timeout_sec"`
	// ToolTimeoutSec is the per-tool-call timeout in seconds (default 30).
	ToolTimeoutSec int `yaml:"tool_timeout_sec"`
	// FetchMaxChars is the character budget for web page extraction
	// (default 5000).
	FetchMaxChars int `yaml:"fetch_max_chars"`
}

// ModelTimeout returns the per-model-call timeout as a duration.
func (c AgentConfig) ModelTimeout() time.Duration {
	if c.ModelTimeoutSec <= 0 {
		return 120 * time.Second
	}
	return time.Duration(c.ModelTimeoutSec) * time.Second
}

// ToolTimeout returns the per-tool-call timeout as a duration.
func (c AgentConfig) ToolTimeout() time.Duration {
	if c.ToolTimeoutSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.ToolTimeoutSec) * time.Second
}

// HistoryConfig selects the conversation history backend.
type HistoryConfig struct {
	// Backend is "memory" (default) or "sqlite". The memory backend
	// survives the process lifetime only; sqlite persists across restarts.
	Backend string `yaml:"backend"`
}

// Load reads configuration from a YAML file. Environment variables in
// the file (e.g. ${OPENAI_API_KEY}) are expanded before parsing so
// credentials can stay out of the file itself.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration. Credentials fall back to
// process environment so the daemon can run without a config file.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8080},
		OpenAI: OpenAIConfig{
			APIKey:     os.Getenv("OPENAI_API_KEY"),
			Model:      "gpt-4o-mini",
			ImageModel: "dall-e-3",
		},
		Tavily: TavilyConfig{
			APIKey: os.Getenv("TAVILY_API_KEY"),
		},
		Agent: AgentConfig{
			MaxInputChars: 10000,
			MaxRounds:     8,
			FetchMaxChars: 5000,
		},
		History: HistoryConfig{Backend: "memory"},
		DataDir: "data",
	}
}
