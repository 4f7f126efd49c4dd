// Package config handles OpenFang configuration loading.
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
// Then: ./openfang.yaml, ~/.config/openfang/config.yaml, /etc/openfang/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"openfang.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "openfang", "config.yaml"))
	}

	paths = append(paths, "/etc/openfang/config.yaml")
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

// Config holds all OpenFang configuration.
type Config struct {
	Listen      ListenConfig    `yaml:"listen"`
	Provider    string          `yaml:"provider"` // anthropic or openai
	Anthropic   AnthropicConfig `yaml:"anthropic"`
	OpenAI      OpenAIConfig    `yaml:"openai"`
	Agent       AgentConfig     `yaml:"agent"`
	Scheduler   SchedulerConfig `yaml:"scheduler"`
	Delivery    DeliveryConfig  `yaml:"delivery"`
	Tools       ToolsConfig     `yaml:"tools"`
	ShellExec   ShellExecConfig `yaml:"shell_exec"`
	DataDir     string          `yaml:"data_dir"`
	PersonaFile string          `yaml:"persona_file"`
	LogLevel    string          `yaml:"log_level"`
	LogFormat   string          `yaml:"log_format"` // text or json
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// AnthropicConfig defines Anthropic API settings.
type AnthropicConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"` // override for proxies; default is the public API
}

// OpenAIConfig defines OpenAI-compatible API settings.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"` // any chat-completions compatible endpoint
}

// AgentConfig defines conversation loop settings.
type AgentConfig struct {
	SystemPrompt string `yaml:"system_prompt"`
	// MaxContextMessages caps how much history is sent per request.
	MaxContextMessages int    `yaml:"max_context_messages"`
	MaxTokens          int    `yaml:"max_tokens"`
	Timezone           string `yaml:"timezone"` // IANA name, default UTC
}

// SchedulerConfig defines scheduled-prompt execution settings.
type SchedulerConfig struct {
	Enabled         bool `yaml:"enabled"`
	PollIntervalSec int  `yaml:"poll_interval_sec"` // default 30
}

// DeliveryConfig defines how scheduled output reaches the user.
type DeliveryConfig struct {
	// WebhookURL receives chunked messages as JSON POSTs. Empty means
	// deliveries are logged instead.
	WebhookURL string `yaml:"webhook_url"`
	// MaxMessageLen is the per-message character limit (default 2000).
	MaxMessageLen int `yaml:"max_message_len"`
}

// ToolsConfig toggles individual built-in tools.
type ToolsConfig struct {
	WebSearch   bool   `yaml:"web_search"`
	BraveAPIKey string `yaml:"brave_api_key"`
	WebRead     bool   `yaml:"web_read"`
	Calculator  bool   `yaml:"calculator"`
	Memory      bool   `yaml:"memory"`
	Schedules   bool   `yaml:"schedules"`
}

// ShellExecConfig defines shell execution capabilities.
type ShellExecConfig struct {
	// Enabled allows shell command execution. Disabled by default for safety.
	Enabled bool `yaml:"enabled"`
	// WorkingDir sets the default working directory for commands.
	WorkingDir string `yaml:"working_dir"`
	// DeniedPatterns are command patterns to block (e.g., "rm -rf /").
	DeniedPatterns []string `yaml:"denied_patterns"`
	// AllowedPrefixes limits commands to those starting with these prefixes.
	// Empty means all commands are allowed (subject to denied patterns).
	AllowedPrefixes []string `yaml:"allowed_prefixes"`
	// DefaultTimeoutSec is the default timeout in seconds (default 30).
	DefaultTimeoutSec int `yaml:"default_timeout_sec"`
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

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen:   ListenConfig{Port: 8080},
		Provider: "anthropic",
		Anthropic: AnthropicConfig{
			Model: "claude-sonnet-4-20250514",
		},
		OpenAI: OpenAIConfig{
			Model: "gpt-4o",
		},
		Agent: AgentConfig{
			MaxContextMessages: 50,
			MaxTokens:          4096,
			Timezone:           "UTC",
		},
		Scheduler: SchedulerConfig{
			Enabled:         true,
			PollIntervalSec: 30,
		},
		Delivery: DeliveryConfig{
			MaxMessageLen: 2000,
		},
		Tools: ToolsConfig{
			WebRead:    true,
			Calculator: true,
			Memory:     true,
			Schedules:  true,
		},
		DataDir: "data",
	}
}

// Validate checks the configuration for inconsistencies that would
// only surface later at request time.
func (c *Config) Validate() error {
	switch c.Provider {
	case "anthropic":
		if c.Anthropic.APIKey == "" {
			return fmt.Errorf("provider is anthropic but anthropic.api_key is empty")
		}
	case "openai":
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("provider is openai but openai.api_key is empty")
		}
	default:
		return fmt.Errorf("unknown provider %q (valid: anthropic, openai)", c.Provider)
	}

	if c.Agent.Timezone != "" {
		if _, err := time.LoadLocation(c.Agent.Timezone); err != nil {
			return fmt.Errorf("invalid agent.timezone %q: %w", c.Agent.Timezone, err)
		}
	}

	if c.Tools.WebSearch && c.Tools.BraveAPIKey == "" {
		return fmt.Errorf("tools.web_search enabled but tools.brave_api_key is empty")
	}

	if c.Delivery.MaxMessageLen < 1 {
		return fmt.Errorf("delivery.max_message_len must be positive, got %d", c.Delivery.MaxMessageLen)
	}

	return nil
}

// PollInterval returns the scheduler tick interval as a duration.
func (c *SchedulerConfig) PollInterval() time.Duration {
	if c.PollIntervalSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.PollIntervalSec) * time.Second
}

// SystemPrompt returns the effective system prompt, reading the persona
// file when one is configured. The inline prompt and persona file are
// concatenated when both are present.
func (c *Config) SystemPrompt() (string, error) {
	prompt := c.Agent.SystemPrompt
	if c.PersonaFile == "" {
		return prompt, nil
	}

	data, err := os.ReadFile(c.PersonaFile)
	if err != nil {
		return "", fmt.Errorf("read persona file: %w", err)
	}
	if prompt == "" {
		return string(data), nil
	}
	return prompt + "\n\n" + string(data), nil
}
