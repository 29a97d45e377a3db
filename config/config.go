package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/hupe1980/taskmesh/core"
)

// Default values applied when neither the file nor the environment sets a key.
const (
	DefaultSessionMaxTurns        = 50
	DefaultBatchMaxConcurrency    = 10
	DefaultMaxConsecutiveFailures = 3
	DefaultWorkerMaxTurns         = 20
	DefaultStoreBackend           = "memory"
	DefaultProvider               = "anthropic"
	DefaultAnthropicModel         = "claude-3-5-sonnet-20241022"
	DefaultOpenAIModel            = "gpt-4o-mini"
	DefaultLogLevel               = "info"
	DefaultLogFormat              = "json"
)

// ModelConfig selects the provider and model for one agent type.
type ModelConfig struct {
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
	APIKey   string `mapstructure:"api_key"`
}

// Config is the engine configuration.
type Config struct {
	Session struct {
		MaxTurns               int `mapstructure:"max_turns"`
		MaxConsecutiveFailures int `mapstructure:"max_consecutive_failures"`
	} `mapstructure:"session"`

	Batch struct {
		MaxConcurrency int `mapstructure:"max_concurrency"`
	} `mapstructure:"batch"`

	Worker struct {
		// DefaultMaxTurns applies when a task_create omits max_turns.
		DefaultMaxTurns int `mapstructure:"default_max_turns"`
	} `mapstructure:"worker"`

	Store struct {
		// Backend is "memory" or "sqlite".
		Backend string `mapstructure:"backend"`
		// Path is the sqlite file location, ignored for memory.
		Path string `mapstructure:"path"`
	} `mapstructure:"store"`

	Workspace string `mapstructure:"workspace"`

	// Models maps agent types to provider settings. The "default" key
	// applies to any agent type without an explicit entry.
	Models map[string]ModelConfig `mapstructure:"models"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
}

// ModelFor returns the model settings for an agent type, falling back to the
// "default" entry and then to built-in defaults.
func (c *Config) ModelFor(agentType core.AgentType) ModelConfig {
	if m, ok := c.Models[string(agentType)]; ok {
		return withModelDefaults(m)
	}
	if m, ok := c.Models["default"]; ok {
		return withModelDefaults(m)
	}
	return withModelDefaults(ModelConfig{})
}

func withModelDefaults(m ModelConfig) ModelConfig {
	if m.Provider == "" {
		m.Provider = DefaultProvider
	}
	if m.Model == "" {
		switch m.Provider {
		case "openai":
			m.Model = DefaultOpenAIModel
		default:
			m.Model = DefaultAnthropicModel
		}
	}
	return m
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Session.MaxTurns <= 0 {
		return fmt.Errorf("config: session.max_turns must be positive")
	}
	if c.Batch.MaxConcurrency <= 0 {
		return fmt.Errorf("config: batch.max_concurrency must be positive")
	}
	if c.Worker.DefaultMaxTurns <= 0 {
		return fmt.Errorf("config: worker.default_max_turns must be positive")
	}
	switch c.Store.Backend {
	case "memory":
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("config: store.path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}
	for name, m := range c.Models {
		switch m.Provider {
		case "", "anthropic", "openai":
		default:
			return fmt.Errorf("config: models.%s: unknown provider %q", name, m.Provider)
		}
	}
	return nil
}

// Load reads configuration from the given file (optional) and TASKMESH_*
// environment variables, applying defaults for everything unset.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TASKMESH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("session.max_turns", DefaultSessionMaxTurns)
	v.SetDefault("session.max_consecutive_failures", DefaultMaxConsecutiveFailures)
	v.SetDefault("batch.max_concurrency", DefaultBatchMaxConcurrency)
	v.SetDefault("worker.default_max_turns", DefaultWorkerMaxTurns)
	v.SetDefault("store.backend", DefaultStoreBackend)
	v.SetDefault("workspace", ".")
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", DefaultLogFormat)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
