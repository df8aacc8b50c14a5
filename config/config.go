package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root of a taskmesh configuration file.
type Config struct {
	Server   ServerConfig  `yaml:"server"`
	Logging  LoggingConfig `yaml:"logging"`
	Memory   MemoryConfig  `yaml:"memory"`
	Defaults AgentDefaults `yaml:"defaults"`
	Agents   []AgentConfig `yaml:"agents"`
}

// ServerConfig controls the HTTP surface.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig selects level and output format for the default logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// MemoryConfig selects the persistence backend shared by all agents.
type MemoryConfig struct {
	Driver   string `yaml:"driver"` // memory | sqlite | redis
	DSN      string `yaml:"dsn"`    // sqlite file path
	Addr     string `yaml:"addr"`   // redis host:port
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AgentDefaults fills provider fields that individual agents omit.
type AgentDefaults struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
}

// AgentConfig describes one agent in the roster.
type AgentConfig struct {
	ID            string   `yaml:"id"`
	Name          string   `yaml:"name"`
	Strategy      string   `yaml:"strategy"` // plain | plan_execute | reflect | retrieval
	Provider      string   `yaml:"provider"`
	Model         string   `yaml:"model"`
	APIKeyEnv     string   `yaml:"api_key_env"`
	SystemPrompt  string   `yaml:"system_prompt"`
	Tools         []string `yaml:"tools"`
	Capabilities  []string `yaml:"capabilities"`
	MaxIterations int      `yaml:"max_iterations"` // 0 = the loop default
	Enabled       *bool    `yaml:"enabled"`        // omitted = enabled
}

// IsEnabled reports whether the agent should be registered.
func (a AgentConfig) IsEnabled() bool { return a.Enabled == nil || *a.Enabled }

// APIKey resolves the agent's API key from its configured environment
// variable.
func (a AgentConfig) APIKey() string {
	if a.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(a.APIKeyEnv)
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path cannot be empty")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	return Parse(raw)
}

// Parse decodes YAML bytes, applies defaults, expands environment
// references in connection fields and validates the result.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applyDefaults()
	cfg.expandEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns the configuration an empty file would produce.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	if c.Memory.Driver == "" {
		c.Memory.Driver = "memory"
	}

	if c.Defaults.Provider == "" {
		c.Defaults.Provider = "openai"
	}
	if c.Defaults.Model == "" {
		c.Defaults.Model = "gpt-4"
	}
	if c.Defaults.APIKeyEnv == "" {
		c.Defaults.APIKeyEnv = "OPENAI_API_KEY"
	}

	// A deployment without agents still gets one general assistant.
	if len(c.Agents) == 0 {
		c.Agents = append(c.Agents, AgentConfig{ID: "assistant", Name: "Assistant"})
	}

	for i := range c.Agents {
		a := &c.Agents[i]
		if a.Name == "" {
			a.Name = a.ID
		}
		if a.Provider == "" {
			a.Provider = c.Defaults.Provider
		}
		if a.Model == "" {
			a.Model = c.Defaults.Model
		}
		if a.APIKeyEnv == "" {
			a.APIKeyEnv = c.Defaults.APIKeyEnv
		}
	}
}

// expandEnv resolves ${VAR} references in connection fields so credentials
// can stay out of the file.
func (c *Config) expandEnv() {
	c.Memory.DSN = os.Expand(c.Memory.DSN, os.Getenv)
	c.Memory.Addr = os.Expand(c.Memory.Addr, os.Getenv)
	c.Memory.Password = os.Expand(c.Memory.Password, os.Getenv)
}

// Validate ensures the configuration is internally consistent.
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown logging level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown logging format %q", c.Logging.Format)
	}

	switch c.Memory.Driver {
	case "memory":
	case "sqlite":
		if c.Memory.DSN == "" {
			return errors.New("sqlite memory driver requires a dsn")
		}
	case "redis":
		if c.Memory.Addr == "" {
			return errors.New("redis memory driver requires an addr")
		}
	default:
		return fmt.Errorf("unknown memory driver %q", c.Memory.Driver)
	}

	seen := make(map[string]bool, len(c.Agents))
	for _, a := range c.Agents {
		if a.ID == "" {
			return errors.New("agent id cannot be empty")
		}
		if seen[a.ID] {
			return fmt.Errorf("duplicate agent id %q", a.ID)
		}
		seen[a.ID] = true
	}

	return nil
}
