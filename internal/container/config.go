// Package container wires the workflow orchestrator's dependencies and
// manages their lifecycle.
package container

import (
	"fmt"
	"time"
)

// Config holds all configuration for the Container.
type Config struct {
	Database       DatabaseConfig
	AI             AIConfig
	AutoTransition AutoTransitionConfig
	Events         EventsConfig
	Server         ServerConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to the SQLite database file, or ":memory:"
	Path string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// AIConfig holds the default model provider and AI call settings.
type AIConfig struct {
	// APIKey, BaseURL and Model describe the global default provider. An empty
	// APIKey leaves AI guards and suggestions unconfigured unless a provider
	// is stored in the database.
	APIKey  string
	BaseURL string
	Model   string

	GuardTimeout      time.Duration
	SuggestionTimeout time.Duration

	// PromptsPath optionally overrides the built-in prompts
	PromptsPath string
}

// AutoTransitionConfig controls the reconciliation worker.
type AutoTransitionConfig struct {
	Enabled bool

	// Schedule is a five-field cron expression
	Schedule string

	// AllowExecute permits definitions with the execute strategy to move instances
	AllowExecute bool

	RunTimeout time.Duration
}

// EventsConfig controls the Redis event relay. Events stay in-process when
// RedisAddr is empty.
type EventsConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	ChannelPrefix string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a configuration for a local single-node setup.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:            "data/workflows.db",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		AI: AIConfig{
			Model:             "gpt-4o-mini",
			GuardTimeout:      5 * time.Second,
			SuggestionTimeout: 8 * time.Second,
		},
		AutoTransition: AutoTransitionConfig{
			Enabled:    true,
			Schedule:   "0 9 * * *",
			RunTimeout: 30 * time.Minute,
		},
		Events: EventsConfig{
			ChannelPrefix: "workflow",
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

// Validate checks the configuration for required values.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Database.MaxOpenConns < 0 {
		return fmt.Errorf("database max open connections cannot be negative")
	}
	if c.AI.APIKey != "" && c.AI.Model == "" {
		return fmt.Errorf("ai model is required when an api key is set")
	}
	if c.AI.GuardTimeout < 0 || c.AI.SuggestionTimeout < 0 {
		return fmt.Errorf("ai timeouts cannot be negative")
	}
	if c.AutoTransition.Enabled && c.AutoTransition.Schedule == "" {
		return fmt.Errorf("auto-transition schedule is required when enabled")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	return nil
}
