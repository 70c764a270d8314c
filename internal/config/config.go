package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config holds all application configuration
type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	AI             AIConfig             `mapstructure:"ai"`
	AutoTransition AutoTransitionConfig `mapstructure:"auto_transition"`
	Events         EventsConfig         `mapstructure:"events"`
	Logger         LoggerConfig         `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// AIConfig holds the default model provider and AI call settings
type AIConfig struct {
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	Model             string        `mapstructure:"model"`
	GuardTimeout      time.Duration `mapstructure:"guard_timeout"`
	SuggestionTimeout time.Duration `mapstructure:"suggestion_timeout"`
	PromptsPath       string        `mapstructure:"prompts_path"`
}

// AutoTransitionConfig controls the reconciliation worker
type AutoTransitionConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Schedule     string        `mapstructure:"schedule"`
	AllowExecute bool          `mapstructure:"allow_execute"`
	RunTimeout   time.Duration `mapstructure:"run_timeout"`
}

// EventsConfig holds the Redis event relay configuration
type EventsConfig struct {
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	ChannelPrefix string `mapstructure:"channel_prefix"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load reads configuration from an optional YAML file, a .env file in the
// working directory and the environment, in increasing precedence. An empty
// configPath uses defaults and the environment only.
func Load(configPath string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	bindEnvVars(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadDotEnv exports the variables of a .env file that are not already set
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := gotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.path", "data/workflows.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("ai.model", "gpt-4o-mini")
	v.SetDefault("ai.guard_timeout", 5*time.Second)
	v.SetDefault("ai.suggestion_timeout", 8*time.Second)

	v.SetDefault("auto_transition.enabled", true)
	v.SetDefault("auto_transition.schedule", "0 9 * * *")
	v.SetDefault("auto_transition.allow_execute", false)
	v.SetDefault("auto_transition.run_timeout", 30*time.Minute)

	v.SetDefault("events.channel_prefix", "workflow")
	v.SetDefault("events.redis_db", 0)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars binds environment variables to configuration keys
func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("server.port", "PORT")
	_ = v.BindEnv("database.path", "DATABASE_PATH")
	_ = v.BindEnv("ai.api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("ai.base_url", "OPENAI_BASE_URL")
	_ = v.BindEnv("ai.model", "OPENAI_MODEL")
	_ = v.BindEnv("auto_transition.enabled", "AUTO_TRANSITION_ENABLED")
	_ = v.BindEnv("auto_transition.schedule", "AUTO_TRANSITION_SCHEDULE")
	_ = v.BindEnv("auto_transition.allow_execute", "AUTO_TRANSITION_ALLOW_EXECUTE")
	_ = v.BindEnv("events.redis_addr", "REDIS_ADDR")
	_ = v.BindEnv("events.redis_password", "REDIS_PASSWORD")
	_ = v.BindEnv("logger.level", "LOG_LEVEL")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.AI.APIKey != "" && c.AI.Model == "" {
		return fmt.Errorf("ai.model is required when ai.api_key is set")
	}
	if c.AutoTransition.Enabled {
		if _, err := cron.ParseStandard(c.AutoTransition.Schedule); err != nil {
			return fmt.Errorf("auto_transition.schedule is invalid: %w", err)
		}
	}
	switch c.Logger.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logger.format must be json or console, got %q", c.Logger.Format)
	}
	return nil
}
