package config

import (
	"github.com/garyjia/workflow-orchestrator/internal/container"
	"github.com/garyjia/workflow-orchestrator/pkg/utils"
)

// ToContainerConfig converts the file-based configuration to the container's
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
		},
		AI: container.AIConfig{
			APIKey:            c.AI.APIKey,
			BaseURL:           c.AI.BaseURL,
			Model:             c.AI.Model,
			GuardTimeout:      c.AI.GuardTimeout,
			SuggestionTimeout: c.AI.SuggestionTimeout,
			PromptsPath:       c.AI.PromptsPath,
		},
		AutoTransition: container.AutoTransitionConfig{
			Enabled:      c.AutoTransition.Enabled,
			Schedule:     c.AutoTransition.Schedule,
			AllowExecute: c.AutoTransition.AllowExecute,
			RunTimeout:   c.AutoTransition.RunTimeout,
		},
		Events: container.EventsConfig{
			RedisAddr:     c.Events.RedisAddr,
			RedisPassword: c.Events.RedisPassword,
			RedisDB:       c.Events.RedisDB,
			ChannelPrefix: c.Events.ChannelPrefix,
		},
		Server: container.ServerConfig{
			Host:            c.Server.Host,
			Port:            c.Server.Port,
			ReadTimeout:     c.Server.ReadTimeout,
			WriteTimeout:    c.Server.WriteTimeout,
			ShutdownTimeout: c.Server.ShutdownTimeout,
		},
	}
}

// ToLoggerConfig converts the logger section for utils.NewLogger
func (c *Config) ToLoggerConfig() utils.LoggerConfig {
	return utils.LoggerConfig{
		Level:      c.Logger.Level,
		OutputPath: c.Logger.OutputPath,
		Format:     c.Logger.Format,
	}
}
