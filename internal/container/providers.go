package container

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/workflow-orchestrator/internal/application/dispatcher"
	"github.com/garyjia/workflow-orchestrator/internal/application/port"
	"github.com/garyjia/workflow-orchestrator/internal/application/service"
	"github.com/garyjia/workflow-orchestrator/internal/application/workflow"
	"github.com/garyjia/workflow-orchestrator/internal/domain/entity"
	"github.com/garyjia/workflow-orchestrator/internal/domain/event"
	"github.com/garyjia/workflow-orchestrator/internal/infrastructure/external/openai"
	"github.com/garyjia/workflow-orchestrator/internal/infrastructure/messaging"
	"github.com/garyjia/workflow-orchestrator/internal/infrastructure/persistence/repository"
	"github.com/garyjia/workflow-orchestrator/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/workflow-orchestrator/internal/infrastructure/worker"
	"github.com/garyjia/workflow-orchestrator/pkg/database"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	Database       *database.DB
	TransactionMgr *sqlite.DB
}

// AIBundle holds the AI-backed ports.
type AIBundle struct {
	Chat      *openai.ChatClient
	Guard     port.AIGuardEvaluator
	Suggester port.SuggestionService
}

// ProvideDatabase opens the database and applies pending migrations.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	if err := database.NewMigrator(db, logger).RunMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		Database:       db,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories from a database connection.
func ProvideRepositories(sqlDB *sql.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Definition:    repository.NewDefinitionRepository(sqlDB, logger),
		Instance:      repository.NewInstanceRepository(sqlDB, logger),
		History:       repository.NewHistoryRepository(sqlDB, logger),
		SuggestionLog: repository.NewSuggestionLogRepository(sqlDB, logger),
		ModelProvider: repository.NewModelProviderRepository(sqlDB, logger),
	}, nil
}

// SeedModelProvider stores the configured provider as the global default when
// no global default exists yet.
func SeedModelProvider(ctx context.Context, repo port.ModelProviderRepository, cfg *AIConfig, logger *zap.Logger) error {
	if cfg.APIKey == "" {
		return nil
	}

	existing, err := repo.FindDefault(ctx, "")
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	provider := &entity.ModelProvider{
		Name:      "default",
		APIKey:    cfg.APIKey,
		BaseURL:   cfg.BaseURL,
		Model:     cfg.Model,
		IsDefault: true,
	}
	if err := repo.Save(ctx, provider); err != nil {
		return fmt.Errorf("failed to seed model provider: %w", err)
	}
	logger.Info("Seeded global model provider", zap.String("id", provider.ID), zap.String("model", provider.Model))
	return nil
}

// ProvideAI creates the chat client, AI guard evaluator and suggestion service.
func ProvideAI(cfg *AIConfig, providers port.ModelProviderRepository, logger *zap.Logger) (*AIBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("ai config is required")
	}

	prompts := openai.DefaultPrompts()
	if cfg.PromptsPath != "" {
		loaded, err := openai.LoadPrompts(cfg.PromptsPath)
		if err != nil {
			return nil, err
		}
		prompts = loaded
	}

	chat := openai.NewChatClient(providers, nil, logger)
	return &AIBundle{
		Chat:      chat,
		Guard:     openai.NewGuardEvaluator(chat, prompts, cfg.GuardTimeout, logger),
		Suggester: openai.NewSuggester(chat, prompts, cfg.SuggestionTimeout, logger),
	}, nil
}

// ProvideDispatcher creates the event dispatcher and subscribes the event log.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	disp := dispatcher.NewDispatcher(
		dispatcher.WithLogger(&zapLoggerAdapter{logger: logger}),
	)
	disp.SubscribeAll("event_log", func(ctx context.Context, evt *event.Event) error {
		logger.Debug("Workflow event",
			zap.String("event_id", evt.ID),
			zap.String("event_type", string(evt.Type)),
			zap.String("org_id", evt.OrgID),
			zap.String("instance_id", evt.InstanceID),
			zap.String("correlation_id", evt.CorrelationID))
		return nil
	})
	return disp, nil
}

// ProvideEventRelay connects to Redis and relays every dispatched event.
// It returns nil when no Redis address is configured.
func ProvideEventRelay(ctx context.Context, cfg *EventsConfig, disp dispatcher.Dispatcher, logger *zap.Logger) (*messaging.RedisPublisher, error) {
	if cfg == nil || cfg.RedisAddr == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pub, err := messaging.NewRedisPublisher(client, cfg.ChannelPrefix, logger)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if err := pub.Ping(ctx); err != nil {
		_ = pub.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
	}

	disp.SubscribeAll("redis_relay", pub.Relay)
	logger.Info("Event relay connected", zap.String("addr", cfg.RedisAddr), zap.String("prefix", cfg.ChannelPrefix))
	return pub, nil
}

// WorkflowDeps holds dependencies required for creating the transition engine.
type WorkflowDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Dispatcher dispatcher.Dispatcher
	AIGuard    port.AIGuardEvaluator
	Locks      *workflow.InstanceLocks
	Logger     *zap.Logger
}

// ProvideWorkflowEngine creates the transition engine.
func ProvideWorkflowEngine(deps *WorkflowDeps) (workflow.TransitionEngine, error) {
	if deps == nil {
		return nil, fmt.Errorf("workflow dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}

	return workflow.NewEngine(
		deps.Repos.Definition,
		deps.Repos.Instance,
		deps.Repos.History,
		deps.TxManager,
		&zapLoggerAdapter{logger: deps.Logger},
		workflow.WithPublisher(deps.Dispatcher),
		workflow.WithAIGuard(deps.AIGuard),
		workflow.WithInstanceLocks(deps.Locks),
	), nil
}

// ServiceDeps holds dependencies required for creating services.
type ServiceDeps struct {
	Repos          *RepositoryBundle
	TxManager      port.TransactionManager
	Dispatcher     dispatcher.Dispatcher
	Engine         workflow.TransitionEngine
	Suggester      port.SuggestionService
	Locks          *workflow.InstanceLocks
	AutoTransition *AutoTransitionConfig
	Logger         *zap.Logger
}

// ProvideServices creates all application services.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("transition engine is required")
	}

	serviceLogger := &zapLoggerAdapter{logger: deps.Logger}
	allowExecute := deps.AutoTransition != nil && deps.AutoTransition.AllowExecute

	return &ServiceBundle{
		Definition: service.NewDefinitionService(
			deps.Repos.Definition,
			deps.TxManager,
			serviceLogger,
		),
		Instance: service.NewInstanceService(
			deps.Repos.Definition,
			deps.Repos.Instance,
			deps.Repos.History,
			deps.Repos.SuggestionLog,
			deps.TxManager,
			deps.Dispatcher,
			deps.Locks,
			serviceLogger,
		),
		AutoTransition: service.NewAutoTransitionJob(
			deps.Repos.Definition,
			deps.Repos.Instance,
			deps.Repos.SuggestionLog,
			deps.Suggester,
			deps.Engine,
			deps.Dispatcher,
			allowExecute,
			serviceLogger,
		),
	}, nil
}

// ProvideWorkers creates the worker manager with the reconciliation worker
// registered when it is enabled.
func ProvideWorkers(job service.AutoTransitionJob, cfg *AutoTransitionConfig, logger *zap.Logger) (*worker.WorkerManager, *worker.AutoTransitionWorker, error) {
	manager := worker.NewWorkerManager(logger)
	if cfg == nil || !cfg.Enabled {
		return manager, nil, nil
	}

	w, err := worker.NewAutoTransitionWorker(job, cfg.Schedule, cfg.RunTimeout, logger)
	if err != nil {
		return nil, nil, err
	}
	manager.Register(w)
	return manager, w, nil
}
