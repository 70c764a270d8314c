package container

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/garyjia/workflow-orchestrator/internal/application/dispatcher"
	"github.com/garyjia/workflow-orchestrator/internal/application/port"
	"github.com/garyjia/workflow-orchestrator/internal/application/service"
	"github.com/garyjia/workflow-orchestrator/internal/application/workflow"
	"github.com/garyjia/workflow-orchestrator/internal/infrastructure/messaging"
	"github.com/garyjia/workflow-orchestrator/internal/infrastructure/worker"
)

// Container owns every component of the orchestrator. Components are built in
// dependency order by Start and torn down in reverse by Close.
type Container struct {
	config *Config
	logger *zap.Logger

	database     *DatabaseBundle
	repositories *RepositoryBundle
	ai           *AIBundle

	dispatcher dispatcher.Dispatcher
	relay      *messaging.RedisPublisher
	locks      *workflow.InstanceLocks
	engine     workflow.TransitionEngine
	services   *ServiceBundle

	workers        *worker.WorkerManager
	autoTransition *worker.AutoTransitionWorker

	mu     sync.Mutex
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Definition    port.DefinitionRepository
	Instance      port.InstanceRepository
	History       port.HistoryRepository
	SuggestionLog port.SuggestionLogRepository
	ModelProvider port.ModelProviderRepository
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Definition     service.DefinitionService
	Instance       service.InstanceService
	AutoTransition service.AutoTransitionJob
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer validates cfg. Call Start to build the components.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start builds the database, AI clients, dispatcher, engine, services and
// workers, then starts the workers. ctx bounds the workers' lifetime.
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.logger.Info("Starting container initialization")

	if err := c.initDatabase(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := c.initAI(); err != nil {
		return fmt.Errorf("failed to initialize AI clients: %w", err)
	}
	if err := c.initDispatcher(ctx); err != nil {
		return fmt.Errorf("failed to initialize dispatcher: %w", err)
	}
	if err := c.initApplication(); err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	if err := c.initWorkers(ctx); err != nil {
		return fmt.Errorf("failed to initialize workers: %w", err)
	}

	c.ready.Store(true)
	c.logger.Info("Container started successfully")
	return nil
}

func (c *Container) initDatabase(ctx context.Context) error {
	db, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}
	c.database = db

	repos, err := ProvideRepositories(db.Database.DB, c.logger)
	if err != nil {
		return err
	}
	c.repositories = repos

	if err := SeedModelProvider(ctx, repos.ModelProvider, &c.config.AI, c.logger); err != nil {
		return err
	}
	c.logger.Info("Database initialized", zap.String("path", c.config.Database.Path))
	return nil
}

func (c *Container) initAI() error {
	ai, err := ProvideAI(&c.config.AI, c.repositories.ModelProvider, c.logger)
	if err != nil {
		return err
	}
	c.ai = ai
	return nil
}

func (c *Container) initDispatcher(ctx context.Context) error {
	disp, err := ProvideDispatcher(c.logger)
	if err != nil {
		return err
	}
	c.dispatcher = disp

	relay, err := ProvideEventRelay(ctx, &c.config.Events, disp, c.logger)
	if err != nil {
		return err
	}
	c.relay = relay
	return nil
}

func (c *Container) initApplication() error {
	c.locks = workflow.NewInstanceLocks()

	engine, err := ProvideWorkflowEngine(&WorkflowDeps{
		Repos:      c.repositories,
		TxManager:  c.database.TransactionMgr,
		Dispatcher: c.dispatcher,
		AIGuard:    c.ai.Guard,
		Locks:      c.locks,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}
	c.engine = engine

	services, err := ProvideServices(&ServiceDeps{
		Repos:          c.repositories,
		TxManager:      c.database.TransactionMgr,
		Dispatcher:     c.dispatcher,
		Engine:         engine,
		Suggester:      c.ai.Suggester,
		Locks:          c.locks,
		AutoTransition: &c.config.AutoTransition,
		Logger:         c.logger,
	})
	if err != nil {
		return err
	}
	c.services = services
	return nil
}

func (c *Container) initWorkers(ctx context.Context) error {
	manager, autoTransition, err := ProvideWorkers(c.services.AutoTransition, &c.config.AutoTransition, c.logger)
	if err != nil {
		return err
	}
	c.workers = manager
	c.autoTransition = autoTransition

	return c.workers.StartAll(ctx)
}

// Close shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}
	c.logger.Info("Closing container")

	var errs []error

	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		}
	}
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		}
	}
	if c.relay != nil {
		if err := c.relay.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close event relay: %w", err))
		}
	}
	if c.database != nil {
		if err := c.database.Database.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}

	c.closed.Store(true)
	c.ready.Store(false)

	if err := errors.Join(errs...); err != nil {
		c.logger.Error("Container closed with errors", zap.Error(err))
		return err
	}
	c.logger.Info("Container closed successfully")
	return nil
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}
	set := func(name string, err error) {
		if err != nil {
			status.Components[name] = ComponentHealth{Healthy: false, Message: err.Error()}
			status.Overall = false
			return
		}
		status.Components[name] = ComponentHealth{Healthy: true}
	}

	if c.database == nil {
		set("database", errors.New("not initialized"))
	} else {
		set("database", c.database.Database.PingContext(ctx))
	}

	if c.relay != nil {
		set("event_relay", c.relay.Ping(ctx))
	}

	if c.workers != nil && c.autoTransition != nil {
		if c.workers.IsRunning() {
			set("auto_transition", nil)
		} else {
			set("auto_transition", errors.New("not running"))
		}
	}
	return status
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// TransitionEngine returns the transition engine.
func (c *Container) TransitionEngine() workflow.TransitionEngine {
	return c.engine
}

// Services returns all application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// AI returns the AI-backed ports.
func (c *Container) AI() *AIBundle {
	return c.ai
}

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *Config {
	return c.config
}

// zapLoggerAdapter adapts zap.Logger to the minimal Logger interfaces of the
// application and interface layers.
type zapLoggerAdapter struct {
	logger *zap.Logger
}

// Logger is the key-value logging interface shared by the services, the
// dispatcher and the HTTP adapter.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// NewLoggerAdapter wraps a zap logger as a Logger.
func NewLoggerAdapter(logger *zap.Logger) Logger {
	return &zapLoggerAdapter{logger: logger}
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, convertToZapFields(keysAndValues...)...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, convertToZapFields(keysAndValues...)...)
}

// convertToZapFields converts key-value pairs to zap fields.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		if err, ok := keysAndValues[i+1].(error); ok {
			fields = append(fields, zap.NamedError(key, err))
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
