package port

import (
	"context"

	"github.com/garyjia/workflow-orchestrator/internal/domain/entity"
	"github.com/garyjia/workflow-orchestrator/internal/domain/workflow"
)

// DefinitionRepository defines persistence operations for workflow definitions.
// Lookups return (nil, nil) when nothing matches.
type DefinitionRepository interface {
	FindByID(ctx context.Context, id, orgID string) (*workflow.Definition, error)
	Save(ctx context.Context, def *workflow.Definition) error

	// FindAll lists an organization's definitions; an empty entityType matches all
	FindAll(ctx context.Context, orgID, entityType string) ([]*workflow.Definition, error)

	// FindActive lists active definitions across all organizations
	FindActive(ctx context.Context) ([]*workflow.Definition, error)
}

// InstanceFilter narrows InstanceRepository.FindAll; zero fields match all
type InstanceFilter struct {
	DefinitionID string
	EntityType   string
	EntityID     string
	Status       workflow.InstanceStatus
}

// InstanceRepository defines persistence operations for workflow instances
type InstanceRepository interface {
	FindByID(ctx context.Context, id, orgID string) (*workflow.Instance, error)

	// Save inserts or updates; updates fail with ErrVersionConflict on a stale
	// instance and inserts fail with ErrDuplicateRunningInstance when the entity
	// already runs the definition
	Save(ctx context.Context, inst *workflow.Instance) error

	FindRunningInstance(ctx context.Context, entityType, entityID, definitionID, orgID string) (*workflow.Instance, error)
	FindAll(ctx context.Context, orgID string, filter InstanceFilter) ([]*workflow.Instance, error)
}

// HistoryRepository defines persistence operations for transition history
type HistoryRepository interface {
	// Create appends an entry and assigns its ID
	Create(ctx context.Context, entry *workflow.HistoryEntry) error
	FindByInstanceID(ctx context.Context, instanceID string) ([]*workflow.HistoryEntry, error)
}

// SuggestionLogRepository defines persistence operations for auto-suggestion logs
type SuggestionLogRepository interface {
	Create(ctx context.Context, log *workflow.AutoSuggestionLog) error
	FindByInstanceID(ctx context.Context, instanceID string) ([]*workflow.AutoSuggestionLog, error)
}

// ModelProviderRepository defines persistence operations for model providers
type ModelProviderRepository interface {
	// FindDefault returns the organization's default provider, else the global default, else nil
	FindDefault(ctx context.Context, orgID string) (*entity.ModelProvider, error)
	Save(ctx context.Context, provider *entity.ModelProvider) error
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
