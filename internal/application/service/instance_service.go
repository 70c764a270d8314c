package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/workflow-orchestrator/internal/application/port"
	appworkflow "github.com/garyjia/workflow-orchestrator/internal/application/workflow"
	"github.com/garyjia/workflow-orchestrator/internal/domain/event"
	"github.com/garyjia/workflow-orchestrator/internal/domain/workflow"
)

// StartInstanceInput carries the fields needed to start a workflow
type StartInstanceInput struct {
	OrgID        string         `json:"-"`
	DefinitionID string         `json:"definition_id"`
	EntityID     string         `json:"entity_id"`
	StartedBy    string         `json:"-"`
	Context      map[string]any `json:"context,omitempty"`
}

// InstanceService manages the lifecycle of workflow instances outside of transitions
type InstanceService interface {
	StartInstance(ctx context.Context, input StartInstanceInput) (*workflow.Instance, error)
	GetInstance(ctx context.Context, id, orgID string) (*workflow.Instance, error)
	ListInstances(ctx context.Context, orgID string, filter port.InstanceFilter) ([]*workflow.Instance, error)
	CancelInstance(ctx context.Context, id, orgID, actor string) (*workflow.Instance, error)
	CompleteInstance(ctx context.Context, id, orgID, finalState, actor string) (*workflow.Instance, error)
	History(ctx context.Context, id, orgID string) ([]*workflow.HistoryEntry, error)
	Suggestions(ctx context.Context, id, orgID string) ([]*workflow.AutoSuggestionLog, error)
}

type instanceServiceImpl struct {
	definitionRepo port.DefinitionRepository
	instanceRepo   port.InstanceRepository
	historyRepo    port.HistoryRepository
	suggestionRepo port.SuggestionLogRepository
	txManager      port.TransactionManager
	publisher      port.EventPublisher
	locks          *appworkflow.InstanceLocks
	logger         Logger
}

// NewInstanceService creates a new InstanceService. locks must be the table
// shared with the transition engine.
func NewInstanceService(
	definitionRepo port.DefinitionRepository,
	instanceRepo port.InstanceRepository,
	historyRepo port.HistoryRepository,
	suggestionRepo port.SuggestionLogRepository,
	txManager port.TransactionManager,
	publisher port.EventPublisher,
	locks *appworkflow.InstanceLocks,
	logger Logger,
) InstanceService {
	if logger == nil {
		logger = nopLogger{}
	}
	if locks == nil {
		locks = appworkflow.NewInstanceLocks()
	}
	return &instanceServiceImpl{
		definitionRepo: definitionRepo,
		instanceRepo:   instanceRepo,
		historyRepo:    historyRepo,
		suggestionRepo: suggestionRepo,
		txManager:      txManager,
		publisher:      publisher,
		locks:          locks,
		logger:         logger,
	}
}

// StartInstance starts the definition against one entity
func (s *instanceServiceImpl) StartInstance(ctx context.Context, input StartInstanceInput) (*workflow.Instance, error) {
	def, err := s.definitionRepo.FindByID(ctx, input.DefinitionID, input.OrgID)
	if err != nil {
		return nil, fmt.Errorf("find definition %s: %w", input.DefinitionID, err)
	}
	if def == nil {
		return nil, fmt.Errorf("definition %s: %w", input.DefinitionID, ErrNotFound)
	}

	if input.EntityID != "" {
		unlock := s.locks.Lock(startLockKey(input.OrgID, def.ID(), input.EntityID))
		defer unlock()

		existing, err := s.instanceRepo.FindRunningInstance(ctx, def.EntityType(), input.EntityID, def.ID(), input.OrgID)
		if err != nil {
			return nil, fmt.Errorf("find running instance: %w", err)
		}
		if existing != nil {
			return nil, fmt.Errorf("%w: %s %s (instance %s)", ErrInstanceAlreadyRunning, def.EntityType(), input.EntityID, existing.ID())
		}
	}

	inst, err := workflow.NewInstance(def, workflow.InstanceParams{
		ID:         uuid.NewString(),
		OrgID:      input.OrgID,
		EntityType: def.EntityType(),
		EntityID:   input.EntityID,
		StartedBy:  input.StartedBy,
		Context:    input.Context,
	})
	if err != nil {
		return nil, err
	}

	if err := s.instanceRepo.Save(ctx, inst); err != nil {
		if errors.Is(err, port.ErrDuplicateRunningInstance) {
			return nil, fmt.Errorf("%w: %s %s", ErrInstanceAlreadyRunning, def.EntityType(), input.EntityID)
		}
		s.logger.Error("Failed to save instance", "error", err, "definition_id", def.ID(), "entity_id", input.EntityID)
		return nil, fmt.Errorf("save instance: %w", err)
	}

	s.logger.Info("Instance started",
		"id", inst.ID(),
		"org_id", inst.OrgID(),
		"definition_id", def.ID(),
		"entity_type", inst.EntityType(),
		"entity_id", inst.EntityID(),
		"state", inst.CurrentState(),
	)
	s.publish(ctx, event.NewEvent(event.TypeInstanceStarted, inst.OrgID(), inst.ID(), map[string]interface{}{
		"entity_type":   inst.EntityType(),
		"entity_id":     inst.EntityID(),
		"initial_state": inst.CurrentState(),
		"started_by":    inst.StartedBy(),
	}).ForDefinition(def.ID()))
	return inst, nil
}

// startLockKey cannot collide with an instance id in the shared lock table
func startLockKey(orgID, definitionID, entityID string) string {
	return "start:" + orgID + "/" + definitionID + "/" + entityID
}

// GetInstance returns ErrNotFound when the instance is absent from the organization
func (s *instanceServiceImpl) GetInstance(ctx context.Context, id, orgID string) (*workflow.Instance, error) {
	inst, err := s.instanceRepo.FindByID(ctx, id, orgID)
	if err != nil {
		return nil, fmt.Errorf("find instance %s: %w", id, err)
	}
	if inst == nil {
		return nil, fmt.Errorf("instance %s: %w", id, ErrNotFound)
	}
	return inst, nil
}

// ListInstances lists an organization's instances
func (s *instanceServiceImpl) ListInstances(ctx context.Context, orgID string, filter port.InstanceFilter) ([]*workflow.Instance, error) {
	instances, err := s.instanceRepo.FindAll(ctx, orgID, filter)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	return instances, nil
}

// CancelInstance terminates a running instance in its current state
func (s *instanceServiceImpl) CancelInstance(ctx context.Context, id, orgID, actor string) (*workflow.Instance, error) {
	return s.terminate(ctx, id, orgID, actor, event.TypeCancelled, func(inst *workflow.Instance, def *workflow.Definition) error {
		return inst.Cancel()
	})
}

// CompleteInstance terminates a running instance in one of the definition's final states
func (s *instanceServiceImpl) CompleteInstance(ctx context.Context, id, orgID, finalState, actor string) (*workflow.Instance, error) {
	return s.terminate(ctx, id, orgID, actor, event.TypeCompleted, func(inst *workflow.Instance, def *workflow.Definition) error {
		if finalState != "" && !def.HasState(finalState) {
			return &workflow.DomainError{
				Rule:    workflow.RuleTransitionStates,
				Message: fmt.Sprintf("%s is not a state of workflow %q", finalState, def.Name()),
				Err:     workflow.ErrInvalidTransition,
			}
		}
		if finalState != "" && !def.IsFinalState(finalState) {
			return &workflow.DomainError{
				Rule:    workflow.RuleFinalStateRequired,
				Message: fmt.Sprintf("%s is not a final state of workflow %q", finalState, def.Name()),
				Err:     workflow.ErrInvalidTransition,
			}
		}
		return inst.Complete(finalState)
	})
}

func (s *instanceServiceImpl) terminate(
	ctx context.Context,
	id, orgID, actor string,
	eventType event.Type,
	apply func(inst *workflow.Instance, def *workflow.Definition) error,
) (*workflow.Instance, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	inst, err := s.GetInstance(ctx, id, orgID)
	if err != nil {
		return nil, err
	}
	def, err := s.definitionRepo.FindByID(ctx, inst.DefinitionID(), orgID)
	if err != nil {
		return nil, fmt.Errorf("find definition %s: %w", inst.DefinitionID(), err)
	}
	if def == nil {
		return nil, fmt.Errorf("definition %s: %w", inst.DefinitionID(), ErrNotFound)
	}

	fromState := inst.CurrentState()
	if err := apply(inst, def); err != nil {
		return nil, err
	}

	entry := &workflow.HistoryEntry{
		InstanceID:  inst.ID(),
		OrgID:       inst.OrgID(),
		FromState:   fromState,
		ToState:     inst.CurrentState(),
		TriggeredBy: actor,
		Timestamp:   time.Now(),
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.instanceRepo.Save(txCtx, inst); err != nil {
			return fmt.Errorf("save instance: %w", err)
		}
		if err := s.historyRepo.Create(txCtx, entry); err != nil {
			return fmt.Errorf("create history entry: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to terminate instance", "error", err, "id", id, "status", inst.Status())
		return nil, err
	}

	s.logger.Info("Instance terminated", "id", id, "status", inst.Status(), "state", inst.CurrentState(), "actor", actor)
	s.publish(ctx, event.NewEvent(eventType, inst.OrgID(), inst.ID(), map[string]interface{}{
		"entity_type":  inst.EntityType(),
		"entity_id":    inst.EntityID(),
		"final_state":  inst.CurrentState(),
		"triggered_by": actor,
		"history_id":   entry.ID,
	}).ForDefinition(def.ID()))
	return inst, nil
}

// History returns the transition history of an instance, oldest first
func (s *instanceServiceImpl) History(ctx context.Context, id, orgID string) ([]*workflow.HistoryEntry, error) {
	if _, err := s.GetInstance(ctx, id, orgID); err != nil {
		return nil, err
	}
	entries, err := s.historyRepo.FindByInstanceID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find history: %w", err)
	}
	return entries, nil
}

// Suggestions returns the auto-suggestion logs of an instance, oldest first
func (s *instanceServiceImpl) Suggestions(ctx context.Context, id, orgID string) ([]*workflow.AutoSuggestionLog, error) {
	if _, err := s.GetInstance(ctx, id, orgID); err != nil {
		return nil, err
	}
	logs, err := s.suggestionRepo.FindByInstanceID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find suggestions: %w", err)
	}
	return logs, nil
}

func (s *instanceServiceImpl) publish(ctx context.Context, evt *event.Event) {
	if s.publisher != nil {
		s.publisher.Publish(ctx, evt)
	}
}

// IsNotFound reports whether err means a missing definition or instance
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
