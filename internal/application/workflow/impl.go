package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/workflow-orchestrator/internal/application/port"
	"github.com/garyjia/workflow-orchestrator/internal/domain/event"
	"github.com/garyjia/workflow-orchestrator/internal/domain/guard"
	domainwf "github.com/garyjia/workflow-orchestrator/internal/domain/workflow"
)

// StateFieldCandidates are probed in order to find the field of the governed
// entity that holds its workflow state.
var StateFieldCandidates = []string{"state", "status", "workflowState", "currentState", "stage"}

// engineImpl is the concrete implementation of TransitionEngine
type engineImpl struct {
	definitionRepo port.DefinitionRepository
	instanceRepo   port.InstanceRepository
	historyRepo    port.HistoryRepository
	txManager      port.TransactionManager
	logger         Logger

	guards    *guard.Evaluator
	aiGuard   port.AIGuardEvaluator
	actions   *ActionExecutor
	publisher port.EventPublisher
	locks     *InstanceLocks
}

// EngineOption configures the transition engine
type EngineOption func(*engineImpl)

// WithPublisher sets the event publisher for emitting events
func WithPublisher(p port.EventPublisher) EngineOption {
	return func(e *engineImpl) {
		e.publisher = p
	}
}

// WithAIGuard sets the evaluator for ai_guard transitions. Without one, AI
// guarded transitions are rejected.
func WithAIGuard(g port.AIGuardEvaluator) EngineOption {
	return func(e *engineImpl) {
		e.aiGuard = g
	}
}

// WithActionExecutor replaces the default action executor
func WithActionExecutor(a *ActionExecutor) EngineOption {
	return func(e *engineImpl) {
		e.actions = a
	}
}

// WithInstanceLocks shares the per-instance lock table with other services
func WithInstanceLocks(l *InstanceLocks) EngineOption {
	return func(e *engineImpl) {
		e.locks = l
	}
}

// NewEngine creates a new transition engine
func NewEngine(
	definitionRepo port.DefinitionRepository,
	instanceRepo port.InstanceRepository,
	historyRepo port.HistoryRepository,
	txManager port.TransactionManager,
	logger Logger,
	opts ...EngineOption,
) TransitionEngine {
	if logger == nil {
		logger = nopLogger{}
	}
	e := &engineImpl{
		definitionRepo: definitionRepo,
		instanceRepo:   instanceRepo,
		historyRepo:    historyRepo,
		txManager:      txManager,
		logger:         logger,
		guards:         guard.NewEvaluator(),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.actions == nil {
		e.actions = NewActionExecutor(e.publisher, logger)
	}
	if e.locks == nil {
		e.locks = NewInstanceLocks()
	}
	return e
}

// ExecuteTransition implements TransitionEngine
func (e *engineImpl) ExecuteTransition(ctx context.Context, req TransitionRequest) (*TransitionResult, error) {
	unlock := e.locks.Lock(req.InstanceID)
	defer unlock()

	instance, err := e.instanceRepo.FindByID(ctx, req.InstanceID, req.OrgID)
	if err != nil {
		return nil, fmt.Errorf("load instance %s: %w", req.InstanceID, err)
	}
	if instance == nil {
		return failed("Workflow instance %s not found", req.InstanceID), nil
	}

	def, err := e.definitionRepo.FindByID(ctx, instance.DefinitionID(), req.OrgID)
	if err != nil {
		return nil, fmt.Errorf("load definition %s: %w", instance.DefinitionID(), err)
	}
	if def == nil {
		return failed("Workflow definition %s not found", instance.DefinitionID()), nil
	}

	fromState := instance.CurrentState()
	transition := def.FindTransition(fromState, req.ToState)
	if transition == nil {
		return failed("No transition exists from %s to %s", fromState, req.ToState), nil
	}
	if !instance.IsRunning() {
		return failed("Workflow instance %s is %s; only running instances can transition", instance.ID(), instance.Status()), nil
	}

	result := &TransitionResult{FromState: fromState, ToState: req.ToState}

	if transition.HasGuard() {
		result.Guard = e.evaluateGuard(ctx, req, instance, def, *transition)
		if !result.Guard.Passed {
			result.Error = guardRejection(result.Guard)
			e.logger.Info("Transition rejected by guard",
				"instance_id", instance.ID(),
				"from_state", fromState,
				"to_state", req.ToState,
				"guard_type", result.Guard.Type,
				"reason", result.Guard.Reason,
			)
			return result, nil
		}
	}

	if transition.HasAction() {
		action := e.actions.Execute(ctx, transition.Action, ActionInvocation{
			OrgID:        instance.OrgID(),
			InstanceID:   instance.ID(),
			DefinitionID: def.ID(),
			EntityType:   instance.EntityType(),
			EntityID:     instance.EntityID(),
			FromState:    fromState,
			ToState:      req.ToState,
			TriggeredBy:  req.TriggeredBy,
		})
		result.Action = &action
	}

	if req.EntityUpdater != nil && instance.EntityID() != "" {
		field := StateField(req.Entity)
		updated, err := req.EntityUpdater.Update(ctx, instance.EntityID(), map[string]any{field: req.ToState}, instance.OrgID())
		if err != nil {
			e.logger.Error("Entity state update failed",
				"instance_id", instance.ID(),
				"entity_id", instance.EntityID(),
				"field", field,
				"error", err,
			)
		} else {
			result.UpdatedEntity = updated
		}
	}

	if err := instance.TransitionTo(req.ToState, def); err != nil {
		result.Error = err.Error()
		return result, nil
	}

	entry := &domainwf.HistoryEntry{
		InstanceID:  instance.ID(),
		OrgID:       instance.OrgID(),
		FromState:   fromState,
		ToState:     req.ToState,
		TriggeredBy: req.TriggeredBy,
		Timestamp:   time.Now(),
		Guard:       result.Guard,
		Action:      result.Action,
	}

	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := e.instanceRepo.Save(txCtx, instance); err != nil {
			return fmt.Errorf("save instance: %w", err)
		}
		if err := e.historyRepo.Create(txCtx, entry); err != nil {
			return fmt.Errorf("create history entry: %w", err)
		}
		return nil
	})
	if err != nil {
		e.logger.Error("Failed to persist transition", "instance_id", instance.ID(), "error", err)
		return nil, err
	}

	result.Success = true
	result.HistoryID = entry.ID
	result.Status = instance.Status()

	e.logger.Info("Transition executed",
		"instance_id", instance.ID(),
		"from_state", fromState,
		"to_state", req.ToState,
		"triggered_by", req.TriggeredBy,
		"status", instance.Status(),
	)

	e.publishTransition(ctx, instance, def, entry)
	return result, nil
}

func (e *engineImpl) evaluateGuard(
	ctx context.Context,
	req TransitionRequest,
	instance *domainwf.Instance,
	def *domainwf.Definition,
	transition domainwf.Transition,
) *domainwf.GuardResult {
	if transition.IsAIGuard() {
		if e.aiGuard == nil {
			return &domainwf.GuardResult{
				Type:   domainwf.GuardAI,
				Passed: false,
				Reason: "AI guard evaluator is not configured",
			}
		}
		decision := e.aiGuard.EvaluateGuard(ctx, port.GuardRequest{
			OrgID:        instance.OrgID(),
			EntityType:   def.EntityType(),
			Entity:       req.Entity,
			CurrentState: instance.CurrentState(),
			Context:      instance.Context(),
			Transition:   transition,
			ToState:      req.ToState,
		})
		reason := decision.Reason
		if reason == "" {
			reason = decision.Error
		}
		return &domainwf.GuardResult{
			Type:   domainwf.GuardAI,
			Passed: decision.Allowed,
			Reason: reason,
			Model:  decision.Model,
		}
	}

	res := e.guards.Evaluate(transition.Guard, req.Entity, instance.Context())
	return &domainwf.GuardResult{
		Type:   domainwf.GuardExpression,
		Passed: res.Passed,
		Reason: res.Error,
	}
}

func (e *engineImpl) publishTransition(ctx context.Context, instance *domainwf.Instance, def *domainwf.Definition, entry *domainwf.HistoryEntry) {
	if e.publisher == nil {
		return
	}

	transitioned := event.NewEvent(event.TypeTransitioned, instance.OrgID(), instance.ID(), map[string]interface{}{
		"history_id":   entry.ID,
		"from_state":   entry.FromState,
		"to_state":     entry.ToState,
		"triggered_by": entry.TriggeredBy,
		"entity_type":  instance.EntityType(),
		"entity_id":    instance.EntityID(),
	}).ForDefinition(def.ID())
	e.publisher.Publish(ctx, transitioned)

	if def.IsFinalState(entry.ToState) {
		completed := event.NewEventWithCorrelation(event.TypeCompleted, instance.OrgID(), instance.ID(), map[string]interface{}{
			"final_state": entry.ToState,
			"entity_type": instance.EntityType(),
			"entity_id":   instance.EntityID(),
		}, transitioned.CorrelationID).ForDefinition(def.ID())
		e.publisher.Publish(ctx, completed)
	}
}

// StateField returns the first StateFieldCandidates key present in entity, or "state"
func StateField(entity map[string]any) string {
	for _, candidate := range StateFieldCandidates {
		if _, ok := entity[candidate]; ok {
			return candidate
		}
	}
	return StateFieldCandidates[0]
}

func guardRejection(g *domainwf.GuardResult) string {
	if g.Type == domainwf.GuardAI {
		if g.Reason == "" {
			return "AI guard rejected the transition"
		}
		return "AI guard rejected the transition: " + g.Reason
	}
	if g.Reason == "" {
		return "Guard condition not met"
	}
	return "Guard evaluation failed: " + g.Reason
}
