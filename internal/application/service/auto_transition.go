package service

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/workflow-orchestrator/internal/application/port"
	appworkflow "github.com/garyjia/workflow-orchestrator/internal/application/workflow"
	"github.com/garyjia/workflow-orchestrator/internal/domain/event"
	"github.com/garyjia/workflow-orchestrator/internal/domain/workflow"
)

// ReconcileReport summarizes one reconciliation sweep
type ReconcileReport struct {
	Definitions int           `json:"definitions"`
	Instances   int           `json:"instances"`
	Suggested   int           `json:"suggested"`
	Executed    int           `json:"executed"`
	Failed      int           `json:"failed"`
	Duration    time.Duration `json:"duration"`
}

// AutoTransitionJob asks the suggestion service for the next state of every
// running instance of auto-transition workflows and records the answers.
type AutoTransitionJob interface {
	Run(ctx context.Context) (*ReconcileReport, error)
}

type autoTransitionJob struct {
	definitionRepo port.DefinitionRepository
	instanceRepo   port.InstanceRepository
	suggestionRepo port.SuggestionLogRepository
	suggester      port.SuggestionService
	engine         appworkflow.TransitionEngine
	publisher      port.EventPublisher
	allowExecute   bool
	logger         Logger
}

// NewAutoTransitionJob creates the reconciliation job. Definitions declaring the
// execute strategy only execute transitions when allowExecute is set.
func NewAutoTransitionJob(
	definitionRepo port.DefinitionRepository,
	instanceRepo port.InstanceRepository,
	suggestionRepo port.SuggestionLogRepository,
	suggester port.SuggestionService,
	engine appworkflow.TransitionEngine,
	publisher port.EventPublisher,
	allowExecute bool,
	logger Logger,
) AutoTransitionJob {
	if logger == nil {
		logger = nopLogger{}
	}
	return &autoTransitionJob{
		definitionRepo: definitionRepo,
		instanceRepo:   instanceRepo,
		suggestionRepo: suggestionRepo,
		suggester:      suggester,
		engine:         engine,
		publisher:      publisher,
		allowExecute:   allowExecute,
		logger:         logger,
	}
}

// Run performs one sweep. Per-instance failures are counted and the sweep
// continues; only loading the active definitions or cancellation aborts it.
func (j *autoTransitionJob) Run(ctx context.Context) (*ReconcileReport, error) {
	started := time.Now()
	report := &ReconcileReport{}

	defs, err := j.definitionRepo.FindActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("find active definitions: %w", err)
	}

	for _, def := range defs {
		policy := def.AutoTransitionPolicy()
		if !policy.Enabled {
			continue
		}
		report.Definitions++

		strategy := j.effectiveStrategy(def, policy)

		instances, err := j.instanceRepo.FindAll(ctx, def.OrgID(), port.InstanceFilter{
			DefinitionID: def.ID(),
			Status:       workflow.InstanceRunning,
		})
		if err != nil {
			j.logger.Error("Failed to list running instances", "definition_id", def.ID(), "error", err)
			report.Failed++
			continue
		}

		for _, inst := range instances {
			if err := ctx.Err(); err != nil {
				report.Duration = time.Since(started)
				return report, err
			}
			report.Instances++
			j.reconcileInstance(ctx, def, inst, strategy, report)
		}
	}

	report.Duration = time.Since(started)
	j.logger.Info("Auto-transition sweep finished",
		"definitions", report.Definitions,
		"instances", report.Instances,
		"suggested", report.Suggested,
		"executed", report.Executed,
		"failed", report.Failed,
		"duration", report.Duration,
	)
	return report, nil
}

func (j *autoTransitionJob) effectiveStrategy(def *workflow.Definition, policy workflow.AutoTransitionPolicy) string {
	switch policy.Strategy {
	case workflow.StrategyExecute:
		if j.allowExecute {
			return workflow.StrategyExecute
		}
		j.logger.Info("Execute strategy disabled by configuration; recording suggestions only",
			"definition_id", def.ID(),
			"org_id", def.OrgID(),
		)
	case workflow.StrategyAudit:
	default:
		j.logger.Info("Unknown auto-transition strategy; recording suggestions only",
			"definition_id", def.ID(),
			"strategy", policy.Strategy,
		)
	}
	return workflow.StrategyAudit
}

func (j *autoTransitionJob) reconcileInstance(
	ctx context.Context,
	def *workflow.Definition,
	inst *workflow.Instance,
	strategy string,
	report *ReconcileReport,
) {
	validStates := def.ReachableStates(inst.CurrentState())
	if len(validStates) == 0 {
		return
	}

	// the job has no entity store, so guards and the suggester see this reference
	entity := map[string]any{"id": inst.EntityID(), "type": inst.EntityType()}

	suggestions := j.suggester.Suggest(ctx, port.SuggestionRequest{
		OrgID:        inst.OrgID(),
		EntityType:   inst.EntityType(),
		CurrentState: inst.CurrentState(),
		ValidStates:  validStates,
		Entity:       entity,
		Context:      inst.Context(),
	})
	if len(suggestions) == 0 {
		return
	}
	top := suggestions[0]
	report.Suggested++

	entry := &workflow.AutoSuggestionLog{
		InstanceID:     inst.ID(),
		OrgID:          inst.OrgID(),
		SuggestedState: top.State,
		Reason:         top.Reason,
		Strategy:       strategy,
		CreatedAt:      time.Now(),
	}
	if err := j.suggestionRepo.Create(ctx, entry); err != nil {
		j.logger.Error("Failed to record suggestion", "instance_id", inst.ID(), "error", err)
		report.Failed++
		return
	}

	if j.publisher != nil {
		j.publisher.Publish(ctx, event.NewEvent(event.TypeSuggestionRecorded, inst.OrgID(), inst.ID(), map[string]interface{}{
			"suggestion_id":   entry.ID,
			"current_state":   inst.CurrentState(),
			"suggested_state": top.State,
			"reason":          top.Reason,
			"strategy":        strategy,
		}).ForDefinition(def.ID()))
	}

	if strategy != workflow.StrategyExecute {
		return
	}

	res, err := j.engine.ExecuteTransition(ctx, appworkflow.TransitionRequest{
		InstanceID:  inst.ID(),
		OrgID:       inst.OrgID(),
		ToState:     top.State,
		Entity:      entity,
		TriggeredBy: appworkflow.SystemActor,
	})
	if err != nil {
		j.logger.Error("Auto-transition failed", "instance_id", inst.ID(), "to_state", top.State, "error", err)
		report.Failed++
		return
	}
	if !res.Success {
		j.logger.Info("Auto-transition rejected", "instance_id", inst.ID(), "to_state", top.State, "reason", res.Error)
		return
	}
	report.Executed++
}
