package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/workflow-orchestrator/internal/application/port"
	appworkflow "github.com/garyjia/workflow-orchestrator/internal/application/workflow"
	"github.com/garyjia/workflow-orchestrator/internal/domain/event"
	"github.com/garyjia/workflow-orchestrator/internal/domain/workflow"
)

type jobFixture struct {
	defs        *mockDefinitionRepo
	instances   *mockInstanceRepo
	suggestions *mockSuggestionRepo
	suggester   *mockSuggester
	engine      *mockEngine
	publisher   *mockPublisher
}

func newJobFixture() *jobFixture {
	return &jobFixture{
		defs:        newMockDefinitionRepo(),
		instances:   newMockInstanceRepo(),
		suggestions: &mockSuggestionRepo{},
		suggester: &mockSuggester{suggestFunc: func(req port.SuggestionRequest) []port.Suggestion {
			return []port.Suggestion{{State: req.ValidStates[0], Reason: "next step"}}
		}},
		engine:    &mockEngine{},
		publisher: &mockPublisher{},
	}
}

func (f *jobFixture) job(allowExecute bool) AutoTransitionJob {
	return NewAutoTransitionJob(f.defs, f.instances, f.suggestions, f.suggester, f.engine, f.publisher, allowExecute, nil)
}

func (f *jobFixture) addDefinition(t *testing.T, def *workflow.Definition) {
	t.Helper()
	require.NoError(t, f.defs.Save(context.Background(), def))
}

func TestAutoTransitionJob_AuditStrategy(t *testing.T) {
	f := newJobFixture()
	def := pipelineDefinition(t, "def-auto", "org-1", workflow.StrategyAudit)
	f.addDefinition(t, def)
	f.addDefinition(t, pipelineDefinition(t, "def-manual", "org-1", ""))
	f.instances.put(startedInstance(t, def, "inst-1", "opp-1"))

	report, err := f.job(true).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Definitions)
	assert.Equal(t, 1, report.Instances)
	assert.Equal(t, 1, report.Suggested)
	assert.Equal(t, 0, report.Executed)
	assert.Equal(t, 0, report.Failed)

	require.Len(t, f.suggester.requests, 1)
	req := f.suggester.requests[0]
	assert.Equal(t, "lead", req.CurrentState)
	assert.Equal(t, []string{"qualified", "lost"}, req.ValidStates)
	assert.Equal(t, "opp-1", req.Entity["id"])

	require.Len(t, f.suggestions.logs, 1)
	log := f.suggestions.logs[0]
	assert.Equal(t, "inst-1", log.InstanceID)
	assert.Equal(t, "qualified", log.SuggestedState)
	assert.Equal(t, workflow.StrategyAudit, log.Strategy)

	assert.Empty(t, f.engine.requests)
	assert.Equal(t, []event.Type{event.TypeSuggestionRecorded}, f.publisher.types())
	assert.Equal(t, "lead", f.instances.stored("inst-1").CurrentState)
}

func TestAutoTransitionJob_ExecuteStrategy(t *testing.T) {
	t.Run("executes when globally allowed", func(t *testing.T) {
		f := newJobFixture()
		def := pipelineDefinition(t, "def-auto", "org-1", workflow.StrategyExecute)
		f.addDefinition(t, def)
		f.instances.put(startedInstance(t, def, "inst-1", "opp-1"))

		report, err := f.job(true).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, report.Executed)

		require.Len(t, f.engine.requests, 1)
		req := f.engine.requests[0]
		assert.Equal(t, "inst-1", req.InstanceID)
		assert.Equal(t, "org-1", req.OrgID)
		assert.Equal(t, "qualified", req.ToState)
		assert.Equal(t, appworkflow.SystemActor, req.TriggeredBy)
		assert.Equal(t, map[string]any{"id": "opp-1", "type": "Opportunity"}, req.Entity)
		require.Len(t, f.suggester.requests, 1)
		assert.Equal(t, f.suggester.requests[0].Entity, req.Entity)

		require.Len(t, f.suggestions.logs, 1)
		assert.Equal(t, workflow.StrategyExecute, f.suggestions.logs[0].Strategy)
	})

	t.Run("downgrades to audit when not allowed", func(t *testing.T) {
		f := newJobFixture()
		def := pipelineDefinition(t, "def-auto", "org-1", workflow.StrategyExecute)
		f.addDefinition(t, def)
		f.instances.put(startedInstance(t, def, "inst-1", "opp-1"))

		report, err := f.job(false).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, report.Suggested)
		assert.Equal(t, 0, report.Executed)
		assert.Empty(t, f.engine.requests)
		assert.Equal(t, workflow.StrategyAudit, f.suggestions.logs[0].Strategy)
	})

	t.Run("unknown strategy is audited", func(t *testing.T) {
		f := newJobFixture()
		def := pipelineDefinition(t, "def-auto", "org-1", "yolo")
		f.addDefinition(t, def)
		f.instances.put(startedInstance(t, def, "inst-1", "opp-1"))

		_, err := f.job(true).Run(context.Background())
		require.NoError(t, err)
		assert.Empty(t, f.engine.requests)
	})

	t.Run("rejected transition is not a failure", func(t *testing.T) {
		f := newJobFixture()
		f.engine.executeFunc = func(req appworkflow.TransitionRequest) (*appworkflow.TransitionResult, error) {
			return &appworkflow.TransitionResult{Success: false, Error: "Guard condition not met"}, nil
		}
		def := pipelineDefinition(t, "def-auto", "org-1", workflow.StrategyExecute)
		f.addDefinition(t, def)
		f.instances.put(startedInstance(t, def, "inst-1", "opp-1"))

		report, err := f.job(true).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, report.Executed)
		assert.Equal(t, 0, report.Failed)
	})
}

func TestAutoTransitionJob_SkipsAndFailures(t *testing.T) {
	t.Run("skips instances without suggestions or exits", func(t *testing.T) {
		f := newJobFixture()
		f.suggester.suggestFunc = func(req port.SuggestionRequest) []port.Suggestion {
			if req.CurrentState == "lead" {
				return nil
			}
			return []port.Suggestion{{State: "won"}}
		}
		def := pipelineDefinition(t, "def-auto", "org-1", workflow.StrategyAudit)
		f.addDefinition(t, def)
		f.instances.put(startedInstance(t, def, "inst-1", "opp-1"))

		done := startedInstance(t, def, "inst-2", "opp-2")
		require.NoError(t, done.Complete("won"))
		f.instances.put(done)

		report, err := f.job(false).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, report.Instances)
		assert.Equal(t, 0, report.Suggested)
		assert.Empty(t, f.suggestions.logs)
		assert.Empty(t, f.publisher.events)
	})

	t.Run("failures are counted and the sweep continues", func(t *testing.T) {
		f := newJobFixture()
		calls := 0
		f.engine.executeFunc = func(req appworkflow.TransitionRequest) (*appworkflow.TransitionResult, error) {
			calls++
			if calls == 1 {
				return nil, errors.New("database is locked")
			}
			return &appworkflow.TransitionResult{Success: true}, nil
		}
		def := pipelineDefinition(t, "def-auto", "org-1", workflow.StrategyExecute)
		f.addDefinition(t, def)
		f.instances.put(startedInstance(t, def, "inst-1", "opp-1"))
		f.instances.put(startedInstance(t, def, "inst-2", "opp-2"))

		report, err := f.job(true).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, report.Instances)
		assert.Equal(t, 1, report.Failed)
		assert.Equal(t, 1, report.Executed)
	})

	t.Run("log write failure skips execution", func(t *testing.T) {
		f := newJobFixture()
		f.suggestions.createErr = errors.New("readonly database")
		def := pipelineDefinition(t, "def-auto", "org-1", workflow.StrategyExecute)
		f.addDefinition(t, def)
		f.instances.put(startedInstance(t, def, "inst-1", "opp-1"))

		report, err := f.job(true).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, report.Failed)
		assert.Empty(t, f.engine.requests)
	})

	t.Run("definition load failure aborts", func(t *testing.T) {
		f := newJobFixture()
		f.defs.findActiveErr = errors.New("no such table")

		report, err := f.job(true).Run(context.Background())
		assert.Nil(t, report)
		assert.ErrorContains(t, err, "no such table")
	})

	t.Run("cancelled context stops the sweep", func(t *testing.T) {
		f := newJobFixture()
		def := pipelineDefinition(t, "def-auto", "org-1", workflow.StrategyAudit)
		f.addDefinition(t, def)
		f.instances.put(startedInstance(t, def, "inst-1", "opp-1"))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		report, err := f.job(true).Run(ctx)
		assert.ErrorIs(t, err, context.Canceled)
		require.NotNil(t, report)
		assert.Equal(t, 0, report.Instances)
	})
}
