package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/workflow-orchestrator/internal/application/port"
	"github.com/garyjia/workflow-orchestrator/internal/domain/event"
	domainwf "github.com/garyjia/workflow-orchestrator/internal/domain/workflow"
)

// Mock implementations

type mockDefinitionRepo struct {
	mu   sync.Mutex
	defs map[string]domainwf.DefinitionSnapshot
	err  error
}

func newMockDefinitionRepo(defs ...*domainwf.Definition) *mockDefinitionRepo {
	m := &mockDefinitionRepo{defs: make(map[string]domainwf.DefinitionSnapshot)}
	for _, d := range defs {
		m.defs[d.ID()] = d.Snapshot()
	}
	return m
}

func (m *mockDefinitionRepo) FindByID(ctx context.Context, id, orgID string) (*domainwf.Definition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	snap, ok := m.defs[id]
	if !ok || snap.OrgID != orgID {
		return nil, nil
	}
	return domainwf.RestoreDefinition(snap), nil
}

func (m *mockDefinitionRepo) Save(ctx context.Context, def *domainwf.Definition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defs[def.ID()] = def.Snapshot()
	return nil
}

func (m *mockDefinitionRepo) FindAll(ctx context.Context, orgID, entityType string) ([]*domainwf.Definition, error) {
	return nil, nil
}

func (m *mockDefinitionRepo) FindActive(ctx context.Context) ([]*domainwf.Definition, error) {
	return nil, nil
}

type mockInstanceRepo struct {
	mu        sync.Mutex
	instances map[string]domainwf.InstanceSnapshot
	saveErr   error
	saves     int
}

func newMockInstanceRepo(instances ...*domainwf.Instance) *mockInstanceRepo {
	m := &mockInstanceRepo{instances: make(map[string]domainwf.InstanceSnapshot)}
	for _, inst := range instances {
		m.instances[inst.ID()] = inst.Snapshot()
	}
	return m
}

func (m *mockInstanceRepo) FindByID(ctx context.Context, id, orgID string) (*domainwf.Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.instances[id]
	if !ok || snap.OrgID != orgID {
		return nil, nil
	}
	return domainwf.RestoreInstance(snap), nil
}

func (m *mockInstanceRepo) Save(ctx context.Context, inst *domainwf.Instance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	if stored, ok := m.instances[inst.ID()]; ok && stored.Version != inst.Version() {
		return port.ErrVersionConflict
	}
	inst.IncrementVersion()
	m.instances[inst.ID()] = inst.Snapshot()
	m.saves++
	return nil
}

func (m *mockInstanceRepo) FindRunningInstance(ctx context.Context, entityType, entityID, definitionID, orgID string) (*domainwf.Instance, error) {
	return nil, nil
}

func (m *mockInstanceRepo) FindAll(ctx context.Context, orgID string, filter port.InstanceFilter) ([]*domainwf.Instance, error) {
	return nil, nil
}

func (m *mockInstanceRepo) stored(id string) domainwf.InstanceSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.instances[id]
}

type mockHistoryRepo struct {
	mu        sync.Mutex
	entries   []*domainwf.HistoryEntry
	createErr error
}

func (m *mockHistoryRepo) Create(ctx context.Context, entry *domainwf.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	entry.ID = fmt.Sprintf("hist-%d", len(m.entries)+1)
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockHistoryRepo) FindByInstanceID(ctx context.Context, instanceID string) ([]*domainwf.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*domainwf.HistoryEntry
	for _, e := range m.entries {
		if e.InstanceID == instanceID {
			result = append(result, e)
		}
	}
	return result, nil
}

type mockTxManager struct {
	commitErr error
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.commitErr != nil {
		return m.commitErr
	}
	return fn(ctx)
}

type mockPublisher struct {
	mu     sync.Mutex
	events []*event.Event
}

func (m *mockPublisher) Publish(ctx context.Context, evt *event.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
}

func (m *mockPublisher) types() []event.Type {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []event.Type
	for _, e := range m.events {
		out = append(out, e.Type)
	}
	return out
}

type mockAIGuard struct {
	decision port.GuardDecision
	requests []port.GuardRequest
}

func (m *mockAIGuard) EvaluateGuard(ctx context.Context, req port.GuardRequest) port.GuardDecision {
	m.requests = append(m.requests, req)
	return m.decision
}

type mockEntityUpdater struct {
	fields map[string]any
	err    error
}

func (m *mockEntityUpdater) Update(ctx context.Context, entityID string, fields map[string]any, orgID string) (map[string]any, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.fields = fields
	out := map[string]any{"id": entityID}
	for k, v := range fields {
		out[k] = v
	}
	return out, nil
}

// Fixtures

type engineFixture struct {
	engine    TransitionEngine
	defs      *mockDefinitionRepo
	instances *mockInstanceRepo
	history   *mockHistoryRepo
	tx        *mockTxManager
	publisher *mockPublisher
}

func newFixture(t *testing.T, transitions []domainwf.Transition, opts ...EngineOption) *engineFixture {
	t.Helper()

	def, err := domainwf.NewDefinition(domainwf.DefinitionParams{
		ID:         "def-1",
		OrgID:      "org-1",
		Name:       "Opportunity pipeline",
		EntityType: "Opportunity",
		States: []domainwf.State{
			{Name: "draft", Initial: true},
			{Name: "approved"},
			{Name: "completed", Final: true},
		},
		Transitions: transitions,
	})
	require.NoError(t, err)
	require.NoError(t, def.Activate())

	inst, err := domainwf.NewInstance(def, domainwf.InstanceParams{
		ID:         "inst-1",
		OrgID:      "org-1",
		EntityType: "Opportunity",
		EntityID:   "opp-1",
		StartedBy:  "user-1",
		Context:    map[string]any{"region": "emea"},
	})
	require.NoError(t, err)

	f := &engineFixture{
		defs:      newMockDefinitionRepo(def),
		instances: newMockInstanceRepo(inst),
		history:   &mockHistoryRepo{},
		tx:        &mockTxManager{},
		publisher: &mockPublisher{},
	}
	opts = append([]EngineOption{WithPublisher(f.publisher)}, opts...)
	f.engine = NewEngine(f.defs, f.instances, f.history, f.tx, nil, opts...)
	return f
}

func defaultTransitions() []domainwf.Transition {
	return []domainwf.Transition{
		{From: "draft", To: "approved"},
		{From: "approved", To: "completed"},
	}
}

func request(to string) TransitionRequest {
	return TransitionRequest{InstanceID: "inst-1", OrgID: "org-1", ToState: to, TriggeredBy: "user-7"}
}

// Tests

func TestExecuteTransition_UnguardedMove(t *testing.T) {
	f := newFixture(t, defaultTransitions())
	ctx := context.Background()

	res, err := f.engine.ExecuteTransition(ctx, request("approved"))
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "draft", res.FromState)
	assert.Equal(t, "approved", res.ToState)
	assert.Equal(t, domainwf.InstanceRunning, res.Status)
	assert.Equal(t, "hist-1", res.HistoryID)

	stored := f.instances.stored("inst-1")
	assert.Equal(t, "approved", stored.CurrentState)
	assert.Equal(t, domainwf.InstanceRunning, stored.Status)
	assert.Nil(t, stored.CompletedAt)

	require.Len(t, f.history.entries, 1)
	entry := f.history.entries[0]
	assert.Equal(t, "draft", entry.FromState)
	assert.Equal(t, "approved", entry.ToState)
	assert.Equal(t, "user-7", entry.TriggeredBy)
	assert.Nil(t, entry.Guard)
	assert.Nil(t, entry.Action)

	assert.Equal(t, []event.Type{event.TypeTransitioned}, f.publisher.types())
}

func TestExecuteTransition_ToFinalStateCompletes(t *testing.T) {
	f := newFixture(t, defaultTransitions())
	ctx := context.Background()

	_, err := f.engine.ExecuteTransition(ctx, request("approved"))
	require.NoError(t, err)

	res, err := f.engine.ExecuteTransition(ctx, request("completed"))
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, domainwf.InstanceCompleted, res.Status)

	stored := f.instances.stored("inst-1")
	assert.Equal(t, domainwf.InstanceCompleted, stored.Status)
	assert.NotNil(t, stored.CompletedAt)

	assert.Equal(t, []event.Type{
		event.TypeTransitioned,
		event.TypeTransitioned,
		event.TypeCompleted,
	}, f.publisher.types())

	completed := f.publisher.events[2]
	assert.Equal(t, f.publisher.events[1].CorrelationID, completed.CorrelationID)
	assert.Equal(t, "def-1", completed.DefinitionID)
}

func TestExecuteTransition_NoTransition(t *testing.T) {
	f := newFixture(t, defaultTransitions())

	res, err := f.engine.ExecuteTransition(context.Background(), request("nonexistent-state"))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "No transition exists")

	stored := f.instances.stored("inst-1")
	assert.Equal(t, "draft", stored.CurrentState)
	assert.Equal(t, int64(0), stored.Version)
	assert.Equal(t, 0, f.instances.saves)
	assert.Empty(t, f.history.entries)
	assert.Empty(t, f.publisher.events)
}

func TestExecuteTransition_ExpressionGuard(t *testing.T) {
	transitions := []domainwf.Transition{
		{From: "draft", To: "approved", Guard: "entity.amount > 1000"},
	}

	t.Run("rejects small amount", func(t *testing.T) {
		f := newFixture(t, transitions)
		req := request("approved")
		req.Entity = map[string]any{"amount": 500}

		res, err := f.engine.ExecuteTransition(context.Background(), req)
		require.NoError(t, err)
		assert.False(t, res.Success)
		require.NotNil(t, res.Guard)
		assert.False(t, res.Guard.Passed)
		assert.Equal(t, domainwf.GuardExpression, res.Guard.Type)
		assert.Equal(t, "Guard condition not met", res.Error)
		assert.Equal(t, 0, f.instances.saves)
	})

	t.Run("allows large amount", func(t *testing.T) {
		f := newFixture(t, transitions)
		req := request("approved")
		req.Entity = map[string]any{"amount": 5000}

		res, err := f.engine.ExecuteTransition(context.Background(), req)
		require.NoError(t, err)
		assert.True(t, res.Success, res.Error)
		require.NotNil(t, res.Guard)
		assert.True(t, res.Guard.Passed)
		assert.True(t, f.history.entries[0].Guard.Passed)
	})

	t.Run("evaluation error rejects", func(t *testing.T) {
		f := newFixture(t, []domainwf.Transition{
			{From: "draft", To: "approved", Guard: "entity.owner.name == 'x'"},
		})

		res, err := f.engine.ExecuteTransition(context.Background(), request("approved"))
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "Guard evaluation failed")
		assert.Contains(t, res.Guard.Reason, "cannot read property")
	})

	t.Run("reads instance context", func(t *testing.T) {
		f := newFixture(t, []domainwf.Transition{
			{From: "draft", To: "approved", Guard: "context.region == 'emea'"},
		})

		res, err := f.engine.ExecuteTransition(context.Background(), request("approved"))
		require.NoError(t, err)
		assert.True(t, res.Success, res.Error)
	})
}

func TestExecuteTransition_AIGuard(t *testing.T) {
	transitions := []domainwf.Transition{
		{From: "draft", To: "approved", Guard: "ai_guard: contract must be signed"},
	}

	t.Run("rejected with reason", func(t *testing.T) {
		ai := &mockAIGuard{decision: port.GuardDecision{Allowed: false, Reason: "contract missing", Model: "gpt-4o-mini"}}
		f := newFixture(t, transitions, WithAIGuard(ai))
		req := request("approved")
		req.Entity = map[string]any{"name": "Acme"}

		res, err := f.engine.ExecuteTransition(context.Background(), req)
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "contract missing")
		assert.Equal(t, domainwf.GuardAI, res.Guard.Type)
		assert.Equal(t, "gpt-4o-mini", res.Guard.Model)

		require.Len(t, ai.requests, 1)
		assert.Equal(t, "draft", ai.requests[0].CurrentState)
		assert.Equal(t, "approved", ai.requests[0].ToState)
		assert.Equal(t, "contract must be signed", ai.requests[0].Transition.AIGuardRule())
		assert.Equal(t, "Acme", ai.requests[0].Entity["name"])
	})

	t.Run("allowed", func(t *testing.T) {
		ai := &mockAIGuard{decision: port.GuardDecision{Allowed: true, Reason: "signed", Model: "gpt-4o-mini"}}
		f := newFixture(t, transitions, WithAIGuard(ai))

		res, err := f.engine.ExecuteTransition(context.Background(), request("approved"))
		require.NoError(t, err)
		assert.True(t, res.Success, res.Error)
		assert.Equal(t, "gpt-4o-mini", f.history.entries[0].Guard.Model)
	})

	t.Run("error reason is propagated", func(t *testing.T) {
		ai := &mockAIGuard{decision: port.GuardDecision{Allowed: false, Error: "timeout"}}
		f := newFixture(t, transitions, WithAIGuard(ai))

		res, err := f.engine.ExecuteTransition(context.Background(), request("approved"))
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "timeout")
	})

	t.Run("fails closed without evaluator", func(t *testing.T) {
		f := newFixture(t, transitions)

		res, err := f.engine.ExecuteTransition(context.Background(), request("approved"))
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "not configured")
	})
}

func TestExecuteTransition_Actions(t *testing.T) {
	t.Run("built-in action records intent", func(t *testing.T) {
		f := newFixture(t, []domainwf.Transition{
			{From: "draft", To: "approved", Action: `notify:{"channel":"sales"}`},
		})

		res, err := f.engine.ExecuteTransition(context.Background(), request("approved"))
		require.NoError(t, err)
		require.True(t, res.Success)
		require.NotNil(t, res.Action)
		assert.True(t, res.Action.Executed)
		assert.Equal(t, "notify", res.Action.ActionID)

		assert.Equal(t, []event.Type{event.TypeActionExecuted, event.TypeTransitioned}, f.publisher.types())
		params := f.publisher.events[0].Payload["params"].(map[string]interface{})
		assert.Equal(t, "sales", params["channel"])
	})

	t.Run("unknown action does not block", func(t *testing.T) {
		f := newFixture(t, []domainwf.Transition{
			{From: "draft", To: "approved", Action: "sendFax"},
		})

		res, err := f.engine.ExecuteTransition(context.Background(), request("approved"))
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.False(t, res.Action.Executed)
		assert.Equal(t, "Unknown action: sendFax", res.Action.Error)
		assert.Equal(t, "Unknown action: sendFax", f.history.entries[0].Action.Error)
	})

	t.Run("failing handler does not block", func(t *testing.T) {
		actions := NewActionExecutor(nil, nil)
		actions.Register("crm_sync", func(ctx context.Context, inv ActionInvocation) error {
			return errors.New("crm unavailable")
		})
		f := newFixture(t, []domainwf.Transition{
			{From: "draft", To: "approved", Action: "crm_sync"},
		}, WithActionExecutor(actions))

		res, err := f.engine.ExecuteTransition(context.Background(), request("approved"))
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, "crm unavailable", res.Action.Error)
	})
}

func TestExecuteTransition_EntityUpdate(t *testing.T) {
	t.Run("writes probed state field", func(t *testing.T) {
		f := newFixture(t, defaultTransitions())
		updater := &mockEntityUpdater{}
		req := request("approved")
		req.Entity = map[string]any{"name": "Acme", "stage": "draft"}
		req.EntityUpdater = updater

		res, err := f.engine.ExecuteTransition(context.Background(), req)
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, map[string]any{"stage": "approved"}, updater.fields)
		assert.Equal(t, "approved", res.UpdatedEntity["stage"])
	})

	t.Run("failure is non-fatal", func(t *testing.T) {
		f := newFixture(t, defaultTransitions())
		req := request("approved")
		req.EntityUpdater = &mockEntityUpdater{err: errors.New("crm down")}

		res, err := f.engine.ExecuteTransition(context.Background(), req)
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Nil(t, res.UpdatedEntity)
		assert.Equal(t, "approved", f.instances.stored("inst-1").CurrentState)
	})
}

func TestStateField(t *testing.T) {
	tests := []struct {
		entity map[string]any
		want   string
	}{
		{nil, "state"},
		{map[string]any{"name": "x"}, "state"},
		{map[string]any{"stage": "a", "status": "b"}, "status"},
		{map[string]any{"workflowState": "a", "currentState": "b"}, "workflowState"},
		{map[string]any{"state": "a", "status": "b"}, "state"},
		{map[string]any{"currentState": "a"}, "currentState"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, StateField(tt.entity), "entity %v", tt.entity)
	}
}

func TestExecuteTransition_NotFound(t *testing.T) {
	f := newFixture(t, defaultTransitions())

	res, err := f.engine.ExecuteTransition(context.Background(), TransitionRequest{InstanceID: "missing", OrgID: "org-1", ToState: "approved"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "not found")

	res, err = f.engine.ExecuteTransition(context.Background(), TransitionRequest{InstanceID: "inst-1", OrgID: "org-2", ToState: "approved"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "not found")

	f.defs.defs = map[string]domainwf.DefinitionSnapshot{}
	res, err = f.engine.ExecuteTransition(context.Background(), request("approved"))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "Workflow definition def-1 not found")
}

func TestExecuteTransition_NotRunning(t *testing.T) {
	f := newFixture(t, defaultTransitions())
	snap := f.instances.stored("inst-1")
	snap.Status = domainwf.InstanceCancelled
	f.instances.instances["inst-1"] = snap

	res, err := f.engine.ExecuteTransition(context.Background(), request("approved"))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "only running instances")
	assert.Equal(t, 0, f.instances.saves)
}

func TestExecuteTransition_InfrastructureErrors(t *testing.T) {
	t.Run("store read error", func(t *testing.T) {
		f := newFixture(t, defaultTransitions())
		f.defs.err = errors.New("disk I/O error")

		res, err := f.engine.ExecuteTransition(context.Background(), request("approved"))
		assert.Nil(t, res)
		assert.ErrorContains(t, err, "disk I/O error")
	})

	t.Run("history write rolls back", func(t *testing.T) {
		f := newFixture(t, defaultTransitions())
		f.history.createErr = errors.New("constraint failed")

		res, err := f.engine.ExecuteTransition(context.Background(), request("approved"))
		assert.Nil(t, res)
		assert.ErrorContains(t, err, "create history entry")
		assert.Empty(t, f.publisher.events)
	})

	t.Run("commit failure", func(t *testing.T) {
		f := newFixture(t, defaultTransitions())
		f.tx.commitErr = errors.New("database is locked")

		_, err := f.engine.ExecuteTransition(context.Background(), request("approved"))
		assert.ErrorContains(t, err, "database is locked")
		assert.Equal(t, "draft", f.instances.stored("inst-1").CurrentState)
	})

	t.Run("version conflict", func(t *testing.T) {
		f := newFixture(t, defaultTransitions())
		f.instances.saveErr = port.ErrVersionConflict

		_, err := f.engine.ExecuteTransition(context.Background(), request("approved"))
		assert.ErrorIs(t, err, port.ErrVersionConflict)
	})
}

func TestExecuteTransition_SerializedPerInstance(t *testing.T) {
	f := newFixture(t, defaultTransitions())

	var wg sync.WaitGroup
	results := make([]*TransitionResult, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.engine.ExecuteTransition(context.Background(), request("approved"))
			if err == nil {
				results[i] = res
			}
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, res := range results {
		require.NotNil(t, res)
		if res.Success {
			succeeded++
		} else {
			assert.Contains(t, res.Error, "No transition exists from approved to approved")
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Len(t, f.history.entries, 1)
}
