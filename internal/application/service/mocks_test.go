package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/garyjia/workflow-orchestrator/internal/application/port"
	appworkflow "github.com/garyjia/workflow-orchestrator/internal/application/workflow"
	"github.com/garyjia/workflow-orchestrator/internal/domain/event"
	"github.com/garyjia/workflow-orchestrator/internal/domain/workflow"
)

// Mock repositories

type mockDefinitionRepo struct {
	mu            sync.Mutex
	defs          map[string]workflow.DefinitionSnapshot
	saveFunc      func(def *workflow.Definition) error
	findActiveErr error
}

func newMockDefinitionRepo() *mockDefinitionRepo {
	return &mockDefinitionRepo{defs: make(map[string]workflow.DefinitionSnapshot)}
}

func (m *mockDefinitionRepo) FindByID(ctx context.Context, id, orgID string) (*workflow.Definition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.defs[id]
	if !ok || snap.OrgID != orgID {
		return nil, nil
	}
	return workflow.RestoreDefinition(snap), nil
}

func (m *mockDefinitionRepo) Save(ctx context.Context, def *workflow.Definition) error {
	if m.saveFunc != nil {
		if err := m.saveFunc(def); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defs[def.ID()] = def.Snapshot()
	return nil
}

func (m *mockDefinitionRepo) FindAll(ctx context.Context, orgID, entityType string) ([]*workflow.Definition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*workflow.Definition
	for _, snap := range m.defs {
		if snap.OrgID == orgID && (entityType == "" || snap.EntityType == entityType) {
			result = append(result, workflow.RestoreDefinition(snap))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name() < result[j].Name() })
	return result, nil
}

func (m *mockDefinitionRepo) FindActive(ctx context.Context) ([]*workflow.Definition, error) {
	if m.findActiveErr != nil {
		return nil, m.findActiveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*workflow.Definition
	for _, snap := range m.defs {
		if snap.Status == workflow.DefinitionActive {
			result = append(result, workflow.RestoreDefinition(snap))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID() < result[j].ID() })
	return result, nil
}

func (m *mockDefinitionRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.defs)
}

type mockInstanceRepo struct {
	mu        sync.Mutex
	instances map[string]workflow.InstanceSnapshot
	saveErr   error
}

func newMockInstanceRepo() *mockInstanceRepo {
	return &mockInstanceRepo{instances: make(map[string]workflow.InstanceSnapshot)}
}

func (m *mockInstanceRepo) FindByID(ctx context.Context, id, orgID string) (*workflow.Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.instances[id]
	if !ok || snap.OrgID != orgID {
		return nil, nil
	}
	return workflow.RestoreInstance(snap), nil
}

func (m *mockInstanceRepo) Save(ctx context.Context, inst *workflow.Instance) error {
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
	return nil
}

func (m *mockInstanceRepo) FindRunningInstance(ctx context.Context, entityType, entityID, definitionID, orgID string) (*workflow.Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, snap := range m.instances {
		if snap.OrgID == orgID && snap.EntityType == entityType && snap.EntityID == entityID &&
			snap.DefinitionID == definitionID && snap.Status == workflow.InstanceRunning {
			return workflow.RestoreInstance(snap), nil
		}
	}
	return nil, nil
}

func (m *mockInstanceRepo) FindAll(ctx context.Context, orgID string, filter port.InstanceFilter) ([]*workflow.Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*workflow.Instance
	for _, snap := range m.instances {
		if snap.OrgID != orgID {
			continue
		}
		if filter.DefinitionID != "" && snap.DefinitionID != filter.DefinitionID {
			continue
		}
		if filter.EntityType != "" && snap.EntityType != filter.EntityType {
			continue
		}
		if filter.EntityID != "" && snap.EntityID != filter.EntityID {
			continue
		}
		if filter.Status != "" && snap.Status != filter.Status {
			continue
		}
		result = append(result, workflow.RestoreInstance(snap))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID() < result[j].ID() })
	return result, nil
}

func (m *mockInstanceRepo) put(inst *workflow.Instance) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instances[inst.ID()] = inst.Snapshot()
}

func (m *mockInstanceRepo) stored(id string) workflow.InstanceSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.instances[id]
}

type mockHistoryRepo struct {
	mu      sync.Mutex
	entries []*workflow.HistoryEntry
}

func (m *mockHistoryRepo) Create(ctx context.Context, entry *workflow.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = fmt.Sprintf("hist-%d", len(m.entries)+1)
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockHistoryRepo) FindByInstanceID(ctx context.Context, instanceID string) ([]*workflow.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*workflow.HistoryEntry
	for _, e := range m.entries {
		if e.InstanceID == instanceID {
			result = append(result, e)
		}
	}
	return result, nil
}

type mockSuggestionRepo struct {
	mu        sync.Mutex
	logs      []*workflow.AutoSuggestionLog
	createErr error
}

func (m *mockSuggestionRepo) Create(ctx context.Context, log *workflow.AutoSuggestionLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	log.ID = fmt.Sprintf("sugg-%d", len(m.logs)+1)
	m.logs = append(m.logs, log)
	return nil
}

func (m *mockSuggestionRepo) FindByInstanceID(ctx context.Context, instanceID string) ([]*workflow.AutoSuggestionLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*workflow.AutoSuggestionLog
	for _, l := range m.logs {
		if l.InstanceID == instanceID {
			result = append(result, l)
		}
	}
	return result, nil
}

type mockTxManager struct {
	commitErr error
	calls     int
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.calls++
	if err := fn(ctx); err != nil {
		return err
	}
	return m.commitErr
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

type mockSuggester struct {
	mu          sync.Mutex
	suggestFunc func(req port.SuggestionRequest) []port.Suggestion
	requests    []port.SuggestionRequest
}

func (m *mockSuggester) Suggest(ctx context.Context, req port.SuggestionRequest) []port.Suggestion {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.suggestFunc != nil {
		return m.suggestFunc(req)
	}
	return nil
}

type mockEngine struct {
	executeFunc func(req appworkflow.TransitionRequest) (*appworkflow.TransitionResult, error)
	requests    []appworkflow.TransitionRequest
}

func (m *mockEngine) ExecuteTransition(ctx context.Context, req appworkflow.TransitionRequest) (*appworkflow.TransitionResult, error) {
	m.requests = append(m.requests, req)
	if m.executeFunc != nil {
		return m.executeFunc(req)
	}
	return &appworkflow.TransitionResult{Success: true, ToState: req.ToState}, nil
}

// Fixtures

// pipelineDefinition builds an active lead -> qualified -> won|lost definition.
// A non-empty strategy enables auto-transition.
func pipelineDefinition(t *testing.T, id, orgID, strategy string) *workflow.Definition {
	t.Helper()

	b := workflow.NewBuilder(id, orgID, "Deal pipeline", "Opportunity").
		State("lead", workflow.Initial()).
		State("qualified").
		State("won", workflow.Final()).
		State("lost", workflow.Final()).
		Permit("lead", "qualified").
		Permit("lead", "lost").
		Permit("qualified", "won").
		Permit("qualified", "lost")
	if strategy != "" {
		b.AutoTransition(strategy)
	}

	def, err := b.Build()
	require.NoError(t, err)
	require.NoError(t, def.Activate())
	return def
}

func startedInstance(t *testing.T, def *workflow.Definition, id, entityID string) *workflow.Instance {
	t.Helper()

	inst, err := workflow.NewInstance(def, workflow.InstanceParams{
		ID:         id,
		OrgID:      def.OrgID(),
		EntityType: def.EntityType(),
		EntityID:   entityID,
		StartedBy:  "user-1",
	})
	require.NoError(t, err)
	return inst
}
