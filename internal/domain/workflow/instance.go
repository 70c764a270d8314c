package workflow

import (
	"strings"
	"time"
)

// InstanceStatus is the lifecycle status of a running workflow
type InstanceStatus string

const (
	InstanceRunning   InstanceStatus = "running"
	InstanceCompleted InstanceStatus = "completed"
	InstanceFailed    InstanceStatus = "failed"
	InstanceCancelled InstanceStatus = "cancelled"
)

// String returns the string representation of the status
func (s InstanceStatus) String() string {
	return string(s)
}

// IsTerminal returns true if no further transitions are allowed
func (s InstanceStatus) IsTerminal() bool {
	return s != InstanceRunning
}

// InstanceParams carries the inputs of NewInstance
type InstanceParams struct {
	ID         string
	OrgID      string
	EntityType string
	EntityID   string
	StartedBy  string
	Context    map[string]any
}

// InstanceSnapshot is the persisted form of an Instance
type InstanceSnapshot struct {
	ID           string         `json:"id"`
	OrgID        string         `json:"org_id"`
	DefinitionID string         `json:"definition_id"`
	EntityType   string         `json:"entity_type"`
	EntityID     string         `json:"entity_id"`
	CurrentState string         `json:"current_state"`
	Context      map[string]any `json:"context,omitempty"`
	Status       InstanceStatus `json:"status"`
	StartedBy    string         `json:"started_by"`
	StartedAt    time.Time      `json:"started_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	Version      int64          `json:"version"`
}

// Instance is one execution of a definition against a single entity
type Instance struct {
	id           string
	orgID        string
	definitionID string
	entityType   string
	entityID     string
	currentState string
	context      map[string]any
	status       InstanceStatus
	startedBy    string
	startedAt    time.Time
	completedAt  *time.Time
	version      int64
}

// NewInstance starts an instance of an active definition at its initial state
func NewInstance(def *Definition, p InstanceParams) (*Instance, error) {
	if err := def.EnsureCanStart(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.EntityType) == "" {
		return nil, domainErr(ErrInvalidDefinition, RuleInstanceIdentifiers, "entity type is required to start a workflow")
	}

	initial := def.InitialState()
	if initial == nil {
		return nil, domainErr(ErrInvalidDefinition, RuleExactlyOneInitial, "workflow %q has no initial state", def.Name())
	}

	return &Instance{
		id:           p.ID,
		orgID:        p.OrgID,
		definitionID: def.ID(),
		entityType:   p.EntityType,
		entityID:     p.EntityID,
		currentState: initial.Name,
		context:      copyMap(p.Context),
		status:       InstanceRunning,
		startedBy:    p.StartedBy,
		startedAt:    time.Now(),
	}, nil
}

// RestoreInstance rebuilds an instance from persistence without re-validating it
func RestoreInstance(s InstanceSnapshot) *Instance {
	var completedAt *time.Time
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		completedAt = &t
	}
	return &Instance{
		id:           s.ID,
		orgID:        s.OrgID,
		definitionID: s.DefinitionID,
		entityType:   s.EntityType,
		entityID:     s.EntityID,
		currentState: s.CurrentState,
		context:      copyMap(s.Context),
		status:       s.Status,
		startedBy:    s.StartedBy,
		startedAt:    s.StartedAt,
		completedAt:  completedAt,
		version:      s.Version,
	}
}

// Snapshot returns the persisted form of the instance
func (i *Instance) Snapshot() InstanceSnapshot {
	var completedAt *time.Time
	if i.completedAt != nil {
		t := *i.completedAt
		completedAt = &t
	}
	return InstanceSnapshot{
		ID:           i.id,
		OrgID:        i.orgID,
		DefinitionID: i.definitionID,
		EntityType:   i.entityType,
		EntityID:     i.entityID,
		CurrentState: i.currentState,
		Context:      copyMap(i.context),
		Status:       i.status,
		StartedBy:    i.startedBy,
		StartedAt:    i.startedAt,
		CompletedAt:  completedAt,
		Version:      i.version,
	}
}

// TransitionTo moves the instance along a declared transition. It enforces
// only state-machine legality; guards and actions are the caller's concern.
// Reaching a final state completes the instance.
func (i *Instance) TransitionTo(toState string, def *Definition) error {
	if err := i.ensureRunning("transition"); err != nil {
		return err
	}
	if def.FindTransition(i.currentState, toState) == nil {
		return domainErr(ErrInvalidTransition, RuleTransitionDeclared,
			"No transition exists from %s to %s", i.currentState, toState)
	}

	i.currentState = toState
	if def.IsFinalState(toState) {
		i.markFinished(InstanceCompleted)
	}
	return nil
}

// Complete terminates the instance in the given state, bypassing the transition table
func (i *Instance) Complete(finalState string) error {
	if err := i.ensureRunning("complete"); err != nil {
		return err
	}
	if strings.TrimSpace(finalState) == "" {
		return domainErr(ErrInvalidTransition, RuleFinalStateRequired, "a final state is required to complete an instance")
	}
	i.currentState = finalState
	i.markFinished(InstanceCompleted)
	return nil
}

// Cancel terminates the instance without changing its current state
func (i *Instance) Cancel() error {
	if err := i.ensureRunning("cancel"); err != nil {
		return err
	}
	i.markFinished(InstanceCancelled)
	return nil
}

// IncrementVersion is called by stores after a successful write
func (i *Instance) IncrementVersion() {
	i.version++
}

func (i *Instance) ensureRunning(op string) error {
	if i.status != InstanceRunning {
		return domainErr(ErrInvalidLifecycle, RuleInstanceRunning,
			"cannot %s workflow instance in status %s", op, i.status)
	}
	return nil
}

func (i *Instance) markFinished(status InstanceStatus) {
	now := time.Now()
	i.status = status
	i.completedAt = &now
}

func (i *Instance) ID() string { return i.id }
func (i *Instance) OrgID() string { return i.orgID }
func (i *Instance) DefinitionID() string { return i.definitionID }
func (i *Instance) EntityType() string { return i.entityType }
func (i *Instance) EntityID() string { return i.entityID }
func (i *Instance) CurrentState() string { return i.currentState }
func (i *Instance) Context() map[string]any { return copyMap(i.context) }
func (i *Instance) Status() InstanceStatus { return i.status }
func (i *Instance) StartedBy() string { return i.startedBy }
func (i *Instance) StartedAt() time.Time { return i.startedAt }
func (i *Instance) Version() int64 { return i.version }
func (i *Instance) IsRunning() bool { return i.status == InstanceRunning }

// CompletedAt returns the completion time, or nil while running
func (i *Instance) CompletedAt() *time.Time {
	if i.completedAt == nil {
		return nil
	}
	t := *i.completedAt
	return &t
}
