package workflow

import (
	"strings"
	"time"
)

// DefinitionStatus is the lifecycle status of a workflow definition
type DefinitionStatus string

const (
	DefinitionDraft    DefinitionStatus = "draft"
	DefinitionActive   DefinitionStatus = "active"
	DefinitionInactive DefinitionStatus = "inactive"
)

// String returns the string representation of the status
func (s DefinitionStatus) String() string {
	return string(s)
}

// Auto-transition strategies declared in definition metadata.
const (
	StrategyAudit   = "audit"
	StrategyExecute = "execute"
)

// AutoTransitionPolicy is the "autoTransition" block of a definition's metadata
type AutoTransitionPolicy struct {
	Enabled  bool
	Strategy string
}

// DefinitionParams carries the inputs of NewDefinition
type DefinitionParams struct {
	ID          string
	OrgID       string
	Name        string
	EntityType  string
	States      []State
	Transitions []Transition
	Version     string
	Metadata    map[string]any
}

// DefinitionSnapshot is the persisted form of a Definition
type DefinitionSnapshot struct {
	ID          string           `json:"id"`
	OrgID       string           `json:"org_id"`
	Name        string           `json:"name"`
	EntityType  string           `json:"entity_type"`
	States      []State          `json:"states"`
	Transitions []Transition     `json:"transitions"`
	Status      DefinitionStatus `json:"status"`
	Version     string           `json:"version"`
	Metadata    map[string]any   `json:"metadata,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Definition is a state-machine blueprint bound to an entity type.
// Its states and transitions are fixed once validated; only Activate mutates it.
type Definition struct {
	id          string
	orgID       string
	name        string
	entityType  string
	states      []State
	transitions []Transition
	status      DefinitionStatus
	version     string
	metadata    map[string]any
	createdAt   time.Time
	updatedAt   time.Time
}

// NewDefinition validates params and creates a Draft definition
func NewDefinition(p DefinitionParams) (*Definition, error) {
	if strings.TrimSpace(p.Name) == "" {
		return nil, domainErr(ErrInvalidDefinition, RuleNameRequired, "workflow name is required")
	}
	if strings.TrimSpace(p.EntityType) == "" {
		return nil, domainErr(ErrInvalidDefinition, RuleEntityTypeRequired, "entity type is required")
	}

	declared := make(map[string]bool, len(p.States))
	initialCount := 0
	for _, s := range p.States {
		if strings.TrimSpace(s.Name) == "" {
			return nil, domainErr(ErrInvalidDefinition, RuleStateNameRequired, "state name is required")
		}
		if declared[s.Name] {
			return nil, domainErr(ErrInvalidDefinition, RuleUniqueStateNames, "duplicate state name: %s", s.Name)
		}
		declared[s.Name] = true
		if s.Initial {
			initialCount++
		}
	}

	if initialCount != 1 {
		return nil, domainErr(ErrInvalidDefinition, RuleExactlyOneInitial,
			"workflow must have exactly one initial state, found %d", initialCount)
	}

	for _, t := range p.Transitions {
		if !declared[t.From] {
			return nil, domainErr(ErrInvalidDefinition, RuleTransitionStates,
				"transition references undeclared state: %s", t.From)
		}
		if !declared[t.To] {
			return nil, domainErr(ErrInvalidDefinition, RuleTransitionStates,
				"transition references undeclared state: %s", t.To)
		}
	}

	version := p.Version
	if version == "" {
		version = "1.0.0"
	}

	now := time.Now()
	return &Definition{
		id:          p.ID,
		orgID:       p.OrgID,
		name:        p.Name,
		entityType:  p.EntityType,
		states:      copyStates(p.States),
		transitions: copyTransitions(p.Transitions),
		status:      DefinitionDraft,
		version:     version,
		metadata:    copyMap(p.Metadata),
		createdAt:   now,
		updatedAt:   now,
	}, nil
}

// RestoreDefinition rebuilds a definition from persistence without re-validating it
func RestoreDefinition(s DefinitionSnapshot) *Definition {
	return &Definition{
		id:          s.ID,
		orgID:       s.OrgID,
		name:        s.Name,
		entityType:  s.EntityType,
		states:      copyStates(s.States),
		transitions: copyTransitions(s.Transitions),
		status:      s.Status,
		version:     s.Version,
		metadata:    copyMap(s.Metadata),
		createdAt:   s.CreatedAt,
		updatedAt:   s.UpdatedAt,
	}
}

// Snapshot returns the persisted form of the definition
func (d *Definition) Snapshot() DefinitionSnapshot {
	return DefinitionSnapshot{
		ID:          d.id,
		OrgID:       d.orgID,
		Name:        d.name,
		EntityType:  d.entityType,
		States:      d.States(),
		Transitions: d.Transitions(),
		Status:      d.status,
		Version:     d.version,
		Metadata:    copyMap(d.metadata),
		CreatedAt:   d.createdAt,
		UpdatedAt:   d.updatedAt,
	}
}

// Activate moves a Draft or Inactive definition to Active. Activating an
// already active definition is a no-op.
func (d *Definition) Activate() error {
	if d.status == DefinitionActive {
		return nil
	}
	if len(d.states) == 0 {
		return domainErr(ErrInvalidDefinition, RuleActivateWithStates, "cannot activate workflow %q without states", d.name)
	}
	d.status = DefinitionActive
	d.updatedAt = time.Now()
	return nil
}

// EnsureCanStart fails unless the definition is Active
func (d *Definition) EnsureCanStart() error {
	if d.status != DefinitionActive {
		return domainErr(ErrDefinitionNotActive, RuleDefinitionActive,
			"workflow %q is %s; only active workflows can be started", d.name, d.status)
	}
	return nil
}

// FindTransition returns the first transition from -> to, or nil
func (d *Definition) FindTransition(from, to string) *Transition {
	for i := range d.transitions {
		if d.transitions[i].From == from && d.transitions[i].To == to {
			t := d.transitions[i]
			return &t
		}
	}
	return nil
}

// TransitionsFrom returns the transitions leaving a state, in declaration order
func (d *Definition) TransitionsFrom(state string) []Transition {
	var out []Transition
	for _, t := range d.transitions {
		if t.From == state {
			out = append(out, t)
		}
	}
	return out
}

// ReachableStates returns the distinct destinations of transitions leaving a state
func (d *Definition) ReachableStates(state string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range d.TransitionsFrom(state) {
		if !seen[t.To] {
			seen[t.To] = true
			out = append(out, t.To)
		}
	}
	return out
}

// InitialState returns the initial state, or nil for a restored definition without one
func (d *Definition) InitialState() *State {
	for i := range d.states {
		if d.states[i].Initial {
			s := d.states[i]
			return &s
		}
	}
	return nil
}

// FinalStates returns all states flagged final
func (d *Definition) FinalStates() []State {
	var out []State
	for _, s := range d.states {
		if s.Final {
			out = append(out, s)
		}
	}
	return out
}

// IsFinalState reports whether the named state is final
func (d *Definition) IsFinalState(name string) bool {
	for _, s := range d.states {
		if s.Name == name {
			return s.Final
		}
	}
	return false
}

// HasState reports whether the named state is declared
func (d *Definition) HasState(name string) bool {
	for _, s := range d.states {
		if s.Name == name {
			return true
		}
	}
	return false
}

// AutoTransitionPolicy reads metadata.autoTransition
func (d *Definition) AutoTransitionPolicy() AutoTransitionPolicy {
	policy := AutoTransitionPolicy{Strategy: StrategyAudit}

	raw, ok := d.metadata["autoTransition"].(map[string]any)
	if !ok {
		return policy
	}
	if enabled, ok := raw["enabled"].(bool); ok {
		policy.Enabled = enabled
	}
	if strategy, ok := raw["strategy"].(string); ok && strategy != "" {
		policy.Strategy = strings.ToLower(strategy)
	}
	return policy
}

func (d *Definition) ID() string { return d.id }
func (d *Definition) OrgID() string { return d.orgID }
func (d *Definition) Name() string { return d.name }
func (d *Definition) EntityType() string { return d.entityType }
func (d *Definition) Status() DefinitionStatus { return d.status }
func (d *Definition) Version() string { return d.version }
func (d *Definition) Metadata() map[string]any { return copyMap(d.metadata) }
func (d *Definition) CreatedAt() time.Time { return d.createdAt }
func (d *Definition) UpdatedAt() time.Time { return d.updatedAt }
func (d *Definition) States() []State { return copyStates(d.states) }
func (d *Definition) Transitions() []Transition { return copyTransitions(d.transitions) }
func (d *Definition) IsActive() bool { return d.status == DefinitionActive }

func copyStates(in []State) []State {
	if in == nil {
		return nil
	}
	out := make([]State, len(in))
	for i, s := range in {
		s.Metadata = copyMap(s.Metadata)
		out[i] = s
	}
	return out
}

func copyTransitions(in []Transition) []Transition {
	if in == nil {
		return nil
	}
	out := make([]Transition, len(in))
	for i, t := range in {
		t.Metadata = copyMap(t.Metadata)
		out[i] = t
	}
	return out
}

func copyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
