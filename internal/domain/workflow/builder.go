package workflow

// StateOption configures a state added through the builder
type StateOption func(*State)

// TransitionOption configures a transition added through the builder
type TransitionOption func(*Transition)

// Initial marks the state as the initial state
func Initial() StateOption {
	return func(s *State) { s.Initial = true }
}

// Final marks the state as a final state
func Final() StateOption {
	return func(s *State) { s.Final = true }
}

// WithStateMetadata attaches metadata to a state
func WithStateMetadata(metadata map[string]any) StateOption {
	return func(s *State) { s.Metadata = copyMap(metadata) }
}

// WithGuard sets the guard expression of a transition
func WithGuard(guard string) TransitionOption {
	return func(t *Transition) { t.Guard = guard }
}

// WithAIGuard delegates the transition to the AI judge, with an optional custom rule
func WithAIGuard(rule string) TransitionOption {
	return func(t *Transition) {
		if rule == "" {
			t.Guard = AIGuardKeyword
			return
		}
		t.Guard = AIGuardKeyword + ":" + rule
	}
}

// WithAction sets the action identifier of a transition
func WithAction(action string) TransitionOption {
	return func(t *Transition) { t.Action = action }
}

// WithTransitionMetadata attaches metadata to a transition
func WithTransitionMetadata(metadata map[string]any) TransitionOption {
	return func(t *Transition) { t.Metadata = copyMap(metadata) }
}

// Builder assembles a Definition fluently. Validation happens once, in Build.
type Builder struct {
	params DefinitionParams
}

// NewBuilder creates a builder for a definition governing entityType
func NewBuilder(id, orgID, name, entityType string) *Builder {
	return &Builder{
		params: DefinitionParams{
			ID:         id,
			OrgID:      orgID,
			Name:       name,
			EntityType: entityType,
		},
	}
}

// State declares a state
func (b *Builder) State(name string, opts ...StateOption) *Builder {
	s := State{Name: name}
	for _, opt := range opts {
		opt(&s)
	}
	b.params.States = append(b.params.States, s)
	return b
}

// Permit declares a transition from -> to
func (b *Builder) Permit(from, to string, opts ...TransitionOption) *Builder {
	t := Transition{From: from, To: to}
	for _, opt := range opts {
		opt(&t)
	}
	b.params.Transitions = append(b.params.Transitions, t)
	return b
}

// Version sets the semantic version string
func (b *Builder) Version(version string) *Builder {
	b.params.Version = version
	return b
}

// Metadata sets a metadata key
func (b *Builder) Metadata(key string, value any) *Builder {
	if b.params.Metadata == nil {
		b.params.Metadata = make(map[string]any)
	}
	b.params.Metadata[key] = value
	return b
}

// AutoTransition enables the reconciliation job for this definition
func (b *Builder) AutoTransition(strategy string) *Builder {
	return b.Metadata("autoTransition", map[string]any{
		"enabled":  true,
		"strategy": strategy,
	})
}

// Build validates and creates a Draft definition
func (b *Builder) Build() (*Definition, error) {
	return NewDefinition(b.params)
}
