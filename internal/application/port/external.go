package port

import (
	"context"
	"errors"

	"github.com/garyjia/workflow-orchestrator/internal/domain/event"
	"github.com/garyjia/workflow-orchestrator/internal/domain/workflow"
)

// ErrVersionConflict is returned by stores when saving an instance modified concurrently
var ErrVersionConflict = errors.New("instance was modified concurrently")

// ErrDuplicateRunningInstance is returned by stores when a second running
// instance of a definition is saved for the same entity
var ErrDuplicateRunningInstance = errors.New("entity already has a running instance")

// ErrDefinitionOwnedElsewhere is returned when saving a definition whose id
// belongs to another organization
var ErrDefinitionOwnedElsewhere = errors.New("definition id belongs to another organization")

// GuardRequest carries everything the AI judge sees about a candidate transition
type GuardRequest struct {
	OrgID        string
	EntityType   string
	Entity       map[string]any
	CurrentState string
	Context      map[string]any
	Transition   workflow.Transition
	ToState      string
}

// GuardDecision is the outcome of an AI guard. Allowed is false on any failure.
type GuardDecision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Model   string `json:"model,omitempty"`
	Error   string `json:"error,omitempty"`
}

// AIGuardEvaluator approves or rejects a transition using a language model
type AIGuardEvaluator interface {
	EvaluateGuard(ctx context.Context, req GuardRequest) GuardDecision
}

// SuggestionRequest asks for the next states of an instance
type SuggestionRequest struct {
	OrgID        string
	EntityType   string
	CurrentState string
	ValidStates  []string
	Entity       map[string]any
	Context      map[string]any
}

// Suggestion is one recommended destination state
type Suggestion struct {
	State  string `json:"state"`
	Reason string `json:"reason"`
}

// SuggestionService recommends next states. It is advisory and returns an empty
// slice on any failure.
type SuggestionService interface {
	Suggest(ctx context.Context, req SuggestionRequest) []Suggestion
}

// EntityUpdater writes fields of the business entity governed by an instance
type EntityUpdater interface {
	Update(ctx context.Context, entityID string, fields map[string]any, orgID string) (map[string]any, error)
}

// EventPublisher publishes domain events, fire-and-forget
type EventPublisher interface {
	Publish(ctx context.Context, evt *event.Event)
}
