package workflow

import (
	"context"
	"fmt"

	"github.com/garyjia/workflow-orchestrator/internal/application/port"
	domainwf "github.com/garyjia/workflow-orchestrator/internal/domain/workflow"
)

// SystemActor identifies transitions triggered by the reconciliation job
const SystemActor = "system:auto-transition"

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// TransitionRequest asks the engine to move an instance to ToState
type TransitionRequest struct {
	InstanceID string
	OrgID      string
	ToState    string

	// TriggeredBy is the acting user id; empty for system-triggered transitions
	TriggeredBy string

	// Entity is the caller's snapshot of the governed entity, read by guards
	Entity map[string]any

	// EntityUpdater, when set, receives the new state of the governed entity
	EntityUpdater port.EntityUpdater
}

// TransitionResult reports a transition outcome. Rejections are reported here
// with Success=false and a displayable Error, never as a Go error.
type TransitionResult struct {
	Success       bool                    `json:"success"`
	Error         string                  `json:"error,omitempty"`
	HistoryID     string                  `json:"history_id,omitempty"`
	FromState     string                  `json:"from_state,omitempty"`
	ToState       string                  `json:"to_state,omitempty"`
	Status        domainwf.InstanceStatus `json:"status,omitempty"`
	Guard         *domainwf.GuardResult   `json:"guard,omitempty"`
	Action        *domainwf.ActionResult  `json:"action,omitempty"`
	UpdatedEntity map[string]any          `json:"updated_entity,omitempty"`
}

// TransitionEngine executes guarded, audited transitions
type TransitionEngine interface {
	// ExecuteTransition runs guard, action, entity update, persistence, history
	// and events for one transition. The error return is reserved for
	// infrastructure failures such as store or commit errors.
	ExecuteTransition(ctx context.Context, req TransitionRequest) (*TransitionResult, error)
}

func failed(format string, args ...interface{}) *TransitionResult {
	return &TransitionResult{Success: false, Error: fmt.Sprintf(format, args...)}
}

type nopLogger struct{}

func (nopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Error(msg string, keysAndValues ...interface{}) {}
