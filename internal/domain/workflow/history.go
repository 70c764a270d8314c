package workflow

import "time"

// GuardType identifies how a transition guard was evaluated
type GuardType string

const (
	GuardExpression GuardType = "expression"
	GuardAI         GuardType = "ai"
)

// GuardResult records the outcome of a guard evaluation
type GuardResult struct {
	Type   GuardType `json:"type"`
	Passed bool      `json:"passed"`
	Reason string    `json:"reason,omitempty"`
	Model  string    `json:"model,omitempty"`
}

// ActionResult records the outcome of a transition action
type ActionResult struct {
	Executed bool   `json:"executed"`
	ActionID string `json:"action_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

// HistoryEntry is the immutable audit record of one executed transition.
// An empty TriggeredBy means the transition was system-triggered.
type HistoryEntry struct {
	ID          string        `json:"id"`
	InstanceID  string        `json:"instance_id"`
	OrgID       string        `json:"org_id"`
	FromState   string        `json:"from_state"`
	ToState     string        `json:"to_state"`
	TriggeredBy string        `json:"triggered_by,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
	Guard       *GuardResult  `json:"guard,omitempty"`
	Action      *ActionResult `json:"action,omitempty"`
}

// AutoSuggestionLog is the audit record written by the reconciliation job
type AutoSuggestionLog struct {
	ID             string    `json:"id"`
	InstanceID     string    `json:"instance_id"`
	OrgID          string    `json:"org_id"`
	SuggestedState string    `json:"suggested_state"`
	Reason         string    `json:"reason"`
	Strategy       string    `json:"strategy"`
	CreatedAt      time.Time `json:"created_at"`
}
