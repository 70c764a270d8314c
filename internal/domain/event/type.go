package event

// Type identifies the type of domain event
type Type string

const (
	TypeInstanceStarted    Type = "workflow.instance_started"
	TypeTransitioned       Type = "workflow.transitioned"
	TypeCompleted          Type = "workflow.completed"
	TypeCancelled          Type = "workflow.cancelled"
	TypeActionExecuted     Type = "workflow.action_executed"
	TypeSuggestionRecorded Type = "workflow.suggestion_recorded"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeInstanceStarted,
		TypeTransitioned,
		TypeCompleted,
		TypeCancelled,
		TypeActionExecuted,
		TypeSuggestionRecorded:
		return true
	default:
		return false
	}
}
