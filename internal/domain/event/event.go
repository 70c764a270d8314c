package event

import (
	"time"

	"github.com/google/uuid"
)

// Event represents a workflow domain event
type Event struct {
	ID            string                 `json:"id"`
	Type          Type                   `json:"type"`
	OrgID         string                 `json:"org_id"`
	InstanceID    string                 `json:"instance_id"`
	DefinitionID  string                 `json:"definition_id,omitempty"`
	Payload       map[string]interface{} `json:"payload"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
}

// NewEvent creates a new domain event with auto-generated ID and timestamp
func NewEvent(eventType Type, orgID, instanceID string, payload map[string]interface{}) *Event {
	id := uuid.NewString()
	return &Event{
		ID:            id,
		Type:          eventType,
		OrgID:         orgID,
		InstanceID:    instanceID,
		Payload:       payload,
		Timestamp:     time.Now(),
		CorrelationID: id,
	}
}

// NewEventWithCorrelation creates an event linked to a correlation chain
func NewEventWithCorrelation(eventType Type, orgID, instanceID string, payload map[string]interface{}, correlationID string) *Event {
	e := NewEvent(eventType, orgID, instanceID, payload)
	e.CorrelationID = correlationID
	return e
}

// ForDefinition returns a copy of the event tagged with a definition id
func (e *Event) ForDefinition(definitionID string) *Event {
	cp := *e
	cp.DefinitionID = definitionID
	return &cp
}

// WithPayload returns a new Event with an added payload key-value pair (immutable operation)
func (e *Event) WithPayload(key string, value interface{}) *Event {
	newPayload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		newPayload[k] = v
	}
	newPayload[key] = value

	cp := *e
	cp.Payload = newPayload
	return &cp
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if val, ok := e.Payload[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// GetPayloadBool retrieves a bool value from the payload
func (e *Event) GetPayloadBool(key string) bool {
	if val, ok := e.Payload[key]; ok {
		if b, ok := val.(bool); ok {
			return b
		}
	}
	return false
}
