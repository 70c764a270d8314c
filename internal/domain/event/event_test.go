package event

import (
	"testing"
	"time"
)

func TestType_IsValid(t *testing.T) {
	tests := []struct {
		name      string
		eventType Type
		want      bool
	}{
		{name: "instance started", eventType: TypeInstanceStarted, want: true},
		{name: "transitioned", eventType: TypeTransitioned, want: true},
		{name: "completed", eventType: TypeCompleted, want: true},
		{name: "cancelled", eventType: TypeCancelled, want: true},
		{name: "action executed", eventType: TypeActionExecuted, want: true},
		{name: "suggestion recorded", eventType: TypeSuggestionRecorded, want: true},
		{name: "unknown type", eventType: Type("instance.created"), want: false},
		{name: "empty string", eventType: Type(""), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.eventType.IsValid(); got != tt.want {
				t.Errorf("Type.IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestType_String(t *testing.T) {
	if got := TypeTransitioned.String(); got != "workflow.transitioned" {
		t.Errorf("Type.String() = %v, want %v", got, "workflow.transitioned")
	}
}

func TestNewEvent(t *testing.T) {
	payload := map[string]interface{}{
		"from_state": "draft",
		"to_state":   "approved",
	}

	event := NewEvent(TypeTransitioned, "org-1", "inst-1", payload)

	if event == nil {
		t.Fatal("NewEvent() returned nil")
	}
	if event.ID == "" {
		t.Error("Event ID should not be empty")
	}
	if event.Type != TypeTransitioned {
		t.Errorf("Event Type = %v, want %v", event.Type, TypeTransitioned)
	}
	if event.OrgID != "org-1" || event.InstanceID != "inst-1" {
		t.Errorf("Event ids = (%v, %v), want (org-1, inst-1)", event.OrgID, event.InstanceID)
	}
	if event.Payload["to_state"] != "approved" {
		t.Errorf("Event Payload[to_state] = %v, want approved", event.Payload["to_state"])
	}
	if event.CorrelationID != event.ID {
		t.Error("Event without a correlation chain should correlate to itself")
	}
	if time.Since(event.Timestamp) > time.Second {
		t.Error("Event Timestamp should be recent")
	}

	other := NewEvent(TypeTransitioned, "org-1", "inst-1", nil)
	if other.ID == event.ID {
		t.Error("Event IDs should be unique")
	}
}

func TestNewEventWithCorrelation(t *testing.T) {
	event := NewEventWithCorrelation(TypeCompleted, "org-1", "inst-2", nil, "corr-123")

	if event.CorrelationID != "corr-123" {
		t.Errorf("Event CorrelationID = %v, want corr-123", event.CorrelationID)
	}
	if event.ID == "corr-123" {
		t.Error("Event ID should be generated, not the correlation id")
	}
}

func TestEvent_WithPayload(t *testing.T) {
	original := NewEvent(TypeActionExecuted, "org-1", "inst-1", map[string]interface{}{
		"action": "notify",
	})

	modified := original.WithPayload("executed", true)

	if _, exists := original.Payload["executed"]; exists {
		t.Error("Original event should not be modified")
	}
	if modified.GetPayloadString("action") != "notify" {
		t.Error("Modified event should retain original payload")
	}
	if !modified.GetPayloadBool("executed") {
		t.Error("Modified event should have new payload")
	}
	if modified.ID != original.ID || modified.CorrelationID != original.CorrelationID {
		t.Error("Modified event should keep its identity")
	}
}

func TestEvent_ForDefinition(t *testing.T) {
	original := NewEvent(TypeInstanceStarted, "org-1", "inst-1", nil)
	tagged := original.ForDefinition("def-1")

	if tagged.DefinitionID != "def-1" {
		t.Errorf("DefinitionID = %v, want def-1", tagged.DefinitionID)
	}
	if original.DefinitionID != "" {
		t.Error("Original event should not be modified")
	}
}

func TestEvent_PayloadAccessors(t *testing.T) {
	event := NewEvent(TypeCancelled, "org-1", "inst-1", map[string]interface{}{
		"state":  "draft",
		"forced": true,
		"count":  3,
	})

	if got := event.GetPayloadString("state"); got != "draft" {
		t.Errorf("GetPayloadString(state) = %v", got)
	}
	if got := event.GetPayloadString("count"); got != "" {
		t.Errorf("GetPayloadString(count) = %v, want empty", got)
	}
	if !event.GetPayloadBool("forced") {
		t.Error("GetPayloadBool(forced) = false, want true")
	}
	if event.GetPayloadBool("missing") {
		t.Error("GetPayloadBool(missing) = true, want false")
	}
}
