package entity

import "testing"

func TestModelProvider_IsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		provider *ModelProvider
		want     bool
	}{
		{"nil provider", nil, false},
		{"missing key", &ModelProvider{Model: "gpt-4o-mini"}, false},
		{"missing model", &ModelProvider{APIKey: "sk-test"}, false},
		{"configured", &ModelProvider{APIKey: "sk-test", Model: "gpt-4o-mini"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.provider.IsConfigured(); got != tt.want {
				t.Errorf("IsConfigured() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestModelProvider_IsGlobal(t *testing.T) {
	if !(&ModelProvider{}).IsGlobal() {
		t.Error("provider without org should be global")
	}
	if (&ModelProvider{OrgID: "org-1"}).IsGlobal() {
		t.Error("provider with org should not be global")
	}
}
