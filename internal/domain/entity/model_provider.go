package entity

import "time"

// ModelProvider describes an OpenAI-compatible chat endpoint used by AI guards
// and suggestions. A provider with an empty OrgID is a global fallback.
type ModelProvider struct {
	ID        string    `json:"id"`
	OrgID     string    `json:"org_id,omitempty"`
	Name      string    `json:"name"`
	APIKey    string    `json:"-"`
	BaseURL   string    `json:"base_url"`
	Model     string    `json:"model"`
	IsDefault bool      `json:"is_default"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsConfigured reports whether the provider can be called
func (p *ModelProvider) IsConfigured() bool {
	return p != nil && p.APIKey != "" && p.Model != ""
}

// IsGlobal reports whether the provider is shared across organizations
func (p *ModelProvider) IsGlobal() bool {
	return p.OrgID == ""
}
