package workflow

import "strings"

// AIGuardKeyword marks a transition guard delegated to the AI judge.
const AIGuardKeyword = "ai_guard"

// State is a named node of a workflow definition
type State struct {
	Name     string         `json:"name" yaml:"name"`
	Initial  bool           `json:"initial,omitempty" yaml:"initial,omitempty"`
	Final    bool           `json:"final,omitempty" yaml:"final,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Transition is a declared (from, to) edge, optionally guarded and followed by an action
type Transition struct {
	From     string         `json:"from" yaml:"from"`
	To       string         `json:"to" yaml:"to"`
	Guard    string         `json:"guard,omitempty" yaml:"guard,omitempty"`
	Action   string         `json:"action,omitempty" yaml:"action,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// HasGuard reports whether the transition carries a guard
func (t Transition) HasGuard() bool {
	return strings.TrimSpace(t.Guard) != ""
}

// HasAction reports whether the transition carries an action
func (t Transition) HasAction() bool {
	return strings.TrimSpace(t.Action) != ""
}

// IsAIGuard returns true for "ai_guard" and "ai_guard:<rule>" guards
func (t Transition) IsAIGuard() bool {
	g := strings.TrimSpace(t.Guard)
	return g == AIGuardKeyword || strings.HasPrefix(g, AIGuardKeyword+":")
}

// AIGuardRule returns the free-text rule of an "ai_guard:<rule>" guard, or ""
func (t Transition) AIGuardRule() string {
	g := strings.TrimSpace(t.Guard)
	if !strings.HasPrefix(g, AIGuardKeyword+":") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(g, AIGuardKeyword+":"))
}
