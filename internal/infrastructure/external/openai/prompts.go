package openai

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

// PromptSpec is the system prompt, user template and sampling parameters of one call
type PromptSpec struct {
	Temperature  float32 `yaml:"temperature"`
	MaxTokens    int     `yaml:"max_tokens"`
	System       string  `yaml:"system"`
	UserTemplate string  `yaml:"user_template"`
}

// PromptConfig holds the prompts used by the guard evaluator and the suggester
type PromptConfig struct {
	Guard      PromptSpec `yaml:"guard"`
	Suggestion PromptSpec `yaml:"suggestion"`
}

const defaultGuardTemplate = `Decide whether a {{.EntityType}} may move from state "{{.CurrentState}}" to state "{{.ToState}}".

Entity:
{{.Entity}}

Workflow context:
{{.Context}}
{{if .Rule}}
Rule to enforce:
{{.Rule}}
{{end}}
Respond with ONLY a JSON object of the form {"allowed": true|false, "reason": "short explanation"}.`

const defaultSuggestionTemplate = `A {{.EntityType}} is in workflow state "{{.CurrentState}}".

Entity:
{{.Entity}}

Workflow context:
{{.Context}}

Valid next states: {{join .ValidStates ", "}}

Recommend one or two of the valid next states, most likely first.
Respond with ONLY a JSON object of the form {"suggestions": [{"state": "...", "reason": "..."}]}.`

// DefaultPrompts returns the built-in prompts
func DefaultPrompts() *PromptConfig {
	return &PromptConfig{
		Guard: PromptSpec{
			Temperature:  0,
			MaxTokens:    300,
			System:       "You are a strict business process auditor. You approve a workflow transition only when the data clearly supports it. Always respond with valid JSON.",
			UserTemplate: defaultGuardTemplate,
		},
		Suggestion: PromptSpec{
			Temperature:  0.2,
			MaxTokens:    400,
			System:       "You are a workflow assistant that recommends the next state of a business record. Only recommend states from the list you are given. Always respond with valid JSON.",
			UserTemplate: defaultSuggestionTemplate,
		},
	}
}

// LoadPrompts loads prompt configuration from a YAML file. Fields left empty
// keep their built-in values.
func LoadPrompts(promptsPath string) (*PromptConfig, error) {
	data, err := os.ReadFile(promptsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}

	var loaded PromptConfig
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prompts: %w", err)
	}

	prompts := DefaultPrompts()
	mergePrompt(&prompts.Guard, loaded.Guard)
	mergePrompt(&prompts.Suggestion, loaded.Suggestion)
	return prompts, nil
}

func mergePrompt(dst *PromptSpec, src PromptSpec) {
	if src.System != "" {
		dst.System = src.System
	}
	if src.UserTemplate != "" {
		dst.UserTemplate = src.UserTemplate
	}
	if src.Temperature != 0 {
		dst.Temperature = src.Temperature
	}
	if src.MaxTokens != 0 {
		dst.MaxTokens = src.MaxTokens
	}
}

var templateFuncs = template.FuncMap{
	"join": strings.Join,
}

// renderTemplate renders a template with provided data
func renderTemplate(templateStr string, data interface{}) (string, error) {
	tmpl, err := template.New("prompt").Funcs(templateFuncs).Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}
