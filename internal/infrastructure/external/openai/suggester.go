package openai

import (
	"context"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/garyjia/workflow-orchestrator/internal/application/port"
)

const (
	// DefaultSuggestionTimeout bounds a single suggestion call
	DefaultSuggestionTimeout = 8 * time.Second

	maxSuggestions = 2
)

// Suggester implements port.SuggestionService
type Suggester struct {
	chat    *ChatClient
	prompt  PromptSpec
	timeout time.Duration
	logger  *zap.Logger
}

type suggestionPromptData struct {
	EntityType   string
	CurrentState string
	ValidStates  []string
	Entity       string
	Context      string
}

// NewSuggester creates an AI suggestion service
func NewSuggester(chat *ChatClient, prompts *PromptConfig, timeout time.Duration, logger *zap.Logger) *Suggester {
	if prompts == nil {
		prompts = DefaultPrompts()
	}
	if timeout <= 0 {
		timeout = DefaultSuggestionTimeout
	}
	return &Suggester{
		chat:    chat,
		prompt:  prompts.Suggestion,
		timeout: timeout,
		logger:  logger,
	}
}

// Suggest returns at most two distinct states drawn from req.ValidStates
func (s *Suggester) Suggest(ctx context.Context, req port.SuggestionRequest) []port.Suggestion {
	if len(req.ValidStates) == 0 {
		return []port.Suggestion{}
	}

	userPrompt, err := renderTemplate(s.prompt.UserTemplate, suggestionPromptData{
		EntityType:   req.EntityType,
		CurrentState: req.CurrentState,
		ValidStates:  req.ValidStates,
		Entity:       prettyJSON(req.Entity),
		Context:      prettyJSON(req.Context),
	})
	if err != nil {
		s.logger.Error("Failed to render suggestion prompt", zap.Error(err))
		return []port.Suggestion{}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	content, model, err := s.chat.Complete(callCtx, req.OrgID, s.prompt, userPrompt)
	if err != nil {
		s.logger.Error("Suggestion request failed",
			zap.String("org_id", req.OrgID),
			zap.String("current_state", req.CurrentState),
			zap.Error(err))
		return []port.Suggestion{}
	}

	suggestions := parseSuggestions(content, req.ValidStates)
	s.logger.Info("Suggestions received",
		zap.String("org_id", req.OrgID),
		zap.String("current_state", req.CurrentState),
		zap.Int("count", len(suggestions)),
		zap.String("model", model))
	return suggestions
}

func parseSuggestions(content string, validStates []string) []port.Suggestion {
	result := []port.Suggestion{}

	raw := extractJSON(content)
	if raw == "" || !gjson.Valid(raw) {
		return result
	}

	valid := make(map[string]bool, len(validStates))
	for _, state := range validStates {
		valid[state] = true
	}

	seen := make(map[string]bool)
	gjson.Get(raw, "suggestions").ForEach(func(_, item gjson.Result) bool {
		state := item.Get("state").String()
		if !valid[state] || seen[state] {
			return true
		}
		seen[state] = true
		result = append(result, port.Suggestion{State: state, Reason: item.Get("reason").String()})
		return len(result) < maxSuggestions
	})
	return result
}

var _ port.SuggestionService = (*Suggester)(nil)
