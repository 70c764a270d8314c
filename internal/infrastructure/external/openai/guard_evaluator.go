package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/garyjia/workflow-orchestrator/internal/application/port"
)

// DefaultGuardTimeout bounds a single AI guard call
const DefaultGuardTimeout = 5 * time.Second

// GuardEvaluator implements port.AIGuardEvaluator. Every failure rejects the transition.
type GuardEvaluator struct {
	chat    *ChatClient
	prompt  PromptSpec
	timeout time.Duration
	logger  *zap.Logger
}

type guardPromptData struct {
	EntityType   string
	CurrentState string
	ToState      string
	Entity       string
	Context      string
	Rule         string
}

// NewGuardEvaluator creates an AI guard evaluator
func NewGuardEvaluator(chat *ChatClient, prompts *PromptConfig, timeout time.Duration, logger *zap.Logger) *GuardEvaluator {
	if prompts == nil {
		prompts = DefaultPrompts()
	}
	if timeout <= 0 {
		timeout = DefaultGuardTimeout
	}
	return &GuardEvaluator{
		chat:    chat,
		prompt:  prompts.Guard,
		timeout: timeout,
		logger:  logger,
	}
}

// EvaluateGuard asks the organization's model whether the transition may proceed
func (g *GuardEvaluator) EvaluateGuard(ctx context.Context, req port.GuardRequest) port.GuardDecision {
	userPrompt, err := renderTemplate(g.prompt.UserTemplate, guardPromptData{
		EntityType:   req.EntityType,
		CurrentState: req.CurrentState,
		ToState:      req.ToState,
		Entity:       prettyJSON(req.Entity),
		Context:      prettyJSON(req.Context),
		Rule:         req.Transition.AIGuardRule(),
	})
	if err != nil {
		return g.reject("", fmt.Errorf("render guard prompt: %w", err))
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	content, model, err := g.chat.Complete(callCtx, req.OrgID, g.prompt, userPrompt)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("AI guard timed out after %s", g.timeout)
		}
		return g.reject(model, err)
	}

	decision, err := parseGuardReply(content)
	if err != nil {
		g.logger.Error("Unparseable AI guard reply", zap.String("content", content), zap.Error(err))
		return g.reject(model, err)
	}
	decision.Model = model

	g.logger.Info("AI guard evaluated",
		zap.String("org_id", req.OrgID),
		zap.String("from_state", req.CurrentState),
		zap.String("to_state", req.ToState),
		zap.Bool("allowed", decision.Allowed),
		zap.String("model", model))
	return decision
}

func (g *GuardEvaluator) reject(model string, err error) port.GuardDecision {
	g.logger.Error("AI guard failed closed", zap.String("model", model), zap.Error(err))
	return port.GuardDecision{
		Allowed: false,
		Reason:  err.Error(),
		Model:   model,
		Error:   err.Error(),
	}
}

func parseGuardReply(content string) (port.GuardDecision, error) {
	raw := extractJSON(content)
	if raw == "" || !gjson.Valid(raw) {
		return port.GuardDecision{}, errors.New("AI guard reply contains no JSON object")
	}

	allowed := gjson.Get(raw, "allowed")
	if allowed.Type != gjson.True && allowed.Type != gjson.False {
		return port.GuardDecision{}, errors.New("AI guard reply has no boolean \"allowed\" field")
	}

	return port.GuardDecision{
		Allowed: allowed.Bool(),
		Reason:  gjson.Get(raw, "reason").String(),
	}, nil
}

var _ port.AIGuardEvaluator = (*GuardEvaluator)(nil)
