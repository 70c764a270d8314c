package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/garyjia/workflow-orchestrator/internal/application/port"
	"github.com/garyjia/workflow-orchestrator/internal/domain/event"
	domainwf "github.com/garyjia/workflow-orchestrator/internal/domain/workflow"
)

// ActionInvocation is the input of an action handler
type ActionInvocation struct {
	Name         string
	Params       map[string]any
	OrgID        string
	InstanceID   string
	DefinitionID string
	EntityType   string
	EntityID     string
	FromState    string
	ToState      string
	TriggeredBy  string
}

// ActionHandler performs the side effect of a transition action
type ActionHandler func(ctx context.Context, inv ActionInvocation) error

// ActionExecutor resolves action identifiers to handlers. Execute never
// returns an error or panics; failures are reported in the ActionResult.
type ActionExecutor struct {
	handlers  map[string]ActionHandler
	publisher port.EventPublisher
	logger    Logger
}

// NewActionExecutor creates an executor with the built-in actions registered:
// notify, updatefields, triggerwebhook and log. Each records its intent as a
// workflow.action_executed event.
func NewActionExecutor(publisher port.EventPublisher, logger Logger) *ActionExecutor {
	if logger == nil {
		logger = nopLogger{}
	}
	e := &ActionExecutor{
		handlers:  make(map[string]ActionHandler),
		publisher: publisher,
		logger:    logger,
	}

	record := e.recordIntent
	e.Register("notify", record)
	e.Register("updatefields", record)
	e.Register("update_fields", record)
	e.Register("triggerwebhook", record)
	e.Register("trigger_webhook", record)
	e.Register("log", record)
	return e
}

// Register adds or replaces a handler; names are case-insensitive
func (e *ActionExecutor) Register(name string, handler ActionHandler) {
	e.handlers[strings.ToLower(name)] = handler
}

// Execute parses the action identifier and runs its handler
func (e *ActionExecutor) Execute(ctx context.Context, action string, inv ActionInvocation) (result domainwf.ActionResult) {
	name, params, err := ParseAction(action)
	if err != nil {
		return domainwf.ActionResult{Executed: false, ActionID: strings.TrimSpace(action), Error: err.Error()}
	}
	result.ActionID = name

	handler, ok := e.handlers[strings.ToLower(name)]
	if !ok {
		result.Error = fmt.Sprintf("Unknown action: %s", name)
		return result
	}

	defer func() {
		if r := recover(); r != nil {
			result.Executed = false
			result.Error = fmt.Sprintf("action %s panicked: %v", name, r)
			e.logger.Error("Action panic recovered", "action", name, "instance_id", inv.InstanceID, "panic", r)
		}
	}()

	inv.Name = name
	inv.Params = params
	if err := handler(ctx, inv); err != nil {
		result.Error = err.Error()
		e.logger.Error("Action failed", "action", name, "instance_id", inv.InstanceID, "error", err)
		return result
	}

	result.Executed = true
	e.logger.Info("Action executed", "action", name, "instance_id", inv.InstanceID)
	return result
}

// recordIntent is the built-in stub handler
func (e *ActionExecutor) recordIntent(ctx context.Context, inv ActionInvocation) error {
	if e.publisher == nil {
		return nil
	}
	evt := event.NewEvent(event.TypeActionExecuted, inv.OrgID, inv.InstanceID, map[string]interface{}{
		"action":       strings.ToLower(inv.Name),
		"params":       inv.Params,
		"entity_type":  inv.EntityType,
		"entity_id":    inv.EntityID,
		"from_state":   inv.FromState,
		"to_state":     inv.ToState,
		"triggered_by": inv.TriggeredBy,
	})
	e.publisher.Publish(ctx, evt.ForDefinition(inv.DefinitionID))
	return nil
}

// ParseAction accepts "name", "name:params" and {"action"|"name": ..., "params": {...}}.
// Params after the colon are decoded when they are a JSON object and kept
// verbatim under "value" otherwise.
func ParseAction(action string) (string, map[string]any, error) {
	raw := strings.TrimSpace(action)
	if raw == "" {
		return "", nil, fmt.Errorf("action identifier is empty")
	}

	if strings.HasPrefix(raw, "{") {
		if !gjson.Valid(raw) {
			return "", nil, fmt.Errorf("invalid action JSON: %s", raw)
		}
		name := gjson.Get(raw, "action").String()
		if name == "" {
			name = gjson.Get(raw, "name").String()
		}
		if name == "" {
			return "", nil, fmt.Errorf("action JSON has no action or name field")
		}
		return name, objectParams(gjson.Get(raw, "params")), nil
	}

	name, rest, found := strings.Cut(raw, ":")
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil, fmt.Errorf("action name is empty in %q", raw)
	}
	if !found {
		return name, nil, nil
	}

	rest = strings.TrimSpace(rest)
	if rest == "" {
		return name, nil, nil
	}
	if gjson.Valid(rest) {
		if parsed := gjson.Parse(rest); parsed.IsObject() {
			return name, objectParams(parsed), nil
		}
	}
	return name, map[string]any{"value": rest}, nil
}

func objectParams(res gjson.Result) map[string]any {
	if !res.IsObject() {
		return nil
	}
	params, _ := res.Value().(map[string]interface{})
	return params
}
