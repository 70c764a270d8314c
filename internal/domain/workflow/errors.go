package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidDefinition is returned when a definition violates a structural invariant
	ErrInvalidDefinition = errors.New("invalid workflow definition")

	// ErrInvalidTransition is returned when a state transition is not allowed
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvalidLifecycle is returned when an operation is attempted in the wrong lifecycle status
	ErrInvalidLifecycle = errors.New("invalid lifecycle status")

	// ErrDefinitionNotActive is returned when starting an instance of a non-active definition
	ErrDefinitionNotActive = errors.New("workflow definition is not active")
)

// Rules reported by DomainError.
const (
	RuleNameRequired        = "name_required"
	RuleEntityTypeRequired  = "entity_type_required"
	RuleStateNameRequired   = "state_name_required"
	RuleUniqueStateNames    = "unique_state_names"
	RuleExactlyOneInitial   = "exactly_one_initial_state"
	RuleTransitionStates    = "transition_references_declared_states"
	RuleActivateWithStates  = "activate_requires_states"
	RuleDefinitionActive    = "definition_must_be_active"
	RuleInstanceRunning     = "instance_must_be_running"
	RuleTransitionDeclared  = "transition_must_be_declared"
	RuleFinalStateRequired  = "final_state_required"
	RuleInstanceIdentifiers = "instance_identifiers_required"
)

// DomainError reports a violated domain invariant.
type DomainError struct {
	Rule    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

func domainErr(sentinel error, rule, format string, args ...any) *DomainError {
	return &DomainError{
		Rule:    rule,
		Message: fmt.Sprintf(format, args...),
		Err:     sentinel,
	}
}

// IsDomainError reports whether err carries a DomainError.
func IsDomainError(err error) bool {
	var de *DomainError
	return errors.As(err, &de)
}
