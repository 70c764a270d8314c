package service

import "errors"

var (
	// ErrNotFound is returned when a definition or instance does not exist in the organization
	ErrNotFound = errors.New("not found")

	// ErrInstanceAlreadyRunning is returned when an entity already has a running instance of a definition
	ErrInstanceAlreadyRunning = errors.New("workflow instance already running for entity")
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type nopLogger struct{}

func (nopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Error(msg string, keysAndValues ...interface{}) {}
