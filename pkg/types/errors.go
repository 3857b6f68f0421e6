package types

import (
	"errors"
	"fmt"
)

// PersistenceError represents a failure to read or write durable state
// (the secret store or the fingerprint store).
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

// Error returns the error message.
func (e *PersistenceError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("persistence error during %s on %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("persistence error during %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// NewPersistenceError creates a new PersistenceError.
func NewPersistenceError(op, path string, err error) *PersistenceError {
	return &PersistenceError{Op: op, Path: path, Err: err}
}

// IsPersistenceError checks if an error is a PersistenceError.
func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

// RenderError represents a failure to render a configuration artifact,
// most commonly a missing or empty required variable. Rendering never
// substitutes an empty string silently.
type RenderError struct {
	Template string
	Variable string
	Message  string
}

// Error returns the error message.
func (e *RenderError) Error() string {
	if e.Variable != "" {
		return fmt.Sprintf("render error in template %s: variable %q: %s", e.Template, e.Variable, e.Message)
	}
	return fmt.Sprintf("render error in template %s: %s", e.Template, e.Message)
}

// NewRenderError creates a new RenderError.
func NewRenderError(template, variable, message string) *RenderError {
	return &RenderError{Template: template, Variable: variable, Message: message}
}

// IsRenderError checks if an error is a RenderError.
func IsRenderError(err error) bool {
	var re *RenderError
	return errors.As(err, &re)
}

// ContainerRuntimeError represents a rejected or failed container engine
// operation. It is fatal for the service being converged.
type ContainerRuntimeError struct {
	Service string
	Op      string
	Err     error
}

// Error returns the error message.
func (e *ContainerRuntimeError) Error() string {
	return fmt.Sprintf("container runtime error for service %s during %s: %v", e.Service, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *ContainerRuntimeError) Unwrap() error {
	return e.Err
}

// NewContainerRuntimeError creates a new ContainerRuntimeError.
func NewContainerRuntimeError(service, op string, err error) *ContainerRuntimeError {
	return &ContainerRuntimeError{Service: service, Op: op, Err: err}
}

// IsContainerRuntimeError checks if an error is a ContainerRuntimeError.
func IsContainerRuntimeError(err error) bool {
	var ce *ContainerRuntimeError
	return errors.As(err, &ce)
}

// HealthTimeoutError indicates a health probe exhausted its retries without
// the service becoming ready or failing fatally.
type HealthTimeoutError struct {
	Service  string
	Attempts int
	Last     HealthStatus
	Detail   string
}

// Error returns the error message.
func (e *HealthTimeoutError) Error() string {
	return fmt.Sprintf("service %s not ready after %d attempts (last status %s): %s",
		e.Service, e.Attempts, e.Last, e.Detail)
}

// IsHealthTimeout checks if an error is a HealthTimeoutError.
func IsHealthTimeout(err error) bool {
	var he *HealthTimeoutError
	return errors.As(err, &he)
}

// HealthFatalError indicates a health probe detected a condition that is
// permanent under the current configuration. The matched diagnostic is
// surfaced verbatim in Detail.
type HealthFatalError struct {
	Service  string
	Attempts int
	Detail   string
}

// Error returns the error message.
func (e *HealthFatalError) Error() string {
	return fmt.Sprintf("service %s failed fatally after %d attempt(s): %s", e.Service, e.Attempts, e.Detail)
}

// IsHealthFatal checks if an error is a HealthFatalError.
func IsHealthFatal(err error) bool {
	var he *HealthFatalError
	return errors.As(err, &he)
}

// ValidationError represents an error that occurs during spec validation.
type ValidationError struct {
	Message string
}

// Error returns the error message.
func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a new ValidationError with the given message.
func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// IsValidationError checks if an error is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
