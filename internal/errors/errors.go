// Package errors defines the typed error taxonomy shared by the backup
// engine: configuration, connection, execution, integrity and validation
// errors, with retry classification used by the job queue.
package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents different categories of engine errors
type ErrorType string

const (
	// ErrorTypeConfiguration represents missing or invalid configuration
	// (unsupported type tags, absent credentials). Never retried.
	ErrorTypeConfiguration ErrorType = "configuration"
	// ErrorTypeConnection represents network or auth failures reaching a
	// database or storage backend. Retried per job policy.
	ErrorTypeConnection ErrorType = "connection"
	// ErrorTypeExecution represents a non-zero exit from a spawned
	// dump/restore/compression command. Retried for backups only.
	ErrorTypeExecution ErrorType = "execution"
	// ErrorTypeIntegrity represents checksum mismatches or missing
	// decompressed output. Treated like execution errors for retry.
	ErrorTypeIntegrity ErrorType = "integrity"
	// ErrorTypeValidation represents bad operator input. Never retried.
	ErrorTypeValidation ErrorType = "validation"
)

// EngineError is an engine error with a type tag and attribution context
type EngineError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *EngineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause error
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// WithContext adds attribution context (server id, volume id, command)
func (e *EngineError) WithContext(key string, value interface{}) *EngineError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new EngineError
func New(errorType ErrorType, message string, cause error) *EngineError {
	return &EngineError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

func NewConfigurationError(message string, cause error) *EngineError {
	return New(ErrorTypeConfiguration, message, cause)
}

func NewConnectionError(message string, cause error) *EngineError {
	return New(ErrorTypeConnection, message, cause)
}

func NewExecutionError(message string, cause error) *EngineError {
	return New(ErrorTypeExecution, message, cause)
}

func NewIntegrityError(message string, cause error) *EngineError {
	return New(ErrorTypeIntegrity, message, cause)
}

func NewValidationError(message string, cause error) *EngineError {
	return New(ErrorTypeValidation, message, cause)
}

// TypeOf returns the error type of err, or ErrorTypeExecution when err is
// not an EngineError (unclassified failures follow execution retry policy).
func TypeOf(err error) ErrorType {
	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return engineErr.Type
	}
	return ErrorTypeExecution
}

// IsRetryable reports whether the job queue may retry the failed operation.
// Restore jobs pin their attempt count to one regardless of this answer.
func IsRetryable(err error) bool {
	switch TypeOf(err) {
	case ErrorTypeConnection, ErrorTypeExecution, ErrorTypeIntegrity:
		return true
	default:
		return false
	}
}

// IsPermanent reports whether the error must never be retried
func IsPermanent(err error) bool {
	switch TypeOf(err) {
	case ErrorTypeConfiguration, ErrorTypeValidation:
		return true
	default:
		return false
	}
}

// UserMessage returns the operator-facing message for err: the full original
// error text without stack traces or internal detail.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
