package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineError_Error(t *testing.T) {
	err := NewConnectionError("cannot reach database", fmt.Errorf("dial tcp: timeout"))

	assert.Contains(t, err.Error(), "connection")
	assert.Contains(t, err.Error(), "cannot reach database")
	assert.Contains(t, err.Error(), "dial tcp: timeout")
}

func TestEngineError_ErrorWithoutCause(t *testing.T) {
	err := NewValidationError("illegal destination name", nil)

	assert.Equal(t, "validation: illegal destination name", err.Error())
}

func TestEngineError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("exit status 2")
	err := NewExecutionError("mysqldump failed", cause)

	assert.Equal(t, cause, err.Unwrap())
}

func TestEngineError_WithContext(t *testing.T) {
	err := NewConnectionError("probe failed", nil).
		WithContext("server_id", "srv-1").
		WithContext("host", "db.internal")

	assert.Equal(t, "srv-1", err.Context["server_id"])
	assert.Equal(t, "db.internal", err.Context["host"])
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"connection error", NewConnectionError("unreachable", nil), true},
		{"execution error", NewExecutionError("exit 1", nil), true},
		{"integrity error", NewIntegrityError("checksum mismatch", nil), true},
		{"configuration error", NewConfigurationError("unknown volume type", nil), false},
		{"validation error", NewValidationError("bad name", nil), false},
		{"untyped error", fmt.Errorf("something broke"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}
}

func TestIsPermanent(t *testing.T) {
	assert.True(t, IsPermanent(NewConfigurationError("missing encryption key", nil)))
	assert.True(t, IsPermanent(NewValidationError("bad schema name", nil)))
	assert.False(t, IsPermanent(NewConnectionError("timeout", nil)))
	assert.False(t, IsPermanent(fmt.Errorf("plain")))
}

func TestTypeOf_WrappedEngineError(t *testing.T) {
	inner := NewConfigurationError("no such compressor", nil)
	wrapped := fmt.Errorf("resolving compressor: %w", inner)

	require.Equal(t, ErrorTypeConfiguration, TypeOf(wrapped))
	assert.False(t, IsRetryable(wrapped))
}

func TestUserMessage(t *testing.T) {
	assert.Empty(t, UserMessage(nil))
	assert.Equal(t, "execution: pg_dump failed", UserMessage(NewExecutionError("pg_dump failed", nil)))
}
