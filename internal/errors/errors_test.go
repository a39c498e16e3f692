package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError(t *testing.T) {
	t.Run("Error returns formatted string", func(t *testing.T) {
		err := New(ErrCodeNotFound, "Session not found")
		assert.Equal(t, "NOT_FOUND: Session not found", err.Error())
	})

	t.Run("Error with cause includes cause", func(t *testing.T) {
		cause := errors.New("database connection failed")
		err := Wrap(ErrCodeDatabase, "Database error", cause)
		assert.Contains(t, err.Error(), "DATABASE_ERROR")
		assert.Contains(t, err.Error(), "Database error")
		assert.Contains(t, err.Error(), "database connection failed")
	})

	t.Run("WithCause adds cause to error", func(t *testing.T) {
		cause := errors.New("original error")
		err := New(ErrCodeInternal, "Something went wrong").WithCause(cause)
		assert.Equal(t, cause, err.Unwrap())
	})

	t.Run("WithDetails adds details to error", func(t *testing.T) {
		details := map[string]string{"field": "stake"}
		err := New(ErrCodeValidation, "Validation failed").WithDetails(details)
		assert.Equal(t, details, err.Details)
	})
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name         string
		constructor  func() *AppError
		expectedCode ErrorCode
	}{
		{"Validation", func() *AppError { return Validation("test") }, ErrCodeValidation},
		{"InvalidInput", func() *AppError { return InvalidInput("stake", "too small") }, ErrCodeValidation},
		{"MissingRequired", func() *AppError { return MissingRequired("nonce") }, ErrCodeValidation},
		{"State", func() *AppError { return State("test") }, ErrCodeState},
		{"NotFound", func() *AppError { return NotFound("Session") }, ErrCodeNotFound},
		{"Conflict", func() *AppError { return Conflict("test") }, ErrCodeConflict},
		{"Authorization", func() *AppError { return Authorization("test") }, ErrCodeAuthorization},
		{"Replay", func() *AppError { return Replay("test") }, ErrCodeReplay},
		{"Expiry", func() *AppError { return Expiry("test") }, ErrCodeExpiry},
		{"InsufficientFunds", func() *AppError { return InsufficientFunds("a", 10, 5) }, ErrCodeInsufficientFunds},
		{"Unauthorized", func() *AppError { return Unauthorized("test") }, ErrCodeUnauthorized},
		{"RateLimitExceeded", func() *AppError { return RateLimitExceeded() }, ErrCodeRateLimitExceeded},
		{"Internal", func() *AppError { return Internal("test") }, ErrCodeInternal},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.constructor()
			assert.Equal(t, tc.expectedCode, err.Code)
			assert.NotEmpty(t, err.Message)
		})
	}
}

func TestExternal(t *testing.T) {
	t.Run("wraps external service error", func(t *testing.T) {
		cause := errors.New("timeout")
		err := External("value ledger", cause)
		assert.Equal(t, ErrCodeExternal, err.Code)
		assert.Contains(t, err.Message, "value ledger")
		assert.Equal(t, cause, err.Unwrap())
	})
}

func TestAsAppError(t *testing.T) {
	t.Run("extracts AppError through fmt wrapping", func(t *testing.T) {
		original := State("already committed")
		wrapped := fmt.Errorf("commit choice: %w", original)
		extracted, ok := AsAppError(wrapped)
		assert.True(t, ok)
		assert.Equal(t, original, extracted)
	})

	t.Run("returns false for non-AppError", func(t *testing.T) {
		extracted, ok := AsAppError(errors.New("standard error"))
		assert.False(t, ok)
		assert.Nil(t, extracted)
	})
}

func TestGetCode(t *testing.T) {
	t.Run("returns code for AppError", func(t *testing.T) {
		assert.Equal(t, ErrCodeReplay, GetCode(Replay("invalid reveal")))
	})

	t.Run("returns ErrCodeInternal for standard error", func(t *testing.T) {
		assert.Equal(t, ErrCodeInternal, GetCode(errors.New("standard error")))
	})
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		kind ErrorCode
	}{
		{NotFound("Session"), ErrCodeState},
		{Conflict("lost update"), ErrCodeState},
		{InsufficientFunds("a", 1, 0), ErrCodeValidation},
		{Expiry("deadline passed"), ErrCodeExpiry},
		{Authorization("not a participant"), ErrCodeAuthorization},
		{errors.New("boom"), ErrCodeInternal},
	}

	for _, tc := range tests {
		t.Run(string(tc.kind)+" from "+string(GetCode(tc.err)), func(t *testing.T) {
			assert.Equal(t, tc.kind, Kind(tc.err))
		})
	}
}

func TestIs(t *testing.T) {
	t.Run("matches exact code and folded kind", func(t *testing.T) {
		err := NotFound("Session")
		assert.True(t, Is(err, ErrCodeNotFound))
		assert.True(t, Is(err, ErrCodeState))
		assert.False(t, Is(err, ErrCodeValidation))
	})

	t.Run("nil is never a kind", func(t *testing.T) {
		assert.False(t, Is(nil, ErrCodeInternal))
	})
}
