package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorError(t *testing.T) {
	t.Run("without cause", func(t *testing.T) {
		err := NotFound("job not found")
		assert.Equal(t, "job not found", err.Error())
	})

	t.Run("with cause", func(t *testing.T) {
		cause := errors.New("row missing")
		err := Wrap(cause, ErrCodeNotFound, "job not found")
		assert.Equal(t, "job not found: row missing", err.Error())
		assert.ErrorIs(t, err, cause)
	})
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name  string
		err   *AppError
		code  ErrorCode
		check func(error) bool
	}{
		{name: "not found", err: NotFoundf("job %s not found", "abc"), code: ErrCodeNotFound, check: IsNotFound},
		{name: "conflict", err: Conflict("already active"), code: ErrCodeConflict, check: IsConflict},
		{name: "validation", err: Validation("bad input"), code: ErrCodeValidation, check: IsValidation},
		{name: "invalid state", err: InvalidStatef("job is %s", "passed"), code: ErrCodeInvalidState, check: IsInvalidState},
		{name: "quota exceeded", err: QuotaExceeded("daily limit reached"), code: ErrCodeQuotaExceeded, check: IsQuotaExceeded},
		{name: "internal", err: Internal("boom"), code: ErrCodeInternal, check: IsInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NotNil(t, tt.err)
			assert.Equal(t, tt.code, tt.err.Code)
			assert.True(t, tt.check(tt.err))
			assert.Equal(t, tt.code, GetCode(tt.err))
		})
	}
}

func TestValidationField(t *testing.T) {
	err := ValidationField("document_number", "required")
	assert.Equal(t, "document_number", GetField(err))
	assert.True(t, IsValidation(err))
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "ignored"))
	assert.Nil(t, Wrapf(nil, ErrCodeInternal, "ignored %d", 1))
}

func TestChecksThroughWrapping(t *testing.T) {
	inner := InvalidState("cannot review a completed job")
	outer := fmt.Errorf("review failed: %w", inner)

	assert.True(t, IsInvalidState(outer))
	assert.Equal(t, ErrCodeInvalidState, GetCode(outer))
	assert.False(t, IsConflict(outer))
}

func TestGetCodeNonAppError(t *testing.T) {
	assert.Equal(t, ErrorCode(""), GetCode(errors.New("plain")))
	assert.Equal(t, "", GetField(errors.New("plain")))
}
