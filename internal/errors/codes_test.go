package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(cause, ErrCodeSaveMessagesFailed, "failed to save messages")

	assert.Equal(t, "[SAVE_MESSAGES_FAILED] failed to save messages: connection reset", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "[INVALID_ARGUMENT] bad id", InvalidArgument("bad id").Error())

	err.WithContext("session_id", "s-1")
	assert.Equal(t, "s-1", err.Context["session_id"])
}

func TestIsCode(t *testing.T) {
	err := NotFound("session", "abc")
	assert.True(t, IsCode(err, ErrCodeNotFound))
	assert.False(t, IsCode(err, ErrCodeUnauthorized))
	assert.Equal(t, "session not found: abc", err.Message)

	wrapped := fmt.Errorf("handler: %w", err)
	assert.True(t, IsCode(wrapped, ErrCodeNotFound))

	assert.False(t, IsCode(errors.New("plain"), ErrCodeNotFound))
	assert.False(t, IsCode(nil, ErrCodeNotFound))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, ErrCodeRateLimitExceeded, CodeOf(RateLimitExceeded("slow down"), ErrCodeInvalidArgument))
	assert.Equal(t, ErrCodeInvalidArgument, CodeOf(errors.New("plain"), ErrCodeInvalidArgument))

	assert.Equal(t, "slow down", MessageOf(RateLimitExceeded("slow down"), "fallback"))
	assert.Equal(t, "fallback", MessageOf(errors.New("plain"), "fallback"))
}
