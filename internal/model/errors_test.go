package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesByKind(t *testing.T) {
	err := fmt.Errorf("create user: %w", &Error{Kind: KindUniqueViolation, Message: "Email must be unique."})

	assert.ErrorIs(t, err, ErrUniqueViolation)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Equal(t, KindUniqueViolation, KindOf(err))
}

func TestErrorMessage(t *testing.T) {
	cause := errors.New("driver exploded")

	assert.Equal(t, "Event not found.", NotFound("Event not found.").Error())
	assert.Equal(t, "store temporarily unavailable: driver exploded", Transient(cause).Error())
	assert.Equal(t, "internal_error: driver exploded", (&Error{Kind: KindInternal, Err: cause}).Error())
	assert.Equal(t, "past_event", ErrPastEvent.Error())
	assert.ErrorIs(t, Transient(cause), cause)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	assert.Equal(t, KindValidation, KindOf(Validation("bad")))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(fmt.Errorf("reserve: %w", Transient(errors.New("lock timeout")))))
	for _, err := range []error{
		ErrCapacityExceeded, ErrDuplicateRegistration, ErrPastEvent,
		ErrNotFound, ErrNotRegistered, ErrValidation, errors.New("plain"),
	} {
		assert.False(t, IsRetryable(err), "%v", err)
	}
}

func TestIsStoreFailure(t *testing.T) {
	assert.True(t, IsStoreFailure(Transient(errors.New("busy"))))
	assert.True(t, IsStoreFailure(errors.New("plain")))
	assert.False(t, IsStoreFailure(NotFound("User not found.")))
	assert.False(t, IsStoreFailure(ErrRateLimited))
	assert.False(t, IsStoreFailure(nil))
}
