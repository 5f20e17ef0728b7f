package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_IsKind(t *testing.T) {
	assert.True(t, IsAlreadyExists(ErrAchievementUnlocked))
	assert.True(t, IsNotFound(ErrMembershipNotFound))
	assert.False(t, IsNotFound(ErrNoHearts))
	assert.True(t, errors.Is(ErrInvalidSessionState, ErrStateTransition))
	assert.False(t, IsRetryable(ErrLessonNotFound))
	assert.True(t, IsRetryable(ErrContentUnavailable))
}

func TestDomainError_WrapKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := WrapError("streak", "RecordActivity", ErrServiceUnavailable, "stat store unavailable", cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrServiceUnavailable)
	assert.True(t, IsRetryable(fmt.Errorf("saga: %w", err)))
	assert.Equal(t, "streak.RecordActivity: stat store unavailable: connection reset", err.Error())
}

func TestIdentity(t *testing.T) {
	anon := Anonymous()
	_, ok := anon.UserID()
	assert.False(t, ok)
	assert.False(t, anon.IsAuthenticated())

	id, err := NewUserID(" u-1 ")
	assert.NoError(t, err)
	auth := Authenticated(id)
	got, ok := auth.UserID()
	assert.True(t, ok)
	assert.Equal(t, UserID("u-1"), got)

	_, err = NewUserID("  ")
	assert.True(t, IsValidation(err))
}

func TestRank(t *testing.T) {
	assert.True(t, Rank(0).IsUnranked())
	assert.True(t, Rank(3).IsTop(3))
	assert.False(t, Rank(4).IsTop(3))
}
