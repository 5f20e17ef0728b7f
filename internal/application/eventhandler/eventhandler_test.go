package eventhandler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beanwise/learning-engine/internal/domain/league"
	"github.com/beanwise/learning-engine/internal/domain/shared"
)

var at = time.Date(2024, 6, 5, 10, 0, 0, 0, time.UTC)

type cacheSpy struct {
	mu   sync.Mutex
	set  map[string]int
	fail error
}

func (c *cacheSpy) SetWeeklyXP(_ context.Context, leagueID string, _ time.Time, userID string, xp int) error {
	if c.fail != nil {
		return c.fail
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set[leagueID+"/"+userID] = xp
	return nil
}

func (c *cacheSpy) ReplaceStandings(context.Context, string, time.Time, []league.Membership) error {
	return nil
}

func (c *cacheSpy) Ranked(context.Context, string, time.Time) ([]league.Membership, error) {
	return nil, nil
}

func TestOnLeagueXPAdded_UpdatesCache(t *testing.T) {
	cache := &cacheSpy{set: map[string]int{}}
	h := NewOnLeagueXPAddedHandler(cache, nil, nil)

	err := h.Handle(shared.NewLeagueXPAddedEvent("u1", "bronze", at, 15, 40, at))
	require.NoError(t, err)
	assert.Equal(t, 40, cache.set["bronze/u1"])

	// other events are ignored
	assert.NoError(t, h.Handle(shared.NewStreakBrokenEvent("u1", 3, at)))
}

func TestOnLeagueXPAdded_CacheFailure(t *testing.T) {
	cache := &cacheSpy{set: map[string]int{}, fail: errors.New("redis down")}
	h := NewOnLeagueXPAddedHandler(cache, nil, nil)
	assert.Error(t, h.Handle(shared.NewLeagueXPAddedEvent("u1", "bronze", at, 15, 40, at)))
}

type toastSpy struct {
	toasts []shared.Toast
}

func (s *toastSpy) Notify(_ context.Context, t shared.Toast) {
	s.toasts = append(s.toasts, t)
}

func TestOnProgressNotify(t *testing.T) {
	spy := &toastSpy{}
	h := NewOnProgressNotifyHandler(spy, nil)

	require.NoError(t, h.Handle(shared.NewAchievementUnlockedEvent("u1", "a1", "first_lesson", 5, at)))
	require.NoError(t, h.Handle(shared.NewStreakBrokenEvent("u1", 1, at)))
	require.NoError(t, h.Handle(shared.NewStreakBrokenEvent("u1", 12, at)))
	require.NoError(t, h.Handle(shared.NewLessonCompletedEvent("u1", "l1", 20, 100, 60, at)))

	require.Len(t, spy.toasts, 2)
	assert.Contains(t, spy.toasts[0].Message, "first_lesson")
	assert.Equal(t, shared.ToastWarning, spy.toasts[1].Level)
	assert.Contains(t, h.EventTypes(), shared.EventHeartsDepleted)
}
