package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beanwise/learning-engine/internal/domain/league"
	"github.com/beanwise/learning-engine/internal/domain/shared"
	"github.com/beanwise/learning-engine/internal/domain/streak"
	"github.com/beanwise/learning-engine/internal/infrastructure/persistence/memory"
	"github.com/beanwise/learning-engine/pkg/timeutil"
)

// Wednesday
var now = time.Date(2024, 6, 5, 12, 0, 0, 0, time.UTC)

func TestGetHearts_RegeneratesOverTime(t *testing.T) {
	ctx := context.Background()
	clock := timeutil.NewFixedClock(now)
	store := memory.NewStreakStore(clock, 5)

	st := streak.NewUserStreak("u1", 5, now)
	st.Hearts.Hearts = 2
	st.Hearts.HeartsLastRefilledAt = now.Add(-9 * time.Hour)
	store.Put(*st)

	status, err := NewGetHeartsHandler(store, clock, 4*time.Hour).Handle(ctx, GetHeartsQuery{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 4, status.Available)
	assert.Equal(t, 5, status.Max)
	require.NotNil(t, status.NextHeartIn)
	assert.Equal(t, 3*time.Hour, *status.NextHeartIn)
}

func TestGetDailyProgress(t *testing.T) {
	ctx := context.Background()
	clock := timeutil.NewFixedClock(now)
	store := memory.NewStreakStore(clock, 5)
	h := NewGetDailyProgressHandler(store, clock, 10)

	dto, err := h.Handle(ctx, GetDailyProgressQuery{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 10, dto.RemainingXP)
	assert.False(t, dto.StreakAtRisk)

	yesterday := timeutil.DateOf(now).AddDate(0, 0, -1)
	_, err = store.RecordActivity(ctx, streak.ActivityEvent{UserID: "u1", Date: yesterday, XP: 12})
	require.NoError(t, err)

	dto, err = h.Handle(ctx, GetDailyProgressQuery{UserID: "u1"})
	require.NoError(t, err)
	assert.True(t, dto.StreakAtRisk)
	assert.Equal(t, 1, dto.CurrentStreak)

	_, err = store.AddDailyXP(ctx, "u1", timeutil.DateOf(now), 12, 10)
	require.NoError(t, err)
	dto, err = h.Handle(ctx, GetDailyProgressQuery{UserID: "u1"})
	require.NoError(t, err)
	assert.True(t, dto.IsAchieved)
	assert.Equal(t, 0, dto.RemainingXP)
}

type staleCache struct {
	members []league.Membership
	err     error
}

func (c staleCache) SetWeeklyXP(context.Context, string, time.Time, string, int) error { return nil }
func (c staleCache) ReplaceStandings(context.Context, string, time.Time, []league.Membership) error {
	return nil
}
func (c staleCache) Ranked(context.Context, string, time.Time) ([]league.Membership, error) {
	return c.members, c.err
}

func seededLeagues(t *testing.T) *memory.LeagueStore {
	t.Helper()
	store := memory.NewLeagueStore(league.League{ID: "silver", Tier: 2, Name: "Silver", PromoteTopN: 1, DemoteBottomN: 1})
	week := timeutil.WeekStartDate(now)
	for i, xp := range []int{30, 80, 50} {
		require.NoError(t, store.AddMembership(league.Membership{
			ID: string(rune('a' + i)), UserID: string(rune('a' + i)), LeagueID: "silver", WeekStartDate: week, WeeklyXP: xp,
		}))
	}
	return store
}

func TestGetLeagueStanding_FromStore(t *testing.T) {
	store := seededLeagues(t)
	h := NewGetLeagueStandingHandler(store, staleCache{err: errors.New("redis down")}, timeutil.NewFixedClock(now), nil)

	dto, err := h.Handle(context.Background(), GetLeagueStandingQuery{UserID: "c"})
	require.NoError(t, err)
	assert.Equal(t, "Silver", dto.League.Name)
	assert.Equal(t, shared.Rank(2), dto.Rank)
	assert.Equal(t, league.ZoneStay, dto.Zone)
	assert.Equal(t, 5, dto.DaysRemaining)
	require.Len(t, dto.Members, 3)
	assert.Equal(t, "b", dto.Members[0].UserID)
	assert.Equal(t, league.ZoneDemote, dto.Members[2].Zone)
}

func TestGetLeagueStanding_CacheWithoutCaller(t *testing.T) {
	store := seededLeagues(t)
	cache := staleCache{members: []league.Membership{{UserID: "b", LeagueID: "silver", WeeklyXP: 80}}}
	h := NewGetLeagueStandingHandler(store, cache, timeutil.NewFixedClock(now), nil)

	dto, err := h.Handle(context.Background(), GetLeagueStandingQuery{UserID: "a"})
	require.NoError(t, err)
	assert.Equal(t, shared.Rank(2), dto.Rank)
	assert.Len(t, dto.Members, 2)
}

func TestGetLeagueStanding_NoMembership(t *testing.T) {
	h := NewGetLeagueStandingHandler(memory.NewLeagueStore(), nil, timeutil.NewFixedClock(now), nil)
	_, err := h.Handle(context.Background(), GetLeagueStandingQuery{UserID: "zzz"})
	assert.ErrorIs(t, err, shared.ErrMembershipNotFound)
}
