package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beanwise/learning-engine/internal/domain/league"
	"github.com/beanwise/learning-engine/internal/infrastructure/catalog"
	"github.com/beanwise/learning-engine/internal/infrastructure/persistence/memory"
	"github.com/beanwise/learning-engine/pkg/timeutil"
)

type fakeCache struct {
	tables map[string][]league.Membership
	failOn string
}

func (c *fakeCache) SetWeeklyXP(context.Context, string, time.Time, string, int) error { return nil }

func (c *fakeCache) ReplaceStandings(_ context.Context, leagueID string, _ time.Time, ms []league.Membership) error {
	if leagueID == c.failOn {
		return errors.New("redis down")
	}
	c.tables[leagueID] = ms
	return nil
}

func (c *fakeCache) Ranked(_ context.Context, leagueID string, _ time.Time) ([]league.Membership, error) {
	return c.tables[leagueID], nil
}

func TestSyncLeagueStandingsJob(t *testing.T) {
	clock := timeutil.NewFixedClock(time.Date(2024, 3, 13, 12, 0, 0, 0, time.UTC))
	week := timeutil.WeekStartDate(clock.Now())

	store := memory.NewLeagueStore(
		league.League{ID: "bronze", Tier: 1},
		league.League{ID: "silver", Tier: 2},
	)
	require.NoError(t, store.AddMembership(league.Membership{UserID: "u-1", LeagueID: "bronze", WeekStartDate: week, WeeklyXP: 30}))
	require.NoError(t, store.AddMembership(league.Membership{UserID: "u-2", LeagueID: "bronze", WeekStartDate: week, WeeklyXP: 50}))
	require.NoError(t, store.AddMembership(league.Membership{UserID: "u-3", LeagueID: "bronze", WeekStartDate: week.AddDate(0, 0, -7), WeeklyXP: 99}))

	cache := &fakeCache{tables: map[string][]league.Membership{}, failOn: "silver"}
	job := NewSyncLeagueStandingsJob(store, cache, clock, nil)

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "league silver")
	assert.Len(t, cache.tables["bronze"], 2)
}

func TestReloadCatalogJob(t *testing.T) {
	leagues := memory.NewLeagueStore()
	job := NewReloadCatalogJob("", catalog.Writers{Leagues: leagues}, nil)

	require.NoError(t, job.Run(context.Background()))
	list, err := leagues.ListLeagues(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 4)
	assert.Equal(t, "reload_catalog", job.Name())
}
