// Package jobs contains the scheduled jobs of the engine.
package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/beanwise/learning-engine/internal/domain/league"
	"github.com/beanwise/learning-engine/pkg/logger"
	"github.com/beanwise/learning-engine/pkg/timeutil"
)

// SyncLeagueStandingsJob rebuilds the cached weekly tables from the stat
// store. Incremental cache writes are best effort, so drift is repaired here.
type SyncLeagueStandingsJob struct {
	repo  league.Repository
	cache league.StandingsCache
	clock timeutil.Clock
	log   *logger.Logger
}

// NewSyncLeagueStandingsJob creates the job.
func NewSyncLeagueStandingsJob(repo league.Repository, cache league.StandingsCache, clock timeutil.Clock, log *logger.Logger) *SyncLeagueStandingsJob {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &SyncLeagueStandingsJob{repo: repo, cache: cache, clock: clock, log: log.With(logger.Component("sync_league_standings"))}
}

// Name implements scheduler.Job.
func (j *SyncLeagueStandingsJob) Name() string { return "sync_league_standings" }

// Description implements scheduler.Job.
func (j *SyncLeagueStandingsJob) Description() string {
	return "Rebuilds cached weekly league tables from the stat store"
}

// Run implements scheduler.Job. A failing league does not stop the others.
func (j *SyncLeagueStandingsJob) Run(ctx context.Context) error {
	leagues, err := j.repo.ListLeagues(ctx)
	if err != nil {
		return fmt.Errorf("list leagues: %w", err)
	}

	week := timeutil.WeekStartDate(j.clock.Now())
	var errs []error
	synced := 0
	for _, l := range leagues {
		if err := ctx.Err(); err != nil {
			return err
		}
		members, err := j.repo.ListMemberships(ctx, l.ID, week)
		if err != nil {
			errs = append(errs, fmt.Errorf("league %s: %w", l.ID, err))
			continue
		}
		if err := j.cache.ReplaceStandings(ctx, l.ID, week, members); err != nil {
			errs = append(errs, fmt.Errorf("league %s: %w", l.ID, err))
			continue
		}
		synced++
	}

	j.log.Info("league standings synced",
		logger.Int("leagues", synced),
		logger.String("week", timeutil.FormatDateStr(week)),
	)
	return errors.Join(errs...)
}
