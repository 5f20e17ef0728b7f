package query

import (
	"context"
	"time"

	"github.com/beanwise/learning-engine/internal/domain/league"
	"github.com/beanwise/learning-engine/internal/domain/shared"
	"github.com/beanwise/learning-engine/pkg/circuitbreaker"
	"github.com/beanwise/learning-engine/pkg/logger"
	"github.com/beanwise/learning-engine/pkg/timeutil"
)

// GetLeagueStandingQuery asks for the caller's league table.
type GetLeagueStandingQuery struct {
	UserID string
}

// LeagueStandingDTO is the league screen.
type LeagueStandingDTO struct {
	League        league.League
	WeekStart     time.Time
	Members       []league.Standing
	Me            league.Standing
	Rank          shared.Rank
	Zone          league.Zone
	DaysRemaining int
}

// GetLeagueStandingHandler builds the caller's standing. The Redis copy of the
// table is read first; the stat store is the fallback.
type GetLeagueStandingHandler struct {
	repo    league.Repository
	cache   league.StandingsCache
	breaker *circuitbreaker.CircuitBreaker
	clock   timeutil.Clock
	log     *logger.Logger
}

// NewGetLeagueStandingHandler creates a new GetLeagueStandingHandler. cache may be nil.
func NewGetLeagueStandingHandler(repo league.Repository, cache league.StandingsCache, clock timeutil.Clock, log *logger.Logger) *GetLeagueStandingHandler {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &GetLeagueStandingHandler{
		repo:    repo,
		cache:   cache,
		breaker: circuitbreaker.CacheBreaker(nil),
		clock:   clock,
		log:     log.With(logger.Component("league_standing")),
	}
}

// Handle executes the query. Returns shared.ErrMembershipNotFound for users
// without a league.
func (h *GetLeagueStandingHandler) Handle(ctx context.Context, q GetLeagueStandingQuery) (*LeagueStandingDTO, error) {
	if q.UserID == "" {
		return nil, shared.NewDomainError("league", "GetStanding", shared.ErrInvalidID, "user id is required")
	}

	m, err := h.repo.GetCurrentMembership(ctx, q.UserID)
	if err != nil {
		return nil, err
	}
	l, err := h.repo.GetLeague(ctx, m.LeagueID)
	if err != nil {
		return nil, err
	}

	members, err := h.members(ctx, m.LeagueID, m.WeekStartDate)
	if err != nil {
		return nil, err
	}

	table := league.Rank(*l, m.WeekStartDate, members)
	me, ok := table.Find(q.UserID)
	if !ok {
		// cache lagging behind: the caller is always part of the table
		table = league.Rank(*l, m.WeekStartDate, append(members, *m))
		me, _ = table.Find(q.UserID)
	}

	return &LeagueStandingDTO{
		League:        *l,
		WeekStart:     m.WeekStartDate,
		Members:       table.Entries,
		Me:            me,
		Rank:          shared.Rank(me.Rank),
		Zone:          me.Zone,
		DaysRemaining: league.DaysRemaining(m.WeekStartDate, h.clock.Now()),
	}, nil
}

func (h *GetLeagueStandingHandler) members(ctx context.Context, leagueID string, weekStart time.Time) ([]league.Membership, error) {
	if h.cache != nil {
		var cached []league.Membership
		err := h.breaker.Execute(ctx, func(ctx context.Context) error {
			var err error
			cached, err = h.cache.Ranked(ctx, leagueID, weekStart)
			return err
		})
		if err == nil && len(cached) > 0 {
			return cached, nil
		}
		if err != nil {
			h.log.Debug("standings cache miss", logger.LeagueID(leagueID), logger.Err(err))
		}
	}
	return h.repo.ListMemberships(ctx, leagueID, weekStart)
}
