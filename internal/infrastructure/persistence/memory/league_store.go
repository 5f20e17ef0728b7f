package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/beanwise/learning-engine/internal/domain/league"
	"github.com/beanwise/learning-engine/internal/domain/shared"
)

// LeagueStore keeps leagues and weekly memberships.
type LeagueStore struct {
	mu          sync.Mutex
	leagues     map[string]league.League
	memberships []league.Membership
}

// NewLeagueStore creates a store seeded with the given leagues.
func NewLeagueStore(leagues ...league.League) *LeagueStore {
	s := &LeagueStore{leagues: make(map[string]league.League)}
	for _, l := range leagues {
		s.leagues[l.ID] = l
	}
	return s
}

// AddMembership inserts a membership. One row per (user, week).
func (s *LeagueStore) AddMembership(m league.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.memberships {
		if existing.UserID == m.UserID && existing.WeekStartDate.Equal(m.WeekStartDate) {
			return shared.ErrMembershipExists
		}
	}
	s.memberships = append(s.memberships, m)
	return nil
}

// UpsertLeague implements league.CatalogWriter.
func (s *LeagueStore) UpsertLeague(ctx context.Context, l league.League) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leagues[l.ID] = l
	return nil
}

// GetLeague implements league.Repository.
func (s *LeagueStore) GetLeague(ctx context.Context, id string) (*league.League, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leagues[id]
	if !ok {
		return nil, shared.ErrLeagueNotFound
	}
	return &l, nil
}

// ListLeagues implements league.Repository.
func (s *LeagueStore) ListLeagues(ctx context.Context) ([]league.League, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]league.League, 0, len(s.leagues))
	for _, l := range s.leagues {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tier < out[j].Tier })
	return out, nil
}

// GetCurrentMembership implements league.Repository.
func (s *LeagueStore) GetCurrentMembership(ctx context.Context, userID string) (*league.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.latestLocked(userID)
	if i < 0 {
		return nil, shared.ErrMembershipNotFound
	}
	m := s.memberships[i]
	return &m, nil
}

// AddWeeklyXP implements league.Repository.
func (s *LeagueStore) AddWeeklyXP(ctx context.Context, userID string, xp int) (league.AddResult, error) {
	if xp < 0 {
		return league.AddResult{}, shared.ErrInvalidXP
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.latestLocked(userID)
	if i < 0 {
		return league.AddResult{Applied: false}, nil
	}
	s.memberships[i].WeeklyXP += xp
	return league.AddResult{Applied: true, Membership: s.memberships[i]}, nil
}

// ListMemberships implements league.Repository.
func (s *LeagueStore) ListMemberships(ctx context.Context, leagueID string, weekStart time.Time) ([]league.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]league.Membership, 0)
	for _, m := range s.memberships {
		if m.LeagueID == leagueID && m.WeekStartDate.Equal(weekStart) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *LeagueStore) latestLocked(userID string) int {
	idx := -1
	for i, m := range s.memberships {
		if m.UserID != userID {
			continue
		}
		if idx < 0 || m.WeekStartDate.After(s.memberships[idx].WeekStartDate) {
			idx = i
		}
	}
	return idx
}
