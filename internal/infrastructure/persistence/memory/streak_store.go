// Package memory provides in-process implementations of the stat store
// contracts. They back local runs without Postgres and the application tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/beanwise/learning-engine/internal/domain/hearts"
	"github.com/beanwise/learning-engine/internal/domain/shared"
	"github.com/beanwise/learning-engine/internal/domain/streak"
	"github.com/beanwise/learning-engine/pkg/timeutil"
)

type goalKey struct {
	userID string
	date   string
}

// StreakStore keeps user stats rows (streak and hearts) and daily goals.
// It implements streak.Repository and hearts.Repository.
type StreakStore struct {
	mu        sync.Mutex
	clock     timeutil.Clock
	maxHearts int
	stats     map[string]*streak.UserStreak
	goals     map[goalKey]streak.DailyGoal
}

// NewStreakStore creates an empty store.
func NewStreakStore(clock timeutil.Clock, maxHearts int) *StreakStore {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if maxHearts <= 0 {
		maxHearts = hearts.DefaultMaxHearts
	}
	return &StreakStore{
		clock:     clock,
		maxHearts: maxHearts,
		stats:     make(map[string]*streak.UserStreak),
		goals:     make(map[goalKey]streak.DailyGoal),
	}
}

// Put replaces a stats row.
func (s *StreakStore) Put(st streak.UserStreak) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats[st.UserID] = &st
}

// GetStreak implements streak.Repository.
func (s *StreakStore) GetStreak(ctx context.Context, userID string) (*streak.UserStreak, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stats[userID]
	if !ok {
		return nil, shared.ErrStreakNotFound
	}
	cp := *st
	return &cp, nil
}

// RecordActivity implements streak.Repository. The whole transition runs under one lock.
func (s *StreakStore) RecordActivity(ctx context.Context, ev streak.ActivityEvent) (streak.ActivityResult, error) {
	if ev.XP < 0 {
		return streak.ActivityResult{}, shared.ErrInvalidXP
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.rowLocked(ev.UserID)
	res := st.Apply(ev)
	updated := res.Streak
	s.stats[ev.UserID] = &updated
	return res, nil
}

// AddDailyXP implements streak.Repository.
func (s *StreakStore) AddDailyXP(ctx context.Context, userID string, date time.Time, xp, defaultGoalXP int) (streak.DailyGoalResult, error) {
	if xp < 0 {
		return streak.DailyGoalResult{}, shared.ErrInvalidXP
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := goalKey{userID: userID, date: timeutil.FormatDateStr(date)}
	goal, ok := s.goals[key]
	if !ok {
		goal = streak.NewDailyGoal(userID, date, defaultGoalXP)
	}
	res := goal.AddXP(xp)
	s.goals[key] = res.Goal
	return res, nil
}

// GetDailyGoal implements streak.Repository.
func (s *StreakStore) GetDailyGoal(ctx context.Context, userID string, date time.Time) (*streak.DailyGoal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	goal, ok := s.goals[goalKey{userID: userID, date: timeutil.FormatDateStr(date)}]
	if !ok {
		return nil, shared.ErrDailyGoalNotFound
	}
	return &goal, nil
}

// GetHearts implements hearts.Repository.
func (s *StreakStore) GetHearts(ctx context.Context, userID string) (hearts.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.stats[userID]; ok {
		return st.Hearts, nil
	}
	return hearts.Record{Hearts: s.maxHearts, MaxHearts: s.maxHearts, HeartsLastRefilledAt: s.clock.Now()}, nil
}

// CompareAndSetHearts implements hearts.Repository.
// A missing row accepts any full prev record.
func (s *StreakStore) CompareAndSetHearts(ctx context.Context, userID string, prev, next hearts.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stats[userID]
	switch {
	case !ok && prev.Hearts != prev.MaxHearts:
		return shared.ErrConcurrentModification
	case ok && !sameRecord(st.Hearts, prev):
		return shared.ErrConcurrentModification
	}

	row := s.rowLocked(userID)
	row.Hearts = next
	s.stats[userID] = &row
	return nil
}

func (s *StreakStore) rowLocked(userID string) streak.UserStreak {
	if st, ok := s.stats[userID]; ok {
		return *st
	}
	return *streak.NewUserStreak(userID, s.maxHearts, s.clock.Now())
}

func sameRecord(a, b hearts.Record) bool {
	return a.Hearts == b.Hearts && a.MaxHearts == b.MaxHearts && a.HeartsLastRefilledAt.Equal(b.HeartsLastRefilledAt)
}
