package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/beanwise/learning-engine/internal/domain/achievement"
)

// AchievementStore keeps the achievement catalog and unlocks.
type AchievementStore struct {
	mu       sync.Mutex
	catalog  map[string]achievement.Achievement
	unlocked map[string]map[string]time.Time
}

// NewAchievementStore creates a store seeded with the given catalog.
func NewAchievementStore(catalog ...achievement.Achievement) *AchievementStore {
	s := &AchievementStore{
		catalog:  make(map[string]achievement.Achievement),
		unlocked: make(map[string]map[string]time.Time),
	}
	for _, a := range catalog {
		s.catalog[a.ID] = a
	}
	return s
}

// UpsertAchievement implements achievement.CatalogWriter.
func (s *AchievementStore) UpsertAchievement(ctx context.Context, a achievement.Achievement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalog[a.ID] = a
	return nil
}

// ListActive implements achievement.Repository.
func (s *AchievementStore) ListActive(ctx context.Context) ([]achievement.Achievement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]achievement.Achievement, 0, len(s.catalog))
	for _, a := range s.catalog {
		if a.IsActive {
			out = append(out, a)
		}
	}
	achievement.SortCatalog(out)
	return out, nil
}

// ListEarnedIDs implements achievement.Repository.
func (s *AchievementStore) ListEarnedIDs(ctx context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.unlocked[userID]))
	for id := range s.unlocked[userID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Unlock implements achievement.Repository.
func (s *AchievementStore) Unlock(ctx context.Context, userID, achievementID string, at time.Time) (achievement.UnlockOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unlocked[userID] == nil {
		s.unlocked[userID] = make(map[string]time.Time)
	}
	if _, ok := s.unlocked[userID][achievementID]; ok {
		return achievement.UnlockAlreadyExists, nil
	}
	s.unlocked[userID][achievementID] = at
	return achievement.UnlockInserted, nil
}

// ListUnlocked implements achievement.Repository.
func (s *AchievementStore) ListUnlocked(ctx context.Context, userID string) ([]achievement.UserAchievement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]achievement.UserAchievement, 0, len(s.unlocked[userID]))
	for id, at := range s.unlocked[userID] {
		out = append(out, achievement.UserAchievement{UserID: userID, AchievementID: id, EarnedAt: at})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EarnedAt.Before(out[j].EarnedAt) })
	return out, nil
}
