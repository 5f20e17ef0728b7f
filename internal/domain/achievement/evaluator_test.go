package achievement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beanwise/learning-engine/pkg/timeutil"
)

type memRepo struct {
	mu       sync.Mutex
	catalog  []Achievement
	unlocked map[string]map[string]time.Time
	failFor  string
}

func newMemRepo(catalog ...Achievement) *memRepo {
	return &memRepo{catalog: catalog, unlocked: make(map[string]map[string]time.Time)}
}

func (r *memRepo) ListActive(ctx context.Context) ([]Achievement, error) {
	out := make([]Achievement, 0, len(r.catalog))
	for _, a := range r.catalog {
		if a.IsActive {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memRepo) ListEarnedIDs(ctx context.Context, userID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0)
	for id := range r.unlocked[userID] {
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *memRepo) Unlock(ctx context.Context, userID, achievementID string, at time.Time) (UnlockOutcome, error) {
	if achievementID == r.failFor {
		return 0, errors.New("insert failed")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unlocked[userID] == nil {
		r.unlocked[userID] = make(map[string]time.Time)
	}
	if _, ok := r.unlocked[userID][achievementID]; ok {
		return UnlockAlreadyExists, nil
	}
	r.unlocked[userID][achievementID] = at
	return UnlockInserted, nil
}

func (r *memRepo) ListUnlocked(ctx context.Context, userID string) ([]UserAchievement, error) {
	return nil, nil
}

// staleRepo always reports nothing earned, like two flows that read before either wrote.
type staleRepo struct{ *memRepo }

func (r staleRepo) ListEarnedIDs(ctx context.Context, userID string) ([]string, error) {
	return nil, nil
}

var catalog = []Achievement{
	{ID: "a-streak7", Code: "streak_7", ConditionType: ConditionStreakDays, ConditionValue: 7, IsActive: true, SortOrder: 2},
	{ID: "a-first", Code: "first_lesson", ConditionType: ConditionLessonsCompleted, ConditionValue: 1, IsActive: true, SortOrder: 1},
	{ID: "a-track", Code: "espresso_track", ConditionType: ConditionTrackComplete, ConditionValue: 1, IsActive: true, SortOrder: 3},
	{ID: "a-gold", Code: "gold_league", ConditionType: ConditionLeagueTier, ConditionValue: 0, IsActive: true, SortOrder: 4},
	{ID: "a-off", Code: "retired", ConditionType: ConditionLessonsCompleted, ConditionValue: 1, IsActive: false, SortOrder: 0},
}

func TestEvaluate_ReturnsNewUnlocksInCatalogOrder(t *testing.T) {
	repo := newMemRepo(catalog...)
	ev := NewEvaluator(repo, timeutil.NewFixedClock(time.Now()))

	got, err := ev.Evaluate(context.Background(), "u-1", StatsSnapshot{CurrentStreak: 7, TotalLessonsCompleted: 3})

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "first_lesson", got[0].Code)
	assert.Equal(t, "streak_7", got[1].Code)
}

func TestEvaluate_IsIdempotent(t *testing.T) {
	repo := newMemRepo(catalog...)
	ev := NewEvaluator(repo, nil)
	snap := StatsSnapshot{CurrentStreak: 7, TotalLessonsCompleted: 1}

	first, err := ev.Evaluate(context.Background(), "u-1", snap)
	require.NoError(t, err)
	assert.Len(t, first, 2)

	second, err := ev.Evaluate(context.Background(), "u-1", snap)
	require.NoError(t, err)
	assert.Empty(t, second)
}

func TestEvaluate_ConcurrentFlowsUnlockOnce(t *testing.T) {
	repo := newMemRepo(catalog[0])
	ev := NewEvaluator(staleRepo{repo}, nil)
	snap := StatsSnapshot{CurrentStreak: 7}

	var wg sync.WaitGroup
	results := make([][]Achievement, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := ev.Evaluate(context.Background(), "u-1", snap)
			assert.NoError(t, err)
			results[i] = got
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, len(results[0])+len(results[1]))
}

func TestEvaluate_OneFailureDoesNotAbortBatch(t *testing.T) {
	repo := newMemRepo(catalog...)
	repo.failFor = "a-first"
	ev := NewEvaluator(repo, nil)

	got, err := ev.Evaluate(context.Background(), "u-1", StatsSnapshot{CurrentStreak: 10, TotalLessonsCompleted: 5})

	assert.Error(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "streak_7", got[0].Code)
}

func TestIsSatisfied_UnimplementedTypesAreFalse(t *testing.T) {
	snap := StatsSnapshot{CurrentStreak: 1000, TotalLessonsCompleted: 1000}
	assert.False(t, Achievement{ConditionType: ConditionTrackComplete}.IsSatisfied(snap))
	assert.False(t, Achievement{ConditionType: ConditionLeagueTier}.IsSatisfied(snap))
	assert.False(t, Achievement{ConditionType: "unknown"}.IsSatisfied(snap))
	assert.True(t, ConditionLeagueTier.IsKnown())
	assert.False(t, ConditionType("unknown").IsKnown())
}
