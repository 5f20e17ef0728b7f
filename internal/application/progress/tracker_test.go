package progress

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beanwise/learning-engine/internal/application/saga"
	"github.com/beanwise/learning-engine/internal/domain/anonymous"
	"github.com/beanwise/learning-engine/internal/domain/lesson"
	"github.com/beanwise/learning-engine/internal/domain/shared"
	"github.com/beanwise/learning-engine/internal/infrastructure/persistence/local"
	"github.com/beanwise/learning-engine/internal/infrastructure/persistence/memory"
	"github.com/beanwise/learning-engine/pkg/timeutil"
)

var at = time.Date(2024, 6, 5, 10, 0, 0, 0, time.UTC)

func outcome(id string) lesson.Outcome {
	return lesson.Outcome{LessonID: id, BaseXP: 10, Correct: 4, Total: 5, ScorePercent: 80, TimeSpentSeconds: 200}
}

func TestAnonymousTracker_GateFunnel(t *testing.T) {
	ctx := context.Background()
	store := local.NewMemoryStore()
	tr := NewAnonymousTracker(store, nil)

	c, err := tr.Complete(ctx, outcome("a"), at)
	require.NoError(t, err)
	// 10 base + 5 first of day
	assert.Equal(t, 15, c.Score.TotalXP)
	assert.Equal(t, anonymous.GateSoft, c.Gate)

	require.NoError(t, tr.Dismiss(ctx))

	c, err = tr.Complete(ctx, outcome("b"), at.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 10, c.Score.TotalXP)
	assert.Equal(t, anonymous.GateNone, c.Gate)

	c, err = tr.Complete(ctx, outcome("c"), at.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, anonymous.GateHard, c.Gate)
	assert.ErrorIs(t, tr.Dismiss(ctx), shared.ErrHardGateActive)

	snap, err := tr.Snapshot(ctx)
	require.NoError(t, err)
	assert.False(t, snap.Authenticated)
	assert.Equal(t, 3, snap.LessonsCompleted)
	assert.Equal(t, 35, snap.TotalXP)
}

func TestOnAuthenticated_ClearsLocalProgress(t *testing.T) {
	ctx := context.Background()
	store := local.NewMemoryStore()
	tr := NewAnonymousTracker(store, nil)
	_, err := tr.Complete(ctx, outcome("a"), at)
	require.NoError(t, err)

	streaks := memory.NewStreakStore(timeutil.NewFixedClock(at), 5)
	require.NoError(t, OnAuthenticated(ctx, store))
	assert.True(t, store.IsEmpty())

	// nothing was merged into the stat store
	_, err = streaks.GetStreak(ctx, "u1")
	assert.ErrorIs(t, err, shared.ErrStreakNotFound)
}

func TestPersistedTracker_CompleteAndSnapshot(t *testing.T) {
	ctx := context.Background()
	clock := timeutil.NewFixedClock(at)
	streaks := memory.NewStreakStore(clock, 5)
	s := saga.NewLessonCompletionSaga(saga.LessonCompletionDeps{
		StreakRepo:   streaks,
		ProgressRepo: memory.NewLessonStore(),
	}, saga.CompletionConfig{DailyGoalXP: 10})

	tr := ForIdentity(shared.Authenticated("u1"), s, streaks, local.NewMemoryStore(), nil)

	snap, err := tr.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, snap.Authenticated)
	assert.Equal(t, 0, snap.LessonsCompleted)

	c, err := tr.Complete(ctx, outcome("a"), at)
	require.NoError(t, err)
	assert.Equal(t, 15, c.Score.TotalXP)
	assert.Equal(t, anonymous.GateNone, c.Gate)

	snap, err = tr.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.CurrentStreak)
	assert.Equal(t, 15, snap.TotalXP)

	// nothing failed, nothing to retry
	_, err = tr.Retry(ctx)
	assert.NoError(t, err)
	assert.NoError(t, tr.Dismiss(ctx))
}

func TestForIdentity_Anonymous(t *testing.T) {
	tr := ForIdentity(shared.Anonymous(), nil, nil, local.NewMemoryStore(), nil)
	_, ok := tr.(*AnonymousTracker)
	assert.True(t, ok)
}

func TestWithoutSoftGate_KeepsHardGate(t *testing.T) {
	ctx := context.Background()
	tr := WithoutSoftGate(NewAnonymousTracker(local.NewMemoryStore(), nil))

	c, err := tr.Complete(ctx, outcome("a"), at)
	require.NoError(t, err)
	assert.Equal(t, anonymous.GateNone, c.Gate)

	_, err = tr.Complete(ctx, outcome("b"), at)
	require.NoError(t, err)
	c, err = tr.Complete(ctx, outcome("c"), at)
	require.NoError(t, err)
	assert.Equal(t, anonymous.GateHard, c.Gate)

	snap, err := tr.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, anonymous.GateHard, snap.Gate)
}
