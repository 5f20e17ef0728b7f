package lesson

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beanwise/learning-engine/internal/domain/shared"
)

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func loadedSession(t *testing.T, n int) *Session {
	t.Helper()
	ex := make([]Exercise, n)
	for i := range ex {
		// reversed order on purpose
		ex[i] = Exercise{ID: string(rune('a' + i)), LessonID: "l1", SortOrder: n - i, CorrectAnswer: "Arabica"}
	}
	s := NewSession()
	require.Equal(t, StateLoading, s.State())
	require.NoError(t, s.Loaded(Lesson{ID: "l1", XPReward: 10}, ex))
	require.Equal(t, StateIntro, s.State())
	return s
}

func TestSession_HappyPath(t *testing.T) {
	s := loadedSession(t, 2)
	require.NoError(t, s.Start(t0))

	first, ok := s.CurrentExercise()
	require.True(t, ok)
	assert.Equal(t, "b", first.ID)

	require.NoError(t, s.Submit(true, t0.Add(20*time.Second)))
	assert.Equal(t, StateFeedback, s.State())
	require.NoError(t, s.Continue(t0.Add(25*time.Second)))
	assert.Equal(t, StateExercise, s.State())

	require.NoError(t, s.Submit(false, t0.Add(40*time.Second)))
	require.NoError(t, s.Continue(t0.Add(90*time.Second)))
	assert.Equal(t, StateComplete, s.State())

	out, err := s.Outcome()
	require.NoError(t, err)
	assert.Equal(t, 1, out.Correct)
	assert.Equal(t, 2, out.Total)
	assert.Equal(t, 50, out.ScorePercent)
	assert.Equal(t, 90, out.TimeSpentSeconds)
	require.Len(t, out.Answers, 2)
	assert.Equal(t, 20, out.Answers[0].TimeSpentSeconds)
	assert.Equal(t, 15, out.Answers[1].TimeSpentSeconds)
}

func TestSession_NoExercisesCompletesOnStart(t *testing.T) {
	s := loadedSession(t, 0)
	require.NoError(t, s.Start(t0))
	assert.Equal(t, StateComplete, s.State())

	out, err := s.Outcome()
	require.NoError(t, err)
	assert.Equal(t, 100, out.ScorePercent)
}

func TestSession_ForbiddenTransitions(t *testing.T) {
	s := loadedSession(t, 2)

	err := s.Submit(true, t0)
	assert.ErrorIs(t, err, shared.ErrInvalidSessionState)

	require.NoError(t, s.Start(t0))
	// intro is never re-entered
	assert.ErrorIs(t, s.Start(t0), shared.ErrStateTransition)
	// exercise never jumps to complete
	assert.Error(t, s.Continue(t0))
	assert.Equal(t, StateExercise, s.State())

	_, err = s.Outcome()
	assert.Error(t, err)
}

func TestSession_RequireSignup(t *testing.T) {
	s := loadedSession(t, 1)
	require.NoError(t, s.RequireSignup())
	assert.Equal(t, StateSignup, s.State())
	assert.Error(t, s.RequireSignup())
	assert.Error(t, s.Start(t0))
}

func TestExercise_Check(t *testing.T) {
	e := Exercise{CorrectAnswer: "Arabica"}
	assert.True(t, e.Check("  arabica "))
	assert.False(t, e.Check("robusta"))
}

func TestProgress_MergeKeepsBest(t *testing.T) {
	prev := Progress{UserID: "u", LessonID: "l1", BestScorePercent: 80, LastScorePercent: 80, Attempts: 1, XPEarned: 20}
	next := Progress{BestScorePercent: 60, LastScorePercent: 60, Attempts: 1, XPEarned: 15, CompletedAt: t0}

	m := prev.Merge(next)
	assert.Equal(t, 80, m.BestScorePercent)
	assert.Equal(t, 60, m.LastScorePercent)
	assert.Equal(t, 2, m.Attempts)
	assert.Equal(t, 35, m.XPEarned)
	assert.Equal(t, StatusCompleted, m.Status)
}
