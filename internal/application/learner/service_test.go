package learner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beanwise/learning-engine/internal/application/command"
	"github.com/beanwise/learning-engine/internal/application/query"
	"github.com/beanwise/learning-engine/internal/application/saga"
	"github.com/beanwise/learning-engine/internal/application/session"
	"github.com/beanwise/learning-engine/internal/domain/anonymous"
	"github.com/beanwise/learning-engine/internal/domain/lesson"
	"github.com/beanwise/learning-engine/internal/domain/shared"
	"github.com/beanwise/learning-engine/internal/infrastructure/persistence/local"
	"github.com/beanwise/learning-engine/internal/infrastructure/persistence/memory"
	"github.com/beanwise/learning-engine/pkg/timeutil"
)

type toggles struct {
	hearts   bool
	softGate bool
}

func (t toggles) HeartsEnabled(string) bool { return t.hearts }
func (t toggles) SoftGateEnabled() bool     { return t.softGate }

type fixture struct {
	clock   *timeutil.FixedClock
	streaks *memory.StreakStore
	devices map[string]*local.MemoryStore
	svc     *Service
}

func newFixture(tg Toggles) *fixture {
	clock := timeutil.NewFixedClock(time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC))
	lessons := memory.NewLessonStore()
	for _, id := range []string{"l1", "l2", "l3"} {
		lessons.AddLesson(lesson.Lesson{ID: id, XPReward: 10},
			lesson.Exercise{ID: id + "-e1", LessonID: id, CorrectAnswer: "arabica", SortOrder: 1},
		)
	}

	f := &fixture{
		clock:   clock,
		streaks: memory.NewStreakStore(clock, 5),
		devices: make(map[string]*local.MemoryStore),
	}
	completion := saga.NewLessonCompletionSaga(saga.LessonCompletionDeps{
		StreakRepo:   f.streaks,
		ProgressRepo: lessons,
	}, saga.DefaultCompletionConfig())

	f.svc = NewService(Deps{
		Content:   lessons,
		Saga:      completion,
		Streaks:   f.streaks,
		LoseHeart: command.NewLoseHeartHandler(f.streaks, nil, clock, command.DefaultHeartsConfig(), nil),
		Hearts:    query.NewGetHeartsHandler(f.streaks, clock, 4*time.Hour),
		Local: func(deviceID string) anonymous.Store {
			s, ok := f.devices[deviceID]
			if !ok {
				s = local.NewMemoryStore()
				f.devices[deviceID] = s
			}
			return s
		},
		Toggles: tg,
		Clock:   clock,
	})
	return f
}

func finish(t *testing.T, c *session.Controller, clock *timeutil.FixedClock, lessonID, answer string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, c.Open(ctx, lessonID))
	require.NoError(t, c.Start())
	clock.Advance(20 * time.Second)
	_, err := c.Submit(ctx, answer)
	require.NoError(t, err)
	require.NoError(t, c.Continue(ctx))
}

func TestService_AnonymousSoftGateDisabled(t *testing.T) {
	f := newFixture(toggles{hearts: true, softGate: false})
	anon := shared.Anonymous()

	c := f.svc.NewSession(anon, "dev-1")
	finish(t, c, f.clock, "l1", "arabica")
	assert.Equal(t, anonymous.GateNone, c.Gate())

	c = f.svc.NewSession(anon, "dev-1")
	finish(t, c, f.clock, "l2", "arabica")
	assert.Equal(t, anonymous.GateNone, c.Gate())

	c = f.svc.NewSession(anon, "dev-1")
	finish(t, c, f.clock, "l3", "arabica")
	assert.Equal(t, anonymous.GateHard, c.Gate())

	snap, err := f.svc.Snapshot(context.Background(), anon, "dev-1")
	require.NoError(t, err)
	assert.False(t, snap.Authenticated)
	assert.Equal(t, 3, snap.LessonsCompleted)
}

func TestService_DevicesAreIsolated(t *testing.T) {
	f := newFixture(nil)
	anon := shared.Anonymous()

	finish(t, f.svc.NewSession(anon, "dev-1"), f.clock, "l1", "arabica")

	snap, err := f.svc.Snapshot(context.Background(), anon, "dev-2")
	require.NoError(t, err)
	assert.Zero(t, snap.LessonsCompleted)
	assert.Equal(t, anonymous.GateNone, snap.Gate)
}

func TestService_HeartsToggle(t *testing.T) {
	f := newFixture(toggles{hearts: false, softGate: true})
	user := shared.Authenticated("u1")
	ctx := context.Background()

	c := f.svc.NewSession(user, "")
	require.NoError(t, c.Open(ctx, "l1"))
	require.NoError(t, c.Start())
	fb, err := c.Submit(ctx, "robusta")
	require.NoError(t, err)
	assert.False(t, fb.Correct)
	assert.Nil(t, fb.Hearts)

	rec, err := f.streaks.GetHearts(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 5, rec.Hearts)
}

func TestService_SignInDropsAnonymousProgress(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	finish(t, f.svc.NewSession(shared.Anonymous(), "dev-1"), f.clock, "l1", "arabica")
	require.False(t, f.devices["dev-1"].IsEmpty())

	require.NoError(t, f.svc.SignIn(ctx, "dev-1", "u1"))
	assert.True(t, f.devices["dev-1"].IsEmpty())

	snap, err := f.svc.Snapshot(ctx, shared.Authenticated("u1"), "dev-1")
	require.NoError(t, err)
	assert.True(t, snap.Authenticated)
	assert.Zero(t, snap.TotalXP)
}
