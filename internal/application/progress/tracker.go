// Package progress selects how lesson completions are recorded: in the stat
// store for signed-in learners, or in a local record for anonymous ones.
package progress

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/beanwise/learning-engine/internal/application/saga"
	"github.com/beanwise/learning-engine/internal/domain/achievement"
	"github.com/beanwise/learning-engine/internal/domain/anonymous"
	"github.com/beanwise/learning-engine/internal/domain/lesson"
	"github.com/beanwise/learning-engine/internal/domain/shared"
	"github.com/beanwise/learning-engine/internal/domain/streak"
	"github.com/beanwise/learning-engine/internal/domain/xp"
	"github.com/beanwise/learning-engine/pkg/logger"
	"github.com/beanwise/learning-engine/pkg/timeutil"
)

// Snapshot is the learner's progress as shown on the home screen.
type Snapshot struct {
	Authenticated    bool
	TotalXP          int
	CurrentStreak    int
	LongestStreak    int
	LessonsCompleted int
	LastActivityDate *time.Time
	Gate             anonymous.Gate
}

// Completion is what a recorded lesson produced.
type Completion struct {
	Score    xp.Breakdown
	Unlocked []achievement.Achievement
	Gate     anonymous.Gate
}

// Tracker records lesson completions.
type Tracker interface {
	// Snapshot returns the current progress.
	Snapshot(ctx context.Context) (Snapshot, error)

	// Complete records a finished session.
	Complete(ctx context.Context, outcome lesson.Outcome, at time.Time) (Completion, error)

	// Retry re-runs the failed parts of the last Complete. It is a no-op if
	// nothing failed.
	Retry(ctx context.Context) (Completion, error)

	// Dismiss marks the signup prompt as seen.
	Dismiss(ctx context.Context) error
}

// ══════════════════════════════════════════════════════════════════════════════
// PERSISTED
// ══════════════════════════════════════════════════════════════════════════════

// CompletionSaga runs and retries lesson completions.
type CompletionSaga interface {
	Execute(ctx context.Context, input saga.CompletionInput) (*saga.CompletionRun, error)
	Retry(ctx context.Context, run *saga.CompletionRun) error
}

// PersistedTracker records completions of a signed-in learner in the stat store.
type PersistedTracker struct {
	userID  string
	saga    CompletionSaga
	streaks streak.Repository

	mu     sync.Mutex
	failed *saga.CompletionRun
}

// NewPersistedTracker creates a tracker for userID.
func NewPersistedTracker(userID string, s CompletionSaga, streaks streak.Repository) *PersistedTracker {
	return &PersistedTracker{userID: userID, saga: s, streaks: streaks}
}

// Snapshot implements Tracker.
func (t *PersistedTracker) Snapshot(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{Authenticated: true, Gate: anonymous.GateNone}
	st, err := t.streaks.GetStreak(ctx, t.userID)
	if errors.Is(err, shared.ErrNotFound) {
		return snap, nil
	}
	if err != nil {
		return Snapshot{}, err
	}
	snap.TotalXP = st.TotalXP
	snap.CurrentStreak = st.CurrentStreak
	snap.LongestStreak = st.LongestStreak
	snap.LessonsCompleted = st.TotalLessonsCompleted
	snap.LastActivityDate = st.LastActivityDate
	return snap, nil
}

// Complete implements Tracker.
func (t *PersistedTracker) Complete(ctx context.Context, outcome lesson.Outcome, at time.Time) (Completion, error) {
	run, err := t.saga.Execute(ctx, saga.CompletionInput{UserID: t.userID, Outcome: outcome, CompletedAt: at})

	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		t.failed = run
		return partial(run), err
	}
	t.failed = nil
	return partial(run), nil
}

// Retry implements Tracker.
func (t *PersistedTracker) Retry(ctx context.Context) (Completion, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failed == nil {
		return Completion{Gate: anonymous.GateNone}, nil
	}
	run := t.failed
	if err := t.saga.Retry(ctx, run); err != nil {
		return partial(run), err
	}
	t.failed = nil
	return partial(run), nil
}

// Dismiss implements Tracker. Signed-in learners have no gate.
func (t *PersistedTracker) Dismiss(context.Context) error {
	return nil
}

func partial(run *saga.CompletionRun) Completion {
	if run == nil {
		return Completion{Gate: anonymous.GateNone}
	}
	res := run.Result()
	return Completion{Score: res.Score, Unlocked: res.Unlocked, Gate: anonymous.GateNone}
}

// ══════════════════════════════════════════════════════════════════════════════
// ANONYMOUS
// ══════════════════════════════════════════════════════════════════════════════

// AnonymousTracker records completions in the local store only.
type AnonymousTracker struct {
	store anonymous.Store
	log   *logger.Logger

	mu      sync.Mutex
	pending *localCompletion
}

// localCompletion is a finished lesson whose local write failed.
type localCompletion struct {
	outcome lesson.Outcome
	at      time.Time
}

// NewAnonymousTracker creates a tracker backed by store.
func NewAnonymousTracker(store anonymous.Store, log *logger.Logger) *AnonymousTracker {
	if log == nil {
		log = logger.Nop()
	}
	return &AnonymousTracker{store: store, log: log.With(logger.Component("anonymous_tracker"))}
}

// Snapshot implements Tracker.
func (t *AnonymousTracker) Snapshot(ctx context.Context) (Snapshot, error) {
	p, err := t.load(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		TotalXP:          p.TotalXP,
		LessonsCompleted: p.CompletedCount(),
		LastActivityDate: p.LastActivityDate,
		Gate:             p.Gate(),
	}, nil
}

// Complete implements Tracker. Anonymous learners have no streak bonus.
// A failed write is kept for Retry.
func (t *AnonymousTracker) Complete(ctx context.Context, outcome lesson.Outcome, at time.Time) (Completion, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pending := &localCompletion{outcome: outcome, at: at}
	c, err := t.record(ctx, pending)
	if err != nil {
		t.pending = pending
		return c, err
	}
	t.pending = nil
	return c, nil
}

// Retry implements Tracker. It records the pending completion again on top
// of the stored record.
func (t *AnonymousTracker) Retry(ctx context.Context) (Completion, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pending == nil {
		p, err := t.load(ctx)
		if err != nil {
			return Completion{}, err
		}
		return Completion{Gate: p.Gate()}, nil
	}
	c, err := t.record(ctx, t.pending)
	if err != nil {
		return c, err
	}
	t.pending = nil
	return c, nil
}

func (t *AnonymousTracker) record(ctx context.Context, lc *localCompletion) (Completion, error) {
	p, err := t.load(ctx)
	if err != nil {
		return Completion{}, err
	}

	date := timeutil.DateOf(lc.at)
	score := xp.ScoreInput(xp.Input{
		BaseReward:       lc.outcome.BaseXP,
		CorrectCount:     lc.outcome.Correct,
		TotalCount:       lc.outcome.Total,
		TimeSpentSeconds: lc.outcome.TimeSpentSeconds,
		IsFirstToday:     streak.IsFirstActivityToday(p.LastActivityDate, date),
	})

	p.RecordCompletion(lc.outcome.LessonID, score.TotalXP, date)
	if err := t.store.Save(ctx, p); err != nil {
		return Completion{Score: score, Gate: p.Gate()}, shared.WrapError("anonymous", "Complete", shared.ErrExternalService, "failed to save local progress", err)
	}

	t.log.Debug("anonymous lesson recorded", logger.LessonID(lc.outcome.LessonID), logger.XPAmount(score.TotalXP), logger.String("gate", string(p.Gate())))
	return Completion{Score: score, Gate: p.Gate()}, nil
}

// Dismiss implements Tracker. A hard gate returns shared.ErrHardGateActive.
func (t *AnonymousTracker) Dismiss(ctx context.Context) error {
	p, err := t.load(ctx)
	if err != nil {
		return err
	}
	if err := p.DismissPrompt(); err != nil {
		return err
	}
	return t.store.Save(ctx, p)
}

func (t *AnonymousTracker) load(ctx context.Context) (*anonymous.Progress, error) {
	p, err := t.store.Load(ctx)
	if err != nil {
		return nil, shared.WrapError("anonymous", "Load", shared.ErrExternalService, "failed to load local progress", err)
	}
	if p == nil {
		p = &anonymous.Progress{}
	}
	return p, nil
}

// OnAuthenticated deletes the local record. Nothing is merged into the stat store.
func OnAuthenticated(ctx context.Context, store anonymous.Store) error {
	return store.Clear(ctx)
}

// ForIdentity picks the tracker for the identity.
func ForIdentity(id shared.Identity, s CompletionSaga, streaks streak.Repository, local anonymous.Store, log *logger.Logger) Tracker {
	if userID, ok := id.UserID(); ok {
		return NewPersistedTracker(userID.String(), s, streaks)
	}
	return NewAnonymousTracker(local, log)
}

// ══════════════════════════════════════════════════════════════════════════════
// SOFT GATE TOGGLE
// ══════════════════════════════════════════════════════════════════════════════

// WithoutSoftGate hides the dismissible prompt. The hard gate is kept.
func WithoutSoftGate(t Tracker) Tracker {
	return softGateOff{t}
}

type softGateOff struct {
	Tracker
}

func hideSoft(g anonymous.Gate) anonymous.Gate {
	if g == anonymous.GateSoft {
		return anonymous.GateNone
	}
	return g
}

func (t softGateOff) Snapshot(ctx context.Context) (Snapshot, error) {
	s, err := t.Tracker.Snapshot(ctx)
	s.Gate = hideSoft(s.Gate)
	return s, err
}

func (t softGateOff) Complete(ctx context.Context, outcome lesson.Outcome, at time.Time) (Completion, error) {
	c, err := t.Tracker.Complete(ctx, outcome, at)
	c.Gate = hideSoft(c.Gate)
	return c, err
}

func (t softGateOff) Retry(ctx context.Context) (Completion, error) {
	c, err := t.Tracker.Retry(ctx)
	c.Gate = hideSoft(c.Gate)
	return c, err
}
