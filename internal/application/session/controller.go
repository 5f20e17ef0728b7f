// Package session drives one lesson attempt: loading content, answering
// exercises, spending hearts and recording the completion.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/beanwise/learning-engine/internal/application/command"
	"github.com/beanwise/learning-engine/internal/application/progress"
	"github.com/beanwise/learning-engine/internal/application/query"
	"github.com/beanwise/learning-engine/internal/domain/achievement"
	"github.com/beanwise/learning-engine/internal/domain/anonymous"
	"github.com/beanwise/learning-engine/internal/domain/hearts"
	"github.com/beanwise/learning-engine/internal/domain/lesson"
	"github.com/beanwise/learning-engine/internal/domain/shared"
	"github.com/beanwise/learning-engine/pkg/logger"
	"github.com/beanwise/learning-engine/pkg/retry"
	"github.com/beanwise/learning-engine/pkg/timeutil"
)

// HeartLoser takes a heart for a wrong answer.
type HeartLoser interface {
	Handle(ctx context.Context, cmd command.LoseHeartCommand) (*command.LoseHeartResult, error)
}

// HeartsReader reads the current hearts.
type HeartsReader interface {
	Handle(ctx context.Context, q query.GetHeartsQuery) (hearts.Status, error)
}

// Feedback is shown after an answer.
type Feedback struct {
	Correct     bool
	Explanation string
	Hearts      *hearts.Status
}

// Deps groups the collaborators of a Controller.
type Deps struct {
	Identity shared.Identity
	Content  lesson.ContentProvider
	Tracker  progress.Tracker

	// LoseHeart and Hearts are used for signed-in learners only.
	LoseHeart HeartLoser
	Hearts    HeartsReader

	Clock  timeutil.Clock
	Logger *logger.Logger

	// HeartsEnabled turns heart spending on.
	HeartsEnabled bool
}

// Controller owns one lesson session. A new Controller is created per attempt.
type Controller struct {
	deps    Deps
	retrier *retry.Retrier
	log     *logger.Logger

	mu          sync.Mutex
	session     *lesson.Session
	hearts      *hearts.Status
	completed   bool
	completeErr error
	completion  progress.Completion
	unlocks     []achievement.Achievement
	gate        anonymous.Gate
}

// NewController creates a controller with a session in the loading state.
func NewController(deps Deps) *Controller {
	if deps.Clock == nil {
		deps.Clock = timeutil.SystemClock{}
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	log := deps.Logger.With(logger.Component("lesson_session"))
	if id, ok := deps.Identity.UserID(); ok {
		log = log.With(logger.UserID(id.String()))
	}

	c := &Controller{
		deps:    deps,
		log:     log,
		session: lesson.NewSession(),
		gate:    anonymous.GateNone,
	}
	c.retrier = retry.ContentRetrier(func(attempt int, err error, delay time.Duration) {
		c.log.Warn("lesson content retry", logger.Int("attempt", attempt), logger.Duration("delay", delay), logger.Err(err))
	})
	return c
}

// ══════════════════════════════════════════════════════════════════════════════
// STATE
// ══════════════════════════════════════════════════════════════════════════════

// State returns the session state.
func (c *Controller) State() lesson.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.State()
}

// CurrentExercise returns the exercise on screen.
func (c *Controller) CurrentExercise() (lesson.Exercise, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.CurrentExercise()
}

// Completion returns what the completed lesson produced.
func (c *Controller) Completion() (progress.Completion, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.completion, c.completed && c.completeErr == nil
}

// Gate returns the signup gate after the last completion.
func (c *Controller) Gate() anonymous.Gate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gate
}

// InputDisabled is true when a signed-in learner has no hearts. The session
// stays where it is until hearts regenerate.
func (c *Controller) InputDisabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inputDisabledLocked()
}

func (c *Controller) inputDisabledLocked() bool {
	return c.usesHearts() && c.hearts != nil && c.hearts.Available == 0
}

func (c *Controller) usesHearts() bool {
	return c.deps.HeartsEnabled && c.deps.Identity.IsAuthenticated() && c.deps.LoseHeart != nil
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSITIONS
// ══════════════════════════════════════════════════════════════════════════════

// Open loads the lesson. Anonymous learners past the hard gate go straight to
// signup. A content failure keeps the session in loading and returns the error.
func (c *Controller) Open(ctx context.Context, lessonID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.deps.Identity.IsAuthenticated() {
		snap, err := c.deps.Tracker.Snapshot(ctx)
		if err != nil {
			return err
		}
		c.gate = snap.Gate
		if snap.Gate == anonymous.GateHard {
			return c.session.RequireSignup()
		}
	}

	var (
		l         *lesson.Lesson
		exercises []lesson.Exercise
	)
	err := c.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		if l, err = c.deps.Content.GetLesson(ctx, lessonID); err != nil {
			return permanentIfNotFound(err)
		}
		if exercises, err = c.deps.Content.GetExercises(ctx, lessonID); err != nil {
			return permanentIfNotFound(err)
		}
		return nil
	})
	if err != nil {
		c.log.Error("failed to load lesson", logger.LessonID(lessonID), logger.Err(err))
		if shared.IsNotFound(err) {
			return err
		}
		return shared.WrapError("lesson", "Open", shared.ErrServiceUnavailable, "lesson content unavailable", err)
	}

	if err := c.session.Loaded(*l, exercises); err != nil {
		return err
	}
	c.refreshHeartsLocked(ctx)
	return nil
}

// Start moves from intro to the first exercise.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Start(c.deps.Clock.Now())
}

// Submit checks the answer for the current exercise. A wrong answer of a
// signed-in learner costs a heart.
func (c *Controller) Submit(ctx context.Context, answer string) (*Feedback, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inputDisabledLocked() {
		c.refreshHeartsLocked(ctx)
		if c.inputDisabledLocked() {
			return nil, shared.ErrInputDisabled
		}
	}

	ex, ok := c.session.CurrentExercise()
	if !ok || c.session.State() != lesson.StateExercise {
		return nil, shared.ErrInvalidSessionState
	}
	correct := ex.Check(answer)
	if err := c.session.Submit(correct, c.deps.Clock.Now()); err != nil {
		return nil, err
	}

	if !correct && c.usesHearts() {
		userID, _ := c.deps.Identity.UserID()
		res, err := c.deps.LoseHeart.Handle(ctx, command.LoseHeartCommand{UserID: userID.String()})
		if err != nil {
			c.log.Warn("failed to take heart", logger.Err(err))
		} else {
			status := res.Status
			c.hearts = &status
		}
	}

	return &Feedback{Correct: correct, Explanation: ex.Explanation, Hearts: c.hearts}, nil
}

// Continue moves to the next exercise, or completes the lesson when none remain.
func (c *Controller) Continue(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.session.Continue(c.deps.Clock.Now()); err != nil {
		return err
	}
	if c.session.State() != lesson.StateComplete {
		return nil
	}
	return c.completeLocked(ctx)
}

// RequireSignup ends the session with the signup screen.
func (c *Controller) RequireSignup() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.RequireSignup()
}

// RetryCompletion re-runs only the failed parts of the completion.
func (c *Controller) RetryCompletion(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.completed {
		return shared.ErrInvalidSessionState
	}
	if c.completeErr == nil {
		return nil
	}
	res, err := c.deps.Tracker.Retry(ctx)
	c.apply(res, err)
	return err
}

// DismissPrompt closes the soft signup prompt.
func (c *Controller) DismissPrompt(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.deps.Tracker.Dismiss(ctx); err != nil {
		return err
	}
	if c.gate == anonymous.GateSoft {
		c.gate = anonymous.GateNone
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// UNLOCK QUEUE
// ══════════════════════════════════════════════════════════════════════════════

// CurrentUnlock returns the achievement to present, one at a time.
func (c *Controller) CurrentUnlock() (achievement.Achievement, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.unlocks) == 0 {
		return achievement.Achievement{}, false
	}
	return c.unlocks[0], true
}

// DismissUnlock removes the presented achievement from the queue.
func (c *Controller) DismissUnlock() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.unlocks) > 0 {
		c.unlocks = c.unlocks[1:]
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// completeLocked records the completion exactly once per session.
func (c *Controller) completeLocked(ctx context.Context) error {
	if c.completed {
		return shared.ErrSessionAlreadyClosed
	}
	c.completed = true

	outcome, err := c.session.Outcome()
	if err != nil {
		return err
	}
	res, err := c.deps.Tracker.Complete(ctx, outcome, c.deps.Clock.Now())
	c.apply(res, err)
	if err != nil {
		c.log.Error("lesson completion failed", logger.LessonID(outcome.LessonID), logger.Err(err))
	}
	return err
}

func (c *Controller) apply(res progress.Completion, err error) {
	c.completeErr = err
	if err != nil {
		return
	}
	c.completion = res
	c.unlocks = append(c.unlocks, res.Unlocked...)
	if !c.deps.Identity.IsAuthenticated() {
		c.gate = res.Gate
	}
}

func (c *Controller) refreshHeartsLocked(ctx context.Context) {
	if !c.usesHearts() || c.deps.Hearts == nil {
		return
	}
	userID, _ := c.deps.Identity.UserID()
	status, err := c.deps.Hearts.Handle(ctx, query.GetHeartsQuery{UserID: userID.String()})
	if err != nil {
		c.log.Warn("failed to read hearts", logger.Err(err))
		return
	}
	c.hearts = &status
}

func permanentIfNotFound(err error) error {
	if shared.IsNotFound(err) {
		return retry.Permanent(err)
	}
	return err
}
