// Package saga contains business processes that orchestrate several domain
// stores in a coordinated manner.
package saga

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/beanwise/learning-engine/internal/domain/achievement"
	"github.com/beanwise/learning-engine/internal/domain/league"
	"github.com/beanwise/learning-engine/internal/domain/lesson"
	"github.com/beanwise/learning-engine/internal/domain/shared"
	"github.com/beanwise/learning-engine/internal/domain/streak"
	"github.com/beanwise/learning-engine/internal/domain/xp"
	"github.com/beanwise/learning-engine/pkg/circuitbreaker"
	"github.com/beanwise/learning-engine/pkg/logger"
	"github.com/beanwise/learning-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// LESSON COMPLETION SAGA
// Flow: Prepare (first-of-day + score) → Fan-out {Streak, DailyGoal, League} →
//
//	Upsert Progress → Append History → Evaluate Achievements → Publish Events
//
// Streak and daily goal are critical. League, history and events are best effort.
// A failed run keeps per-step state, and Retry runs only the steps that have
// not succeeded yet, so XP is never awarded twice.
// ══════════════════════════════════════════════════════════════════════════════

// CompletionStep names a step of the completion saga.
type CompletionStep string

const (
	StepPrepare      CompletionStep = "prepare"
	StepStreak       CompletionStep = "streak"
	StepDailyGoal    CompletionStep = "daily_goal"
	StepLeague       CompletionStep = "league"
	StepProgress     CompletionStep = "progress"
	StepHistory      CompletionStep = "history"
	StepAchievements CompletionStep = "achievements"
	StepEvents       CompletionStep = "events"
)

// CompletionInput contains the data of one finished lesson session.
type CompletionInput struct {
	// UserID - authenticated learner.
	UserID string

	// Outcome - result of the finished session.
	Outcome lesson.Outcome

	// CompletedAt - when the session reached complete.
	CompletedAt time.Time
}

// Validate checks if the input is valid.
func (i CompletionInput) Validate() error {
	if i.UserID == "" {
		return shared.NewDomainError("saga", "Complete", shared.ErrInvalidID, "user id is required")
	}
	if i.Outcome.LessonID == "" {
		return shared.NewDomainError("saga", "Complete", shared.ErrInvalidID, "lesson id is required")
	}
	if i.CompletedAt.IsZero() {
		return shared.NewDomainError("saga", "Complete", shared.ErrInvalidInput, "completion time is required")
	}
	return nil
}

// CompletionResult contains everything the completion produced.
type CompletionResult struct {
	UserID      string
	LessonID    string
	Date        time.Time
	FirstToday  bool
	Score       xp.Breakdown
	Streak      streak.ActivityResult
	DailyGoal   streak.DailyGoalResult
	League      league.AddResult
	Progress    lesson.Progress
	Unlocked    []achievement.Achievement
	CompletedAt time.Time
}

// CompletionRun is the state of one completion. It is returned even when a
// critical step fails, so the caller can pass it to Retry.
type CompletionRun struct {
	mu     sync.Mutex
	input  CompletionInput
	done   map[CompletionStep]bool
	failed map[CompletionStep]error
	result CompletionResult
}

func newCompletionRun(input CompletionInput) *CompletionRun {
	return &CompletionRun{
		input:  input,
		done:   make(map[CompletionStep]bool),
		failed: make(map[CompletionStep]error),
		result: CompletionResult{
			UserID:      input.UserID,
			LessonID:    input.Outcome.LessonID,
			Date:        timeutil.DateOf(input.CompletedAt),
			CompletedAt: input.CompletedAt,
		},
	}
}

// Done reports whether a step has succeeded.
func (r *CompletionRun) Done(step CompletionStep) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done[step]
}

// Result returns a copy of the accumulated result.
func (r *CompletionRun) Result() CompletionResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := r.result
	res.Unlocked = append([]achievement.Achievement(nil), r.result.Unlocked...)
	return res
}

// Err returns the joined errors of failed critical steps of the last run.
func (r *CompletionRun) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	errs := make([]error, 0, len(r.failed))
	for _, step := range []CompletionStep{StepPrepare, StepStreak, StepDailyGoal, StepProgress} {
		if err, ok := r.failed[step]; ok {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Complete reports whether all critical steps have succeeded.
func (r *CompletionRun) Complete() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done[StepPrepare] && r.done[StepStreak] && r.done[StepDailyGoal] && r.done[StepProgress]
}

func (r *CompletionRun) succeed(step CompletionStep, apply func(*CompletionResult)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if apply != nil {
		apply(&r.result)
	}
	r.done[step] = true
	delete(r.failed, step)
}

// attempted applies a partial result of a best-effort step without marking it done.
func (r *CompletionRun) attempted(step CompletionStep, err error, apply func(*CompletionResult)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	apply(&r.result)
	r.failed[step] = fmt.Errorf("%s: %w", step, err)
}

func (r *CompletionRun) fail(step CompletionStep, err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	wrapped := fmt.Errorf("%s: %w", step, err)
	r.failed[step] = wrapped
	return wrapped
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// AchievementEvaluator evaluates and unlocks achievements.
type AchievementEvaluator interface {
	Evaluate(ctx context.Context, userID string, snapshot achievement.StatsSnapshot) ([]achievement.Achievement, error)
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	// GenerateID generates a new unique ID.
	GenerateID() string
}

// UUIDGenerator generates random UUIDs.
type UUIDGenerator struct{}

// GenerateID implements IDGenerator.
func (UUIDGenerator) GenerateID() string {
	return uuid.NewString()
}

// CompletionMetrics records completion outcomes.
type CompletionMetrics interface {
	ObserveCompletion(outcome string, d time.Duration)
	IncStepFailure(step string)
	AddXPAwarded(n int)
}

type nopMetrics struct{}

func (nopMetrics) ObserveCompletion(string, time.Duration) {}
func (nopMetrics) IncStepFailure(string)                   {}
func (nopMetrics) AddXPAwarded(int)                        {}

// CompletionConfig contains configuration for the completion saga.
type CompletionConfig struct {
	// DailyGoalXP - target for lazily created daily goals.
	DailyGoalXP int

	// LeaguesEnabled - add weekly league XP.
	LeaguesEnabled bool

	// AchievementsEnabled - evaluate achievements after the streak update.
	AchievementsEnabled bool
}

// DefaultCompletionConfig returns default configuration.
func DefaultCompletionConfig() CompletionConfig {
	return CompletionConfig{
		DailyGoalXP:         streak.DefaultDailyGoalXP,
		LeaguesEnabled:      true,
		AchievementsEnabled: true,
	}
}

// LessonCompletionSaga persists the effects of a finished lesson.
type LessonCompletionSaga struct {
	streakRepo   streak.Repository
	leagueRepo   league.Repository
	progressRepo lesson.ProgressRepository
	evaluator    AchievementEvaluator
	eventBus     shared.EventPublisher
	notifier     shared.Notifier
	breaker      *circuitbreaker.CircuitBreaker
	idGenerator  IDGenerator
	metrics      CompletionMetrics
	log          *logger.Logger

	config CompletionConfig
}

// LessonCompletionDeps groups the collaborators of the saga.
type LessonCompletionDeps struct {
	StreakRepo   streak.Repository
	LeagueRepo   league.Repository
	ProgressRepo lesson.ProgressRepository
	Evaluator    AchievementEvaluator
	EventBus     shared.EventPublisher
	Notifier     shared.Notifier
	Breaker      *circuitbreaker.CircuitBreaker
	IDGenerator  IDGenerator
	Metrics      CompletionMetrics
	Logger       *logger.Logger
}

// NewLessonCompletionSaga creates the saga. Optional collaborators get no-op defaults.
func NewLessonCompletionSaga(deps LessonCompletionDeps, config CompletionConfig) *LessonCompletionSaga {
	if deps.Notifier == nil {
		deps.Notifier = shared.NopNotifier{}
	}
	if deps.Breaker == nil {
		deps.Breaker = circuitbreaker.LeagueStoreBreaker(nil)
	}
	if deps.IDGenerator == nil {
		deps.IDGenerator = UUIDGenerator{}
	}
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	if config.DailyGoalXP <= 0 {
		config.DailyGoalXP = streak.DefaultDailyGoalXP
	}

	return &LessonCompletionSaga{
		streakRepo:   deps.StreakRepo,
		leagueRepo:   deps.LeagueRepo,
		progressRepo: deps.ProgressRepo,
		evaluator:    deps.Evaluator,
		eventBus:     deps.EventBus,
		notifier:     deps.Notifier,
		breaker:      deps.Breaker,
		idGenerator:  deps.IDGenerator,
		metrics:      deps.Metrics,
		log:          deps.Logger.With(logger.Component("lesson_completion")),
		config:       config,
	}
}

// Execute runs the completion for a finished session. On a critical failure
// it returns the run together with the error; pass the run to Retry.
func (s *LessonCompletionSaga) Execute(ctx context.Context, input CompletionInput) (*CompletionRun, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	run := newCompletionRun(input)
	return run, s.run(ctx, run)
}

// Retry re-runs only the steps of run that have not succeeded.
func (s *LessonCompletionSaga) Retry(ctx context.Context, run *CompletionRun) error {
	if run == nil {
		return shared.NewDomainError("saga", "Retry", shared.ErrInvalidInput, "nothing to retry")
	}
	if run.Complete() {
		// critical steps are done; only achievements can still be open
		s.stepAchievements(ctx, run, s.log.With(logger.UserID(run.input.UserID), logger.LessonID(run.input.Outcome.LessonID)))
		return nil
	}
	return s.run(ctx, run)
}

func (s *LessonCompletionSaga) run(ctx context.Context, run *CompletionRun) error {
	start := time.Now()
	log := s.log.With(logger.UserID(run.input.UserID), logger.LessonID(run.input.Outcome.LessonID))

	if err := s.stepPrepare(ctx, run); err != nil {
		return s.abort(log, run, StepPrepare, err, start)
	}

	if err := s.stepFanOut(ctx, run, log); err != nil {
		log.Error("completion fan-out failed", logger.Err(err))
		s.metrics.ObserveCompletion("failed", time.Since(start))
		return err
	}

	if err := s.stepProgress(ctx, run); err != nil {
		return s.abort(log, run, StepProgress, err, start)
	}

	s.stepHistory(ctx, run, log)
	s.stepAchievements(ctx, run, log)
	s.stepPublishEvents(run, log)

	res := run.Result()
	s.metrics.AddXPAwarded(res.Score.TotalXP)
	s.metrics.ObserveCompletion("ok", time.Since(start))
	log.Info("lesson completion persisted",
		logger.XPAmount(res.Score.TotalXP),
		logger.Int("streak", res.Streak.Streak.CurrentStreak),
		logger.Int("unlocked", len(res.Unlocked)),
		logger.Latency(time.Since(start)),
	)
	return nil
}

func (s *LessonCompletionSaga) abort(log *logger.Logger, run *CompletionRun, step CompletionStep, err error, start time.Time) error {
	s.metrics.IncStepFailure(string(step))
	s.metrics.ObserveCompletion("failed", time.Since(start))
	log.Error("completion step failed", logger.Step(string(step)), logger.Err(err))
	return run.Err()
}

// ══════════════════════════════════════════════════════════════════════════════
// SAGA STEPS
// ══════════════════════════════════════════════════════════════════════════════

// stepPrepare reads the streak before any write and scores the lesson.
// The score is frozen in the run so retries award the same amount.
func (s *LessonCompletionSaga) stepPrepare(ctx context.Context, run *CompletionRun) error {
	if run.Done(StepPrepare) {
		return nil
	}

	in := run.input
	date := timeutil.DateOf(in.CompletedAt)

	var (
		last    *time.Time
		current int
	)
	st, err := s.streakRepo.GetStreak(ctx, in.UserID)
	switch {
	case err == nil:
		last = st.LastActivityDate
		current = st.CurrentStreak
	case errors.Is(err, shared.ErrNotFound):
		// first lesson ever
	default:
		return run.fail(StepPrepare, err)
	}

	first := streak.IsFirstActivityToday(last, date)
	score := xp.Score(in.Outcome.BaseXP, in.Outcome.Correct, in.Outcome.Total, in.Outcome.TimeSpentSeconds, current, first)

	run.succeed(StepPrepare, func(r *CompletionResult) {
		r.FirstToday = first
		r.Score = score
	})
	return nil
}

// stepFanOut updates streak, daily goal and league concurrently and waits for
// all of them. League failures are logged and swallowed.
func (s *LessonCompletionSaga) stepFanOut(ctx context.Context, run *CompletionRun, log *logger.Logger) error {
	res := run.Result()
	userID := run.input.UserID
	total := res.Score.TotalXP

	var g errgroup.Group

	if !run.Done(StepStreak) {
		g.Go(func() error {
			out, err := s.streakRepo.RecordActivity(ctx, streak.ActivityEvent{UserID: userID, Date: res.Date, XP: total})
			if err != nil {
				s.metrics.IncStepFailure(string(StepStreak))
				return run.fail(StepStreak, err)
			}
			run.succeed(StepStreak, func(r *CompletionResult) { r.Streak = out })
			return nil
		})
	}

	if !run.Done(StepDailyGoal) {
		g.Go(func() error {
			out, err := s.streakRepo.AddDailyXP(ctx, userID, res.Date, total, s.config.DailyGoalXP)
			if err != nil {
				s.metrics.IncStepFailure(string(StepDailyGoal))
				return run.fail(StepDailyGoal, err)
			}
			run.succeed(StepDailyGoal, func(r *CompletionResult) { r.DailyGoal = out })
			return nil
		})
	}

	if s.config.LeaguesEnabled && s.leagueRepo != nil && !run.Done(StepLeague) {
		g.Go(func() error {
			var out league.AddResult
			err := s.breaker.Execute(ctx, func(ctx context.Context) error {
				var err error
				out, err = s.leagueRepo.AddWeeklyXP(ctx, userID, total)
				return err
			})
			if err != nil {
				s.metrics.IncStepFailure(string(StepLeague))
				log.Warn("league update failed", logger.Step(string(StepLeague)), logger.Err(err))
				s.notifier.Notify(ctx, shared.Toast{
					UserID:  userID,
					Level:   shared.ToastWarning,
					Message: "Couldn't update your league standing",
				})
				return nil
			}
			run.succeed(StepLeague, func(r *CompletionResult) { r.League = out })
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return run.Err()
	}
	return nil
}

// stepProgress upserts lesson progress. The store keeps the best score.
func (s *LessonCompletionSaga) stepProgress(ctx context.Context, run *CompletionRun) error {
	if run.Done(StepProgress) {
		return nil
	}
	res := run.Result()
	out := run.input.Outcome

	saved, err := s.progressRepo.UpsertProgress(ctx, lesson.Progress{
		ID:               s.idGenerator.GenerateID(),
		UserID:           run.input.UserID,
		LessonID:         out.LessonID,
		Status:           lesson.StatusCompleted,
		BestScorePercent: out.ScorePercent,
		LastScorePercent: out.ScorePercent,
		Attempts:         1,
		XPEarned:         res.Score.TotalXP,
		TimeSpentSeconds: out.TimeSpentSeconds,
		CompletedAt:      run.input.CompletedAt,
	})
	if err != nil {
		return run.fail(StepProgress, err)
	}
	run.succeed(StepProgress, func(r *CompletionResult) { r.Progress = saved })
	return nil
}

// stepHistory appends exercise history rows (best effort).
func (s *LessonCompletionSaga) stepHistory(ctx context.Context, run *CompletionRun, log *logger.Logger) {
	if run.Done(StepHistory) {
		return
	}
	out := run.input.Outcome
	if len(out.Answers) == 0 {
		run.succeed(StepHistory, nil)
		return
	}

	attempts := make([]lesson.ExerciseAttempt, 0, len(out.Answers))
	for _, a := range out.Answers {
		attempts = append(attempts, lesson.ExerciseAttempt{
			ID:               s.idGenerator.GenerateID(),
			UserID:           run.input.UserID,
			LessonID:         out.LessonID,
			ExerciseID:       a.ExerciseID,
			IsCorrect:        a.Correct,
			TimeSpentSeconds: a.TimeSpentSeconds,
			AttemptedAt:      a.AnsweredAt,
		})
	}

	if err := s.progressRepo.AppendAttempts(ctx, attempts); err != nil {
		s.metrics.IncStepFailure(string(StepHistory))
		log.Warn("exercise history not saved", logger.Step(string(StepHistory)), logger.Err(err))
		return
	}
	run.succeed(StepHistory, nil)
}

// stepAchievements evaluates achievements with the counters returned by the
// streak update. Unlock errors of single achievements are logged.
func (s *LessonCompletionSaga) stepAchievements(ctx context.Context, run *CompletionRun, log *logger.Logger) {
	if !s.config.AchievementsEnabled || s.evaluator == nil || run.Done(StepAchievements) {
		return
	}
	st := run.Result().Streak.Streak

	unlocked, err := s.evaluator.Evaluate(ctx, run.input.UserID, achievement.StatsSnapshot{
		CurrentStreak:         st.CurrentStreak,
		LongestStreak:         st.LongestStreak,
		TotalLessonsCompleted: st.TotalLessonsCompleted,
		TotalXP:               st.TotalXP,
	})

	if err != nil {
		// unlocks that did land are kept; the step stays open for Retry
		run.attempted(StepAchievements, err, func(r *CompletionResult) {
			r.Unlocked = append(r.Unlocked, unlocked...)
		})
		s.metrics.IncStepFailure(string(StepAchievements))
		log.Warn("achievement evaluation incomplete", logger.Step(string(StepAchievements)), logger.Err(err))
	} else {
		run.succeed(StepAchievements, func(r *CompletionResult) {
			r.Unlocked = append(r.Unlocked, unlocked...)
		})
	}
	for _, a := range unlocked {
		log.Info("achievement unlocked", logger.AchievementCode(a.Code))
	}
}

// stepPublishEvents publishes domain events (best effort).
func (s *LessonCompletionSaga) stepPublishEvents(run *CompletionRun, log *logger.Logger) {
	if s.eventBus == nil || run.Done(StepEvents) {
		return
	}
	res := run.Result()
	at := res.CompletedAt
	userID := res.UserID

	events := []shared.Event{
		shared.NewLessonCompletedEvent(userID, res.LessonID, res.Score.TotalXP, run.input.Outcome.ScorePercent, run.input.Outcome.TimeSpentSeconds, at),
	}

	switch res.Streak.Transition {
	case streak.TransitionStarted, streak.TransitionExtended:
		events = append(events, shared.NewStreakExtendedEvent(userID, res.Streak.Streak.CurrentStreak, res.Streak.Streak.LongestStreak, at))
	case streak.TransitionReset:
		events = append(events, shared.NewStreakBrokenEvent(userID, res.Streak.PreviousStreak, at))
	}

	if res.DailyGoal.JustAchieved {
		g := res.DailyGoal.Goal
		events = append(events, shared.NewDailyGoalAchievedEvent(userID, g.Date, g.GoalXP, g.EarnedXP, at))
	}

	if res.League.Applied {
		m := res.League.Membership
		events = append(events, shared.NewLeagueXPAddedEvent(userID, m.LeagueID, m.WeekStartDate, res.Score.TotalXP, m.WeeklyXP, at))
	}

	for _, a := range res.Unlocked {
		events = append(events, shared.NewAchievementUnlockedEvent(userID, a.ID, a.Code, a.XPReward, at))
	}

	for _, ev := range events {
		if err := s.eventBus.Publish(ev); err != nil {
			log.Warn("failed to publish event", logger.String("event", string(ev.EventType())), logger.Err(err))
		}
	}
	run.succeed(StepEvents, nil)
}
