package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/beanwise/learning-engine/internal/domain/hearts"
	"github.com/beanwise/learning-engine/internal/domain/shared"
	"github.com/beanwise/learning-engine/internal/domain/streak"
	"github.com/beanwise/learning-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STREAK REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// StreakRepository implements streak.Repository and hearts.Repository on the
// user_streaks and daily_goals tables.
type StreakRepository struct {
	conn      *Connection
	clock     timeutil.Clock
	maxHearts int
}

// NewStreakRepository creates a new StreakRepository.
func NewStreakRepository(conn *Connection, clock timeutil.Clock, maxHearts int) *StreakRepository {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if maxHearts <= 0 {
		maxHearts = hearts.DefaultMaxHearts
	}
	return &StreakRepository{conn: conn, clock: clock, maxHearts: maxHearts}
}

const streakColumns = `user_id, current_streak, longest_streak, last_activity_date,
	total_xp, total_lessons_completed, hearts, max_hearts, hearts_last_refilled_at`

func scanStreak(row pgx.Row, extra ...any) (*streak.UserStreak, error) {
	var (
		s        streak.UserStreak
		lastDate *time.Time
	)
	dest := []any{
		&s.UserID, &s.CurrentStreak, &s.LongestStreak, &lastDate,
		&s.TotalXP, &s.TotalLessonsCompleted,
		&s.Hearts.Hearts, &s.Hearts.MaxHearts, &s.Hearts.HeartsLastRefilledAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if lastDate != nil {
		d := timeutil.Date(lastDate.Year(), lastDate.Month(), lastDate.Day())
		s.LastActivityDate = &d
	}
	return &s, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Streak
// ─────────────────────────────────────────────────────────────────────────────

// GetStreak implements streak.Repository.
func (r *StreakRepository) GetStreak(ctx context.Context, userID string) (*streak.UserStreak, error) {
	s, err := scanStreak(r.conn.QueryRow(ctx,
		`SELECT `+streakColumns+` FROM user_streaks WHERE user_id = $1`, userID))
	if IsNoRows(err) {
		return nil, shared.ErrStreakNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get streak: %w", err)
	}
	return s, nil
}

// recordActivitySQL locks the row in the sub-select, so the previous values it
// returns are exactly the ones the update was computed from.
const recordActivitySQL = `
	UPDATE user_streaks s SET
		current_streak = o.next_streak,
		longest_streak = GREATEST(s.longest_streak, o.next_streak),
		last_activity_date = CASE
			WHEN o.prev_date IS NULL OR $2::date > o.prev_date THEN $2::date
			ELSE o.prev_date END,
		total_xp = s.total_xp + $3,
		total_lessons_completed = s.total_lessons_completed + 1,
		updated_at = NOW()
	FROM (
		SELECT user_id,
			current_streak AS prev_streak,
			last_activity_date AS prev_date,
			CASE
				WHEN last_activity_date IS NULL THEN 1
				WHEN last_activity_date = $2::date THEN GREATEST(current_streak, 1)
				WHEN last_activity_date + 1 = $2::date THEN current_streak + 1
				WHEN $2::date > last_activity_date THEN 1
				ELSE current_streak
			END AS next_streak
		FROM user_streaks
		WHERE user_id = $1
		FOR UPDATE
	) o
	WHERE s.user_id = o.user_id
	RETURNING s.user_id, s.current_streak, s.longest_streak, s.last_activity_date,
		s.total_xp, s.total_lessons_completed, s.hearts, s.max_hearts, s.hearts_last_refilled_at,
		o.prev_streak, o.prev_date`

// RecordActivity implements streak.Repository.
func (r *StreakRepository) RecordActivity(ctx context.Context, ev streak.ActivityEvent) (streak.ActivityResult, error) {
	if ev.XP < 0 {
		return streak.ActivityResult{}, shared.ErrInvalidXP
	}

	var result streak.ActivityResult
	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if err := r.ensureRow(ctx, tx, ev.UserID); err != nil {
			return err
		}

		var (
			prevStreak int
			prevDate   *time.Time
		)
		s, err := scanStreak(tx.QueryRow(ctx, recordActivitySQL, ev.UserID, ev.Date, ev.XP), &prevStreak, &prevDate)
		if err != nil {
			return err
		}

		result = streak.ActivityResult{
			Streak:         *s,
			Transition:     transitionFor(prevDate, ev.Date),
			PreviousStreak: prevStreak,
		}
		return nil
	})
	if err != nil {
		return streak.ActivityResult{}, shared.WrapError("streak", "RecordActivity", shared.ErrServiceUnavailable, "record activity", err)
	}
	return result, nil
}

func (r *StreakRepository) ensureRow(ctx context.Context, q Querier, userID string) error {
	_, err := q.Exec(ctx, `
		INSERT INTO user_streaks (user_id, hearts, max_hearts, hearts_last_refilled_at)
		VALUES ($1, $2, $2, $3)
		ON CONFLICT (user_id) DO NOTHING`,
		userID, r.maxHearts, r.clock.Now())
	return err
}

func transitionFor(prevDate *time.Time, date time.Time) streak.Transition {
	if prevDate == nil {
		return streak.TransitionStarted
	}
	prev := timeutil.Date(prevDate.Year(), prevDate.Month(), prevDate.Day())
	day := timeutil.Date(date.Year(), date.Month(), date.Day())
	switch {
	case prev.Equal(day):
		return streak.TransitionSameDay
	case prev.AddDate(0, 0, 1).Equal(day):
		return streak.TransitionExtended
	case day.After(prev):
		return streak.TransitionReset
	default:
		return streak.TransitionSameDay
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Daily goal
// ─────────────────────────────────────────────────────────────────────────────

// AddDailyXP implements streak.Repository. Each call adds its own increment
// atomically, so a goal is reported as just achieved by exactly one caller.
func (r *StreakRepository) AddDailyXP(ctx context.Context, userID string, date time.Time, xp, defaultGoalXP int) (streak.DailyGoalResult, error) {
	if xp < 0 {
		return streak.DailyGoalResult{}, shared.ErrInvalidXP
	}
	if defaultGoalXP <= 0 {
		defaultGoalXP = streak.DefaultDailyGoalXP
	}

	var g streak.DailyGoal
	var day time.Time
	err := r.conn.QueryRow(ctx, `
		INSERT INTO daily_goals (user_id, date, goal_xp, earned_xp, is_achieved)
		VALUES ($1, $2::date, $3, $4, $4 >= $3)
		ON CONFLICT (user_id, date) DO UPDATE SET
			earned_xp = daily_goals.earned_xp + EXCLUDED.earned_xp,
			is_achieved = daily_goals.earned_xp + EXCLUDED.earned_xp >= daily_goals.goal_xp
		RETURNING user_id, date, goal_xp, earned_xp, is_achieved`,
		userID, date, defaultGoalXP, xp,
	).Scan(&g.UserID, &day, &g.GoalXP, &g.EarnedXP, &g.IsAchieved)
	if err != nil {
		return streak.DailyGoalResult{}, shared.WrapError("streak", "AddDailyXP", shared.ErrServiceUnavailable, "add daily xp", err)
	}
	g.Date = timeutil.Date(day.Year(), day.Month(), day.Day())

	return streak.DailyGoalResult{
		Goal:         g,
		JustAchieved: g.IsAchieved && g.EarnedXP-xp < g.GoalXP,
	}, nil
}

// GetDailyGoal implements streak.Repository.
func (r *StreakRepository) GetDailyGoal(ctx context.Context, userID string, date time.Time) (*streak.DailyGoal, error) {
	var g streak.DailyGoal
	var day time.Time
	err := r.conn.QueryRow(ctx, `
		SELECT user_id, date, goal_xp, earned_xp, is_achieved
		FROM daily_goals WHERE user_id = $1 AND date = $2::date`,
		userID, date,
	).Scan(&g.UserID, &day, &g.GoalXP, &g.EarnedXP, &g.IsAchieved)
	if IsNoRows(err) {
		return nil, shared.ErrDailyGoalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get daily goal: %w", err)
	}
	g.Date = timeutil.Date(day.Year(), day.Month(), day.Day())
	return &g, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Hearts
// ─────────────────────────────────────────────────────────────────────────────

// GetHearts implements hearts.Repository.
func (r *StreakRepository) GetHearts(ctx context.Context, userID string) (hearts.Record, error) {
	var rec hearts.Record
	err := r.conn.QueryRow(ctx, `
		SELECT hearts, max_hearts, hearts_last_refilled_at
		FROM user_streaks WHERE user_id = $1`, userID,
	).Scan(&rec.Hearts, &rec.MaxHearts, &rec.HeartsLastRefilledAt)
	if IsNoRows(err) {
		return hearts.Record{Hearts: r.maxHearts, MaxHearts: r.maxHearts, HeartsLastRefilledAt: r.clock.Now()}, nil
	}
	if err != nil {
		return hearts.Record{}, fmt.Errorf("failed to get hearts: %w", err)
	}
	return rec, nil
}

// CompareAndSetHearts implements hearts.Repository.
// A missing row is created only when prev is a full pool.
func (r *StreakRepository) CompareAndSetHearts(ctx context.Context, userID string, prev, next hearts.Record) error {
	tag, err := r.conn.Exec(ctx, `
		UPDATE user_streaks SET
			hearts = $5, max_hearts = $6, hearts_last_refilled_at = $7, updated_at = NOW()
		WHERE user_id = $1 AND hearts = $2 AND max_hearts = $3 AND hearts_last_refilled_at = $4`,
		userID, prev.Hearts, prev.MaxHearts, prev.HeartsLastRefilledAt,
		next.Hearts, next.MaxHearts, next.HeartsLastRefilledAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update hearts: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if prev.Hearts != prev.MaxHearts {
		return shared.ErrConcurrentModification
	}

	tag, err = r.conn.Exec(ctx, `
		INSERT INTO user_streaks (user_id, hearts, max_hearts, hearts_last_refilled_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO NOTHING`,
		userID, next.Hearts, next.MaxHearts, next.HeartsLastRefilledAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert hearts: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrConcurrentModification
	}
	return nil
}
