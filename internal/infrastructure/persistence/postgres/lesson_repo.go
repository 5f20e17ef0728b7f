package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/beanwise/learning-engine/internal/domain/lesson"
	"github.com/beanwise/learning-engine/internal/domain/shared"
)

// LessonRepository implements lesson.ContentProvider, lesson.ProgressRepository
// and lesson.CatalogWriter.
type LessonRepository struct {
	conn *Connection
}

// NewLessonRepository creates a new LessonRepository.
func NewLessonRepository(conn *Connection) *LessonRepository {
	return &LessonRepository{conn: conn}
}

// ─────────────────────────────────────────────────────────────────────────────
// Content
// ─────────────────────────────────────────────────────────────────────────────

// GetLesson implements lesson.ContentProvider.
func (r *LessonRepository) GetLesson(ctx context.Context, lessonID string) (*lesson.Lesson, error) {
	var l lesson.Lesson
	err := r.conn.QueryRow(ctx, `
		SELECT id, track_id, title, description, xp_reward, sort_order, estimated_minutes
		FROM lessons WHERE id = $1`, lessonID,
	).Scan(&l.ID, &l.TrackID, &l.Title, &l.Description, &l.XPReward, &l.SortOrder, &l.EstimatedMinutes)
	if IsNoRows(err) {
		return nil, shared.ErrLessonNotFound
	}
	if err != nil {
		return nil, shared.WrapError("lesson", "GetLesson", shared.ErrContentUnavailable, "load lesson", err)
	}
	return &l, nil
}

// GetExercises implements lesson.ContentProvider.
func (r *LessonRepository) GetExercises(ctx context.Context, lessonID string) ([]lesson.Exercise, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, lesson_id, type, prompt, options, correct_answer, explanation, sort_order
		FROM exercises
		WHERE lesson_id = $1
		ORDER BY sort_order, id`, lessonID)
	if err != nil {
		return nil, shared.WrapError("lesson", "GetExercises", shared.ErrContentUnavailable, "load exercises", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (lesson.Exercise, error) {
		var e lesson.Exercise
		var typ string
		err := row.Scan(&e.ID, &e.LessonID, &typ, &e.Prompt, &e.Options, &e.CorrectAnswer, &e.Explanation, &e.SortOrder)
		e.Type = lesson.ExerciseType(typ)
		return e, err
	})
}

// UpsertLesson implements lesson.CatalogWriter. The exercise set is replaced.
func (r *LessonRepository) UpsertLesson(ctx context.Context, l lesson.Lesson, exercises []lesson.Exercise) error {
	if err := l.Validate(); err != nil {
		return err
	}
	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO lessons (id, track_id, title, description, xp_reward, sort_order, estimated_minutes)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE SET
				track_id = EXCLUDED.track_id,
				title = EXCLUDED.title,
				description = EXCLUDED.description,
				xp_reward = EXCLUDED.xp_reward,
				sort_order = EXCLUDED.sort_order,
				estimated_minutes = EXCLUDED.estimated_minutes`,
			l.ID, l.TrackID, l.Title, l.Description, l.XPReward, l.SortOrder, l.EstimatedMinutes)
		if err != nil {
			return fmt.Errorf("failed to upsert lesson %s: %w", l.ID, err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM exercises WHERE lesson_id = $1`, l.ID); err != nil {
			return fmt.Errorf("failed to clear exercises: %w", err)
		}
		if len(exercises) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for _, e := range exercises {
			options := e.Options
			if options == nil {
				options = []string{}
			}
			batch.Queue(`
				INSERT INTO exercises (id, lesson_id, type, prompt, options, correct_answer, explanation, sort_order)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				e.ID, l.ID, string(e.Type), e.Prompt, options, e.CorrectAnswer, e.Explanation, e.SortOrder)
		}
		br := tx.SendBatch(ctx, batch)
		defer br.Close()
		for range exercises {
			if _, err := br.Exec(); err != nil {
				return fmt.Errorf("failed to insert exercise: %w", err)
			}
		}
		return nil
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Progress
// ─────────────────────────────────────────────────────────────────────────────

const progressColumns = `id::text, user_id, lesson_id, status, best_score_percent, last_score_percent,
	attempts, xp_earned, time_spent_seconds, completed_at`

func scanProgress(row pgx.Row) (lesson.Progress, error) {
	var p lesson.Progress
	var status string
	err := row.Scan(&p.ID, &p.UserID, &p.LessonID, &status, &p.BestScorePercent, &p.LastScorePercent,
		&p.Attempts, &p.XPEarned, &p.TimeSpentSeconds, &p.CompletedAt)
	p.Status = lesson.ProgressStatus(status)
	return p, err
}

// UpsertProgress implements lesson.ProgressRepository. Best score never
// decreases; attempts, XP and time accumulate.
func (r *LessonRepository) UpsertProgress(ctx context.Context, p lesson.Progress) (lesson.Progress, error) {
	status := p.Status
	if status == "" {
		status = lesson.StatusCompleted
	}
	out, err := scanProgress(r.conn.QueryRow(ctx, `
		INSERT INTO lesson_progress (user_id, lesson_id, status, best_score_percent, last_score_percent,
			attempts, xp_earned, time_spent_seconds, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id, lesson_id) DO UPDATE SET
			status = EXCLUDED.status,
			best_score_percent = GREATEST(lesson_progress.best_score_percent, EXCLUDED.best_score_percent),
			last_score_percent = EXCLUDED.last_score_percent,
			attempts = lesson_progress.attempts + EXCLUDED.attempts,
			xp_earned = lesson_progress.xp_earned + EXCLUDED.xp_earned,
			time_spent_seconds = lesson_progress.time_spent_seconds + EXCLUDED.time_spent_seconds,
			completed_at = EXCLUDED.completed_at
		RETURNING `+progressColumns,
		p.UserID, p.LessonID, string(status), p.BestScorePercent, p.LastScorePercent,
		p.Attempts, p.XPEarned, p.TimeSpentSeconds, p.CompletedAt))
	if err != nil {
		return lesson.Progress{}, shared.WrapError("lesson", "UpsertProgress", shared.ErrServiceUnavailable, "upsert progress", err)
	}
	return out, nil
}

// AppendAttempts implements lesson.ProgressRepository using COPY.
func (r *LessonRepository) AppendAttempts(ctx context.Context, attempts []lesson.ExerciseAttempt) error {
	if len(attempts) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(attempts))
	for _, a := range attempts {
		id := a.ID
		if id == "" {
			id = uuid.NewString()
		}
		rows = append(rows, []any{id, a.UserID, a.LessonID, a.ExerciseID, a.IsCorrect, a.TimeSpentSeconds, a.AttemptedAt})
	}

	_, err := r.conn.CopyFrom(ctx,
		pgx.Identifier{"exercise_history"},
		[]string{"id", "user_id", "lesson_id", "exercise_id", "is_correct", "time_spent_seconds", "attempted_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to append attempts: %w", err)
	}
	return nil
}

// GetProgress implements lesson.ProgressRepository.
func (r *LessonRepository) GetProgress(ctx context.Context, userID, lessonID string) (*lesson.Progress, error) {
	p, err := scanProgress(r.conn.QueryRow(ctx, `
		SELECT `+progressColumns+`
		FROM lesson_progress WHERE user_id = $1 AND lesson_id = $2`, userID, lessonID))
	if IsNoRows(err) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get progress: %w", err)
	}
	return &p, nil
}
