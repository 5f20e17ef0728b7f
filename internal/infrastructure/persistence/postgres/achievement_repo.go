package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/beanwise/learning-engine/internal/domain/achievement"
)

// AchievementRepository implements achievement.Repository and
// achievement.CatalogWriter.
type AchievementRepository struct {
	conn *Connection
}

// NewAchievementRepository creates a new AchievementRepository.
func NewAchievementRepository(conn *Connection) *AchievementRepository {
	return &AchievementRepository{conn: conn}
}

// ListActive implements achievement.Repository.
func (r *AchievementRepository) ListActive(ctx context.Context) ([]achievement.Achievement, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, code, title, description, icon, xp_reward,
		       condition_type, condition_value, is_active, sort_order
		FROM achievements
		WHERE is_active
		ORDER BY sort_order, code`)
	if err != nil {
		return nil, fmt.Errorf("failed to list achievements: %w", err)
	}

	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (achievement.Achievement, error) {
		var a achievement.Achievement
		var cond string
		err := row.Scan(&a.ID, &a.Code, &a.Title, &a.Description, &a.Icon, &a.XPReward,
			&cond, &a.ConditionValue, &a.IsActive, &a.SortOrder)
		a.ConditionType = achievement.ConditionType(cond)
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan achievements: %w", err)
	}
	return list, nil
}

// ListEarnedIDs implements achievement.Repository.
func (r *AchievementRepository) ListEarnedIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.conn.Query(ctx,
		`SELECT achievement_id FROM user_achievements WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list earned achievements: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// Unlock implements achievement.Repository. A unique violation, or a
// conflicting concurrent insert, is reported as UnlockAlreadyExists.
func (r *AchievementRepository) Unlock(ctx context.Context, userID, achievementID string, at time.Time) (achievement.UnlockOutcome, error) {
	tag, err := r.conn.Exec(ctx, `
		INSERT INTO user_achievements (user_id, achievement_id, earned_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, achievement_id) DO NOTHING`,
		userID, achievementID, at)
	if IsUniqueViolation(err) {
		return achievement.UnlockAlreadyExists, nil
	}
	if err != nil {
		return achievement.UnlockInserted, fmt.Errorf("failed to unlock achievement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return achievement.UnlockAlreadyExists, nil
	}
	return achievement.UnlockInserted, nil
}

// ListUnlocked implements achievement.Repository.
func (r *AchievementRepository) ListUnlocked(ctx context.Context, userID string) ([]achievement.UserAchievement, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT user_id, achievement_id, earned_at
		FROM user_achievements
		WHERE user_id = $1
		ORDER BY earned_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list unlocked achievements: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (achievement.UserAchievement, error) {
		var ua achievement.UserAchievement
		err := row.Scan(&ua.UserID, &ua.AchievementID, &ua.EarnedAt)
		return ua, err
	})
}

// UpsertAchievement implements achievement.CatalogWriter.
func (r *AchievementRepository) UpsertAchievement(ctx context.Context, a achievement.Achievement) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO achievements (id, code, title, description, icon, xp_reward,
			condition_type, condition_value, is_active, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			code = EXCLUDED.code,
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			icon = EXCLUDED.icon,
			xp_reward = EXCLUDED.xp_reward,
			condition_type = EXCLUDED.condition_type,
			condition_value = EXCLUDED.condition_value,
			is_active = EXCLUDED.is_active,
			sort_order = EXCLUDED.sort_order`,
		a.ID, a.Code, a.Title, a.Description, a.Icon, a.XPReward,
		string(a.ConditionType), a.ConditionValue, a.IsActive, a.SortOrder)
	if err != nil {
		return fmt.Errorf("failed to upsert achievement %s: %w", a.Code, err)
	}
	return nil
}
