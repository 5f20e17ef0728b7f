package streak

import (
	"context"
	"time"
)

// Repository - хранилище серий и дневных целей.
type Repository interface {
	// GetStreak возвращает статистику пользователя или shared.ErrStreakNotFound.
	GetStreak(ctx context.Context, userID string) (*UserStreak, error)

	// RecordActivity атомарно применяет событие к серии и возвращает новые счётчики.
	// Гонки между устройствами решает хранилище, а не вызывающий код.
	RecordActivity(ctx context.Context, ev ActivityEvent) (ActivityResult, error)

	// AddDailyXP создаёт цель на дату с defaultGoalXP или увеличивает EarnedXP.
	AddDailyXP(ctx context.Context, userID string, date time.Time, xp, defaultGoalXP int) (DailyGoalResult, error)

	// GetDailyGoal возвращает цель на дату или shared.ErrDailyGoalNotFound.
	GetDailyGoal(ctx context.Context, userID string, date time.Time) (*DailyGoal, error)
}
