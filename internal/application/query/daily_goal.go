package query

import (
	"context"
	"errors"

	"github.com/beanwise/learning-engine/internal/domain/shared"
	"github.com/beanwise/learning-engine/internal/domain/streak"
	"github.com/beanwise/learning-engine/pkg/timeutil"
)

// GetDailyProgressQuery asks for today's goal and the streak.
type GetDailyProgressQuery struct {
	UserID string
}

// DailyProgressDTO is today's progress for the home screen.
type DailyProgressDTO struct {
	GoalXP        int
	EarnedXP      int
	RemainingXP   int
	IsAchieved    bool
	CurrentStreak int
	LongestStreak int
	// StreakAtRisk - there is a streak and nothing was done today yet.
	StreakAtRisk bool
}

// GetDailyProgressHandler reads the daily goal without creating it.
type GetDailyProgressHandler struct {
	repo        streak.Repository
	clock       timeutil.Clock
	defaultGoal int
}

// NewGetDailyProgressHandler creates a new GetDailyProgressHandler.
func NewGetDailyProgressHandler(repo streak.Repository, clock timeutil.Clock, defaultGoal int) *GetDailyProgressHandler {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if defaultGoal <= 0 {
		defaultGoal = streak.DefaultDailyGoalXP
	}
	return &GetDailyProgressHandler{repo: repo, clock: clock, defaultGoal: defaultGoal}
}

// Handle executes the query.
func (h *GetDailyProgressHandler) Handle(ctx context.Context, q GetDailyProgressQuery) (*DailyProgressDTO, error) {
	if q.UserID == "" {
		return nil, shared.NewDomainError("streak", "GetDailyProgress", shared.ErrInvalidID, "user id is required")
	}
	today := timeutil.DateOf(h.clock.Now())

	goal, err := h.repo.GetDailyGoal(ctx, q.UserID, today)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		g := streak.NewDailyGoal(q.UserID, today, h.defaultGoal)
		goal = &g
	case err != nil:
		return nil, err
	}

	dto := &DailyProgressDTO{
		GoalXP:      goal.GoalXP,
		EarnedXP:    goal.EarnedXP,
		RemainingXP: goal.Remaining(),
		IsAchieved:  goal.IsAchieved,
	}

	st, err := h.repo.GetStreak(ctx, q.UserID)
	switch {
	case errors.Is(err, shared.ErrNotFound):
	case err != nil:
		return nil, err
	default:
		dto.CurrentStreak = st.CurrentStreak
		dto.LongestStreak = st.LongestStreak
		dto.StreakAtRisk = st.CurrentStreak > 0 && streak.IsFirstActivityToday(st.LastActivityDate, today)
	}

	return dto, nil
}
