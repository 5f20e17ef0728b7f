package streak

import (
	"time"
)

// DefaultDailyGoalXP - цель по умолчанию, если у пользователя нет своей.
const DefaultDailyGoalXP = 10

// DailyGoal - дневная цель пользователя. Одна строка на пользователя и дату.
type DailyGoal struct {
	UserID     string
	Date       time.Time
	GoalXP     int
	EarnedXP   int
	IsAchieved bool
}

// NewDailyGoal создаёт цель на дату. Строка создаётся лениво при первом начислении.
func NewDailyGoal(userID string, date time.Time, goalXP int) DailyGoal {
	if goalXP <= 0 {
		goalXP = DefaultDailyGoalXP
	}
	return DailyGoal{UserID: userID, Date: date, GoalXP: goalXP}
}

// DailyGoalResult - результат начисления опыта в дневную цель.
type DailyGoalResult struct {
	Goal DailyGoal

	// JustAchieved - цель достигнута именно этим начислением.
	JustAchieved bool
}

// AddXP прибавляет опыт и пересчитывает IsAchieved.
func (g DailyGoal) AddXP(xp int) DailyGoalResult {
	wasAchieved := g.IsAchieved
	if xp > 0 {
		g.EarnedXP += xp
	}
	g.IsAchieved = g.EarnedXP >= g.GoalXP
	return DailyGoalResult{Goal: g, JustAchieved: g.IsAchieved && !wasAchieved}
}

// Remaining возвращает сколько опыта осталось до цели.
func (g DailyGoal) Remaining() int {
	if g.EarnedXP >= g.GoalXP {
		return 0
	}
	return g.GoalXP - g.EarnedXP
}
