// Package achievement содержит каталог достижений и их разблокировку.
package achievement

import (
	"sort"
	"time"
)

// ConditionType - тип условия разблокировки.
type ConditionType string

const (
	// ConditionStreakDays - серия не меньше N дней.
	ConditionStreakDays ConditionType = "streak_days"

	// ConditionLessonsCompleted - завершено не меньше N уроков.
	ConditionLessonsCompleted ConditionType = "lessons_completed"

	// ConditionTrackComplete - пройден трек. Распознаётся, но не вычисляется.
	ConditionTrackComplete ConditionType = "track_complete"

	// ConditionLeagueTier - достигнут уровень лиги. Распознаётся, но не вычисляется.
	ConditionLeagueTier ConditionType = "league_tier"
)

// IsKnown возвращает true для распознаваемых типов условий.
func (c ConditionType) IsKnown() bool {
	switch c {
	case ConditionStreakDays, ConditionLessonsCompleted, ConditionTrackComplete, ConditionLeagueTier:
		return true
	}
	return false
}

// Achievement - запись глобального каталога. Неизменяема для клиента.
type Achievement struct {
	ID             string        `yaml:"id" json:"id"`
	Code           string        `yaml:"code" json:"code"`
	Title          string        `yaml:"title" json:"title"`
	Description    string        `yaml:"description" json:"description"`
	Icon           string        `yaml:"icon" json:"icon"`
	XPReward       int           `yaml:"xp_reward" json:"xp_reward"`
	ConditionType  ConditionType `yaml:"condition_type" json:"condition_type"`
	ConditionValue int           `yaml:"condition_value" json:"condition_value"`
	IsActive       bool          `yaml:"active" json:"is_active"`
	SortOrder      int           `yaml:"sort_order" json:"sort_order"`
}

// UserAchievement - факт разблокировки. Уникален по (пользователь, достижение).
type UserAchievement struct {
	UserID        string
	AchievementID string
	EarnedAt      time.Time
}

// StatsSnapshot - снимок статистики пользователя для проверки условий.
type StatsSnapshot struct {
	CurrentStreak         int
	LongestStreak         int
	TotalLessonsCompleted int
	TotalXP               int
}

// IsSatisfied проверяет условие достижения на снимке.
// track_complete и league_tier намеренно всегда ложны.
func (a Achievement) IsSatisfied(s StatsSnapshot) bool {
	switch a.ConditionType {
	case ConditionStreakDays:
		return s.CurrentStreak >= a.ConditionValue
	case ConditionLessonsCompleted:
		return s.TotalLessonsCompleted >= a.ConditionValue
	default:
		return false
	}
}

// SortCatalog сортирует достижения в порядке каталога.
func SortCatalog(list []Achievement) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].SortOrder != list[j].SortOrder {
			return list[i].SortOrder < list[j].SortOrder
		}
		return list[i].Code < list[j].Code
	})
}
