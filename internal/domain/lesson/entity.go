// Package lesson содержит контент уроков, состояние сессии прохождения урока
// и прогресс пользователя по урокам.
package lesson

import (
	"sort"
	"strings"
	"time"

	"github.com/beanwise/learning-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONTENT
// ══════════════════════════════════════════════════════════════════════════════

// Lesson - урок трека. Контент только для чтения.
type Lesson struct {
	ID               string `yaml:"id"`
	TrackID          string `yaml:"track_id"`
	Title            string `yaml:"title"`
	Description      string `yaml:"description"`
	XPReward         int    `yaml:"xp_reward"`
	SortOrder        int    `yaml:"sort_order"`
	EstimatedMinutes int    `yaml:"estimated_minutes"`
}

// Validate проверяет урок.
func (l Lesson) Validate() error {
	if strings.TrimSpace(l.ID) == "" {
		return shared.NewDomainError("lesson", "Validate", shared.ErrInvalidID, "lesson id cannot be empty")
	}
	if l.XPReward < 0 {
		return shared.NewDomainError("lesson", "Validate", shared.ErrNegativeValue, "xp reward cannot be negative")
	}
	return nil
}

// ExerciseType - тип упражнения.
type ExerciseType string

const (
	ExerciseMultipleChoice ExerciseType = "multiple_choice"
	ExerciseTrueFalse      ExerciseType = "true_false"
	ExerciseFillBlank      ExerciseType = "fill_blank"
)

// Exercise - упражнение внутри урока.
type Exercise struct {
	ID            string       `yaml:"id"`
	LessonID      string       `yaml:"-"`
	Type          ExerciseType `yaml:"type"`
	Prompt        string       `yaml:"prompt"`
	Options       []string     `yaml:"options"`
	CorrectAnswer string       `yaml:"answer"`
	Explanation   string       `yaml:"explanation"`
	SortOrder     int          `yaml:"sort_order"`
}

// Check сравнивает ответ без учёта регистра и пробелов по краям.
func (e Exercise) Check(answer string) bool {
	return strings.EqualFold(strings.TrimSpace(answer), strings.TrimSpace(e.CorrectAnswer))
}

// SortExercises упорядочивает упражнения по SortOrder (стабильно).
func SortExercises(exercises []Exercise) {
	sort.SliceStable(exercises, func(i, j int) bool {
		return exercises[i].SortOrder < exercises[j].SortOrder
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

// ProgressStatus - статус урока у пользователя.
type ProgressStatus string

const (
	StatusCompleted ProgressStatus = "completed"
)

// Progress - прогресс пользователя по уроку. Одна запись на (пользователь, урок).
type Progress struct {
	ID               string
	UserID           string
	LessonID         string
	Status           ProgressStatus
	BestScorePercent int
	LastScorePercent int
	Attempts         int
	XPEarned         int
	TimeSpentSeconds int
	CompletedAt      time.Time
}

// Merge применяет новую попытку к сохранённому прогрессу.
// Лучший результат - максимум по всем попыткам.
func (p Progress) Merge(next Progress) Progress {
	merged := p
	merged.Status = StatusCompleted
	merged.LastScorePercent = next.LastScorePercent
	if next.BestScorePercent > merged.BestScorePercent {
		merged.BestScorePercent = next.BestScorePercent
	}
	merged.Attempts += next.Attempts
	merged.XPEarned += next.XPEarned
	merged.TimeSpentSeconds += next.TimeSpentSeconds
	merged.CompletedAt = next.CompletedAt
	return merged
}

// ExerciseAttempt - строка истории ответов. Только добавление.
type ExerciseAttempt struct {
	ID               string
	UserID           string
	LessonID         string
	ExerciseID       string
	IsCorrect        bool
	TimeSpentSeconds int
	AttemptedAt      time.Time
}
