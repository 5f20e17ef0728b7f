// Package anonymous содержит локальный прогресс неавторизованного пользователя
// и правила воронки регистрации.
//
// Этот прогресс - пробный режим. При входе он удаляется целиком и никогда
// не переносится в серверную статистику.
package anonymous

import (
	"context"
	"sort"
	"time"

	"github.com/beanwise/learning-engine/internal/domain/shared"
)

// HardGateLessons - после стольких разных уроков регистрация обязательна.
const HardGateLessons = 3

// Gate - состояние воронки регистрации.
type Gate string

const (
	// GateNone - ничего не показываем.
	GateNone Gate = "none"

	// GateSoft - предложение зарегистрироваться, можно закрыть.
	GateSoft Gate = "soft"

	// GateHard - регистрация обязательна, закрыть нельзя.
	GateHard Gate = "hard"
)

// Progress - локальная запись анонимного прогресса.
type Progress struct {
	CompletedLessons    []string   `json:"completed_lessons"`
	TotalXP             int        `json:"total_xp"`
	LastActivityDate    *time.Time `json:"last_activity_date,omitempty"`
	HasSeenSignupPrompt bool       `json:"has_seen_signup_prompt"`
}

// RecordCompletion добавляет урок в набор (без дублей) и прибавляет опыт.
func (p *Progress) RecordCompletion(lessonID string, xp int, date time.Time) {
	if !p.HasCompleted(lessonID) {
		p.CompletedLessons = append(p.CompletedLessons, lessonID)
		sort.Strings(p.CompletedLessons)
	}
	if xp > 0 {
		p.TotalXP += xp
	}
	d := date
	p.LastActivityDate = &d
}

// HasCompleted проверяет, пройден ли урок.
func (p *Progress) HasCompleted(lessonID string) bool {
	i := sort.SearchStrings(p.CompletedLessons, lessonID)
	return i < len(p.CompletedLessons) && p.CompletedLessons[i] == lessonID
}

// CompletedCount - количество разных пройденных уроков.
func (p *Progress) CompletedCount() int {
	return len(p.CompletedLessons)
}

// Gate вычисляет состояние воронки. Жёсткий порог проверяется первым.
func (p *Progress) Gate() Gate {
	n := p.CompletedCount()
	switch {
	case n >= HardGateLessons:
		return GateHard
	case n >= 1 && !p.HasSeenSignupPrompt:
		return GateSoft
	default:
		return GateNone
	}
}

// DismissPrompt отмечает мягкое предложение как просмотренное.
// Жёсткий порог закрыть нельзя.
func (p *Progress) DismissPrompt() error {
	if p.Gate() == GateHard {
		return shared.ErrHardGateActive
	}
	p.HasSeenSignupPrompt = true
	return nil
}

// Store - синхронное локальное хранилище ключ-значение.
type Store interface {
	// Load возвращает сохранённый прогресс или пустой, если записи нет.
	Load(ctx context.Context) (*Progress, error)

	// Save перезаписывает прогресс.
	Save(ctx context.Context, p *Progress) error

	// Clear удаляет запись. Отсутствие записи не ошибка.
	Clear(ctx context.Context) error
}
