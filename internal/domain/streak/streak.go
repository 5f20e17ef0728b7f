// Package streak содержит серию активности пользователя и дневную цель по опыту.
//
// Продолжение серии определяется календарными датами отчётного дня, а не
// длительностью. Авторитетный переход (рост, сброс, повтор в тот же день)
// выполняется хранилищем одной атомарной операцией; Apply описывает то же
// правило для хранилищ в памяти и тестов.
package streak

import (
	"time"

	"github.com/beanwise/learning-engine/internal/domain/hearts"
)

// ══════════════════════════════════════════════════════════════════════════════
// USER STREAK
// ══════════════════════════════════════════════════════════════════════════════

// UserStreak - строка статистики пользователя.
// Инварианты: CurrentStreak ≤ LongestStreak, 0 ≤ Hearts ≤ MaxHearts.
type UserStreak struct {
	// UserID - идентификатор пользователя.
	UserID string

	// CurrentStreak - текущая серия дней.
	CurrentStreak int

	// LongestStreak - лучшая серия.
	LongestStreak int

	// LastActivityDate - календарная дата последней активности (nil если не было).
	LastActivityDate *time.Time

	// TotalXP - суммарный опыт.
	TotalXP int

	// TotalLessonsCompleted - количество завершённых уроков.
	TotalLessonsCompleted int

	// Hearts - поля сердечек, хранящиеся в этой же строке.
	Hearts hearts.Record
}

// NewUserStreak создаёт пустую статистику пользователя с полным пулом сердечек.
func NewUserStreak(userID string, maxHearts int, now time.Time) *UserStreak {
	if maxHearts <= 0 {
		maxHearts = hearts.DefaultMaxHearts
	}
	return &UserStreak{
		UserID: userID,
		Hearts: hearts.Record{
			Hearts:               maxHearts,
			MaxHearts:            maxHearts,
			HeartsLastRefilledAt: now,
		},
	}
}

// Transition - вид изменения серии.
type Transition string

const (
	// TransitionStarted - первая активность пользователя.
	TransitionStarted Transition = "started"

	// TransitionExtended - активность на следующий день.
	TransitionExtended Transition = "extended"

	// TransitionReset - был пропуск, серия начинается заново.
	TransitionReset Transition = "reset"

	// TransitionSameDay - повторная активность в тот же день.
	TransitionSameDay Transition = "same_day"
)

// ActivityEvent - событие, которое передаётся в атомарное обновление серии.
type ActivityEvent struct {
	UserID string
	// Date - календарная дата в отчётной зоне (полночь UTC).
	Date time.Time
	// XP - заработанный опыт.
	XP int
}

// ActivityResult - обновлённые счётчики после атомарной операции.
type ActivityResult struct {
	Streak         UserStreak
	Transition     Transition
	PreviousStreak int
}

// IsFirstActivityToday сравнивает дату последней активности с сегодняшней.
// Вызывается до обновления серии, потому что обновление перезапишет дату.
func IsFirstActivityToday(lastActivityDate *time.Time, today time.Time) bool {
	if lastActivityDate == nil {
		return true
	}
	return !sameDate(*lastActivityDate, today)
}

// Apply применяет событие к копии статистики и возвращает результат.
func (s UserStreak) Apply(ev ActivityEvent) ActivityResult {
	prev := s.CurrentStreak
	transition := TransitionSameDay

	switch {
	case s.LastActivityDate == nil:
		s.CurrentStreak = 1
		transition = TransitionStarted
	case sameDate(*s.LastActivityDate, ev.Date):
		if s.CurrentStreak == 0 {
			s.CurrentStreak = 1
		}
	case sameDate(s.LastActivityDate.AddDate(0, 0, 1), ev.Date):
		s.CurrentStreak++
		transition = TransitionExtended
	case ev.Date.After(*s.LastActivityDate):
		s.CurrentStreak = 1
		transition = TransitionReset
	default:
		// Событие за прошедшую дату: серия не меняется.
	}

	if s.CurrentStreak > s.LongestStreak {
		s.LongestStreak = s.CurrentStreak
	}
	if ev.XP > 0 {
		s.TotalXP += ev.XP
	}
	s.TotalLessonsCompleted++

	if s.LastActivityDate == nil || ev.Date.After(*s.LastActivityDate) {
		d := ev.Date
		s.LastActivityDate = &d
	}

	return ActivityResult{Streak: s, Transition: transition, PreviousStreak: prev}
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
