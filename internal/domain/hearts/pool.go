// Package hearts содержит модель расходуемого ресурса "сердечки".
//
// Количество доступных сердечек не хранится как счётчик, который уменьшает фоновый
// таймер: оно вычисляется при чтении из сохранённого значения, максимума и момента
// последнего пополнения. Поэтому корректность не зависит от фоновых процессов.
package hearts

import (
	"time"
)

const (
	// DefaultMaxHearts - максимум сердечек по умолчанию.
	DefaultMaxHearts = 5

	// DefaultRefillInterval - время восстановления одного сердечка.
	DefaultRefillInterval = 4 * time.Hour
)

// Pool - снимок пула сердечек пользователя.
type Pool struct {
	// Stored - значение, записанное при последней мутации.
	Stored int

	// Max - верхняя граница.
	Max int

	// LastRefilledAt - якорь отсчёта восстановления.
	LastRefilledAt time.Time

	// Interval - время восстановления одного сердечка.
	Interval time.Duration
}

// NewPool создаёт полный пул.
func NewPool(max int, interval time.Duration, now time.Time) Pool {
	if max <= 0 {
		max = DefaultMaxHearts
	}
	if interval <= 0 {
		interval = DefaultRefillInterval
	}
	return Pool{Stored: max, Max: max, LastRefilledAt: now, Interval: interval}
}

// materialize возвращает фактическое количество сердечек на момент now и якорь,
// сдвинутый на число уже учтённых интервалов. Частичный прогресс к следующему
// сердечку сохраняется.
func (p Pool) materialize(now time.Time) (int, time.Time) {
	if p.Stored >= p.Max {
		return p.Max, p.LastRefilledAt
	}
	stored := p.Stored
	if stored < 0 {
		stored = 0
	}

	elapsed := now.Sub(p.LastRefilledAt)
	if elapsed < 0 || p.Interval <= 0 {
		return stored, p.LastRefilledAt
	}

	regenerated := int(elapsed / p.Interval)
	if stored+regenerated >= p.Max {
		return p.Max, p.LastRefilledAt
	}
	return stored + regenerated, p.LastRefilledAt.Add(time.Duration(regenerated) * p.Interval)
}

// Available возвращает количество сердечек на момент now. Всегда 0 ≤ n ≤ Max.
func (p Pool) Available(now time.Time) int {
	n, _ := p.materialize(now)
	return n
}

// IsFull возвращает true, если пул заполнен.
func (p Pool) IsFull(now time.Time) bool {
	return p.Available(now) >= p.Max
}

// IsEmpty возвращает true, если сердечек нет.
func (p Pool) IsEmpty(now time.Time) bool {
	return p.Available(now) == 0
}

// TimeUntilNext возвращает время до следующего сердечка или nil, если пул полон.
func (p Pool) TimeUntilNext(now time.Time) *time.Duration {
	if p.IsFull(now) {
		return nil
	}
	elapsed := now.Sub(p.LastRefilledAt)
	if elapsed < 0 {
		elapsed = 0
	}
	d := p.Interval - elapsed%p.Interval
	return &d
}

// NextHeartAt возвращает момент появления следующего сердечка или nil.
func (p Pool) NextHeartAt(now time.Time) *time.Time {
	d := p.TimeUntilNext(now)
	if d == nil {
		return nil
	}
	at := now.Add(*d)
	return &at
}

// LoseResult - результат потери сердечка.
type LoseResult struct {
	// Pool - новое состояние, которое нужно сохранить.
	Pool Pool

	// Remaining - сколько сердечек осталось.
	Remaining int

	// Exhausted - true, если сердечек не было и списывать нечего.
	Exhausted bool

	// Depleted - true, если это было последнее сердечко.
	Depleted bool
}

// Lose списывает одно сердечко. Новый якорь ставится только при переходе
// из полного пула в неполный. Пустой пул - это обычный результат, а не ошибка.
func (p Pool) Lose(now time.Time) LoseResult {
	available, anchor := p.materialize(now)
	if available == 0 {
		return LoseResult{Pool: p, Remaining: 0, Exhausted: true}
	}

	if available >= p.Max {
		anchor = now
	}

	next := Pool{
		Stored:         available - 1,
		Max:            p.Max,
		LastRefilledAt: anchor,
		Interval:       p.Interval,
	}
	return LoseResult{
		Pool:      next,
		Remaining: next.Stored,
		Depleted:  next.Stored == 0,
	}
}

// Gain добавляет n сердечек с ограничением сверху Max.
func (p Pool) Gain(n int, now time.Time) Pool {
	available, anchor := p.materialize(now)
	if n < 0 {
		n = 0
	}
	stored := available + n
	if stored >= p.Max {
		stored = p.Max
		anchor = now
	}
	return Pool{
		Stored:         stored,
		Max:            p.Max,
		LastRefilledAt: anchor,
		Interval:       p.Interval,
	}
}

// Status - представление пула для чтения.
type Status struct {
	Available   int            `json:"available"`
	Max         int            `json:"max"`
	NextHeartIn *time.Duration `json:"next_heart_in,omitempty"`
}

// StatusAt возвращает представление пула на момент now.
func (p Pool) StatusAt(now time.Time) Status {
	return Status{
		Available:   p.Available(now),
		Max:         p.Max,
		NextHeartIn: p.TimeUntilNext(now),
	}
}
