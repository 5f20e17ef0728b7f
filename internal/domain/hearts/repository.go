package hearts

import (
	"context"
	"time"
)

// Record - поля сердечек, хранящиеся в строке статистики пользователя.
type Record struct {
	Hearts               int
	MaxHearts            int
	HeartsLastRefilledAt time.Time
}

// ToPool превращает запись в пул с заданным интервалом.
func (r Record) ToPool(interval time.Duration) Pool {
	if interval <= 0 {
		interval = DefaultRefillInterval
	}
	return Pool{
		Stored:         r.Hearts,
		Max:            r.MaxHearts,
		LastRefilledAt: r.HeartsLastRefilledAt,
		Interval:       interval,
	}
}

// FromPool превращает пул обратно в запись.
func FromPool(p Pool) Record {
	return Record{
		Hearts:               p.Stored,
		MaxHearts:            p.Max,
		HeartsLastRefilledAt: p.LastRefilledAt,
	}
}

// Repository - хранилище сердечек.
type Repository interface {
	// GetHearts возвращает запись пользователя. Если строки нет, возвращается
	// полный пул по умолчанию и nil.
	GetHearts(ctx context.Context, userID string) (Record, error)

	// CompareAndSetHearts сохраняет next только если в хранилище всё ещё prev.
	// Возвращает shared.ErrConcurrentModification при конфликте.
	CompareAndSetHearts(ctx context.Context, userID string, prev, next Record) error
}
