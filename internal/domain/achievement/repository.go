package achievement

import (
	"context"
	"time"
)

// UnlockOutcome - результат попытки сохранить разблокировку.
type UnlockOutcome int

const (
	// UnlockInserted - строка вставлена этим вызовом.
	UnlockInserted UnlockOutcome = iota

	// UnlockAlreadyExists - строка уже была (в том числе вставлена параллельно).
	// Это не ошибка.
	UnlockAlreadyExists
)

// String возвращает строковое представление.
func (o UnlockOutcome) String() string {
	if o == UnlockAlreadyExists {
		return "already_exists"
	}
	return "inserted"
}

// Repository - хранилище каталога и разблокировок.
type Repository interface {
	// ListActive возвращает активные достижения каталога.
	ListActive(ctx context.Context) ([]Achievement, error)

	// ListEarnedIDs возвращает идентификаторы уже полученных достижений.
	ListEarnedIDs(ctx context.Context, userID string) ([]string, error)

	// Unlock вставляет строку разблокировки. Нарушение уникальности
	// превращается в UnlockAlreadyExists без ошибки.
	Unlock(ctx context.Context, userID, achievementID string, at time.Time) (UnlockOutcome, error)

	// ListUnlocked возвращает полученные пользователем достижения.
	ListUnlocked(ctx context.Context, userID string) ([]UserAchievement, error)
}

// CatalogWriter - запись каталога (используется при загрузке сидов).
type CatalogWriter interface {
	UpsertAchievement(ctx context.Context, a Achievement) error
}
