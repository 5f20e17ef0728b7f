package lesson

import (
	"context"
)

// ContentProvider - источник контента уроков.
type ContentProvider interface {
	// GetLesson возвращает урок или shared.ErrLessonNotFound.
	GetLesson(ctx context.Context, lessonID string) (*Lesson, error)

	// GetExercises возвращает упражнения урока, упорядоченные по SortOrder.
	GetExercises(ctx context.Context, lessonID string) ([]Exercise, error)
}

// ProgressRepository - хранилище прогресса по урокам и истории ответов.
type ProgressRepository interface {
	// UpsertProgress вставляет или сливает прогресс по (UserID, LessonID)
	// и возвращает итоговую запись. Повторный вызов не уменьшает лучший результат.
	UpsertProgress(ctx context.Context, p Progress) (Progress, error)

	// AppendAttempts добавляет строки истории ответов.
	AppendAttempts(ctx context.Context, attempts []ExerciseAttempt) error

	// GetProgress возвращает прогресс или shared.ErrNotFound.
	GetProgress(ctx context.Context, userID, lessonID string) (*Progress, error)
}

// CatalogWriter - запись контента (используется при загрузке сидов).
type CatalogWriter interface {
	UpsertLesson(ctx context.Context, l Lesson, exercises []Exercise) error
}
