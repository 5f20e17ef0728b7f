package memory

import (
	"context"
	"sync"

	"github.com/beanwise/learning-engine/internal/domain/lesson"
	"github.com/beanwise/learning-engine/internal/domain/shared"
)

type progressKey struct {
	userID   string
	lessonID string
}

// LessonStore keeps lesson content, per-lesson progress and exercise history.
type LessonStore struct {
	mu        sync.Mutex
	lessons   map[string]lesson.Lesson
	exercises map[string][]lesson.Exercise
	progress  map[progressKey]lesson.Progress
	attempts  []lesson.ExerciseAttempt
}

// NewLessonStore creates an empty store.
func NewLessonStore() *LessonStore {
	return &LessonStore{
		lessons:   make(map[string]lesson.Lesson),
		exercises: make(map[string][]lesson.Exercise),
		progress:  make(map[progressKey]lesson.Progress),
	}
}

// AddLesson stores a lesson with its exercises.
func (s *LessonStore) AddLesson(l lesson.Lesson, exercises ...lesson.Exercise) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ex := make([]lesson.Exercise, len(exercises))
	copy(ex, exercises)
	lesson.SortExercises(ex)
	s.lessons[l.ID] = l
	s.exercises[l.ID] = ex
}

// UpsertLesson implements lesson.CatalogWriter.
func (s *LessonStore) UpsertLesson(ctx context.Context, l lesson.Lesson, exercises []lesson.Exercise) error {
	if err := l.Validate(); err != nil {
		return err
	}
	s.AddLesson(l, exercises...)
	return nil
}

// GetLesson implements lesson.ContentProvider.
func (s *LessonStore) GetLesson(ctx context.Context, lessonID string) (*lesson.Lesson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lessons[lessonID]
	if !ok {
		return nil, shared.ErrLessonNotFound
	}
	return &l, nil
}

// GetExercises implements lesson.ContentProvider.
func (s *LessonStore) GetExercises(ctx context.Context, lessonID string) ([]lesson.Exercise, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lessons[lessonID]; !ok {
		return nil, shared.ErrLessonNotFound
	}
	ex := s.exercises[lessonID]
	out := make([]lesson.Exercise, len(ex))
	copy(out, ex)
	return out, nil
}

// UpsertProgress implements lesson.ProgressRepository.
func (s *LessonStore) UpsertProgress(ctx context.Context, p lesson.Progress) (lesson.Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := progressKey{userID: p.UserID, lessonID: p.LessonID}
	if prev, ok := s.progress[key]; ok {
		p = prev.Merge(p)
	}
	s.progress[key] = p
	return p, nil
}

// AppendAttempts implements lesson.ProgressRepository.
func (s *LessonStore) AppendAttempts(ctx context.Context, attempts []lesson.ExerciseAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, attempts...)
	return nil
}

// GetProgress implements lesson.ProgressRepository.
func (s *LessonStore) GetProgress(ctx context.Context, userID, lessonID string) (*lesson.Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.progress[progressKey{userID: userID, lessonID: lessonID}]
	if !ok {
		return nil, shared.NewDomainError("lesson", "GetProgress", shared.ErrNotFound, "lesson progress not found")
	}
	return &p, nil
}

// Attempts returns a copy of the exercise history.
func (s *LessonStore) Attempts() []lesson.ExerciseAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]lesson.ExerciseAttempt, len(s.attempts))
	copy(out, s.attempts)
	return out
}
