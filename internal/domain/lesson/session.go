package lesson

import (
	"time"

	"github.com/beanwise/learning-engine/internal/domain/shared"
	"github.com/beanwise/learning-engine/internal/domain/xp"
)

// State - состояние сессии урока.
type State string

const (
	StateLoading  State = "loading"
	StateIntro    State = "intro"
	StateExercise State = "exercise"
	StateFeedback State = "feedback"
	StateComplete State = "complete"
	StateSignup   State = "signup"
)

// IsTerminal возвращает true для complete и signup.
func (s State) IsTerminal() bool {
	return s == StateComplete || s == StateSignup
}

// Answer - ответ на одно упражнение в рамках сессии.
type Answer struct {
	ExerciseID       string
	Correct          bool
	TimeSpentSeconds int
	AnsweredAt       time.Time
}

// Outcome - итог завершённой сессии.
type Outcome struct {
	LessonID         string
	BaseXP           int
	Correct          int
	Total            int
	ScorePercent     int
	TimeSpentSeconds int
	Answers          []Answer
}

// Session - состояние одного прохождения урока. Живёт только в памяти,
// принадлежит одному контроллеру и не синхронизирована.
//
// Переходы:
//
//	loading → intro → exercise ⇄ feedback → complete
//	любое нетерминальное → signup
type Session struct {
	state     State
	lesson    Lesson
	exercises []Exercise

	index   int
	correct int
	answers []Answer

	startedAt         time.Time
	exerciseStartedAt time.Time
	elapsedSeconds    int
}

// NewSession создаёт сессию в состоянии loading.
func NewSession() *Session {
	return &Session{state: StateLoading}
}

// State возвращает текущее состояние.
func (s *Session) State() State { return s.state }

// Lesson возвращает загруженный урок.
func (s *Session) Lesson() Lesson { return s.lesson }

// Total возвращает количество упражнений.
func (s *Session) Total() int { return len(s.exercises) }

// Index возвращает номер текущего упражнения (с нуля).
func (s *Session) Index() int { return s.index }

// Correct возвращает количество верных ответов.
func (s *Session) Correct() int { return s.correct }

// ElapsedSeconds возвращает время прохождения, зафиксированное при завершении.
func (s *Session) ElapsedSeconds() int { return s.elapsedSeconds }

// CurrentExercise возвращает текущее упражнение в состояниях exercise и feedback.
func (s *Session) CurrentExercise() (Exercise, bool) {
	if s.state != StateExercise && s.state != StateFeedback {
		return Exercise{}, false
	}
	return s.exercises[s.index], true
}

// LastAnswer возвращает последний ответ, если он есть.
func (s *Session) LastAnswer() (Answer, bool) {
	if len(s.answers) == 0 {
		return Answer{}, false
	}
	return s.answers[len(s.answers)-1], true
}

// Loaded переводит loading → intro после загрузки контента.
func (s *Session) Loaded(l Lesson, exercises []Exercise) error {
	if s.state != StateLoading {
		return s.invalid("Loaded")
	}
	ex := make([]Exercise, len(exercises))
	copy(ex, exercises)
	SortExercises(ex)

	s.lesson = l
	s.exercises = ex
	s.state = StateIntro
	return nil
}

// Start переводит intro → exercise и сбрасывает счёт и таймеры.
// Урок без упражнений сразу завершается.
func (s *Session) Start(now time.Time) error {
	if s.state != StateIntro {
		return s.invalid("Start")
	}
	s.index = 0
	s.correct = 0
	s.answers = s.answers[:0]
	s.startedAt = now
	s.exerciseStartedAt = now
	s.elapsedSeconds = 0

	if len(s.exercises) == 0 {
		s.finish(now)
		return nil
	}
	s.state = StateExercise
	return nil
}

// Submit переводит exercise → feedback и записывает ответ.
func (s *Session) Submit(correct bool, now time.Time) error {
	if s.state != StateExercise {
		return s.invalid("Submit")
	}
	if correct {
		s.correct++
	}
	s.answers = append(s.answers, Answer{
		ExerciseID:       s.exercises[s.index].ID,
		Correct:          correct,
		TimeSpentSeconds: seconds(now.Sub(s.exerciseStartedAt)),
		AnsweredAt:       now,
	})
	s.state = StateFeedback
	return nil
}

// Continue переводит feedback → exercise (следующее упражнение)
// или feedback → complete, если упражнения закончились.
func (s *Session) Continue(now time.Time) error {
	if s.state != StateFeedback {
		return s.invalid("Continue")
	}
	if s.index+1 < len(s.exercises) {
		s.index++
		s.exerciseStartedAt = now
		s.state = StateExercise
		return nil
	}
	s.finish(now)
	return nil
}

// RequireSignup переводит любое нетерминальное состояние в signup.
func (s *Session) RequireSignup() error {
	if s.state.IsTerminal() {
		return s.invalid("RequireSignup")
	}
	s.state = StateSignup
	return nil
}

// Outcome возвращает итог. Доступен только в состоянии complete.
func (s *Session) Outcome() (Outcome, error) {
	if s.state != StateComplete {
		return Outcome{}, s.invalid("Outcome")
	}
	answers := make([]Answer, len(s.answers))
	copy(answers, s.answers)
	return Outcome{
		LessonID:         s.lesson.ID,
		BaseXP:           s.lesson.XPReward,
		Correct:          s.correct,
		Total:            len(s.exercises),
		ScorePercent:     xp.Percent(s.correct, len(s.exercises)),
		TimeSpentSeconds: s.elapsedSeconds,
		Answers:          answers,
	}, nil
}

func (s *Session) finish(now time.Time) {
	s.elapsedSeconds = seconds(now.Sub(s.startedAt))
	s.state = StateComplete
}

func (s *Session) invalid(op string) error {
	return shared.WrapError("lesson", op, shared.ErrStateTransition,
		"not allowed in state "+string(s.state), shared.ErrInvalidSessionState)
}

func seconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(d / time.Second)
}
