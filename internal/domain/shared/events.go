package shared

import "time"

// EventType names a domain event on the bus.
type EventType string

const (
	EventLessonCompleted     EventType = "lesson.completed"
	EventStreakExtended      EventType = "progress.streak_extended"
	EventStreakBroken        EventType = "progress.streak_broken"
	EventDailyGoalAchieved   EventType = "progress.daily_goal_achieved"
	EventAchievementUnlocked EventType = "achievement.unlocked"
	EventLeagueXPAdded       EventType = "league.xp_added"
	EventHeartsDepleted      EventType = "hearts.depleted"
)

// Event is published after the state it describes has been persisted.
// Every engine event belongs to one learner.
type Event interface {
	EventType() EventType
	OccurredAt() time.Time
	AggregateID() string
}

// Meta is embedded by every event.
type Meta struct {
	Type   EventType `json:"type"`
	At     time.Time `json:"occurred_at"`
	UserID string    `json:"user_id"`
}

func (m Meta) EventType() EventType  { return m.Type }
func (m Meta) OccurredAt() time.Time { return m.At }
func (m Meta) AggregateID() string   { return m.UserID }

func meta(t EventType, userID string, at time.Time) Meta {
	return Meta{Type: t, At: at, UserID: userID}
}

// ══════════════════════════════════════════════════════════════════════════════
// EVENTS
// ══════════════════════════════════════════════════════════════════════════════

// LessonCompletedEvent follows a persisted completion.
type LessonCompletedEvent struct {
	Meta
	LessonID         string `json:"lesson_id"`
	TotalXP          int    `json:"total_xp"`
	ScorePercent     int    `json:"score_percent"`
	TimeSpentSeconds int    `json:"time_spent_seconds"`
}

func NewLessonCompletedEvent(userID, lessonID string, totalXP, scorePercent, secs int, at time.Time) LessonCompletedEvent {
	return LessonCompletedEvent{
		Meta:             meta(EventLessonCompleted, userID, at),
		LessonID:         lessonID,
		TotalXP:          totalXP,
		ScorePercent:     scorePercent,
		TimeSpentSeconds: secs,
	}
}

// StreakExtendedEvent: a new calendar day was added to the streak.
type StreakExtendedEvent struct {
	Meta
	CurrentStreak int `json:"current_streak"`
	LongestStreak int `json:"longest_streak"`
}

func NewStreakExtendedEvent(userID string, current, longest int, at time.Time) StreakExtendedEvent {
	return StreakExtendedEvent{Meta: meta(EventStreakExtended, userID, at), CurrentStreak: current, LongestStreak: longest}
}

// StreakBrokenEvent: activity after a gap restarted the streak at 1.
type StreakBrokenEvent struct {
	Meta
	PreviousStreak int `json:"previous_streak"`
}

func NewStreakBrokenEvent(userID string, previous int, at time.Time) StreakBrokenEvent {
	return StreakBrokenEvent{Meta: meta(EventStreakBroken, userID, at), PreviousStreak: previous}
}

// DailyGoalAchievedEvent fires once per day, when earned XP first reaches the goal.
type DailyGoalAchievedEvent struct {
	Meta
	Date     time.Time `json:"date"`
	GoalXP   int       `json:"goal_xp"`
	EarnedXP int       `json:"earned_xp"`
}

func NewDailyGoalAchievedEvent(userID string, date time.Time, goal, earned int, at time.Time) DailyGoalAchievedEvent {
	return DailyGoalAchievedEvent{Meta: meta(EventDailyGoalAchieved, userID, at), Date: date, GoalXP: goal, EarnedXP: earned}
}

// AchievementUnlockedEvent fires for newly inserted unlocks only.
type AchievementUnlockedEvent struct {
	Meta
	AchievementID string `json:"achievement_id"`
	Code          string `json:"code"`
	XPReward      int    `json:"xp_reward"`
}

func NewAchievementUnlockedEvent(userID, achievementID, code string, reward int, at time.Time) AchievementUnlockedEvent {
	return AchievementUnlockedEvent{
		Meta:          meta(EventAchievementUnlocked, userID, at),
		AchievementID: achievementID,
		Code:          code,
		XPReward:      reward,
	}
}

// LeagueXPAddedEvent carries the membership total after the increment.
type LeagueXPAddedEvent struct {
	Meta
	LeagueID  string    `json:"league_id"`
	WeekStart time.Time `json:"week_start"`
	Added     int       `json:"added"`
	WeeklyXP  int       `json:"weekly_xp"`
}

func NewLeagueXPAddedEvent(userID, leagueID string, weekStart time.Time, added, weekly int, at time.Time) LeagueXPAddedEvent {
	return LeagueXPAddedEvent{
		Meta:      meta(EventLeagueXPAdded, userID, at),
		LeagueID:  leagueID,
		WeekStart: weekStart,
		Added:     added,
		WeeklyXP:  weekly,
	}
}

// HeartsDepletedEvent: the last heart was spent.
type HeartsDepletedEvent struct {
	Meta
	NextHeartAt time.Time `json:"next_heart_at"`
}

func NewHeartsDepletedEvent(userID string, next, at time.Time) HeartsDepletedEvent {
	return HeartsDepletedEvent{Meta: meta(EventHeartsDepleted, userID, at), NextHeartAt: next}
}

// ══════════════════════════════════════════════════════════════════════════════
// BUS
// ══════════════════════════════════════════════════════════════════════════════

// EventHandler reacts to one event. Errors are logged by the bus and never
// reach the publisher.
type EventHandler func(event Event) error

type EventPublisher interface {
	Publish(event Event) error
}

type EventSubscriber interface {
	Subscribe(eventType EventType, handler EventHandler) error
	SubscribeAll(handler EventHandler) error
}

type EventBus interface {
	EventPublisher
	EventSubscriber
}
