package streak

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func day(d int) time.Time {
	return time.Date(2024, 5, d, 0, 0, 0, 0, time.UTC)
}

func TestApply_Transitions(t *testing.T) {
	s := *NewUserStreak("u-1", 5, day(1))

	r := s.Apply(ActivityEvent{UserID: "u-1", Date: day(1), XP: 20})
	assert.Equal(t, TransitionStarted, r.Transition)
	assert.Equal(t, 1, r.Streak.CurrentStreak)

	r = r.Streak.Apply(ActivityEvent{UserID: "u-1", Date: day(1), XP: 10})
	assert.Equal(t, TransitionSameDay, r.Transition)
	assert.Equal(t, 1, r.Streak.CurrentStreak)
	assert.Equal(t, 30, r.Streak.TotalXP)
	assert.Equal(t, 2, r.Streak.TotalLessonsCompleted)

	r = r.Streak.Apply(ActivityEvent{UserID: "u-1", Date: day(2), XP: 10})
	assert.Equal(t, TransitionExtended, r.Transition)
	assert.Equal(t, 2, r.Streak.CurrentStreak)
	assert.Equal(t, 2, r.Streak.LongestStreak)

	r = r.Streak.Apply(ActivityEvent{UserID: "u-1", Date: day(5), XP: 10})
	assert.Equal(t, TransitionReset, r.Transition)
	assert.Equal(t, 2, r.PreviousStreak)
	assert.Equal(t, 1, r.Streak.CurrentStreak)
	assert.Equal(t, 2, r.Streak.LongestStreak)
	assert.Equal(t, day(5), *r.Streak.LastActivityDate)
}

func TestApply_LateEventDoesNotMoveDate(t *testing.T) {
	last := day(10)
	s := UserStreak{UserID: "u-1", CurrentStreak: 3, LongestStreak: 3, LastActivityDate: &last}

	r := s.Apply(ActivityEvent{UserID: "u-1", Date: day(8), XP: 5})

	assert.Equal(t, 3, r.Streak.CurrentStreak)
	assert.Equal(t, day(10), *r.Streak.LastActivityDate)
	assert.Equal(t, 5, r.Streak.TotalXP)
}

func TestApply_KeepsInvariant(t *testing.T) {
	s := *NewUserStreak("u-1", 5, day(1))
	dates := []int{1, 2, 3, 3, 7, 8, 20, 21, 22, 23, 24}
	for _, d := range dates {
		s = s.Apply(ActivityEvent{UserID: "u-1", Date: day(d), XP: 1}).Streak
		assert.LessOrEqual(t, s.CurrentStreak, s.LongestStreak)
	}
	assert.Equal(t, 5, s.CurrentStreak)
	assert.Equal(t, 5, s.LongestStreak)
}

func TestIsFirstActivityToday(t *testing.T) {
	assert.True(t, IsFirstActivityToday(nil, day(3)))

	last := day(3)
	assert.False(t, IsFirstActivityToday(&last, day(3)))
	assert.True(t, IsFirstActivityToday(&last, day(4)))
}

func TestDailyGoal_AddXP(t *testing.T) {
	g := NewDailyGoal("u-1", day(1), 0)
	assert.Equal(t, DefaultDailyGoalXP, g.GoalXP)

	r := g.AddXP(6)
	assert.False(t, r.Goal.IsAchieved)
	assert.False(t, r.JustAchieved)
	assert.Equal(t, 4, r.Goal.Remaining())

	r = r.Goal.AddXP(4)
	assert.True(t, r.Goal.IsAchieved)
	assert.True(t, r.JustAchieved)

	r = r.Goal.AddXP(4)
	assert.True(t, r.Goal.IsAchieved)
	assert.False(t, r.JustAchieved)
	assert.Equal(t, 0, r.Goal.Remaining())
}
