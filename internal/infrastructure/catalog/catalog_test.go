package catalog

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beanwise/learning-engine/internal/domain/achievement"
	"github.com/beanwise/learning-engine/internal/infrastructure/persistence/memory"
)

func TestLoad_DefaultSeed(t *testing.T) {
	f, err := Load("")
	require.NoError(t, err)

	assert.NotEmpty(t, f.Achievements)
	assert.Len(t, f.Leagues, 4)
	require.NotEmpty(t, f.Lessons)
	assert.Len(t, f.Lessons[0].Exercises, 3)
	assert.Equal(t, achievement.ConditionLessonsCompleted, f.Achievements[0].ConditionType)
	assert.True(t, f.Achievements[0].IsActive)
}

func TestParse_RejectsInvalid(t *testing.T) {
	doc := `
achievements:
  - {id: a1, code: dup, condition_type: streak_days, condition_value: 3}
  - {id: a2, code: dup, condition_type: moon_phase}
leagues:
  - {id: bronze, tier: 1}
  - {id: silver, tier: 1}
`
	_, err := Parse(strings.NewReader(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate code")
	assert.Contains(t, err.Error(), "unknown condition")
	assert.Contains(t, err.Error(), "duplicate tier")
}

func TestParse_UnknownField(t *testing.T) {
	_, err := Parse(strings.NewReader("leagues:\n  - {id: bronze, tier: 1, colour: red}\n"))
	assert.Error(t, err)
}

func TestSeed_WritesIntoStores(t *testing.T) {
	f, err := Load("")
	require.NoError(t, err)

	ach := memory.NewAchievementStore()
	leagues := memory.NewLeagueStore()
	lessons := memory.NewLessonStore()

	res, err := Seed(context.Background(), f, Writers{Achievements: ach, Leagues: leagues, Lessons: lessons})
	require.NoError(t, err)
	assert.Equal(t, len(f.Achievements), res.Achievements)
	assert.Equal(t, 4, res.Leagues)

	active, err := ach.ListActive(context.Background())
	require.NoError(t, err)
	assert.Len(t, active, len(f.Achievements))

	ex, err := lessons.GetExercises(context.Background(), "budget-basics-1")
	require.NoError(t, err)
	require.Len(t, ex, 3)
	assert.Equal(t, "budget-basics-1", ex[0].LessonID)
	assert.True(t, ex[2].Check(" Surplus "))
}
