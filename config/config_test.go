package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"APP_ENV", "APP_TIMEZONE", "DATABASE_URL", "DB_HOST", "DB_USER", "DB_DRIVER",
		"PROGRESSION_MAX_HEARTS", "PROGRESSION_HEART_REFILL_INTERVAL", "PROGRESSION_DAILY_GOAL_XP",
		"SCHEDULER_LEAGUE_SYNC_INTERVAL", "METRICS_ENABLED", "METRICS_PORT", "ADMIN_API_KEYS",
		"FEATURE_PROGRESSION_HEARTS", "FEATURE_PROGRESSION_LEAGUES",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, time.UTC, cfg.App.Location)
	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	assert.Equal(t, 5, cfg.Progression.MaxHearts)
	assert.Equal(t, 4*time.Hour, cfg.Progression.HeartRefillInterval)
	assert.Equal(t, 10, cfg.Progression.DailyGoalXP)
	assert.True(t, cfg.Features.Enabled(FeatureHearts, ""))
	assert.False(t, cfg.Features.Enabled(FeatureNotifyToasts, ""))
	assert.Empty(t, cfg.Observability.AdminAPIKeys)
}

func TestLoad_AdminKeys(t *testing.T) {
	clearEnv(t)
	t.Setenv("ADMIN_API_KEYS", " ops-1, ,ops-2 ")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"ops-1", "ops-2"}, cfg.Observability.AdminAPIKeys)
}

func TestLoad_DatabaseFromParts(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_USER", "engine")
	t.Setenv("DB_PASSWORD", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "postgres://engine:secret@db:5432/learning?sslmode=disable", cfg.Database.URL)
}

func TestLoad_CollectsAllErrors(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("PROGRESSION_MAX_HEARTS", "0")
	t.Setenv("PROGRESSION_DAILY_GOAL_XP", "-5")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL is required")
	assert.Contains(t, err.Error(), "PROGRESSION_MAX_HEARTS")
	assert.Contains(t, err.Error(), "PROGRESSION_DAILY_GOAL_XP")
}

func TestValidate_MemoryDriverRejectedInProduction(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "production")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not allowed in production")
}

func TestFeatureFlags_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("FEATURE_PROGRESSION_LEAGUES", "false")
	t.Setenv("FEATURE_PROGRESSION_HEARTS", "0")

	ff := LoadFeatureFlags()
	assert.False(t, ff.Enabled(FeatureLeagues, ""))
	assert.False(t, ff.Enabled(FeatureHearts, "u-1"))
	assert.True(t, ff.Enabled(FeatureAchievements, ""))
}

func TestFeatureFlags_RolloutIsStablePerUser(t *testing.T) {
	ff := NewFeatureFlags()
	require.NoError(t, ff.SetRolloutPercent(FeatureHearts, 50))

	first := ff.Enabled(FeatureHearts, "learner-42")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ff.Enabled(FeatureHearts, "learner-42"))
	}

	in := 0
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l", "m", "n", "o", "p"} {
		if ff.Enabled(FeatureHearts, id) {
			in++
		}
	}
	assert.Greater(t, in, 0)
	assert.Less(t, in, 16)
}

func TestFeatureFlags_Overrides(t *testing.T) {
	ff := NewFeatureFlags()
	require.NoError(t, ff.DisableFeature(FeatureLeagues))

	ff.SetUserOverride("beta", FeatureLeagues, true)
	assert.True(t, ff.Enabled(FeatureLeagues, "beta"))
	assert.False(t, ff.Enabled(FeatureLeagues, "other"))
	assert.False(t, ff.Enabled(FeatureLeagues, ""))

	ff.ClearUserOverrides("beta")
	assert.False(t, ff.Enabled(FeatureLeagues, "beta"))

	assert.ErrorIs(t, ff.SetRolloutPercent("missing", 10), ErrFeatureNotFound)
	assert.ErrorIs(t, ff.SetRolloutPercent(FeatureLeagues, 101), ErrInvalidRolloutPercent)
}

func TestFeatureFlags_TimeWindow(t *testing.T) {
	ff := NewFeatureFlags()
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	ff.now = func() time.Time { return now }
	future := now.Add(time.Hour)
	ff.features[FeatureAchievements].EnabledFrom = &future

	assert.False(t, ff.Enabled(FeatureAchievements, ""))
	now = now.Add(2 * time.Hour)
	assert.True(t, ff.Enabled(FeatureAchievements, ""))
	all := ff.GetAllFeatures()
	assert.Len(t, all, 5)
}

func TestLoad_RejectsUnparsableValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("PROGRESSION_HEART_REFILL_INTERVAL", "four hours")
	t.Setenv("APP_TIMEZONE", "Mars/Olympus")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PROGRESSION_HEART_REFILL_INTERVAL")
	assert.Contains(t, err.Error(), "APP_TIMEZONE")
}
