package redis

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beanwise/learning-engine/pkg/timeutil"
)

func TestKeys(t *testing.T) {
	week := timeutil.Date(2024, 3, 11)
	assert.Equal(t, "league:xp:bronze:2024-03-11", LeagueKey("bronze", week))
	assert.Equal(t, "anon:progress:dev-1", AnonymousKey("dev-1"))
}

func TestMembershipsFromZ_OrdersTiesByUserID(t *testing.T) {
	week := timeutil.Date(2024, 3, 11)
	zs := []redis.Z{
		{Score: 50, Member: "zoe"},
		{Score: 50, Member: "adam"},
		{Score: 80, Member: "kim"},
		{Score: 10, Member: 42},
	}

	got := membershipsFromZ("bronze", week, zs)
	require.Len(t, got, 3)
	assert.Equal(t, "kim", got[0].UserID)
	assert.Equal(t, "adam", got[1].UserID)
	assert.Equal(t, "zoe", got[2].UserID)
	assert.Equal(t, 50, got[2].WeeklyXP)
	assert.Equal(t, "bronze", got[0].LeagueID)
	assert.True(t, got[0].WeekStartDate.Equal(week))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "localhost:6379", cfg.Addr())
	assert.Equal(t, 5*time.Second, cfg.DialTimeout)
}
