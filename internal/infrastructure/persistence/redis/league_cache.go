package redis

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/beanwise/learning-engine/internal/domain/league"
)

// LeagueCache implements league.StandingsCache with one sorted set per league
// and week. Members are user ids, scores are weekly XP.
type LeagueCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewLeagueCache creates a new LeagueCache.
func NewLeagueCache(cache *Cache) *LeagueCache {
	return &LeagueCache{cache: cache, ttl: TTLLeagueTable}
}

// SetWeeklyXP writes the absolute weekly XP of one member.
func (l *LeagueCache) SetWeeklyXP(ctx context.Context, leagueID string, weekStart time.Time, userID string, weeklyXP int) error {
	key := LeagueKey(leagueID, weekStart)
	pipe := l.cache.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(weeklyXP), Member: userID})
	pipe.Expire(ctx, key, l.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("league_cache: set weekly xp: %w", err)
	}
	return nil
}

// ReplaceStandings rebuilds the table from the stat store.
func (l *LeagueCache) ReplaceStandings(ctx context.Context, leagueID string, weekStart time.Time, memberships []league.Membership) error {
	key := LeagueKey(leagueID, weekStart)
	pipe := l.cache.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(memberships) > 0 {
		members := make([]redis.Z, 0, len(memberships))
		for _, m := range memberships {
			members = append(members, redis.Z{Score: float64(m.WeeklyXP), Member: m.UserID})
		}
		pipe.ZAdd(ctx, key, members...)
		pipe.Expire(ctx, key, l.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("league_cache: replace standings: %w", err)
	}
	return nil
}

// Ranked returns the table ordered by weekly XP descending, ties by user id.
// An absent table yields an empty slice.
func (l *LeagueCache) Ranked(ctx context.Context, leagueID string, weekStart time.Time) ([]league.Membership, error) {
	zs, err := l.cache.client.ZRevRangeWithScores(ctx, LeagueKey(leagueID, weekStart), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("league_cache: ranked: %w", err)
	}
	return membershipsFromZ(leagueID, weekStart, zs), nil
}

func membershipsFromZ(leagueID string, weekStart time.Time, zs []redis.Z) []league.Membership {
	out := make([]league.Membership, 0, len(zs))
	for _, z := range zs {
		userID, ok := z.Member.(string)
		if !ok {
			continue
		}
		out = append(out, league.Membership{
			UserID:        userID,
			LeagueID:      leagueID,
			WeekStartDate: weekStart,
			WeeklyXP:      int(z.Score),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].WeeklyXP != out[j].WeeklyXP {
			return out[i].WeeklyXP > out[j].WeeklyXP
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}
