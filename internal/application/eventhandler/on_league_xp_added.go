// Package eventhandler содержит обработчики доменных событий.
// Обработчики реагируют на уже сохранённые изменения и запускают побочные
// эффекты: обновление кешей и уведомления.
package eventhandler

import (
	"context"
	"time"

	"github.com/beanwise/learning-engine/internal/domain/league"
	"github.com/beanwise/learning-engine/internal/domain/shared"
	"github.com/beanwise/learning-engine/pkg/circuitbreaker"
	"github.com/beanwise/learning-engine/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON LEAGUE XP ADDED HANDLER
// Обновляет горячую копию недельной таблицы в кеше.
// Источник истины - хранилище статистики; кеш можно перестроить фоновой задачей.
// ═══════════════════════════════════════════════════════════════════════════

// OnLeagueXPAddedHandler записывает новый недельный опыт в кеш таблицы.
type OnLeagueXPAddedHandler struct {
	cache   league.StandingsCache
	breaker *circuitbreaker.CircuitBreaker
	log     *logger.Logger
	timeout time.Duration
}

// NewOnLeagueXPAddedHandler создаёт обработчик.
func NewOnLeagueXPAddedHandler(cache league.StandingsCache, breaker *circuitbreaker.CircuitBreaker, log *logger.Logger) *OnLeagueXPAddedHandler {
	if breaker == nil {
		breaker = circuitbreaker.CacheBreaker(nil)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &OnLeagueXPAddedHandler{
		cache:   cache,
		breaker: breaker,
		log:     log.With(logger.Component("on_league_xp_added")),
		timeout: 2 * time.Second,
	}
}

// Handle реализует shared.EventHandler.
func (h *OnLeagueXPAddedHandler) Handle(event shared.Event) error {
	ev, ok := event.(shared.LeagueXPAddedEvent)
	if !ok {
		h.log.Warn("unexpected event", logger.String("event_type", string(event.EventType())))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	err := h.breaker.Execute(ctx, func(ctx context.Context) error {
		return h.cache.SetWeeklyXP(ctx, ev.LeagueID, ev.WeekStart, ev.UserID, ev.WeeklyXP)
	})
	if err != nil {
		// кеш догонит задача синхронизации
		h.log.Warn("failed to update standings cache",
			logger.UserID(ev.UserID),
			logger.LeagueID(ev.LeagueID),
			logger.Err(err),
		)
		return err
	}

	h.log.Debug("standings cache updated",
		logger.UserID(ev.UserID),
		logger.LeagueID(ev.LeagueID),
		logger.Int("weekly_xp", ev.WeeklyXP),
	)
	return nil
}
