// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"time"

	"github.com/beanwise/learning-engine/internal/domain/hearts"
	"github.com/beanwise/learning-engine/internal/domain/shared"
	"github.com/beanwise/learning-engine/pkg/logger"
	"github.com/beanwise/learning-engine/pkg/retry"
	"github.com/beanwise/learning-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEARTS COMMANDS
// Wrong answers cost a heart, hearts regenerate over time. Writes use
// compare-and-set on the stored record and are retried on conflict.
// ══════════════════════════════════════════════════════════════════════════════

// HeartsConfig contains configuration for hearts commands.
type HeartsConfig struct {
	// RefillInterval - time to regenerate one heart.
	RefillInterval time.Duration

	// MaxAttempts - compare-and-set attempts before giving up.
	MaxAttempts int
}

// DefaultHeartsConfig returns default configuration.
func DefaultHeartsConfig() HeartsConfig {
	return HeartsConfig{
		RefillInterval: hearts.DefaultRefillInterval,
		MaxAttempts:    5,
	}
}

// LoseHeartCommand contains the data to take one heart.
type LoseHeartCommand struct {
	UserID string
}

// Validate validates the command.
func (c LoseHeartCommand) Validate() error {
	if c.UserID == "" {
		return shared.NewDomainError("hearts", "Lose", shared.ErrInvalidID, "user id is required")
	}
	return nil
}

// LoseHeartResult contains the result of losing a heart.
type LoseHeartResult struct {
	// Remaining - hearts left after the loss.
	Remaining int

	// Exhausted - there was nothing to take; input must be disabled.
	Exhausted bool

	// Depleted - the last heart was taken by this command.
	Depleted bool

	// Status - pool view after the command.
	Status hearts.Status
}

// GainHeartCommand contains the data to add hearts.
type GainHeartCommand struct {
	UserID string
	Count  int
}

// Validate validates the command.
func (c GainHeartCommand) Validate() error {
	if c.UserID == "" {
		return shared.NewDomainError("hearts", "Gain", shared.ErrInvalidID, "user id is required")
	}
	if c.Count <= 0 {
		return shared.NewDomainError("hearts", "Gain", shared.ErrValueOutOfRange, "count must be positive")
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// HeartsMetrics counts spent hearts.
type HeartsMetrics interface {
	IncHeartLost()
}

// LoseHeartHandler handles LoseHeartCommand.
type LoseHeartHandler struct {
	repo     hearts.Repository
	eventBus shared.EventPublisher
	clock    timeutil.Clock
	retrier  *retry.Retrier
	config   HeartsConfig
	metrics  HeartsMetrics
	log      *logger.Logger
}

// NewLoseHeartHandler creates a new LoseHeartHandler.
func NewLoseHeartHandler(repo hearts.Repository, eventBus shared.EventPublisher, clock timeutil.Clock, config HeartsConfig, log *logger.Logger) *LoseHeartHandler {
	config, clock, log = heartsDefaults(config, clock, log)
	return &LoseHeartHandler{
		repo:     repo,
		eventBus: eventBus,
		clock:    clock,
		retrier:  conflictRetrier(config.MaxAttempts),
		config:   config,
		log:      log.With(logger.Component("lose_heart")),
	}
}

// WithMetrics sets the spent hearts counter.
func (h *LoseHeartHandler) WithMetrics(m HeartsMetrics) *LoseHeartHandler {
	h.metrics = m
	return h
}

// Handle takes one heart. An empty pool is reported in the result, not as an error.
func (h *LoseHeartHandler) Handle(ctx context.Context, cmd LoseHeartCommand) (*LoseHeartResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var (
		result LoseHeartResult
		pool   hearts.Pool
		now    time.Time
	)

	err := h.retrier.Do(ctx, func(ctx context.Context) error {
		prev, err := h.repo.GetHearts(ctx, cmd.UserID)
		if err != nil {
			return retry.Permanent(err)
		}

		now = h.clock.Now()
		res := prev.ToPool(h.config.RefillInterval).Lose(now)
		pool = res.Pool
		result = LoseHeartResult{Remaining: res.Remaining, Exhausted: res.Exhausted, Depleted: res.Depleted}
		if res.Exhausted {
			return nil
		}
		return h.repo.CompareAndSetHearts(ctx, cmd.UserID, prev, hearts.FromPool(res.Pool))
	})
	if err != nil {
		h.log.Warn("failed to take heart", logger.UserID(cmd.UserID), logger.Err(err))
		return nil, err
	}

	result.Status = pool.StatusAt(now)
	if !result.Exhausted && h.metrics != nil {
		h.metrics.IncHeartLost()
	}

	if result.Depleted && h.eventBus != nil {
		if next := pool.NextHeartAt(now); next != nil {
			if err := h.eventBus.Publish(shared.NewHeartsDepletedEvent(cmd.UserID, *next, now)); err != nil {
				h.log.Warn("failed to publish hearts depleted", logger.UserID(cmd.UserID), logger.Err(err))
			}
		}
	}

	return &result, nil
}

// GainHeartHandler handles GainHeartCommand.
type GainHeartHandler struct {
	repo    hearts.Repository
	clock   timeutil.Clock
	retrier *retry.Retrier
	config  HeartsConfig
	log     *logger.Logger
}

// NewGainHeartHandler creates a new GainHeartHandler.
func NewGainHeartHandler(repo hearts.Repository, clock timeutil.Clock, config HeartsConfig, log *logger.Logger) *GainHeartHandler {
	config, clock, log = heartsDefaults(config, clock, log)
	return &GainHeartHandler{
		repo:    repo,
		clock:   clock,
		retrier: conflictRetrier(config.MaxAttempts),
		config:  config,
		log:     log.With(logger.Component("gain_heart")),
	}
}

// Handle adds hearts, clamped at the maximum.
func (h *GainHeartHandler) Handle(ctx context.Context, cmd GainHeartCommand) (hearts.Status, error) {
	if err := cmd.Validate(); err != nil {
		return hearts.Status{}, err
	}

	var status hearts.Status
	err := h.retrier.Do(ctx, func(ctx context.Context) error {
		prev, err := h.repo.GetHearts(ctx, cmd.UserID)
		if err != nil {
			return retry.Permanent(err)
		}
		now := h.clock.Now()
		next := prev.ToPool(h.config.RefillInterval).Gain(cmd.Count, now)
		status = next.StatusAt(now)
		return h.repo.CompareAndSetHearts(ctx, cmd.UserID, prev, hearts.FromPool(next))
	})
	if err != nil {
		h.log.Warn("failed to add hearts", logger.UserID(cmd.UserID), logger.Err(err))
		return hearts.Status{}, err
	}
	return status, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func heartsDefaults(config HeartsConfig, clock timeutil.Clock, log *logger.Logger) (HeartsConfig, timeutil.Clock, *logger.Logger) {
	if config.RefillInterval <= 0 {
		config.RefillInterval = hearts.DefaultRefillInterval
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 5
	}
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return config, clock, log
}

func conflictRetrier(attempts int) *retry.Retrier {
	return retry.New(
		retry.WithMaxAttempts(attempts),
		retry.WithInitialDelay(5*time.Millisecond),
		retry.WithMaxDelay(50*time.Millisecond),
		retry.WithRetryIf(func(err error) bool {
			return errors.Is(err, shared.ErrConcurrentModification)
		}),
	)
}
