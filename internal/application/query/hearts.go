// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"time"

	"github.com/beanwise/learning-engine/internal/domain/hearts"
	"github.com/beanwise/learning-engine/internal/domain/shared"
	"github.com/beanwise/learning-engine/pkg/timeutil"
)

// GetHeartsQuery asks for the hearts of a user.
type GetHeartsQuery struct {
	UserID string
}

// GetHeartsHandler returns {Available, Max, NextHeartIn}.
type GetHeartsHandler struct {
	repo     hearts.Repository
	clock    timeutil.Clock
	interval time.Duration
}

// NewGetHeartsHandler creates a new GetHeartsHandler.
func NewGetHeartsHandler(repo hearts.Repository, clock timeutil.Clock, interval time.Duration) *GetHeartsHandler {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	return &GetHeartsHandler{repo: repo, clock: clock, interval: interval}
}

// Handle executes the query.
func (h *GetHeartsHandler) Handle(ctx context.Context, q GetHeartsQuery) (hearts.Status, error) {
	if q.UserID == "" {
		return hearts.Status{}, shared.NewDomainError("hearts", "Get", shared.ErrInvalidID, "user id is required")
	}
	rec, err := h.repo.GetHearts(ctx, q.UserID)
	if err != nil {
		return hearts.Status{}, err
	}
	return rec.ToPool(h.interval).StatusAt(h.clock.Now()), nil
}
