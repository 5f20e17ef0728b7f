// Package learner is the entry point the UI host uses: it opens lesson
// sessions for the current identity and handles sign-in.
package learner

import (
	"context"

	"github.com/beanwise/learning-engine/internal/application/progress"
	"github.com/beanwise/learning-engine/internal/application/session"
	"github.com/beanwise/learning-engine/internal/domain/anonymous"
	"github.com/beanwise/learning-engine/internal/domain/lesson"
	"github.com/beanwise/learning-engine/internal/domain/shared"
	"github.com/beanwise/learning-engine/internal/domain/streak"
	"github.com/beanwise/learning-engine/pkg/logger"
	"github.com/beanwise/learning-engine/pkg/timeutil"
)

// Toggles turns optional mechanics on and off.
type Toggles interface {
	// HeartsEnabled reports whether wrong answers cost hearts for userID.
	HeartsEnabled(userID string) bool

	// SoftGateEnabled reports whether anonymous learners see the dismissible prompt.
	SoftGateEnabled() bool
}

// AllOn enables every mechanic.
type AllOn struct{}

func (AllOn) HeartsEnabled(string) bool { return true }
func (AllOn) SoftGateEnabled() bool     { return true }

// LocalStores opens the device-local store of anonymous progress.
type LocalStores func(deviceID string) anonymous.Store

// Deps groups the collaborators of a Service.
type Deps struct {
	Content   lesson.ContentProvider
	Saga      progress.CompletionSaga
	Streaks   streak.Repository
	LoseHeart session.HeartLoser
	Hearts    session.HeartsReader
	Local     LocalStores
	Toggles   Toggles
	Clock     timeutil.Clock
	Logger    *logger.Logger
}

// Service opens sessions and reads progress for an identity.
type Service struct {
	deps Deps
	log  *logger.Logger
}

// NewService creates a Service.
func NewService(deps Deps) *Service {
	if deps.Toggles == nil {
		deps.Toggles = AllOn{}
	}
	if deps.Clock == nil {
		deps.Clock = timeutil.SystemClock{}
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	return &Service{deps: deps, log: deps.Logger.With(logger.Component("learner"))}
}

// Tracker returns the progress tracker for the identity. deviceID selects
// the local store and is ignored for signed-in learners.
func (s *Service) Tracker(id shared.Identity, deviceID string) progress.Tracker {
	var local anonymous.Store
	if !id.IsAuthenticated() {
		local = s.deps.Local(deviceID)
	}
	t := progress.ForIdentity(id, s.deps.Saga, s.deps.Streaks, local, s.deps.Logger)
	if !s.deps.Toggles.SoftGateEnabled() {
		t = progress.WithoutSoftGate(t)
	}
	return t
}

// NewSession creates a controller for one lesson attempt.
func (s *Service) NewSession(id shared.Identity, deviceID string) *session.Controller {
	userID, _ := id.UserID()
	return session.NewController(session.Deps{
		Identity:      id,
		Content:       s.deps.Content,
		Tracker:       s.Tracker(id, deviceID),
		LoseHeart:     s.deps.LoseHeart,
		Hearts:        s.deps.Hearts,
		Clock:         s.deps.Clock,
		Logger:        s.deps.Logger,
		HeartsEnabled: id.IsAuthenticated() && s.deps.Toggles.HeartsEnabled(userID.String()),
	})
}

// Snapshot returns the home screen progress for the identity.
func (s *Service) Snapshot(ctx context.Context, id shared.Identity, deviceID string) (progress.Snapshot, error) {
	return s.Tracker(id, deviceID).Snapshot(ctx)
}

// SignIn drops the anonymous record of the device. The learner continues
// from their persisted stats.
func (s *Service) SignIn(ctx context.Context, deviceID string, userID shared.UserID) error {
	if err := progress.OnAuthenticated(ctx, s.deps.Local(deviceID)); err != nil {
		s.log.Warn("failed to clear anonymous progress", logger.UserID(userID.String()), logger.Err(err))
		return shared.WrapError("anonymous", "SignIn", shared.ErrExternalService, "failed to clear local progress", err)
	}
	s.log.Info("anonymous progress discarded on sign-in", logger.UserID(userID.String()))
	return nil
}
