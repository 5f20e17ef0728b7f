// Package http serves the engine's read and ops API: probes, Prometheus
// metrics, progress reads for the UI host and admin job controls.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/beanwise/learning-engine/config"
	"github.com/beanwise/learning-engine/internal/application/command"
	"github.com/beanwise/learning-engine/internal/application/progress"
	"github.com/beanwise/learning-engine/internal/application/query"
	"github.com/beanwise/learning-engine/internal/domain/hearts"
	"github.com/beanwise/learning-engine/internal/domain/shared"
	"github.com/beanwise/learning-engine/internal/infrastructure/scheduler"
	"github.com/beanwise/learning-engine/internal/interface/http/handlers"
	"github.com/beanwise/learning-engine/pkg/logger"
)

// Config is the listener part of config.ObservabilityConfig.
type Config struct {
	Host string
	Port int

	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration

	// AdminAPIKeys enables /api/v1/admin and device sign-in. Without keys
	// those routes are absent.
	AdminAPIKeys []string
}

func DefaultConfig() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           9090,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		RequestTimeout: 10 * time.Second,
	}
}

func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

type HeartsReader interface {
	Handle(ctx context.Context, q query.GetHeartsQuery) (hearts.Status, error)
}

// HeartGainer grants hearts outside the refill timer.
type HeartGainer interface {
	Handle(ctx context.Context, cmd command.GainHeartCommand) (hearts.Status, error)
}

type DailyProgressReader interface {
	Handle(ctx context.Context, q query.GetDailyProgressQuery) (*query.DailyProgressDTO, error)
}

type LeagueStandingReader interface {
	Handle(ctx context.Context, q query.GetLeagueStandingQuery) (*query.LeagueStandingDTO, error)
}

// Learner reads progress snapshots and handles sign-in of a device.
type Learner interface {
	Snapshot(ctx context.Context, id shared.Identity, deviceID string) (progress.Snapshot, error)
	SignIn(ctx context.Context, deviceID string, userID shared.UserID) error
}

// JobRunner is the scheduler as seen by the admin routes.
type JobRunner interface {
	ListJobs() []scheduler.JobInfo
	History(limit int) []scheduler.JobResult
	RunNow(ctx context.Context, name string) (scheduler.JobResult, error)
}

type FeatureLister interface {
	GetAllFeatures() map[string]*config.Feature
}

// Dependencies of the handlers. A nil reader makes its routes answer 501.
type Dependencies struct {
	Hearts         HeartsReader
	GainHearts     HeartGainer
	DailyProgress  DailyProgressReader
	LeagueStanding LeagueStandingReader
	Learner        Learner

	Jobs     JobRunner
	Features FeatureLister

	Metrics       http.Handler
	HealthChecker handlers.HealthChecker

	Version string
	Logger  *logger.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

type Server struct {
	config  Config
	deps    Dependencies
	logger  *logger.Logger
	router  *http.ServeMux
	handler http.Handler
	srv     *http.Server
}

type route struct {
	pattern string
	handler http.HandlerFunc
	admin   bool
}

func NewServer(cfg Config, deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	if deps.HealthChecker == nil {
		deps.HealthChecker = handlers.NewCompositeHealthChecker(deps.Version)
	}

	s := &Server{
		config: cfg,
		deps:   deps,
		logger: deps.Logger.With(logger.Component("http")),
		router: http.NewServeMux(),
	}
	s.mount()

	s.handler = handlers.ChainHandler(s.router,
		handlers.Recover(s.logger),
		handlers.RequestID(s.logger),
		handlers.AccessLog("/metrics", "/live"),
		handlers.TimeoutMiddleware(cfg.RequestTimeout),
	)
	s.srv = &http.Server{
		Addr:         cfg.Address(),
		Handler:      s.handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Handler is the full middleware stack. Tests drive it with httptest.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() []route {
	return []route{
		{pattern: "GET /health", handler: s.handleHealth},
		{pattern: "GET /healthz", handler: s.handleHealth},
		{pattern: "GET /ready", handler: s.handleReady},
		{pattern: "GET /live", handler: s.handleLive},

		{pattern: "GET /api/v1/users/{id}/hearts", handler: s.handleGetHearts},
		{pattern: "GET /api/v1/users/{id}/daily-progress", handler: s.handleGetDailyProgress},
		{pattern: "GET /api/v1/users/{id}/league", handler: s.handleGetLeagueStanding},
		{pattern: "GET /api/v1/users/{id}/progress", handler: s.handleGetUserProgress},
		{pattern: "GET /api/v1/devices/{device}/progress", handler: s.handleGetDeviceProgress},

		// the UI host calls these with its key; they change learner state
		{pattern: "POST /api/v1/devices/{device}/sign-in", handler: s.handleSignIn, admin: true},
		{pattern: "POST /api/v1/admin/users/{id}/hearts", handler: s.handleGainHearts, admin: true},
		{pattern: "GET /api/v1/admin/features", handler: s.handleListFeatures, admin: true},
		{pattern: "GET /api/v1/admin/jobs", handler: s.handleListJobs, admin: true},
		{pattern: "POST /api/v1/admin/jobs/{name}/run", handler: s.handleRunJob, admin: true},
	}
}

func (s *Server) mount() {
	var auth *handlers.APIKeyAuth
	if len(s.config.AdminAPIKeys) > 0 {
		auth = handlers.NewAPIKeyAuth(handlers.DefaultAPIKeyHeader, s.config.AdminAPIKeys)
	}
	for _, rt := range s.routes() {
		switch {
		case !rt.admin:
			s.router.Handle(rt.pattern, rt.handler)
		case auth != nil:
			s.router.Handle(rt.pattern, auth.Middleware(rt.handler))
		}
	}
	if s.deps.Metrics != nil {
		s.router.Handle("GET /metrics", s.deps.Metrics)
	}
}

// StartAsync listens in a goroutine. The channel yields a listen error, or
// closes after Shutdown.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		s.logger.Info("starting HTTP server", logger.String("address", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	return errCh
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.srv.Shutdown(ctx)
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSES
// ══════════════════════════════════════════════════════════════════════════════

// JSONResponse is the envelope of every API answer.
type JSONResponse struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data,omitempty"`
	Error     *APIError `json:"error,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respond(w http.ResponseWriter, status int, body JSONResponse) {
	body.RequestID = w.Header().Get(handlers.RequestIDHeader)
	body.Timestamp = time.Now().UTC()
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	respond(w, status, JSONResponse{Success: status >= 200 && status < 300, Data: data})
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	respond(w, status, JSONResponse{Error: &APIError{Code: code, Message: message}})
}
