package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/beanwise/learning-engine/internal/application/command"
	"github.com/beanwise/learning-engine/internal/application/progress"
	"github.com/beanwise/learning-engine/internal/application/query"
	"github.com/beanwise/learning-engine/internal/domain/hearts"
	"github.com/beanwise/learning-engine/internal/domain/shared"
	"github.com/beanwise/learning-engine/internal/infrastructure/scheduler"
	"github.com/beanwise/learning-engine/pkg/logger"
	"github.com/beanwise/learning-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Healthy {
		writeJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleReady handles the readiness probe endpoint.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Ready {
		writeJSONError(w, http.StatusServiceUnavailable, "not_ready", status.Message)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive handles the liveness probe endpoint.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type heartsResponse struct {
	Available          int  `json:"available"`
	Max                int  `json:"max"`
	NextHeartInSeconds *int `json:"next_heart_in_seconds,omitempty"`
}

// handleGetHearts handles GET /api/v1/users/{id}/hearts
func (s *Server) handleGetHearts(w http.ResponseWriter, r *http.Request) {
	if s.deps.Hearts == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Hearts are not configured")
		return
	}

	status, err := s.deps.Hearts.Handle(r.Context(), query.GetHeartsQuery{UserID: r.PathValue("id")})
	if err != nil {
		s.writeDomainError(w, r, "failed to get hearts", err)
		return
	}

	writeJSON(w, http.StatusOK, newHeartsResponse(status))
}

func newHeartsResponse(status hearts.Status) heartsResponse {
	resp := heartsResponse{Available: status.Available, Max: status.Max}
	if status.NextHeartIn != nil {
		secs := int(status.NextHeartIn.Round(time.Second) / time.Second)
		resp.NextHeartInSeconds = &secs
	}
	return resp
}

type gainHeartsRequest struct {
	Count int `json:"count"`
}

// handleGainHearts handles POST /api/v1/admin/users/{id}/hearts
func (s *Server) handleGainHearts(w http.ResponseWriter, r *http.Request) {
	if s.deps.GainHearts == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Hearts are not configured")
		return
	}

	var req gainHeartsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Body must be JSON with count")
		return
	}

	status, err := s.deps.GainHearts.Handle(r.Context(), command.GainHeartCommand{UserID: r.PathValue("id"), Count: req.Count})
	if err != nil {
		s.writeDomainError(w, r, "failed to gain hearts", err)
		return
	}
	writeJSON(w, http.StatusOK, newHeartsResponse(status))
}

type dailyProgressResponse struct {
	GoalXP        int  `json:"goal_xp"`
	EarnedXP      int  `json:"earned_xp"`
	RemainingXP   int  `json:"remaining_xp"`
	IsAchieved    bool `json:"is_achieved"`
	CurrentStreak int  `json:"current_streak"`
	LongestStreak int  `json:"longest_streak"`
	StreakAtRisk  bool `json:"streak_at_risk"`
}

// handleGetDailyProgress handles GET /api/v1/users/{id}/daily-progress
func (s *Server) handleGetDailyProgress(w http.ResponseWriter, r *http.Request) {
	if s.deps.DailyProgress == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Daily progress is not configured")
		return
	}

	dto, err := s.deps.DailyProgress.Handle(r.Context(), query.GetDailyProgressQuery{UserID: r.PathValue("id")})
	if err != nil {
		s.writeDomainError(w, r, "failed to get daily progress", err)
		return
	}

	writeJSON(w, http.StatusOK, dailyProgressResponse{
		GoalXP:        dto.GoalXP,
		EarnedXP:      dto.EarnedXP,
		RemainingXP:   dto.RemainingXP,
		IsAchieved:    dto.IsAchieved,
		CurrentStreak: dto.CurrentStreak,
		LongestStreak: dto.LongestStreak,
		StreakAtRisk:  dto.StreakAtRisk,
	})
}

type standingRow struct {
	UserID   string `json:"user_id"`
	Rank     int    `json:"rank"`
	WeeklyXP int    `json:"weekly_xp"`
	Zone     string `json:"zone"`
}

type leagueStandingResponse struct {
	LeagueID      string        `json:"league_id"`
	LeagueName    string        `json:"league_name"`
	Tier          int           `json:"tier"`
	WeekStart     string        `json:"week_start"`
	DaysRemaining int           `json:"days_remaining"`
	Rank          int           `json:"rank"`
	Zone          string        `json:"zone"`
	WeeklyXP      int           `json:"weekly_xp"`
	Members       []standingRow `json:"members"`
}

// handleGetLeagueStanding handles GET /api/v1/users/{id}/league
func (s *Server) handleGetLeagueStanding(w http.ResponseWriter, r *http.Request) {
	if s.deps.LeagueStanding == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Leagues are not configured")
		return
	}

	dto, err := s.deps.LeagueStanding.Handle(r.Context(), query.GetLeagueStandingQuery{UserID: r.PathValue("id")})
	if err != nil {
		s.writeDomainError(w, r, "failed to get league standing", err)
		return
	}

	resp := leagueStandingResponse{
		LeagueID:      dto.League.ID,
		LeagueName:    dto.League.Name,
		Tier:          dto.League.Tier,
		WeekStart:     timeutil.FormatDateStr(dto.WeekStart),
		DaysRemaining: dto.DaysRemaining,
		Rank:          dto.Rank.Int(),
		Zone:          string(dto.Zone),
		WeeklyXP:      dto.Me.WeeklyXP,
		Members:       make([]standingRow, 0, len(dto.Members)),
	}
	for _, m := range dto.Members {
		resp.Members = append(resp.Members, standingRow{UserID: m.UserID, Rank: m.Rank, WeeklyXP: m.WeeklyXP, Zone: string(m.Zone)})
	}
	writeJSON(w, http.StatusOK, resp)
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type featureResponse struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	Enabled        bool   `json:"enabled"`
	RolloutPercent int    `json:"rollout_percent"`
}

// handleListFeatures handles GET /api/v1/admin/features
func (s *Server) handleListFeatures(w http.ResponseWriter, r *http.Request) {
	if s.deps.Features == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Feature flags are not configured")
		return
	}

	all := s.deps.Features.GetAllFeatures()
	out := make([]featureResponse, 0, len(all))
	for _, f := range all {
		out = append(out, featureResponse{Name: f.Name, Description: f.Description, Enabled: f.Enabled, RolloutPercent: f.RolloutPercent})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	writeJSON(w, http.StatusOK, out)
}

type jobResultResponse struct {
	Job        string    `json:"job"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
	Manual     bool      `json:"manual"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
}

func toJobResult(r scheduler.JobResult) jobResultResponse {
	resp := jobResultResponse{
		Job:        r.JobName,
		StartedAt:  r.StartedAt,
		DurationMS: r.Duration.Milliseconds(),
		Manual:     r.Manual,
		Success:    r.Success(),
	}
	if r.Err != nil {
		resp.Error = r.Err.Error()
	}
	return resp
}

type jobResponse struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Schedule    string             `json:"schedule"`
	LastRun     *jobResultResponse `json:"last_run,omitempty"`
}

// handleListJobs handles GET /api/v1/admin/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Scheduler is not configured")
		return
	}

	jobs := s.deps.Jobs.ListJobs()
	out := make([]jobResponse, 0, len(jobs))
	for _, j := range jobs {
		resp := jobResponse{Name: j.Name, Description: j.Description, Schedule: j.Schedule}
		if j.LastRun != nil {
			last := toJobResult(*j.LastRun)
			resp.LastRun = &last
		}
		out = append(out, resp)
	}

	limit := 20
	if v, err := strconv.Atoi(r.URL.Query().Get("history")); err == nil && v > 0 {
		limit = v
	}
	history := s.deps.Jobs.History(limit)
	runs := make([]jobResultResponse, 0, len(history))
	for _, h := range history {
		runs = append(runs, toJobResult(h))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": out, "history": runs})
}

// handleRunJob handles POST /api/v1/admin/jobs/{name}/run
func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Scheduler is not configured")
		return
	}

	res, err := s.deps.Jobs.RunNow(r.Context(), r.PathValue("name"))
	if errors.Is(err, scheduler.ErrJobNotFound) {
		writeJSONError(w, http.StatusNotFound, "job_not_found", "No job with this name")
		return
	}
	if err != nil {
		s.writeDomainError(w, r, "failed to run job", err)
		return
	}

	status := http.StatusOK
	if !res.Success() {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, toJobResult(res))
}

// ══════════════════════════════════════════════════════════════════════════════
// LEARNER HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type progressResponse struct {
	Authenticated    bool    `json:"authenticated"`
	TotalXP          int     `json:"total_xp"`
	CurrentStreak    int     `json:"current_streak"`
	LongestStreak    int     `json:"longest_streak"`
	LessonsCompleted int     `json:"lessons_completed"`
	LastActivityDate *string `json:"last_activity_date,omitempty"`
	Gate             string  `json:"gate"`
}

func toProgressResponse(snap progress.Snapshot) progressResponse {
	resp := progressResponse{
		Authenticated:    snap.Authenticated,
		TotalXP:          snap.TotalXP,
		CurrentStreak:    snap.CurrentStreak,
		LongestStreak:    snap.LongestStreak,
		LessonsCompleted: snap.LessonsCompleted,
		Gate:             string(snap.Gate),
	}
	if snap.LastActivityDate != nil {
		d := timeutil.FormatDateStr(*snap.LastActivityDate)
		resp.LastActivityDate = &d
	}
	return resp
}

// handleGetUserProgress handles GET /api/v1/users/{id}/progress
func (s *Server) handleGetUserProgress(w http.ResponseWriter, r *http.Request) {
	if s.deps.Learner == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Progress is not configured")
		return
	}
	userID, err := shared.NewUserID(r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, r, "invalid user id", err)
		return
	}

	snap, err := s.deps.Learner.Snapshot(r.Context(), shared.Authenticated(userID), "")
	if err != nil {
		s.writeDomainError(w, r, "failed to get progress", err)
		return
	}
	writeJSON(w, http.StatusOK, toProgressResponse(snap))
}

// handleGetDeviceProgress handles GET /api/v1/devices/{device}/progress
func (s *Server) handleGetDeviceProgress(w http.ResponseWriter, r *http.Request) {
	if s.deps.Learner == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Progress is not configured")
		return
	}

	snap, err := s.deps.Learner.Snapshot(r.Context(), shared.Anonymous(), r.PathValue("device"))
	if err != nil {
		s.writeDomainError(w, r, "failed to get device progress", err)
		return
	}
	writeJSON(w, http.StatusOK, toProgressResponse(snap))
}

type signInRequest struct {
	UserID string `json:"user_id"`
}

// handleSignIn handles POST /api/v1/devices/{device}/sign-in
func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	if s.deps.Learner == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Progress is not configured")
		return
	}

	var req signInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Body must be JSON with user_id")
		return
	}
	userID, err := shared.NewUserID(req.UserID)
	if err != nil {
		s.writeDomainError(w, r, "invalid user id", err)
		return
	}

	if err := s.deps.Learner.SignIn(r.Context(), r.PathValue("device"), userID); err != nil {
		s.writeDomainError(w, r, "failed to sign in", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"user_id": userID.String()})
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// writeDomainError maps domain error kinds to HTTP statuses.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	switch {
	case shared.IsValidation(err):
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case shared.IsNotFound(err):
		writeJSONError(w, http.StatusNotFound, "not_found", err.Error())
	case shared.IsRetryable(err):
		writeJSONError(w, http.StatusServiceUnavailable, "unavailable", "Try again later")
	default:
		logger.FromContext(r.Context()).Error(msg, logger.Err(err))
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "Internal error")
	}
}
