package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beanwise/learning-engine/config"
	"github.com/beanwise/learning-engine/internal/application/command"
	"github.com/beanwise/learning-engine/internal/application/progress"
	"github.com/beanwise/learning-engine/internal/application/query"
	"github.com/beanwise/learning-engine/internal/domain/anonymous"
	"github.com/beanwise/learning-engine/internal/domain/hearts"
	"github.com/beanwise/learning-engine/internal/domain/league"
	"github.com/beanwise/learning-engine/internal/domain/shared"
	"github.com/beanwise/learning-engine/internal/infrastructure/scheduler"
	"github.com/beanwise/learning-engine/pkg/timeutil"
)

type heartsStub struct {
	status hearts.Status
	err    error
}

func (s heartsStub) Handle(context.Context, query.GetHeartsQuery) (hearts.Status, error) {
	return s.status, s.err
}

type leagueStub struct{}

func (leagueStub) Handle(_ context.Context, q query.GetLeagueStandingQuery) (*query.LeagueStandingDTO, error) {
	if q.UserID != "u-1" {
		return nil, shared.ErrMembershipNotFound
	}
	me := league.Standing{Membership: league.Membership{UserID: "u-1", WeeklyXP: 40}, Rank: 1, Zone: league.ZonePromote}
	return &query.LeagueStandingDTO{
		League:        league.League{ID: "bronze", Name: "Bronze", Tier: 1},
		WeekStart:     timeutil.Date(2026, time.October, 12),
		Members:       []league.Standing{me},
		Me:            me,
		Rank:          1,
		Zone:          league.ZonePromote,
		DaysRemaining: 3,
	}, nil
}

type jobsStub struct {
	ran []string
}

func (j *jobsStub) ListJobs() []scheduler.JobInfo {
	return []scheduler.JobInfo{{Name: "sync_league_standings", Schedule: "every 10m0s"}}
}

func (j *jobsStub) History(int) []scheduler.JobResult { return nil }

func (j *jobsStub) RunNow(_ context.Context, name string) (scheduler.JobResult, error) {
	if name != "sync_league_standings" {
		return scheduler.JobResult{}, scheduler.ErrJobNotFound
	}
	j.ran = append(j.ran, name)
	return scheduler.JobResult{JobName: name, Manual: true}, nil
}

func newTestServer(deps Dependencies) http.Handler {
	cfg := DefaultConfig()
	cfg.AdminAPIKeys = []string{"admin-key"}
	return NewServer(cfg, deps).Handler()
}

type learnerStub struct {
	signedIn map[string]shared.UserID
}

func (l *learnerStub) Snapshot(_ context.Context, id shared.Identity, deviceID string) (progress.Snapshot, error) {
	if id.IsAuthenticated() {
		last := timeutil.Date(2026, time.October, 15)
		return progress.Snapshot{Authenticated: true, TotalXP: 120, CurrentStreak: 4, LongestStreak: 9, LastActivityDate: &last, Gate: anonymous.GateNone}, nil
	}
	if deviceID == "broken" {
		return progress.Snapshot{}, shared.ErrLocalStore
	}
	return progress.Snapshot{LessonsCompleted: 2, TotalXP: 30, Gate: anonymous.GateSoft}, nil
}

func (l *learnerStub) SignIn(_ context.Context, deviceID string, userID shared.UserID) error {
	l.signedIn[deviceID] = userID
	return nil
}

func do(t *testing.T, h http.Handler, method, path string, headers map[string]string) (*httptest.ResponseRecorder, JSONResponse) {
	t.Helper()
	return doBody(t, h, method, path, "", headers)
}

func doBody(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, JSONResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp JSONResponse
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func TestServer_Hearts(t *testing.T) {
	next := 90 * time.Minute
	h := newTestServer(Dependencies{Hearts: heartsStub{status: hearts.Status{Available: 3, Max: 5, NextHeartIn: &next}}})

	rec, body := do(t, h, http.MethodGet, "/api/v1/users/u-1/hearts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, body.Success)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	data := body.Data.(map[string]interface{})
	assert.Equal(t, float64(3), data["available"])
	assert.Equal(t, float64(5400), data["next_heart_in_seconds"])
}

func TestServer_DomainErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{shared.NewDomainError("hearts", "Get", shared.ErrInvalidID, "user id is required"), http.StatusBadRequest},
		{shared.WrapError("streak", "Get", shared.ErrServiceUnavailable, "down", errors.New("dial")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		h := newTestServer(Dependencies{Hearts: heartsStub{err: tc.err}})
		rec, body := do(t, h, http.MethodGet, "/api/v1/users/u-1/hearts", nil)
		assert.Equal(t, tc.want, rec.Code)
		assert.False(t, body.Success)
	}
}

func TestServer_League(t *testing.T) {
	h := newTestServer(Dependencies{LeagueStanding: leagueStub{}})

	rec, body := do(t, h, http.MethodGet, "/api/v1/users/u-1/league", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := body.Data.(map[string]interface{})
	assert.Equal(t, "2026-10-12", data["week_start"])
	assert.Equal(t, "promote", data["zone"])

	rec, _ = do(t, h, http.MethodGet, "/api/v1/users/nobody/league", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_NotConfigured(t *testing.T) {
	h := newTestServer(Dependencies{})
	rec, _ := do(t, h, http.MethodGet, "/api/v1/users/u-1/daily-progress", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestServer_AdminRoutes(t *testing.T) {
	jobs := &jobsStub{}
	h := newTestServer(Dependencies{Jobs: jobs, Features: config.NewFeatureFlags()})

	rec, _ := do(t, h, http.MethodPost, "/api/v1/admin/jobs/sync_league_standings/run", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	auth := map[string]string{"X-API-Key": "admin-key"}
	rec, body := do(t, h, http.MethodPost, "/api/v1/admin/jobs/sync_league_standings/run", auth)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body.Data.(map[string]interface{})["manual"])
	assert.Equal(t, []string{"sync_league_standings"}, jobs.ran)

	rec, _ = do(t, h, http.MethodPost, "/api/v1/admin/jobs/missing/run", auth)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = do(t, h, http.MethodGet, "/api/v1/admin/features", auth)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body.Data.([]interface{}), 5)
}

func TestServer_HealthAndMetrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("learning_engine_up 1\n"))
	})
	h := newTestServer(Dependencies{Metrics: metrics})

	rec, body := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, body.Success)

	rec, _ = do(t, h, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "learning_engine_up 1")
}

func TestServer_RecoversPanics(t *testing.T) {
	h := newTestServer(Dependencies{Hearts: panicHearts{}})
	rec, body := do(t, h, http.MethodGet, "/api/v1/users/u-1/hearts", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal_server_error", body.Error.Code)
}

type panicHearts struct{}

func (panicHearts) Handle(context.Context, query.GetHeartsQuery) (hearts.Status, error) {
	panic("store exploded")
}

func TestServer_LearnerProgress(t *testing.T) {
	learner := &learnerStub{signedIn: map[string]shared.UserID{}}
	h := newTestServer(Dependencies{Learner: learner})

	rec, body := do(t, h, http.MethodGet, "/api/v1/users/u-1/progress", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := body.Data.(map[string]interface{})
	assert.Equal(t, true, data["authenticated"])
	assert.Equal(t, "2026-10-15", data["last_activity_date"])
	assert.Equal(t, "none", data["gate"])

	rec, body = do(t, h, http.MethodGet, "/api/v1/devices/dev-9/progress", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data = body.Data.(map[string]interface{})
	assert.Equal(t, float64(2), data["lessons_completed"])
	assert.Equal(t, "soft", data["gate"])

	rec, _ = do(t, h, http.MethodGet, "/api/v1/devices/broken/progress", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_SignIn(t *testing.T) {
	learner := &learnerStub{signedIn: map[string]shared.UserID{}}
	h := newTestServer(Dependencies{Learner: learner})
	auth := map[string]string{"X-API-Key": "admin-key"}

	rec, _ := doBody(t, h, http.MethodPost, "/api/v1/devices/dev-9/sign-in", `{"user_id":"u-7"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, learner.signedIn)

	rec, _ = doBody(t, h, http.MethodPost, "/api/v1/devices/dev-9/sign-in", `{"user_id":"u-7"}`, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, shared.UserID("u-7"), learner.signedIn["dev-9"])

	rec, _ = doBody(t, h, http.MethodPost, "/api/v1/devices/dev-9/sign-in", `{"user_id":" "}`, auth)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doBody(t, h, http.MethodPost, "/api/v1/devices/dev-9/sign-in", `not json`, auth)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// without admin keys the route is not mounted
	open := NewServer(DefaultConfig(), Dependencies{Learner: learner}).Handler()
	rec, _ = doBody(t, open, http.MethodPost, "/api/v1/devices/dev-1/sign-in", `{"user_id":"u-7"}`, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotContains(t, learner.signedIn, "dev-1")
}

type gainStub struct {
	got []command.GainHeartCommand
}

func (g *gainStub) Handle(_ context.Context, cmd command.GainHeartCommand) (hearts.Status, error) {
	if err := cmd.Validate(); err != nil {
		return hearts.Status{}, err
	}
	g.got = append(g.got, cmd)
	return hearts.Status{Available: min(5, 2+cmd.Count), Max: 5}, nil
}

func TestServer_GainHearts(t *testing.T) {
	gain := &gainStub{}
	h := newTestServer(Dependencies{GainHearts: gain})
	auth := map[string]string{"X-API-Key": "admin-key"}

	rec, _ := doBody(t, h, http.MethodPost, "/api/v1/admin/users/u-1/hearts", `{"count":2}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, body := doBody(t, h, http.MethodPost, "/api/v1/admin/users/u-1/hearts", `{"count":2}`, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	data := body.Data.(map[string]interface{})
	assert.Equal(t, float64(4), data["available"])
	assert.Equal(t, []command.GainHeartCommand{{UserID: "u-1", Count: 2}}, gain.got)

	rec, _ = doBody(t, h, http.MethodPost, "/api/v1/admin/users/u-1/hearts", `{"count":0}`, auth)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doBody(t, h, http.MethodPost, "/api/v1/admin/users/u-1/hearts", `nope`, auth)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
