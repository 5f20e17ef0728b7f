// Package handlers holds the health checker and the middleware stack of the
// ops API.
package handlers

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// HealthChecker aggregates dependency checks.
type HealthChecker interface {
	Check(ctx context.Context) HealthStatus
}

// HealthCheckFunc returns nil when the dependency answers.
type HealthCheckFunc func(ctx context.Context) error

// HealthStatus is served by /health and /ready. Ready ignores optional checks.
type HealthStatus struct {
	Healthy   bool                   `json:"healthy"`
	Ready     bool                   `json:"ready"`
	Message   string                 `json:"message,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Uptime    string                 `json:"uptime,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
}

type CheckResult struct {
	Healthy  bool   `json:"healthy"`
	Optional bool   `json:"optional,omitempty"`
	Message  string `json:"message,omitempty"`
	Duration string `json:"duration,omitempty"`
}

type registered struct {
	fn       HealthCheckFunc
	optional bool
}

// CompositeHealthChecker runs its checks concurrently, each under its own
// deadline.
type CompositeHealthChecker struct {
	mu      sync.RWMutex
	checks  map[string]registered
	started time.Time
	version string
	timeout time.Duration
}

func NewCompositeHealthChecker(version string) *CompositeHealthChecker {
	return &CompositeHealthChecker{
		checks:  make(map[string]registered),
		started: time.Now(),
		version: version,
		timeout: 3 * time.Second,
	}
}

// AddCheck registers a check the service cannot run without: the stat store.
func (c *CompositeHealthChecker) AddCheck(name string, fn HealthCheckFunc) {
	c.register(name, registered{fn: fn})
}

// AddOptionalCheck registers a best-effort dependency such as Redis. Its
// failure shows up in the report but keeps the service ready.
func (c *CompositeHealthChecker) AddOptionalCheck(name string, fn HealthCheckFunc) {
	c.register(name, registered{fn: fn, optional: true})
}

func (c *CompositeHealthChecker) register(name string, r registered) {
	c.mu.Lock()
	c.checks[name] = r
	c.mu.Unlock()
}

func (c *CompositeHealthChecker) Check(ctx context.Context) HealthStatus {
	c.mu.RLock()
	checks := maps.Clone(c.checks)
	c.mu.RUnlock()

	names := slices.Sorted(maps.Keys(checks))
	results := make([]CheckResult, len(names))

	var g errgroup.Group
	for i, name := range names {
		check := checks[name]
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()

			start := time.Now()
			err := check.fn(cctx)
			res := CheckResult{
				Healthy:  err == nil,
				Optional: check.optional,
				Message:  "OK",
				Duration: time.Since(start).Round(time.Millisecond).String(),
			}
			if err != nil {
				res.Message = err.Error()
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	status := HealthStatus{
		Healthy:   true,
		Ready:     true,
		Checks:    make(map[string]CheckResult, len(names)),
		Uptime:    time.Since(c.started).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
		Version:   c.version,
	}
	var failed []string
	for i, name := range names {
		res := results[i]
		status.Checks[name] = res
		if res.Healthy {
			continue
		}
		failed = append(failed, name)
		if !res.Optional {
			status.Healthy, status.Ready = false, false
		}
	}

	switch {
	case len(names) == 0:
		status.Message = "No health checks registered"
	case len(failed) == 0:
		status.Message = "All checks passed"
	default:
		status.Message = "Some checks failed: " + strings.Join(failed, ", ")
	}
	return status
}

// Pinger is satisfied by the Postgres connection and the Redis cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

func NewPingCheck(p Pinger) HealthCheckFunc { return p.Ping }
