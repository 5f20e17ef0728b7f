// Package scheduler runs the engine's background jobs: rebuilding the cached
// league tables and reloading the catalog. Timing is delegated to gocron; this
// package adds the job contract, logging and run history.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/beanwise/learning-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONTRACTS
// ══════════════════════════════════════════════════════════════════════════════

var (
	ErrNilJob                  = errors.New("scheduler: job cannot be nil")
	ErrNilSchedule             = errors.New("scheduler: schedule cannot be nil")
	ErrJobAlreadyExists        = errors.New("scheduler: job already registered")
	ErrJobNotFound             = errors.New("scheduler: job not found")
	ErrSchedulerAlreadyRunning = errors.New("scheduler: already running")
	ErrSchedulerNotRunning     = errors.New("scheduler: not running")
)

// Job is a unit of background work.
type Job interface {
	Name() string
	Description() string

	// Run executes the job. ctx is cancelled when the scheduler stops.
	Run(ctx context.Context) error
}

// Schedule binds a job to gocron timing.
type Schedule interface {
	apply(s *gocron.Scheduler) *gocron.Scheduler
	String() string
}

type everySchedule struct{ d time.Duration }

func (e everySchedule) apply(s *gocron.Scheduler) *gocron.Scheduler { return s.Every(e.d) }
func (e everySchedule) String() string                               { return "@every " + e.d.String() }

// Every runs a job at a fixed interval.
func Every(d time.Duration) Schedule {
	return everySchedule{d: d}
}

type cronSchedule struct{ expr string }

func (c cronSchedule) apply(s *gocron.Scheduler) *gocron.Scheduler { return s.Cron(c.expr) }
func (c cronSchedule) String() string                               { return c.expr }

// Cron runs a job on a five-field cron expression.
func Cron(expr string) Schedule {
	return cronSchedule{expr: expr}
}

// JobResult contains the result of a job execution.
type JobResult struct {
	JobName   string
	StartedAt time.Time
	Duration  time.Duration
	Manual    bool
	Err       error
}

// Success reports whether the run succeeded.
func (r JobResult) Success() bool {
	return r.Err == nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// Config contains configuration for the Scheduler.
type Config struct {
	Location       *time.Location
	MaxHistorySize int
	Logger         *logger.Logger
}

// Scheduler manages and executes scheduled jobs. Each job runs in singleton
// mode: a slow run is never overlapped by the next tick.
type Scheduler struct {
	mu      sync.RWMutex
	cron    *gocron.Scheduler
	jobs    map[string]Job
	sched   map[string]Schedule
	ctx     context.Context
	cancel  context.CancelFunc
	running bool

	history    []JobResult
	maxHistory int
	onResult   func(JobResult)
	log        *logger.Logger
}

// New creates a Scheduler.
func New(cfg Config) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.MaxHistorySize <= 0 {
		cfg.MaxHistorySize = 200
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}

	cron := gocron.NewScheduler(cfg.Location)
	cron.WaitForScheduleAll()
	cron.SingletonModeAll()

	return &Scheduler{
		cron:       cron,
		jobs:       make(map[string]Job),
		sched:      make(map[string]Schedule),
		ctx:        context.Background(),
		maxHistory: cfg.MaxHistorySize,
		log:        cfg.Logger.With(logger.Component("scheduler")),
	}
}

// OnResult sets a hook called after every run.
func (s *Scheduler) OnResult(fn func(JobResult)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onResult = fn
}

// Register adds a job with its schedule.
func (s *Scheduler) Register(job Job, schedule Schedule) error {
	if job == nil {
		return ErrNilJob
	}
	if schedule == nil {
		return ErrNilSchedule
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, name)
	}

	_, err := schedule.apply(s.cron).Tag(name).Do(func() {
		s.execute(s.runContext(), job, false)
	})
	if err != nil {
		return fmt.Errorf("scheduler: register %s: %w", name, err)
	}

	s.jobs[name] = job
	s.sched[name] = schedule
	s.log.Info("job registered",
		logger.String("job", name),
		logger.String("schedule", schedule.String()),
		logger.String("description", job.Description()),
	)
	return nil
}

func (s *Scheduler) runContext() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ctx
}

// Start begins running jobs on their schedules.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	count := len(s.jobs)
	s.mu.Unlock()

	s.cron.StartAsync()
	s.log.Info("scheduler started", logger.Int("jobs", count))
	return nil
}

// Stop cancels running jobs and waits for gocron to stop.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.cron.Stop()
	s.log.Info("scheduler stopped")
	return nil
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// RunNow executes a job synchronously, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) (JobResult, error) {
	s.mu.RLock()
	job, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return JobResult{}, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	res := s.execute(ctx, job, true)
	return res, res.Err
}

func (s *Scheduler) execute(ctx context.Context, job Job, manual bool) JobResult {
	start := time.Now()
	err := job.Run(ctx)
	res := JobResult{
		JobName:   job.Name(),
		StartedAt: start,
		Duration:  time.Since(start),
		Manual:    manual,
		Err:       err,
	}

	s.mu.Lock()
	s.history = append(s.history, res)
	if len(s.history) > s.maxHistory {
		s.history = s.history[len(s.history)-s.maxHistory:]
	}
	hook := s.onResult
	s.mu.Unlock()

	if err != nil {
		s.log.Error("job failed", logger.String("job", res.JobName), logger.Latency(res.Duration), logger.Err(err))
	} else {
		s.log.Info("job completed", logger.String("job", res.JobName), logger.Latency(res.Duration))
	}
	if hook != nil {
		hook(res)
	}
	return res
}

// JobInfo describes a registered job.
type JobInfo struct {
	Name        string
	Description string
	Schedule    string
	LastRun     *JobResult
}

// ListJobs returns registered jobs sorted by name.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobInfo, 0, len(s.jobs))
	for name, job := range s.jobs {
		info := JobInfo{Name: name, Description: job.Description(), Schedule: s.sched[name].String()}
		for i := len(s.history) - 1; i >= 0; i-- {
			if s.history[i].JobName == name {
				r := s.history[i]
				info.LastRun = &r
				break
			}
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// History returns up to limit most recent results, newest last.
func (s *Scheduler) History(limit int) []JobResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}
	out := make([]JobResult, limit)
	copy(out, s.history[len(s.history)-limit:])
	return out
}
