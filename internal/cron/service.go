package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	robfig "github.com/robfig/cron/v3"

	"github.com/angelmondragon/watercolor-storefront/pkg/logger"
	"github.com/angelmondragon/watercolor-storefront/pkg/metrics"
)

// Run outcomes reported by RunAll.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// ServiceParams configure the cron service.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	// Locker is optional; without it every process runs every job.
	Locker  Locker
	Metrics *metrics.CronJobMetrics
	// SkipInitialRun disables the run of every job at Start.
	SkipInitialRun bool
	Clock          func() time.Time
}

type JobStatus struct {
	Name           string     `json:"name"`
	Schedule       string     `json:"schedule"`
	Running        bool       `json:"running"`
	LastRun        *time.Time `json:"lastRun,omitempty"`
	LastDurationMs int64      `json:"lastDurationMs"`
	LastError      string     `json:"lastError,omitempty"`
	NextRun        *time.Time `json:"nextRun,omitempty"`
	Runs           int64      `json:"runs"`
	Failures       int64      `json:"failures"`
	Skips          int64      `json:"skips"`
}

type Status struct {
	Running bool        `json:"running"`
	Jobs    []JobStatus `json:"jobs"`
}

type JobResult struct {
	Name       string `json:"name"`
	Outcome    string `json:"outcome"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"durationMs"`
}

type jobState struct {
	job   Job
	entry robfig.EntryID
	gate  sync.Mutex

	running      bool
	lastRun      *time.Time
	lastDuration time.Duration
	lastErr      string
	runs         int64
	failures     int64
	skips        int64
}

// Service schedules registered jobs on their own cron specs.
type Service struct {
	logg    *logger.Logger
	locker  Locker
	metrics *metrics.CronJobMetrics
	now     func() time.Time
	cron    *robfig.Cron
	jobs    []*jobState

	skipInitial bool

	mu      sync.RWMutex
	baseCtx context.Context
	cancel  context.CancelFunc
	started bool
	initial sync.WaitGroup
}

// NewService builds a cron service and validates every job schedule.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	s := &Service{
		logg:        params.Logger,
		locker:      params.Locker,
		metrics:     params.Metrics,
		now:         clock,
		cron:        robfig.New(robfig.WithLogger(cronLogger{logg: params.Logger})),
		skipInitial: params.SkipInitialRun,
		baseCtx:     context.Background(),
	}
	seen := map[string]struct{}{}
	for _, job := range registry.Jobs() {
		if _, dup := seen[job.Name()]; dup {
			return nil, fmt.Errorf("duplicate job %q", job.Name())
		}
		seen[job.Name()] = struct{}{}
		schedule, err := robfig.ParseStandard(job.Schedule())
		if err != nil {
			return nil, fmt.Errorf("job %s schedule %q: %w", job.Name(), job.Schedule(), err)
		}
		st := &jobState{job: job}
		st.entry = s.cron.Schedule(schedule, robfig.FuncJob(func() {
			s.runJob(s.context(), st)
		}))
		s.jobs = append(s.jobs, st)
	}
	for _, name := range registry.Disabled() {
		s.logg.Info(s.logg.WithJob(context.Background(), name), "cron job disabled by schedule")
	}
	return s, nil
}

func (s *Service) context() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.baseCtx
}

// Start begins scheduling and, unless disabled, runs every job once in the background.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.baseCtx, s.cancel = context.WithCancel(ctx)
	s.started = true
	base := s.baseCtx
	s.mu.Unlock()

	s.cron.Start()
	s.logg.Info(s.logg.WithField(ctx, "jobs", len(s.jobs)), "cron service started")
	if !s.skipInitial {
		s.initial.Add(1)
		go func() {
			defer s.initial.Done()
			s.RunAll(base)
		}()
	}
}

// Stop halts scheduling and waits for running jobs.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel := s.cancel
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.initial.Wait()
	if cancel != nil {
		cancel()
	}
	s.logg.Info(context.Background(), "cron service stopped")
}

// Run starts the service and blocks until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.Start(ctx)
	<-ctx.Done()
	s.logg.Info(ctx, "cron service context canceled")
	s.Stop()
	return ctx.Err()
}

// RunAll runs every job now, in registration order.
func (s *Service) RunAll(ctx context.Context) []JobResult {
	results := make([]JobResult, 0, len(s.jobs))
	for _, st := range s.jobs {
		results = append(results, s.runJob(ctx, st))
	}
	return results
}

// Status reports scheduling state for every job.
func (s *Service) Status() Status {
	s.mu.RLock()
	running := s.started
	s.mu.RUnlock()

	out := Status{Running: running, Jobs: make([]JobStatus, 0, len(s.jobs))}
	for _, st := range s.jobs {
		s.mu.RLock()
		status := JobStatus{
			Name:           st.job.Name(),
			Schedule:       st.job.Schedule(),
			Running:        st.running,
			LastRun:        st.lastRun,
			LastDurationMs: st.lastDuration.Milliseconds(),
			LastError:      st.lastErr,
			Runs:           st.runs,
			Failures:       st.failures,
			Skips:          st.skips,
		}
		s.mu.RUnlock()
		if running {
			if next := s.cron.Entry(st.entry).Next; !next.IsZero() {
				status.NextRun = &next
			}
		}
		out.Jobs = append(out.Jobs, status)
	}
	return out
}

func (s *Service) runJob(ctx context.Context, st *jobState) JobResult {
	name := st.job.Name()
	result := JobResult{Name: name}
	jobCtx := s.logg.WithField(s.logg.WithJob(ctx, name), "event", "cron.job")

	if !st.gate.TryLock() {
		s.logg.Info(jobCtx, "job skipped; previous run still in progress")
		return s.skip(st, result)
	}
	defer st.gate.Unlock()

	if s.locker != nil {
		locked, err := s.locker.Acquire(ctx, name)
		if err != nil {
			s.logg.Error(jobCtx, "job lock acquire failed", err)
			return s.finish(jobCtx, st, result, 0, fmt.Errorf("lock acquire: %w", err))
		}
		if !locked {
			s.logg.Info(jobCtx, "job skipped; another instance holds the lock")
			return s.skip(st, result)
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), name); err != nil {
				s.logg.Error(jobCtx, "failed to release cron lock", err)
			}
		}()
	}

	s.mu.Lock()
	st.running = true
	s.mu.Unlock()

	s.logg.Info(jobCtx, "job start")
	start := s.now()
	err := runSafely(jobCtx, st.job)
	return s.finish(jobCtx, st, result, s.now().Sub(start), err)
}

func (s *Service) skip(st *jobState, result JobResult) JobResult {
	s.mu.Lock()
	st.skips++
	s.mu.Unlock()
	s.metrics.IncSkipped(result.Name)
	result.Outcome = OutcomeSkipped
	return result
}

func (s *Service) finish(ctx context.Context, st *jobState, result JobResult, duration time.Duration, err error) JobResult {
	ranAt := s.now().UTC()
	s.mu.Lock()
	st.running = false
	st.lastRun = &ranAt
	st.lastDuration = duration
	st.runs++
	st.lastErr = ""
	if err != nil {
		st.failures++
		st.lastErr = err.Error()
	}
	s.mu.Unlock()

	s.metrics.ObserveDuration(result.Name, duration)
	result.DurationMs = duration.Milliseconds()
	ctx = s.logg.WithField(ctx, "duration_ms", duration.Milliseconds())
	if err != nil {
		s.logg.Error(ctx, "job failed", err)
		s.metrics.IncFailure(result.Name)
		result.Outcome = OutcomeFailed
		result.Error = err.Error()
		return result
	}
	s.logg.Info(ctx, "job completed")
	s.metrics.IncSuccess(result.Name)
	result.Outcome = OutcomeCompleted
	return result
}

func runSafely(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panic: %v", r)
		}
	}()
	return job.Run(ctx)
}

// cronLogger routes robfig/cron's internal logs through zerolog.
type cronLogger struct {
	logg *logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	ctx := c.logg.WithFields(context.Background(), kvFields(keysAndValues))
	c.logg.Debug(ctx, "cron: "+msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	if err == nil {
		err = errors.New(msg)
	}
	ctx := c.logg.WithFields(context.Background(), kvFields(keysAndValues))
	c.logg.Error(ctx, "cron: "+msg, err)
}

func kvFields(kv []any) map[string]any {
	fields := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		fields[key] = kv[i+1]
	}
	return fields
}
