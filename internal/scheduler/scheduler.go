// Package scheduler runs the periodic ingestion and alert jobs on cron
// schedules. Runs of the same job never overlap: a tick that fires while the
// previous run is still active is skipped and counted, not queued.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/logging"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/metrics"
)

// Job is one unit of periodic work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// JobFunc adapts a function to Job.
type JobFunc struct {
	JobName string
	Fn      func(ctx context.Context) error
}

func (f JobFunc) Name() string                  { return f.JobName }
func (f JobFunc) Run(ctx context.Context) error { return f.Fn(ctx) }

// Scheduler owns a cron instance and the guarded jobs registered on it.
type Scheduler struct {
	cron    *cron.Cron
	logger  *slog.Logger
	metrics *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	jobs map[string]*guardedJob
}

func New(logger *slog.Logger, m *metrics.Metrics) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "scheduler"))

	cronLog := cronLogger{logger: logger}
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog)),
		),
		logger:  logger,
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
		jobs:    make(map[string]*guardedJob),
	}
}

// Every registers job to run at the given interval, each run bounded by timeout.
// Job names must be unique.
func (s *Scheduler) Every(interval, timeout time.Duration, job Job) error {
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", job.Name())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.Name()]; exists {
		return fmt.Errorf("job %s already registered", job.Name())
	}

	g := &guardedJob{
		job:     job,
		timeout: timeout,
		parent:  s.ctx,
		logger:  s.logger.With(slog.String("job", job.Name())),
		metrics: s.metrics,
	}
	if _, err := s.cron.AddJob("@every "+interval.String(), g); err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", job.Name(), err)
	}
	s.jobs[job.Name()] = g

	logging.LogOperation(s.logger, "job_scheduled",
		slog.String("job", job.Name()),
		slog.Duration("interval", interval),
		slog.Duration("timeout", timeout))
	return nil
}

// RunNow executes a registered job once, synchronously, under the same
// overlap guard as scheduled ticks. It reports whether the run happened.
func (s *Scheduler) RunNow(name string) (bool, error) {
	s.mu.Lock()
	g, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("unknown job %s", name)
	}
	return g.runGuarded()
}

// Start begins firing ticks. It does not block.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts new ticks, cancels in-flight runs and waits for them to return
// or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopped := s.cron.Stop()
	s.cancel()

	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type guardedJob struct {
	job     Job
	timeout time.Duration
	parent  context.Context
	logger  *slog.Logger
	metrics *metrics.Metrics
	running atomic.Bool
}

// Run implements cron.Job.
func (g *guardedJob) Run() {
	_, _ = g.runGuarded()
}

func (g *guardedJob) runGuarded() (bool, error) {
	if !g.running.CompareAndSwap(false, true) {
		g.logger.Warn("previous run still active, skipping tick")
		g.record(metrics.OutcomeSkipped)
		return false, nil
	}
	defer g.running.Store(false)

	ctx := logging.WithLogger(g.parent, g.logger)
	var cancel context.CancelFunc
	if g.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	start := time.Now()
	err := g.runRecovering(ctx)
	if g.metrics != nil {
		g.metrics.JobDuration.WithLabelValues(g.job.Name()).Observe(time.Since(start).Seconds())
	}

	var panicked *panicError
	switch {
	case errors.As(err, &panicked):
		logging.LogError(g.logger, "job panicked", err)
		g.record(metrics.OutcomePanic)
	case err != nil:
		logging.LogError(g.logger, "job run failed", err, slog.Duration("duration", time.Since(start)))
		g.record(metrics.OutcomeError)
	default:
		g.record(metrics.OutcomeOK)
	}
	return true, err
}

type panicError struct{ value any }

func (p *panicError) Error() string { return fmt.Sprintf("panic: %v", p.value) }

func (g *guardedJob) runRecovering(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return g.job.Run(ctx)
}

func (g *guardedJob) record(outcome string) {
	if g.metrics != nil {
		g.metrics.JobRunsTotal.WithLabelValues(g.job.Name(), outcome).Inc()
	}
}

// cronLogger routes cron's own logging into slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	args := append([]any{slog.Any("error", err)}, keysAndValues...)
	l.logger.Error(msg, args...)
}
