package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mobilsoft/edire/internal/domain/integration"
	"github.com/mobilsoft/edire/internal/infrastructure/logger"
)

// Runner executes a named operation for one argument
type Runner interface {
	Run(ctx context.Context, operation, arg string) (integration.Counters, error)
}

// SourceLister returns the source ids a tick covers
type SourceLister interface {
	SourceIDs() []string
}

// RunObserver is told about every finished job
type RunObserver interface {
	ObserveRun(operation, sourceID string, d time.Duration, err error)
}

// Config holds configuration for the sync scheduler
type Config struct {
	// Schedule is a cron spec or descriptor such as "@every 5m"
	Schedule string
	// Operation is run for every source on each tick
	Operation string
	// Budget bounds one source run
	Budget time.Duration
	// MaxConcurrentSources caps parallel source runs per tick
	MaxConcurrentSources int
	// HistorySize is how many finished jobs are kept for inspection
	HistorySize int
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Schedule:             "@every 5m",
		Operation:            "sync.pull",
		Budget:               45 * time.Second,
		MaxConcurrentSources: 4,
		HistorySize:          100,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Operation == "" {
		return fmt.Errorf("%w: operation is required", ErrInvalidConfig)
	}
	if c.Budget <= 0 {
		return fmt.Errorf("%w: budget must be positive", ErrInvalidConfig)
	}
	if c.MaxConcurrentSources <= 0 {
		return fmt.Errorf("%w: max concurrent sources must be positive", ErrInvalidConfig)
	}
	if _, err := cron.ParseStandard(c.Schedule); err != nil {
		return fmt.Errorf("%w: schedule %q: %v", ErrInvalidConfig, c.Schedule, err)
	}
	return nil
}

// SyncScheduler wakes on a cron schedule and runs the configured operation for
// every source. Ticks never overlap; a tick that fires while the previous one
// is still running is skipped.
type SyncScheduler struct {
	config   Config
	runner   Runner
	sources  SourceLister
	observer RunObserver
	logger   *zap.Logger
	now      func() time.Time

	cron      *cron.Cron
	runCtx    context.Context
	cancel    context.CancelFunc
	mu        sync.Mutex
	isRunning bool

	historyMu sync.RWMutex
	history   []*Job
}

// Option configures a SyncScheduler
type Option func(*SyncScheduler)

// WithObserver sets the run observer
func WithObserver(observer RunObserver) Option {
	return func(s *SyncScheduler) {
		s.observer = observer
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(s *SyncScheduler) {
		s.now = now
	}
}

// NewSyncScheduler creates a scheduler
func NewSyncScheduler(config Config, runner Runner, sources SourceLister, logger *zap.Logger, opts ...Option) (*SyncScheduler, error) {
	if config.HistorySize <= 0 {
		config.HistorySize = 100
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &SyncScheduler{
		config:  config,
		runner:  runner,
		sources: sources,
		logger:  logger,
		now:     time.Now,
		history: make([]*Job, 0, config.HistorySize),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start registers the tick and starts the cron loop
func (s *SyncScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}

	cronLog := cronLogger{logger: s.logger}
	c := cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)
	s.runCtx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	if _, err := c.AddFunc(s.config.Schedule, func() { s.tick(s.runCtx) }); err != nil {
		s.cancel()
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	c.Start()
	s.cron = c
	s.isRunning = true

	s.logger.Info("sync scheduler started",
		zap.String("schedule", s.config.Schedule),
		zap.String("operation", s.config.Operation),
		zap.Duration("budget", s.config.Budget),
		zap.Int("max_concurrent_sources", s.config.MaxConcurrentSources),
	)
	return nil
}

// Stop stops scheduling new ticks and waits for the running tick. When ctx
// expires first the in-flight runs are cancelled.
func (s *SyncScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	c, cancel := s.cron, s.cancel
	s.mu.Unlock()

	done := c.Stop()
	select {
	case <-done.Done():
		cancel()
		s.logger.Info("sync scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		cancel()
		s.logger.Warn("sync scheduler stop timed out, cancelling in-flight runs")
		return ctx.Err()
	}
}

// IsRunning reports whether the cron loop is active
func (s *SyncScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// NextRun returns the time of the next tick, zero when stopped
func (s *SyncScheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return time.Time{}
	}
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// RunOnce runs one tick synchronously and returns its jobs in source order
func (s *SyncScheduler) RunOnce(ctx context.Context) []*Job {
	return s.tick(ctx)
}

func (s *SyncScheduler) tick(ctx context.Context) []*Job {
	ids := s.sources.SourceIDs()
	jobs := make([]*Job, len(ids))
	if len(ids) == 0 {
		return jobs
	}
	s.logger.Debug("sync tick", zap.Int("sources", len(ids)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.MaxConcurrentSources)
	for i, id := range ids {
		job := NewJob(s.config.Operation, id)
		jobs[i] = job
		g.Go(func() error {
			s.runJob(gctx, job)
			return nil
		})
	}
	_ = g.Wait()

	for _, job := range jobs {
		s.addToHistory(job)
	}
	return jobs
}

func (s *SyncScheduler) runJob(ctx context.Context, job *Job) {
	// The job id doubles as the run id seen in sql and request logs
	ctx, log := logger.WithRun(ctx, s.logger, job.SourceID, job.ID.String())
	log = log.With(zap.String("operation", job.Operation))

	runCtx, cancel := context.WithTimeout(ctx, s.config.Budget)
	defer cancel()

	job.Start(s.now())
	counters, err := s.runner.Run(runCtx, job.Operation, job.SourceID)
	switch {
	case errors.Is(err, integration.ErrSourceBusy):
		job.Skip(s.now(), err.Error())
		log.Debug("source busy, skipping tick")
	case err != nil:
		job.Fail(s.now(), err)
		log.Error("sync job failed", zap.Error(err))
	default:
		job.Complete(s.now(), counters)
		log.Debug("sync job completed",
			zap.String("status", string(job.Status)),
			zap.Any("counters", counters),
		)
	}

	if s.observer != nil {
		s.observer.ObserveRun(job.Operation, job.SourceID, job.Duration(), err)
	}
}

func (s *SyncScheduler) addToHistory(job *Job) {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	s.history = append([]*Job{job}, s.history...)
	if len(s.history) > s.config.HistorySize {
		s.history = s.history[:s.config.HistorySize]
	}
}

// History returns up to limit finished jobs, newest first
func (s *SyncScheduler) History(limit int) []*Job {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()

	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}
	out := make([]*Job, limit)
	copy(out, s.history[:limit])
	return out
}

// HistoryBySource returns up to limit finished jobs of one source, newest first
func (s *SyncScheduler) HistoryBySource(sourceID string, limit int) []*Job {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()

	out := make([]*Job, 0)
	for _, job := range s.history {
		if job.SourceID != sourceID {
			continue
		}
		out = append(out, job)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}
