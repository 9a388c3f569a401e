// Package worker runs the periodic escalation scan.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/msp-sla/internal/config"
	"github.com/spec-kit/msp-sla/internal/escalation"
)

const scanJobName = "escalation-scan"

// Scanner runs one escalation pass at now.
type Scanner interface {
	Scan(ctx context.Context, now time.Time) (escalation.ScanResult, error)
}

// Scheduler owns the gocron scheduler of the worker process. It is the only place
// besides HTTP handlers that reads the wall clock.
type Scheduler struct {
	scheduler gocron.Scheduler
	logger    *zap.Logger
	clock     func() time.Time

	mu      sync.Mutex
	started bool
}

// NewScheduler creates a scheduler in UTC.
func NewScheduler(logger *zap.Logger) (*Scheduler, error) {
	s, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{scheduler: s, logger: logger, clock: time.Now}, nil
}

// RegisterScanJob runs the scan every cfg.ScanInterval, starting immediately. A run
// that is still busy when the next one is due pushes that run back rather than
// overlapping it.
func (s *Scheduler) RegisterScanJob(scanner Scanner, cfg config.EscalationConfig) error {
	timeout := cfg.ScanTimeout
	if timeout <= 0 || timeout > cfg.ScanInterval {
		timeout = cfg.ScanInterval
	}
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(cfg.ScanInterval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			s.RunScan(ctx, scanner)
		}),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithTags("sla", "escalation"),
		gocron.WithName(scanJobName),
	)
	if err != nil {
		return err
	}
	s.logger.Info("registered escalation scan job",
		zap.Duration("interval", cfg.ScanInterval),
		zap.Duration("timeout", timeout))
	return nil
}

// RunScan executes one scan and logs its outcome.
func (s *Scheduler) RunScan(ctx context.Context, scanner Scanner) {
	now := s.clock()
	result, err := scanner.Scan(ctx, now)
	if err != nil {
		s.logger.Error("escalation scan failed", zap.Error(err))
		return
	}
	for _, failure := range result.Errors {
		s.logger.Warn("escalation failed for ticket",
			zap.String("ticket_id", failure.TicketID),
			zap.Error(failure.Err))
	}
}

// Start begins running registered jobs.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.scheduler.Start()
	s.started = true
	s.logger.Info("scheduler started", zap.Int("job_count", len(s.scheduler.Jobs())))
}

// Stop waits for running jobs and shuts the scheduler down.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	err := s.scheduler.Shutdown()
	s.started = false
	if err != nil {
		s.logger.Error("scheduler shutdown with error", zap.Error(err))
		return err
	}
	s.logger.Info("scheduler stopped")
	return nil
}

// Jobs lists registered jobs.
func (s *Scheduler) Jobs() []gocron.Job {
	return s.scheduler.Jobs()
}
