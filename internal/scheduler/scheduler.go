// Package scheduler runs the daily relay report.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DailyAt21UTC fires every day at 21:00 UTC.
const DailyAt21UTC = "0 21 * * *"

type Scheduler struct {
	cron       *cron.Cron
	ctx        context.Context
	cancel     context.CancelFunc
	spec       string
	reportFunc func(ctx context.Context) error
	logger     *zap.Logger
}

// New creates a scheduler for spec, a standard five-field cron expression
// evaluated in UTC. An empty spec means DailyAt21UTC.
func New(spec string, logger *zap.Logger) *Scheduler {
	if spec == "" {
		spec = DailyAt21UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		ctx:    ctx,
		cancel: cancel,
		spec:   spec,
		logger: logger,
	}
}

// SetReportFunction sets the job run on every tick.
func (s *Scheduler) SetReportFunction(f func(ctx context.Context) error) {
	s.reportFunc = f
}

func (s *Scheduler) Start() error {
	if s.reportFunc == nil {
		return errors.New("report function not set")
	}
	if _, err := s.cron.AddFunc(s.spec, s.runReport); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("scheduler started", zap.String("spec", s.spec))
	return nil
}

func (s *Scheduler) runReport() {
	s.logger.Debug("daily report triggered")
	if err := s.reportFunc(s.ctx); err != nil {
		s.logger.Error("daily report failed", zap.Error(err))
	}
}

// Stop waits for a running job to finish.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) IsRunning() bool {
	return s.cron != nil && len(s.cron.Entries()) > 0
}

// Next reports when the job fires next; zero if not started.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}
