package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler reloads the catalog on a cron schedule, independent of query traffic.
type Scheduler struct {
	cron      *cron.Cron
	refresher *Refresher
	logger    *slog.Logger
}

// NewScheduler registers a reload for spec ("@every 5m", "*/10 * * * *", ...).
func NewScheduler(r *Refresher, spec string, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		cron:      cron.New(),
		refresher: r,
		logger:    logger,
	}
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) run() {
	if err := s.refresher.Load(context.Background()); err != nil {
		s.logger.Warn("scheduled refresh failed", "error", err)
	}
}

// Start runs the schedule in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("refresh scheduler started")
}

// Stop halts the schedule and waits for a running reload to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
	s.logger.Info("refresh scheduler stopped")
}
