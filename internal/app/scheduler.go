/**
 * @description
 * Cron scheduler for the lease repair sweep.
 */
package app

import (
	"context"
	"log/slog"
	"strings"

	"github.com/robfig/cron/v3"
)

// LeaseRepairScheduler periodically re-runs the lease hand-over for paid contracts.
type LeaseRepairScheduler struct {
	cron     *cron.Cron
	service  *Service
	logger   *slog.Logger
	schedule string
}

// NewLeaseRepairScheduler creates a new scheduler instance.
func NewLeaseRepairScheduler(service *Service, logger *slog.Logger, schedule string) *LeaseRepairScheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))

	return &LeaseRepairScheduler{
		cron:     c,
		service:  service,
		logger:   logger,
		schedule: strings.TrimSpace(schedule),
	}
}

// Start registers the job and starts the cron scheduler. An empty schedule disables it.
func (s *LeaseRepairScheduler) Start() error {
	if s.schedule == "" {
		s.logger.Info("lease repair job disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(s.schedule, s.runLeaseRepair); err != nil {
		s.logger.Error("failed to schedule lease repair job", "error", err, "schedule", s.schedule)
		return err
	}
	s.logger.Info("scheduled lease repair job", "schedule", s.schedule)
	s.cron.Start()
	return nil
}

// Stop gracefully stops the cron scheduler.
func (s *LeaseRepairScheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *LeaseRepairScheduler) runLeaseRepair() {
	repaired, failed, err := s.service.RepairPendingLeases(context.Background())
	if err != nil {
		s.logger.Error("lease repair job failed", "error", err)
		return
	}
	s.logger.Info("lease repair job finished", "repaired", repaired, "failed", failed)
}
