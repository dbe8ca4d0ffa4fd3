/*
scheduler.go - Background due-obligation scan

PURPOSE:
  Periodically scans for obligations whose next occurrence has arrived
  and processes the ones whose plan opts into automatic processing.

DESIGN:
  - Uses robfig/cron for scheduling (supports "@hourly", "@daily",
    standard 5-field cron expressions)
  - Each tick runs the same scan path as POST /api/scan
  - Skippable conditions (already processed, paused meanwhile) are
    logged at debug level and never abort a pass
  - Obligations without auto_process are counted but left for manual
    processing

CONFIGURATION:
  - Cron expression and enabled flag come from config (SCAN_CRON,
    SCAN_ENABLED)

USAGE:
  scheduler := NewScanScheduler(handler, "@hourly", log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: RunScan (shared processing path)
  - engine/lifecycle.go: ProcessDue
*/
package api

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// ScanScheduler runs the due-obligation scan on a cron schedule.
type ScanScheduler struct {
	Handler *Handler
	Spec    string
	Log     *logrus.Logger

	cron *cron.Cron
}

// NewScanScheduler creates a scheduler with the given cron spec.
func NewScanScheduler(handler *Handler, spec string, log *logrus.Logger) *ScanScheduler {
	return &ScanScheduler{
		Handler: handler,
		Spec:    spec,
		Log:     log,
	}
}

// Start registers the scan job and starts the cron runner.
func (s *ScanScheduler) Start() error {
	s.cron = cron.New()

	_, err := s.cron.AddFunc(s.Spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		asOf := today(time.Now())
		if _, err := s.Handler.RunScan(ctx, asOf); err != nil {
			s.Log.WithError(err).Error("scheduled scan failed")
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.Log.WithField("spec", s.Spec).Info("scan scheduler started")
	return nil
}

// Stop halts the cron runner and waits for a running pass to finish.
func (s *ScanScheduler) Stop() {
	if s.cron == nil {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.Log.Info("scan scheduler stopped")
}
