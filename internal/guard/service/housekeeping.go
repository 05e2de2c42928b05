package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/pledgepoint/guard/internal/guard/store"
)

// idleLockoutRetention is how long an untouched lockout row survives
// before housekeeping removes it.
const idleLockoutRetention = 30 * 24 * time.Hour

// HousekeepingService periodically trims the login_lockouts table so
// expired locks and long-idle failure counters don't accumulate forever.
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration

	// Now overrides the clock, for deterministic tests.
	Now func() time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a housekeeping service with the given
// interval. An interval of 0 or less defaults to 1 hour.
func NewHousekeepingService(st store.Store, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}
	return &HousekeepingService{
		Store:    st,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

func (s *HousekeepingService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Start begins the background worker. Non-blocking; call Stop to shut
// down gracefully.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop shuts down the worker, blocking until any in-progress sweep has
// finished.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Sweep once on startup so a restart doesn't delay cleanup by a full
	// interval.
	s.cleanup()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCh:
			return
		}
	}
}

// cleanup runs one sweep. The two deletions are independent; a failure in
// one doesn't stop the other.
func (s *HousekeepingService) cleanup() {
	ctx := context.Background()
	now := s.now()

	if err := s.Store.LoginLockouts().ClearExpiredLocks(ctx, now); err != nil {
		s.Logger.Error("failed to clear expired locks", "error", err)
	}

	cutoff := now.Add(-idleLockoutRetention)
	if err := s.Store.LoginLockouts().DeleteIdleLockouts(ctx, cutoff); err != nil {
		s.Logger.Error("failed to delete idle lockout rows", "error", err)
	}

	s.Logger.Debug("housekeeping sweep completed")
}
