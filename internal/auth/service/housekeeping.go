package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/TimurCravtov/CraftHub/internal/auth/store"
)

// Sweeper drops expired in-memory entries. The memory OTP store and the
// rate limiter both implement it.
type Sweeper interface {
	DeleteExpired()
	Len() int
}

// HousekeepingService sweeps expired one-time codes and idle rate-limit
// buckets on a fixed interval, and logs the size of the user table.
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration
	Sweepers map[string]Sweeper

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// NewHousekeepingService defaults a non-positive interval to one hour.
func NewHousekeepingService(st store.Store, logger *slog.Logger, interval time.Duration, sweepers map[string]Sweeper) *HousekeepingService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &HousekeepingService{
		Store:    st,
		Logger:   logger,
		Interval: interval,
		Sweepers: sweepers,
	}
}

// Start sweeps once immediately and then every Interval, in the background.
func (s *HousekeepingService) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.Interval)
		defer ticker.Stop()

		for {
			s.RunOnce(ctx)
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	s.Logger.Info("housekeeping started", "interval", s.Interval)
}

// Stop waits for an in-progress sweep to finish. It is safe to call more
// than once, and before Start.
func (s *HousekeepingService) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel == nil {
			return
		}
		s.cancel()
		<-s.done
		s.Logger.Info("housekeeping stopped")
	})
}

// RunOnce performs a single sweep. A failing store does not stop the
// in-memory sweeps.
func (s *HousekeepingService) RunOnce(ctx context.Context) {
	for name, sw := range s.Sweepers {
		before := sw.Len()
		sw.DeleteExpired()
		if removed := before - sw.Len(); removed > 0 {
			s.Logger.Debug("swept expired entries", "sweeper", name, "removed", removed)
		}
	}

	if s.Store == nil {
		return
	}
	n, err := s.Store.Users().Count(ctx)
	if err != nil {
		s.Logger.Error("count users", "error", err)
		return
	}
	s.Logger.Info("housekeeping completed", "users", n)
}
