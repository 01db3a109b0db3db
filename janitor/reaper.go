package janitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ruteri/embedded-wallet-custody/interfaces"
	"github.com/ruteri/embedded-wallet-custody/metrics"
)

type ReaperStore interface {
	DeleteExpiredChallenges(ctx context.Context, before time.Time) (int64, error)
	DeleteOrphanDeviceAndLocations(ctx context.Context, userID string, before time.Time) (int64, error)
}

var _ ReaperStore = (interfaces.Store)(nil)

// Reaper periodically removes challenges older than the challenge TTL and
// unreferenced DeviceAndLocation rows older than the retention.
type Reaper struct {
	store     ReaperStore
	clock     clock.Clock
	log       *slog.Logger
	interval  time.Duration
	ttl       time.Duration
	retention time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func NewReaper(store ReaperStore, clk clock.Clock, interval, challengeTTL, retention time.Duration, log *slog.Logger) *Reaper {
	return &Reaper{
		store:     store,
		clock:     clk,
		log:       log.With(slog.String("component", "reaper")),
		interval:  interval,
		ttl:       challengeTTL,
		retention: retention,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start runs one pass immediately, then one per interval until ctx is
// cancelled or Stop is called.
func (r *Reaper) Start(ctx context.Context) {
	r.log.Info("Starting reaper",
		slog.Duration("interval", r.interval),
		slog.Duration("challenge_ttl", r.ttl),
		slog.Duration("retention", r.retention))

	if err := r.RunOnce(ctx); err != nil {
		r.log.Error("Initial reaper pass failed", "err", err)
	}

	ticker := r.clock.Ticker(r.interval)
	go func() {
		defer close(r.doneCh)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				r.log.Info("Context cancelled, stopping reaper")
				return
			case <-r.stopCh:
				return
			case <-ticker.C:
				if err := r.RunOnce(ctx); err != nil {
					r.log.Error("Scheduled reaper pass failed", "err", err)
				}
			}
		}
	}()
}

// Stop ends the loop started by Start and waits for it to exit.
func (r *Reaper) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	<-r.doneCh
}

// RunOnce performs a single cleanup pass.
func (r *Reaper) RunOnce(ctx context.Context) error {
	start := time.Now()
	now := r.clock.Now().UTC()
	var errs []error

	challenges, err := r.store.DeleteExpiredChallenges(ctx, now.Add(-r.ttl))
	if err != nil {
		errs = append(errs, fmt.Errorf("challenges: %w", err))
	}
	metrics.ReapedRows.WithLabelValues("challenge").Add(float64(challenges))

	orphans, err := r.store.DeleteOrphanDeviceAndLocations(ctx, "", now.Add(-r.retention))
	if err != nil {
		errs = append(errs, fmt.Errorf("device and location: %w", err))
	}
	metrics.ReapedRows.WithLabelValues("device_and_location").Add(float64(orphans))

	if challenges+orphans > 0 {
		r.log.Info("Reaper pass completed",
			slog.Int64("challenges", challenges),
			slog.Int64("device_and_location", orphans),
			slog.Duration("duration", time.Since(start)))
	} else {
		r.log.Debug("Reaper pass completed, nothing to delete",
			slog.Duration("duration", time.Since(start)))
	}

	return errors.Join(errs...)
}
