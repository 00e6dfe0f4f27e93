// Package jobs runs the service's periodic background work.
package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"rapidride/internal/domain"
	"rapidride/internal/metrics"
	"rapidride/internal/service"
)

const (
	releaseLockName = "release-scheduled-rides"
	releaseBatch    = 100
)

// DueRides lists scheduled rides whose pickup is at or before a time.
type DueRides interface {
	ListDueScheduled(ctx context.Context, before time.Time, limit int) ([]*domain.Ride, error)
}

// Releaser moves one scheduled ride to searching.
type Releaser interface {
	Release(ctx context.Context, rideID string) (*domain.Ride, error)
}

// Locker serializes a job across instances. Acquire reports whether this
// instance holds the lock.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, name string) error
}

// ReleaseConfig tunes the scheduled ride release job.
type ReleaseConfig struct {
	// Interval between runs.
	Interval time.Duration
	// Lead releases rides this long before their pickup time.
	Lead time.Duration
	// Timeout bounds one run.
	Timeout time.Duration
}

// ReleaseJob releases scheduled rides into searching shortly before their
// pickup time.
type ReleaseJob struct {
	rides    DueRides
	releaser Releaser
	locker   Locker
	metrics  *metrics.Metrics
	logger   *slog.Logger
	cfg      ReleaseConfig
	now      func() time.Time
}

// NewReleaseJob creates a ReleaseJob. locker may be nil on a single instance.
func NewReleaseJob(rides DueRides, releaser Releaser, locker Locker, m *metrics.Metrics, logger *slog.Logger, cfg ReleaseConfig) *ReleaseJob {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Lead < 0 {
		cfg.Lead = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReleaseJob{
		rides:    rides,
		releaser: releaser,
		locker:   locker,
		metrics:  m,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Start runs the job every Interval until ctx is cancelled.
func (j *ReleaseJob) Start(ctx context.Context) {
	ticker := time.NewTicker(j.cfg.Interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tickCtx, cancel := context.WithTimeout(ctx, j.cfg.Timeout)
				if _, err := j.RunOnce(tickCtx); err != nil {
					j.logger.Error("release job failed", "error", err)
				}
				cancel()
			}
		}
	}()
}

// RunOnce releases every due ride and returns how many were released. A ride
// that cannot be released now stays scheduled and is retried on the next run.
func (j *ReleaseJob) RunOnce(ctx context.Context) (int, error) {
	if j.locker != nil {
		ok, err := j.locker.Acquire(ctx, releaseLockName, j.cfg.Interval)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, nil
		}
		defer func() {
			if err := j.locker.Release(context.WithoutCancel(ctx), releaseLockName); err != nil {
				j.logger.Warn("release job unlock failed", "error", err)
			}
		}()
	}

	due, err := j.rides.ListDueScheduled(ctx, j.now().Add(j.cfg.Lead), releaseBatch)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, ride := range due {
		if _, err := j.releaser.Release(ctx, ride.ID); err != nil {
			if errors.Is(err, service.ErrConflict) {
				j.logger.Info("scheduled ride held back", "ride_id", ride.ID, "reason", service.PublicMessage(err))
				continue
			}
			j.logger.Error("scheduled ride release failed", "ride_id", ride.ID, "error", err)
			continue
		}
		released++
	}

	if released > 0 {
		j.metrics.ScheduledReleased(released)
		j.logger.Info("scheduled rides released", "count", released)
	}
	return released, nil
}
