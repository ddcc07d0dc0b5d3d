// Package sweeper runs the periodic expiry pass. Overdue holds and unpaid
// bookings are only ever transitioned here, never inside a request.
package sweeper

import (
	"context"
	"log/slog"
	"time"
)

const DefaultInterval = 2 * time.Minute

// Expirer is satisfied by booking.Controller.
type Expirer interface {
	ExpireDue(ctx context.Context) (int, error)
}

// StaleExpirer is satisfied by waitlist.Manager.
type StaleExpirer interface {
	ExpireStale(ctx context.Context) (int, error)
}

// Locker elects a single sweeping instance. pgstore.AdvisoryLocker is the
// production implementation; a nil Locker means this instance always sweeps.
type Locker interface {
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context)
}

type Config struct {
	Interval time.Duration
	Locker   Locker
}

type Worker struct {
	commitments Expirer
	waitlist    StaleExpirer
	locker      Locker
	logger      *slog.Logger
	interval    time.Duration
	leader      bool
}

func NewWorker(commitments Expirer, waitlist StaleExpirer, logger *slog.Logger, cfg Config) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		commitments: commitments,
		waitlist:    waitlist,
		locker:      cfg.Locker,
		logger:      logger,
		interval:    cfg.Interval,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	defer func() {
		if w.locker != nil && w.leader {
			unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			w.locker.Unlock(unlockCtx)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

// Tick runs one sweep if this instance is, or becomes, the leader.
func (w *Worker) Tick(ctx context.Context) {
	if !w.elect(ctx) {
		return
	}
	if w.commitments != nil {
		if n, err := w.commitments.ExpireDue(ctx); err != nil {
			w.logger.Error("expire due failed", "err", err)
		} else if n > 0 {
			w.logger.Info("expire due", "count", n)
		}
	}
	if w.waitlist != nil {
		if _, err := w.waitlist.ExpireStale(ctx); err != nil {
			w.logger.Error("waitlist expiry failed", "err", err)
		}
	}
}

func (w *Worker) elect(ctx context.Context) bool {
	if w.locker == nil {
		return true
	}
	locked, err := w.locker.TryLock(ctx)
	if err != nil {
		w.logger.Error("sweeper: failed to acquire advisory lock", "err", err)
		return false
	}
	if !locked && !w.leader {
		w.logger.Debug("sweeper: lock held by another instance")
	}
	w.leader = locked
	return locked
}
