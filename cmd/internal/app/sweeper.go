package app

import (
	"context"
	"log/slog"
	"time"
)

// ExpiredDeleter removes rows past their expiry and reports how many
// went away. Both grant stores satisfy it.
type ExpiredDeleter interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Sweeper periodically deletes expired session and reset grants.
// Expired rows already read as absent; the sweep is physical hygiene so
// dead rows do not pile up.
type Sweeper struct {
	log      *slog.Logger
	interval time.Duration
	targets  map[string]ExpiredDeleter
}

// NewSweeper builds a sweeper over the named stores. A non-positive
// interval disables Run.
func NewSweeper(log *slog.Logger, interval time.Duration, targets map[string]ExpiredDeleter) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{log: log, interval: interval, targets: targets}
}

// Run blocks until ctx is done, sweeping every interval.
func (s *Sweeper) Run(ctx context.Context) {
	if s == nil || s.interval <= 0 || len(s.targets) == 0 {
		return
	}

	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.SweepOnce(ctx, time.Now().UTC())
		}
	}
}

// SweepOnce deletes expired rows from every target once.
func (s *Sweeper) SweepOnce(ctx context.Context, now time.Time) {
	if s == nil {
		return
	}
	for name, target := range s.targets {
		if target == nil {
			continue
		}
		n, err := target.DeleteExpired(ctx, now)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Error("sweep.fail", "target", name, "err", err)
			continue
		}
		if n > 0 {
			s.log.Info("sweep.done", "target", name, "deleted", n)
		}
	}
}
