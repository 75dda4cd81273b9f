package worker

import (
	"context"
	"log/slog"
	"time"
)

type Sweeping interface {
	SweepTimeouts(ctx context.Context) (int, error)
}

// Sweeper periodically times out transactions stuck in a non-terminal state.
type Sweeper struct {
	svc      Sweeping
	interval time.Duration
	log      *slog.Logger
}

func NewSweeper(svc Sweeping, interval time.Duration) *Sweeper {
	return &Sweeper{svc: svc, interval: interval, log: slog.Default()}
}

func (s *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.svc.SweepTimeouts(ctx)
			if err != nil {
				s.log.Warn("sweep cycle", "err", err)
				continue
			}
			if n > 0 {
				s.log.Info("swept stale transactions", "count", n)
			}
		}
	}
}
