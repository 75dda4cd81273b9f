package worker

import (
	"context"
	"log/slog"
	"time"
)

// Reconciling is the poll half of status reconciliation.
type Reconciling interface {
	ReconcilePending(ctx context.Context) error
}

// Reconciler drives active gateway polling for transactions whose callback
// never arrived within the grace period.
type Reconciler struct {
	svc      Reconciling
	interval time.Duration
	log      *slog.Logger
}

func NewReconciler(svc Reconciling, interval time.Duration) *Reconciler {
	return &Reconciler{svc: svc, interval: interval, log: slog.Default()}
}

func (r *Reconciler) Run(ctx context.Context) {
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := r.svc.ReconcilePending(ctx); err != nil {
				r.log.Warn("reconcile cycle", "err", err)
			}
		}
	}
}
