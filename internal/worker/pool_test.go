package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolRunsAllSubmittedJobs(t *testing.T) {
	p := NewPool(4)
	var n int64
	for i := 0; i < 100; i++ {
		if err := p.Submit(func() { atomic.AddInt64(&n, 1) }); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	p.Stop()
	if got := atomic.LoadInt64(&n); got != 100 {
		t.Fatalf("expected 100 jobs to run, got %d", got)
	}
}

func TestPoolSubmitRejectsWhenSaturated(t *testing.T) {
	// no workers drain the queue, so the buffer fills and stays full
	p := NewPool(0)
	for i := 0; i < 1024; i++ {
		if err := p.Submit(func() {}); err != nil {
			t.Fatalf("submit %d within capacity: %v", i, err)
		}
	}
	if err := p.Submit(func() {}); err != ErrQueueFull {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestPoolStopWaitsForInFlightJob(t *testing.T) {
	p := NewPool(1)
	done := make(chan struct{})
	_ = p.Submit(func() {
		time.Sleep(20 * time.Millisecond)
		close(done)
	})
	p.Stop()
	select {
	case <-done:
	default:
		t.Fatal("Stop returned before the in-flight job finished")
	}
}

type tickCounter struct{ calls int64 }

func (c *tickCounter) ReconcilePending(context.Context) error { atomic.AddInt64(&c.calls, 1); return nil }
func (c *tickCounter) SweepTimeouts(context.Context) (int, error) {
	atomic.AddInt64(&c.calls, 1)
	return 0, nil
}

func TestReconcilerTicksUntilCancelled(t *testing.T) {
	c := &tickCounter{}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	NewReconciler(c, 5*time.Millisecond).Run(ctx)
	if atomic.LoadInt64(&c.calls) == 0 {
		t.Fatal("reconciler never ticked")
	}
}

func TestSweeperTicksUntilCancelled(t *testing.T) {
	c := &tickCounter{}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	NewSweeper(c, 5*time.Millisecond).Run(ctx)
	if atomic.LoadInt64(&c.calls) == 0 {
		t.Fatal("sweeper never ticked")
	}
}
