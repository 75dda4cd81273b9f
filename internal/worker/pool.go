package worker

import (
	"errors"
	"sync"

	"github.com/kreativelabske/lipia-backend/internal/metrics"
)

// ErrQueueFull reports a saturated dispatch queue. The caller keeps its row
// queued instead of blocking the enqueue path.
var ErrQueueFull = errors.New("dispatch queue full")

// Pool is the request queue plus its bounded drain: Submit hands a dispatch
// job to one of n workers in submission order. The buffer decouples the HTTP
// enqueue path from the slow gateway call.
type Pool struct {
	wg   sync.WaitGroup
	jobs chan func()
}

func NewPool(n int) *Pool {
	p := &Pool{jobs: make(chan func(), 1024)}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				job()
				metrics.WorkerQueueDepth.Set(float64(len(p.jobs)))
			}
		}()
	}
	return p
}

func (p *Pool) Submit(f func()) error {
	select {
	case p.jobs <- f:
		metrics.WorkerQueueDepth.Set(float64(len(p.jobs)))
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *Pool) Stop() { close(p.jobs); p.wg.Wait() }
