package worker

import (
	"context"
	"log/slog"
	"sync"
)

// Handler processes one goal refresh.
type Handler interface {
	Refresh(ctx context.Context, goalID string)
}

// Pool manages a fixed number of worker goroutines that refresh goals.
type Pool struct {
	numWorkers int
	jobs       chan string
	handler    Handler
	logger     *slog.Logger
	wg         sync.WaitGroup
}

// NewPool creates a worker pool with the given number of workers.
func NewPool(numWorkers int, handler Handler, logger *slog.Logger) *Pool {
	return &Pool{
		numWorkers: numWorkers,
		jobs:       make(chan string, numWorkers*2),
		handler:    handler,
		logger:     logger,
	}
}

// Start launches all worker goroutines. They read from the jobs channel
// until it is closed or the context is cancelled.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	p.logger.Info("worker pool started", "num_workers", p.numWorkers)
}

// Submit hands a goal id to the pool. It blocks while every worker is busy
// and gives up when ctx is cancelled.
func (p *Pool) Submit(ctx context.Context, goalID string) bool {
	select {
	case p.jobs <- goalID:
		return true
	case <-ctx.Done():
		return false
	}
}

// Stop closes the jobs channel and waits for all workers to finish. The
// dispatcher must have returned before Stop is called.
func (p *Pool) Stop() {
	close(p.jobs)
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()

	for goalID := range p.jobs {
		select {
		case <-ctx.Done():
			return
		default:
			p.handler.Refresh(ctx, goalID)
		}
	}
}
