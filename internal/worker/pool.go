package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"payment-reconciler/internal/logger"
	"payment-reconciler/internal/monitoring"
)

var (
	ErrQueueFull  = errors.New("worker queue is full")
	ErrPoolClosed = errors.New("worker pool is shut down")
)

// Task runs with a context bounded by the pool's per-task timeout. The
// context is detached from whoever submitted the task.
type Task func(ctx context.Context)

type job struct {
	name string
	run  Task
}

// Pool runs tasks on a fixed number of goroutines fed by a bounded queue.
// Submit never blocks: a full queue is reported to the caller.
type Pool struct {
	jobs    chan job
	timeout time.Duration
	log     *logger.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewPool(workers, queueSize int, timeout time.Duration, log *logger.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	p := &Pool{
		jobs:    make(chan job, queueSize),
		timeout: timeout,
		log:     log,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.work(i)
	}
	log.LogProcess("WORKER", fmt.Sprintf("Started %d workers (queue=%d, timeout=%s)", workers, queueSize, timeout))
	return p
}

func (p *Pool) Submit(name string, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.jobs <- job{name: name, run: task}:
		return nil
	default:
		monitoring.TrackRejectedTask()
		p.log.Warn("WORKER", fmt.Sprintf("Queue full, rejecting %s", name))
		return ErrQueueFull
	}
}

// Depth is the number of queued tasks not yet picked up.
func (p *Pool) Depth() int {
	return len(p.jobs)
}

// Shutdown stops accepting tasks and waits for queued and running tasks to
// finish, or for ctx to expire.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.log.LogProcess("WORKER", "All workers drained")
		return nil
	case <-ctx.Done():
		p.log.Warn("WORKER", fmt.Sprintf("Shutdown deadline hit with %d tasks queued", len(p.jobs)))
		return ctx.Err()
	}
}

func (p *Pool) work(id int) {
	defer p.wg.Done()
	for j := range p.jobs {
		p.run(id, j)
	}
}

func (p *Pool) run(id int, j job) {
	ctx := context.Background()
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			p.log.Error("WORKER", fmt.Sprintf("worker %d: task %s panicked: %v", id, j.name, r))
		}
	}()

	j.run(ctx)
}
