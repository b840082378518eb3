// Package taskpool provides the bounded worker pool that runs dispatched
// event callbacks off the gateway I/O goroutines. Submission is
// fire-and-forget: the submitter never observes a result and never waits
// for execution, so one slow callback cannot stall frame consumption.
package taskpool

import (
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
)

// ErrPoolClosed is returned by Submit after Stop.
var ErrPoolClosed = errors.New("task pool closed")

// ErrQueueFull is returned by Submit when the queue is saturated.
var ErrQueueFull = errors.New("task queue full")

// Metrics is the subset of the metrics collector the pool reports to.
// Nil disables reporting.
type Metrics interface {
	TaskQueued()
	TaskStarted()
	TaskFinished(panicked bool)
	TaskDropped()
}

// Config configures the pool.
type Config struct {
	Workers   int // Concurrent workers. Default: 4.
	QueueSize int // Pending task buffer. Default: 256.
}

// Pool executes submitted tasks on a fixed set of worker goroutines.
type Pool struct {
	queue  chan func()
	logger *slog.Logger
	m      Metrics

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// New creates a pool and starts its workers.
func New(cfg Config, m Metrics, logger *slog.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}

	p := &Pool{
		queue:  make(chan func(), cfg.QueueSize),
		logger: logger,
		m:      m,
	}
	p.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go p.worker(i)
	}
	return p
}

// Submit queues a task for execution. It never blocks: a saturated queue
// returns ErrQueueFull and the task is dropped.
func (p *Pool) Submit(task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.queue <- task:
		if p.m != nil {
			p.m.TaskQueued()
		}
		return nil
	default:
		if p.m != nil {
			p.m.TaskDropped()
		}
		return ErrQueueFull
	}
}

// Stop closes the pool, runs every already-queued task to completion, and
// waits for the workers to exit. Idempotent. Tasks already executing are
// not cancelled.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for task := range p.queue {
		p.run(id, task)
	}
}

// run executes one task, containing any panic so the worker survives.
func (p *Pool) run(id int, task func()) {
	if p.m != nil {
		p.m.TaskStarted()
	}
	panicked := false
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			p.logger.Error("task panicked",
				slog.Int("worker", id),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
		if p.m != nil {
			p.m.TaskFinished(panicked)
		}
	}()
	task()
}
