// File: internal/infra/worker/pool.go
package worker

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"astro-referrals/internal/infra/metrics"
)

// A small bounded worker pool for fire-and-forget side effects (push
// notifications, tier bonuses). Tasks never see the submitter's context.

type Task func(ctx context.Context) error

var (
	ErrQueueFull   = errors.New("worker queue full")
	ErrPoolStopped = errors.New("worker pool stopped")
)

type Pool struct {
	wg       sync.WaitGroup
	jobs     chan namedTask
	quit     chan struct{}
	stopOnce sync.Once
	// mu orders enqueues before the close of quit, so drain sees every
	// accepted task.
	mu          sync.RWMutex
	stopped     bool
	n           int
	taskTimeout time.Duration
	log         *zerolog.Logger
}

type namedTask struct {
	name string
	run  Task
}

// NewPool sizes the queue at four slots per worker. taskTimeout bounds each
// task; zero means no bound.
func NewPool(workers int, taskTimeout time.Duration, logger *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	compLog := logger.With().Str("component", "WorkerPool").Logger()
	return &Pool{
		jobs:        make(chan namedTask, workers*4),
		quit:        make(chan struct{}),
		n:           workers,
		taskTimeout: taskTimeout,
		log:         &compLog,
	}
}

// Start launches the workers. ctx cancellation stops them without draining.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-p.quit:
					p.drain(ctx, id)
					return
				case t := <-p.jobs:
					p.run(ctx, id, t)
				}
			}
		}(i)
	}
}

// Stop stops accepting work, runs what is already queued and waits.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopped = true
		close(p.quit)
		p.mu.Unlock()
	})
	p.wg.Wait()
}

func (p *Pool) drain(ctx context.Context, id int) {
	for {
		select {
		case t := <-p.jobs:
			p.run(ctx, id, t)
		default:
			return
		}
	}
}

func (p *Pool) run(ctx context.Context, id int, t namedTask) {
	if t.run == nil {
		return
	}
	tctx := ctx
	if p.taskTimeout > 0 {
		var cancel context.CancelFunc
		tctx, cancel = context.WithTimeout(ctx, p.taskTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			metrics.IncBackgroundTask("failed")
			p.log.Error().Interface("panic", r).Str("task", t.name).Int("worker", id).Msg("task panicked")
		}
	}()

	if err := t.run(tctx); err != nil {
		metrics.IncBackgroundTask("failed")
		p.log.Warn().Err(err).Str("task", t.name).Int("worker", id).Msg("task error")
		return
	}
	metrics.IncBackgroundTask("completed")
}

func (p *Pool) Submit(name string, task Task) error {
	if task == nil {
		return errors.New("nil task")
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}
	select {
	case p.jobs <- namedTask{name: name, run: task}:
		return nil
	default:
		// drop when saturated; callers treat these tasks as best effort
		return ErrQueueFull
	}
}

// Go submits and logs a rejected task instead of returning the error.
func (p *Pool) Go(name string, task func(ctx context.Context) error) {
	if err := p.Submit(name, task); err != nil {
		metrics.IncBackgroundTask("rejected")
		p.log.Warn().Err(err).Str("task", name).Msg("task dropped")
	}
}
