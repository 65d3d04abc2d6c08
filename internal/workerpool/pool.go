// Package workerpool runs inbound platform events off the request path.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	ErrStopped   = errors.New("worker pool is stopped")
	ErrQueueFull = errors.New("worker pool queue is full")
)

// Task is one event to process. Fn receives a context bounded by the pool's task timeout.
type Task struct {
	ID   string
	Kind string
	Fn   func(context.Context) error
}

type Config struct {
	Name        string
	Workers     int
	QueueSize   int
	TaskTimeout time.Duration
	Logger      *zap.Logger
	// OnDone is called after every task with its error, if any.
	OnDone func(task Task, err error)
}

// Pool executes tasks on a fixed set of goroutines. A failing or panicking
// task is logged and never affects other tasks.
type Pool struct {
	cfg      Config
	queue    chan Task
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
	// base is cancelled on Stop so in-flight tasks see shutdown.
	base   context.Context
	cancel context.CancelFunc

	active    atomic.Int32
	submitted atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	rejected  atomic.Uint64
}

func New(cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Name == "" {
		cfg.Name = "events"
	}

	base, cancel := context.WithCancel(context.Background())
	p := &Pool{
		cfg:    cfg,
		queue:  make(chan Task, cfg.QueueSize),
		stopCh: make(chan struct{}),
		base:   base,
		cancel: cancel,
	}
	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	cfg.Logger.Info("Worker pool started",
		zap.String("name", cfg.Name),
		zap.Int("workers", cfg.Workers),
		zap.Int("queue_size", cfg.QueueSize))
	return p
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			// Drain what was accepted before Stop.
			for {
				select {
				case task := <-p.queue:
					p.execute(id, task)
				default:
					return
				}
			}
		case task := <-p.queue:
			p.execute(id, task)
		}
	}
}

func (p *Pool) execute(workerID int, task Task) {
	p.active.Add(1)
	defer p.active.Add(-1)

	start := time.Now()
	ctx, cancel := context.WithTimeout(p.base, p.cfg.TaskTimeout)
	err := p.safeExecute(ctx, task)
	cancel()

	if err != nil {
		p.failed.Add(1)
		p.cfg.Logger.Error("Task failed",
			zap.String("pool", p.cfg.Name),
			zap.Int("worker_id", workerID),
			zap.String("task_id", task.ID),
			zap.String("kind", task.Kind),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
	} else {
		p.completed.Add(1)
		p.cfg.Logger.Debug("Task completed",
			zap.String("pool", p.cfg.Name),
			zap.String("task_id", task.ID),
			zap.String("kind", task.Kind),
			zap.Duration("duration", time.Since(start)))
	}
	if p.cfg.OnDone != nil {
		p.cfg.OnDone(task, err)
	}
}

func (p *Pool) safeExecute(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task.Fn(ctx)
}

// Submit enqueues task without blocking.
func (p *Pool) Submit(task Task) error {
	select {
	case <-p.stopCh:
		p.rejected.Add(1)
		return ErrStopped
	default:
	}

	select {
	case p.queue <- task:
		p.submitted.Add(1)
		return nil
	default:
		p.rejected.Add(1)
		return ErrQueueFull
	}
}

// Stop stops accepting tasks, finishes queued ones and waits up to timeout.
// On timeout in-flight tasks have their context cancelled.
func (p *Pool) Stop(timeout time.Duration) error {
	var err error
	p.stopOnce.Do(func() {
		p.cfg.Logger.Info("Stopping worker pool", zap.String("name", p.cfg.Name))
		close(p.stopCh)

		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(timeout):
			p.cancel()
			err = fmt.Errorf("worker pool %q stop timeout after %v", p.cfg.Name, timeout)
		}
		p.cancel()
	})
	return err
}

type Stats struct {
	Active    int
	Queued    int
	Submitted uint64
	Completed uint64
	Failed    uint64
	Rejected  uint64
}

func (p *Pool) Stats() Stats {
	return Stats{
		Active:    int(p.active.Load()),
		Queued:    len(p.queue),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Rejected:  p.rejected.Load(),
	}
}
