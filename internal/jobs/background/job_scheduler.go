package background

import (
	"context"
	"fmt"
	"sync"
	"time"

	"goodnoodle/internal/metrics"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

const reconcileJobName = "counter-reconciliation"

// Reconciler rewrites every tenant's denormalized counters from the ledger.
type Reconciler interface {
	ReconcileAll(ctx context.Context) (int, error)
}

// JobScheduler manages background jobs
type JobScheduler struct {
	scheduler  gocron.Scheduler
	reconciler Reconciler
	interval   time.Duration
	logger     *zap.Logger
	jobs       map[string]gocron.Job
	mu         sync.RWMutex
	// ctx is cancelled on Stop so a running reconciliation unwinds.
	ctx    context.Context
	cancel context.CancelFunc
}

// NewJobScheduler creates a scheduler that reconciles counters every interval.
func NewJobScheduler(reconciler Reconciler, interval time.Duration, logger *zap.Logger) (*JobScheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		return nil, fmt.Errorf("reconcile interval must be positive, got %v", interval)
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	js := &JobScheduler{
		scheduler:  scheduler,
		reconciler: reconciler,
		interval:   interval,
		logger:     logger,
		jobs:       make(map[string]gocron.Job),
		ctx:        ctx,
		cancel:     cancel,
	}

	if err := js.registerJobs(); err != nil {
		cancel()
		_ = scheduler.Shutdown()
		return nil, err
	}
	return js, nil
}

// Start starts the job scheduler
func (js *JobScheduler) Start() {
	js.logger.Info("Starting background job scheduler", zap.Duration("reconcile_interval", js.interval))
	js.scheduler.Start()
}

// Stop stops the job scheduler
func (js *JobScheduler) Stop() error {
	js.logger.Info("Stopping background job scheduler")
	js.cancel()
	return js.scheduler.Shutdown()
}

func (js *JobScheduler) registerJobs() error {
	job, err := js.scheduler.NewJob(
		gocron.DurationJob(js.interval),
		gocron.NewTask(js.reconcileCounters),
		gocron.WithName(reconcileJobName),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("create %s job: %w", reconcileJobName, err)
	}

	js.mu.Lock()
	js.jobs[reconcileJobName] = job
	js.mu.Unlock()
	return nil
}

// RunNow reconciles immediately, outside the schedule.
func (js *JobScheduler) RunNow() error {
	js.mu.RLock()
	job, ok := js.jobs[reconcileJobName]
	js.mu.RUnlock()
	if !ok {
		return fmt.Errorf("job %s not registered", reconcileJobName)
	}
	return job.RunNow()
}

func (js *JobScheduler) reconcileCounters() error {
	start := time.Now()
	n, err := js.reconciler.ReconcileAll(js.ctx)
	if err != nil {
		metrics.ObserveReconcile("failed")
		js.logger.Error("Counter reconciliation finished with errors",
			zap.Int("tenants", n),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return err
	}
	metrics.ObserveReconcile("ok")
	js.logger.Info("Counter reconciliation completed",
		zap.Int("tenants", n),
		zap.Duration("duration", time.Since(start)))
	return nil
}
