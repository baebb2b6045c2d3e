package schedule

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tidebell/tidebell/errors"
)

// ErrJobCompleted is returned by a unit of work to signal that the job is
// finished for good and should not fire again.
var ErrJobCompleted = errors.New("job completed")

// Firing is one scheduled invocation of a job's unit of work.
type Firing struct {
	Job     *Job
	FiredAt time.Time // disambiguates successive firings of the same job
}

// RunnerConfig contains configuration for the firing pool.
type RunnerConfig struct {
	Workers   int // concurrent firing workers (default: 4)
	QueueSize int // buffered firing queue; full queue drops with a warning (default: 64)
}

// DefaultRunnerConfig returns sensible defaults.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		Workers:   4,
		QueueSize: 64,
	}
}

type firingTask struct {
	ctx    context.Context // derived from the scheduler entry; cancels with the job
	firing Firing
}

// Runner executes firings on a bounded worker pool shared by all jobs.
//
// Timers hand firings off through a buffered queue and return immediately, so
// one job's long-running work can never starve other jobs' firings. A firing
// that errors or panics is logged at the firing boundary; it neither cancels
// the job's timer nor crashes the pool.
type Runner struct {
	store    *Store
	registry *Registry
	queue    chan firingTask
	workers  int

	// OnComplete, when set, is called with the job id after a unit of work
	// returns ErrJobCompleted, so the caller can tear down the live timer.
	OnComplete func(jobID string)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *zap.SugaredLogger
}

// NewRunner creates a firing pool. Call Start before scheduling anything.
func NewRunner(ctx context.Context, store *Store, registry *Registry, cfg RunnerConfig, log *zap.SugaredLogger) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultRunnerConfig().Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultRunnerConfig().QueueSize
	}

	runnerCtx, cancel := context.WithCancel(ctx)
	return &Runner{
		store:    store,
		registry: registry,
		queue:    make(chan firingTask, cfg.QueueSize),
		workers:  cfg.Workers,
		ctx:      runnerCtx,
		cancel:   cancel,
		logger:   log.Named("runner"),
	}
}

// Start launches the worker goroutines.
func (r *Runner) Start() {
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
	r.logger.Infow("Firing pool started", "workers", r.workers, "queue_size", cap(r.queue))
}

// Stop drains the pool. In-flight firings observe context cancellation.
func (r *Runner) Stop() {
	r.cancel()
	r.wg.Wait()
	r.logger.Infow("Firing pool stopped")
}

// Submit enqueues a firing. Never blocks: when the queue is full the firing
// is dropped with a warning so a slow pool cannot back up timer goroutines.
func (r *Runner) Submit(ctx context.Context, firing Firing) bool {
	select {
	case r.queue <- firingTask{ctx: ctx, firing: firing}:
		return true
	default:
		r.logger.Warnw("Firing queue full, dropping firing",
			"job_id", firing.Job.ID,
			"job_name", firing.Job.JobName,
			"fired_at", firing.FiredAt)
		return false
	}
}

func (r *Runner) worker(n int) {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case task := <-r.queue:
			r.execute(task)
		}
	}
}

func (r *Runner) execute(task firingTask) {
	job := task.firing.Job

	// Job cancelled while the firing sat in the queue
	if task.ctx.Err() != nil {
		r.logger.Debugw("Skipping firing for cancelled job", "job_id", job.ID)
		return
	}

	unit := r.registry.Get(job.JobName)
	if unit == nil {
		r.logger.Errorw("No unit of work registered for firing",
			"job_id", job.ID,
			"job_name", job.JobName)
		return
	}

	if err := r.store.UpdateJobStatus(task.ctx, job.ID, StatusRunning); err != nil {
		// Not fatal: the row may have been cancelled or re-armed concurrently.
		r.logger.Debugw("Could not mark job running",
			"job_id", job.ID,
			"error", err)
	}

	start := time.Now()
	err := r.runUnit(task.ctx, unit, task.firing)
	duration := time.Since(start)

	switch {
	case err == nil:
		r.logger.Infow("Firing OK",
			"job_id", job.ID,
			"job_name", job.JobName,
			"fired_at", task.firing.FiredAt.Format(time.RFC3339),
			"duration_ms", duration.Milliseconds())
		r.settle(job.ID, StatusScheduled)

	case errors.Is(err, ErrJobCompleted):
		r.logger.Infow("Job completed",
			"job_id", job.ID,
			"job_name", job.JobName,
			"duration_ms", duration.Milliseconds())
		r.settle(job.ID, StatusCompleted)
		if r.OnComplete != nil {
			r.OnComplete(job.ID)
		}

	case task.ctx.Err() != nil || errors.Is(err, context.Canceled):
		// Cancellation interrupted the run; the service already settled the row.
		r.logger.Infow("Firing interrupted by cancellation", "job_id", job.ID)

	default:
		r.logger.Errorw("Firing FAILED",
			"job_id", job.ID,
			"job_name", job.JobName,
			"duration_ms", duration.Milliseconds(),
			"error", err)
		r.settle(job.ID, StatusFailed)
	}
}

// runUnit invokes the unit of work with a panic boundary. A panicking unit
// must not take down a pool worker.
func (r *Runner) runUnit(ctx context.Context, unit UnitOfWork, firing Firing) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.Newf("unit of work panicked: %v", rec)
		}
	}()
	return unit.Execute(ctx, firing)
}

// settle records a firing outcome. Uses a fresh context: the firing's own
// context may already be cancelled, and the bookkeeping write must still land.
func (r *Runner) settle(jobID, status string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.store.UpdateJobStatus(ctx, jobID, status); err != nil {
		r.logger.Debugw("Could not settle job status",
			"job_id", jobID,
			"status", status,
			"error", err)
	}
}
