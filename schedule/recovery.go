package schedule

import (
	"context"

	"go.uber.org/zap"
)

// Recovery re-registers persisted jobs at startup. In-memory timers disappear
// on restart; this is the only mechanism that restores them. It must run
// after the registry is populated and before the process accepts schedule
// mutations.
type Recovery struct {
	store     *Store
	scheduler *Scheduler
	registry  *Registry
	logger    *zap.SugaredLogger
}

// NewRecovery creates a recovery bootstrapper.
func NewRecovery(store *Store, scheduler *Scheduler, registry *Registry, log *zap.SugaredLogger) *Recovery {
	return &Recovery{
		store:     store,
		scheduler: scheduler,
		registry:  registry,
		logger:    log.Named("recovery"),
	}
}

// Recover loads every row with status=scheduled and registers a timer for
// each. Returns the number of timers registered.
//
// Rows whose expression no longer parses or whose job name is no longer
// registered are marked failed and skipped, so one poisoned row cannot
// silently re-fail on every restart. A concurrent cancel arriving during
// recovery is safe: Scheduler.Cancel is idempotent regardless of order.
func (r *Recovery) Recover(ctx context.Context) (int, error) {
	jobs, err := r.store.ListJobsByStatus(ctx, StatusScheduled)
	if err != nil {
		return 0, err
	}

	r.logger.Infow("Recovering persisted schedules", "candidates", len(jobs))

	registered := 0
	for _, job := range jobs {
		if !r.registry.Has(job.JobName) {
			r.logger.Errorw("Persisted job references unknown unit of work, marking failed",
				"job_id", job.ID,
				"job_name", job.JobName)
			r.quarantine(ctx, job.ID)
			continue
		}

		if err := r.scheduler.Schedule(job); err != nil {
			r.logger.Errorw("Persisted job failed to schedule, marking failed",
				"job_id", job.ID,
				"expression", job.Expression,
				"error", err)
			r.quarantine(ctx, job.ID)
			continue
		}
		registered++
	}

	r.logger.Infow("Recovery complete", "registered", registered, "skipped", len(jobs)-registered)
	return registered, nil
}

// quarantine moves a row out of the scheduled state so recovery does not
// retry it forever. scheduled -> running -> failed walks the transition table.
func (r *Recovery) quarantine(ctx context.Context, jobID string) {
	if err := r.store.UpdateJobStatus(ctx, jobID, StatusRunning); err != nil {
		r.logger.Debugw("Could not quarantine job", "job_id", jobID, "error", err)
		return
	}
	if err := r.store.UpdateJobStatus(ctx, jobID, StatusFailed); err != nil {
		r.logger.Debugw("Could not quarantine job", "job_id", jobID, "error", err)
	}
}
