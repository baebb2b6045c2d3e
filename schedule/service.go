package schedule

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tidebell/tidebell/errors"
)

// Service implements the schedule mutation and query operations exposed to
// the API layer.
//
// Persisting a row and registering its timer are two independent steps, not
// one transaction. A crash between them leaves a scheduled row with no timer;
// the store is ground truth and the recovery bootstrapper re-registers such
// rows at the next startup.
type Service struct {
	store     *Store
	scheduler *Scheduler
	registry  *Registry
	logger    *zap.SugaredLogger
}

// NewService creates a schedule service.
func NewService(store *Store, scheduler *Scheduler, registry *Registry, log *zap.SugaredLogger) *Service {
	return &Service{
		store:     store,
		scheduler: scheduler,
		registry:  registry,
		logger:    log.Named("schedule"),
	}
}

// AddSchedule validates the expression, persists a new scheduled row and
// registers its timer. Validation failures abort before anything is
// persisted.
func (s *Service) AddSchedule(ctx context.Context, ownerID, expression, jobName string, parameters []byte) (*Job, error) {
	if _, err := ParseExpression(expression); err != nil {
		return nil, err
	}
	if !s.registry.Has(jobName) {
		return nil, errors.Wrapf(ErrInvalidExpression, "unknown job name %q", jobName)
	}

	job := &Job{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		Expression: expression,
		JobName:    jobName,
		Parameters: parameters,
		Status:     StatusScheduled,
	}

	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	if err := s.scheduler.Schedule(job); err != nil {
		// Expression already validated above; reaching this is a bug.
		return nil, errors.Wrap(err, "failed to register persisted job")
	}

	s.logger.Infow("Schedule added",
		"job_id", job.ID,
		"owner_id", ownerID,
		"expression", expression,
		"job_name", jobName)
	return job, nil
}

// CancelSchedule cancels the job's timer and persists status=cancelled.
// Owner mismatch and nonexistence both return ErrScheduleNotFound, so the
// result leaks nothing about other owners' jobs.
func (s *Service) CancelSchedule(ctx context.Context, id, ownerID string) (*Job, error) {
	job, err := s.store.GetJobForOwner(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}

	s.scheduler.Cancel(job.ID)

	// A running firing settles its own status; only non-terminal rows move
	// to cancelled here. The timer is gone either way.
	if !IsTerminal(job.Status) {
		if err := s.store.setStatus(ctx, job.ID, StatusCancelled); err != nil {
			return nil, err
		}
	}

	s.logger.Infow("Schedule cancelled", "job_id", id, "owner_id", ownerID)
	return s.store.GetJob(ctx, id)
}

// UpdateSchedule replaces the job's expression, resets status to scheduled
// and re-registers the timer. Ownership rules match CancelSchedule. This is
// the only path by which a terminal job re-enters the scheduled state.
func (s *Service) UpdateSchedule(ctx context.Context, id, ownerID, newExpression string) (*Job, error) {
	if _, err := ParseExpression(newExpression); err != nil {
		return nil, err
	}

	job, err := s.store.GetJobForOwner(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}

	s.scheduler.Cancel(job.ID)

	if err := s.store.RearmJob(ctx, job.ID, newExpression); err != nil {
		return nil, err
	}

	updated, err := s.store.GetJob(ctx, job.ID)
	if err != nil {
		return nil, err
	}

	if err := s.scheduler.Schedule(updated); err != nil {
		return nil, errors.Wrap(err, "failed to re-register updated job")
	}

	s.logger.Infow("Schedule updated",
		"job_id", id,
		"owner_id", ownerID,
		"expression", newExpression)
	return updated, nil
}

// ListSchedulesForOwner returns all of an owner's jobs, newest first.
func (s *Service) ListSchedulesForOwner(ctx context.Context, ownerID string) ([]*Job, error) {
	return s.store.ListJobsForOwner(ctx, ownerID)
}

// GetSchedule returns a job by id.
func (s *Service) GetSchedule(ctx context.Context, id string) (*Job, error) {
	return s.store.GetJob(ctx, id)
}
