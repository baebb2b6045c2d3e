package schedule

import (
	"context"
	"database/sql"
	"time"

	"github.com/tidebell/tidebell/errors"
)

// ErrScheduleNotFound is returned for unknown ids and owner mismatches alike,
// so callers can not probe for the existence of other owners' jobs.
var ErrScheduleNotFound = errors.New("schedule not found")

// ErrInvalidTransition is returned when a status update violates the
// transition table.
var ErrInvalidTransition = errors.New("invalid status transition")

// Store handles persistence of scheduled jobs
type Store struct {
	db *sql.DB
}

// NewStore creates a new schedule store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const jobColumns = `id, owner_id, expression, job_name, parameters, status, created_at, updated_at`

// CreateJob creates a new scheduled job row.
func (s *Store) CreateJob(ctx context.Context, job *Job) error {
	query := `
		INSERT INTO scheduled_jobs (` + jobColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now

	var parameters interface{}
	if len(job.Parameters) > 0 {
		parameters = string(job.Parameters)
	}

	_, err := s.db.ExecContext(ctx, query,
		job.ID,
		job.OwnerID,
		job.Expression,
		job.JobName,
		parameters,
		job.Status,
		now.Format(time.RFC3339),
		now.Format(time.RFC3339),
	)
	if err != nil {
		return errors.Wrap(err, "failed to create scheduled job")
	}

	return nil
}

// GetJob retrieves a scheduled job by ID.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM scheduled_jobs WHERE id = ?`
	return s.scanJob(s.db.QueryRowContext(ctx, query, id))
}

// GetJobForOwner retrieves a job scoped by (id, owner). A missing row and an
// owner mismatch both return ErrScheduleNotFound.
func (s *Store) GetJobForOwner(ctx context.Context, id, ownerID string) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM scheduled_jobs WHERE id = ? AND owner_id = ?`
	return s.scanJob(s.db.QueryRowContext(ctx, query, id, ownerID))
}

// ListJobsForOwner returns all jobs belonging to an owner, newest first.
func (s *Store) ListJobsForOwner(ctx context.Context, ownerID string) ([]*Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM scheduled_jobs
		WHERE owner_id = ?
		ORDER BY created_at DESC
	`
	return s.queryJobs(ctx, query, ownerID)
}

// ListJobsByStatus returns all jobs in the given status, oldest first.
// Used by the recovery bootstrapper to re-register scheduled jobs at startup.
func (s *Store) ListJobsByStatus(ctx context.Context, status string) ([]*Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM scheduled_jobs
		WHERE status = ?
		ORDER BY created_at ASC
	`
	return s.queryJobs(ctx, query, status)
}

// UpdateJobStatus moves a job to newStatus, enforcing the transition table.
func (s *Store) UpdateJobStatus(ctx context.Context, id, newStatus string) error {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return err
	}

	if !CanTransition(job.Status, newStatus) {
		return errors.Wrapf(ErrInvalidTransition, "%s -> %s for job %s", job.Status, newStatus, id)
	}

	return s.setStatus(ctx, id, newStatus)
}

// RearmJob persists a new expression and resets status to scheduled. This is
// the explicit path by which terminal jobs re-enter the scheduled state.
func (s *Store) RearmJob(ctx context.Context, id, expression string) error {
	query := `
		UPDATE scheduled_jobs
		SET expression = ?,
		    status = ?,
		    updated_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		expression,
		StatusScheduled,
		time.Now().UTC().Format(time.RFC3339),
		id,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update scheduled job expression")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.Wrapf(ErrScheduleNotFound, "job %s", id)
	}

	return nil
}

func (s *Store) setStatus(ctx context.Context, id, status string) error {
	query := `
		UPDATE scheduled_jobs
		SET status = ?,
		    updated_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query, status, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return errors.Wrap(err, "failed to update scheduled job status")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.Wrapf(ErrScheduleNotFound, "job %s", id)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *Store) scanJob(row rowScanner) (*Job, error) {
	var job Job
	var parameters sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&job.ID,
		&job.OwnerID,
		&job.Expression,
		&job.JobName,
		&parameters,
		&job.Status,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrScheduleNotFound
		}
		return nil, errors.Wrap(err, "failed to scan scheduled job")
	}

	// Parse timestamps (an error here indicates data corruption or schema mismatch)
	job.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse created_at for job %s", job.ID)
	}
	job.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse updated_at for job %s", job.ID)
	}

	if parameters.Valid {
		job.Parameters = []byte(parameters.String)
	}

	return &job, nil
}

func (s *Store) queryJobs(ctx context.Context, query string, args ...interface{}) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query scheduled jobs")
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := s.scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}
