package schedule

import (
	"context"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/tidebell/tidebell/errors"
)

// ErrInvalidExpression is returned when a recurrence expression fails to
// parse. Nothing is installed or persisted for malformed expressions.
var ErrInvalidExpression = errors.New("invalid recurrence expression")

// cronParser accepts 6-field cron expressions with seconds granularity,
// including Quartz-style "?" in the day fields, plus @-descriptors.
var cronParser = cronlib.NewParser(
	cronlib.Second | cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseExpression validates a recurrence expression and returns its schedule.
// Evaluation is a pure function of (expression, time): the returned schedule
// carries no state beyond the expression text.
func ParseExpression(expr string) (cronlib.Schedule, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidExpression, "%q: %v", expr, err)
	}
	return sched, nil
}

// entry is one live timer handle.
type entry struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Scheduler maintains the job-id to timer-handle map so that at most one
// active timer exists per job id at any instant.
//
// Each entry runs its own goroutine computing the next fire time from the
// parsed expression and handing firings to the Runner. The entry's context
// flows into every firing, so cancelling a job interrupts an in-flight run
// rather than merely stopping future firings.
//
// Ownership is single-writer per job id: one instance's Service or recovery
// bootstrapper mutates a given job's registration at a time. Sharing timer
// ownership across instances would need distributed coordination that is
// deliberately absent here.
type Scheduler struct {
	runner *Runner

	mu      sync.Mutex
	entries map[string]*entry

	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.SugaredLogger
}

// NewScheduler creates a scheduler whose entries live under the given parent
// context. The runner must be started separately.
func NewScheduler(ctx context.Context, runner *Runner, log *zap.SugaredLogger) *Scheduler {
	schedCtx, cancel := context.WithCancel(ctx)
	return &Scheduler{
		runner:  runner,
		entries: make(map[string]*entry),
		ctx:     schedCtx,
		cancel:  cancel,
		logger:  log.Named("scheduler"),
	}
}

// Schedule installs a recurring timer for the job. If a timer already exists
// for job.ID it is cancelled first; cancel-then-install is atomic per key, so
// two timers can never coexist for one id. Malformed expressions fail
// synchronously and install nothing.
func (s *Scheduler) Schedule(job *Job) error {
	sched, err := ParseExpression(job.Expression)
	if err != nil {
		return err
	}

	// Snapshot: the caller may mutate its copy after we return.
	snapshot := *job

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.entries[job.ID]; ok {
		old.cancel()
		<-old.done
	}

	entryCtx, cancel := context.WithCancel(s.ctx)
	e := &entry{cancel: cancel, done: make(chan struct{})}
	s.entries[job.ID] = e

	go s.run(entryCtx, e, &snapshot, sched)

	s.logger.Infow("Job scheduled",
		"job_id", job.ID,
		"owner_id", job.OwnerID,
		"expression", job.Expression,
		"job_name", job.JobName)
	return nil
}

// Cancel removes and stops the timer for jobID. Absent ids are a no-op, not
// an error. Cancellation propagates through the entry context into any
// in-flight firing, so a cancelled job stops producing visible side effects
// immediately.
func (s *Scheduler) Cancel(jobID string) {
	s.mu.Lock()
	e, ok := s.entries[jobID]
	if ok {
		delete(s.entries, jobID)
	}
	s.mu.Unlock()

	if !ok {
		return
	}

	e.cancel()
	<-e.done
	s.logger.Infow("Job cancelled", "job_id", jobID)
}

// HasJob reports whether a live timer exists for jobID.
func (s *Scheduler) HasJob(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[jobID]
	return ok
}

// ActiveJobs returns the ids of all currently installed timers. Useful for
// reconciling scheduler state against the store.
func (s *Scheduler) ActiveJobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	return ids
}

// Stop cancels every timer and waits for their goroutines to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	stopped := make([]*entry, 0, len(s.entries))
	for id, e := range s.entries {
		stopped = append(stopped, e)
		delete(s.entries, id)
	}
	s.mu.Unlock()

	s.cancel()
	for _, e := range stopped {
		<-e.done
	}
	s.logger.Infow("Scheduler stopped", "timers", len(stopped))
}

// run is the entry goroutine: sleep until the next fire time, hand the firing
// to the pool, repeat. Submit never blocks, so a slow pool cannot delay the
// next fire computation.
func (s *Scheduler) run(ctx context.Context, e *entry, job *Job, sched cronlib.Schedule) {
	defer close(e.done)

	for {
		now := time.Now()
		next := sched.Next(now)
		if next.IsZero() {
			s.logger.Warnw("Expression yields no future fire time, stopping timer",
				"job_id", job.ID,
				"expression", job.Expression)
			return
		}

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case firedAt := <-timer.C:
			s.runner.Submit(ctx, Firing{Job: job, FiredAt: firedAt})
		}
	}
}
