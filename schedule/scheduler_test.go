package schedule

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidebell/tidebell/errors"
	tbtest "github.com/tidebell/tidebell/internal/testing"
	"github.com/tidebell/tidebell/logger"
)

func TestParseExpression(t *testing.T) {
	valid := []string{
		"0 0 * * * ?",
		"0 */5 * * * ?",
		"* * * * * *",
		"@hourly",
	}
	for _, expr := range valid {
		_, err := ParseExpression(expr)
		assert.NoError(t, err, "expression %q should parse", expr)
	}

	invalid := []string{
		"not a cron",
		"99 * * * * *",
		"",
		"* * * * *  extra junk here",
	}
	for _, expr := range invalid {
		_, err := ParseExpression(expr)
		assert.True(t, errors.Is(err, ErrInvalidExpression), "expression %q should be rejected", expr)
	}
}

// newFiringHarness wires a store-backed runner and scheduler around a
// single registered unit of work.
func newFiringHarness(t *testing.T, unit UnitOfWork) (*Scheduler, *Store) {
	t.Helper()

	db := tbtest.CreateTestDB(t)
	store := NewStore(db)

	registry := NewRegistry()
	registry.Register(unit)

	log := logger.NewTestLogger()
	runner := NewRunner(context.Background(), store, registry, RunnerConfig{Workers: 2, QueueSize: 8}, log)
	runner.Start()
	t.Cleanup(runner.Stop)

	scheduler := NewScheduler(context.Background(), runner, log)
	t.Cleanup(scheduler.Stop)

	return scheduler, store
}

func noopUnit(name string) UnitFunc {
	return UnitFunc{
		UnitName: name,
		Fn:       func(ctx context.Context, firing Firing) error { return nil },
	}
}

func TestScheduleThenCancelLeavesNoTimer(t *testing.T) {
	scheduler, _ := newFiringHarness(t, noopUnit("crawl.board-posts"))

	job := &Job{ID: "job_sc1", OwnerID: "alice", Expression: "0 0 * * * ?", JobName: "crawl.board-posts", Status: StatusScheduled}
	require.NoError(t, scheduler.Schedule(job))
	assert.True(t, scheduler.HasJob("job_sc1"))

	scheduler.Cancel("job_sc1")
	assert.False(t, scheduler.HasJob("job_sc1"))
	assert.Empty(t, scheduler.ActiveJobs())
}

func TestCancelUnknownJobNoop(t *testing.T) {
	scheduler, _ := newFiringHarness(t, noopUnit("crawl.board-posts"))

	assert.NotPanics(t, func() {
		scheduler.Cancel("job_never_scheduled")
	})
}

func TestRescheduleSameIDKeepsSingleTimer(t *testing.T) {
	scheduler, _ := newFiringHarness(t, noopUnit("crawl.board-posts"))

	job := &Job{ID: "job_re1", OwnerID: "alice", Expression: "0 0 * * * ?", JobName: "crawl.board-posts", Status: StatusScheduled}
	require.NoError(t, scheduler.Schedule(job))

	job.Expression = "0 30 * * * ?"
	require.NoError(t, scheduler.Schedule(job))

	assert.True(t, scheduler.HasJob("job_re1"))
	assert.Len(t, scheduler.ActiveJobs(), 1)
}

func TestScheduleInvalidExpressionInstallsNothing(t *testing.T) {
	scheduler, _ := newFiringHarness(t, noopUnit("crawl.board-posts"))

	job := &Job{ID: "job_bad", OwnerID: "alice", Expression: "not a cron", JobName: "crawl.board-posts", Status: StatusScheduled}
	err := scheduler.Schedule(job)
	assert.True(t, errors.Is(err, ErrInvalidExpression))
	assert.False(t, scheduler.HasJob("job_bad"))
}

func TestFiringReachesUnitOfWork(t *testing.T) {
	fired := make(chan struct{}, 4)
	unit := UnitFunc{
		UnitName: "crawl.board-posts",
		Fn: func(ctx context.Context, firing Firing) error {
			select {
			case fired <- struct{}{}:
			default:
			}
			return nil
		},
	}
	scheduler, store := newFiringHarness(t, unit)

	job := &Job{ID: "job_fire", OwnerID: "alice", Expression: "* * * * * *", JobName: "crawl.board-posts", Status: StatusScheduled}
	require.NoError(t, store.CreateJob(context.Background(), job))
	require.NoError(t, scheduler.Schedule(job))

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("expected the every-second job to fire")
	}
}

func TestCancelInterruptsInFlightFiring(t *testing.T) {
	started := make(chan struct{}, 4)
	interrupted := make(chan struct{}, 4)
	unit := UnitFunc{
		UnitName: "crawl.board-posts",
		Fn: func(ctx context.Context, firing Firing) error {
			select {
			case started <- struct{}{}:
			default:
			}
			<-ctx.Done()
			select {
			case interrupted <- struct{}{}:
			default:
			}
			return ctx.Err()
		},
	}
	scheduler, store := newFiringHarness(t, unit)

	job := &Job{ID: "job_int", OwnerID: "alice", Expression: "* * * * * *", JobName: "crawl.board-posts", Status: StatusScheduled}
	require.NoError(t, store.CreateJob(context.Background(), job))
	require.NoError(t, scheduler.Schedule(job))

	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("expected the firing to start")
	}

	scheduler.Cancel("job_int")

	select {
	case <-interrupted:
	case <-time.After(2 * time.Second):
		t.Fatal("cancellation should interrupt the in-flight firing")
	}
}

func TestSchedulerStopDrainsAllEntries(t *testing.T) {
	scheduler, _ := newFiringHarness(t, noopUnit("crawl.board-posts"))

	for _, id := range []string{"job_st1", "job_st2", "job_st3"} {
		job := &Job{ID: id, OwnerID: "alice", Expression: "0 0 * * * ?", JobName: "crawl.board-posts", Status: StatusScheduled}
		require.NoError(t, scheduler.Schedule(job))
	}
	assert.Len(t, scheduler.ActiveJobs(), 3)

	scheduler.Stop()
	assert.Empty(t, scheduler.ActiveJobs())
}

func TestRunnerPanicRecovery(t *testing.T) {
	var calls atomic.Int32
	unit := UnitFunc{
		UnitName: "crawl.board-posts",
		Fn: func(ctx context.Context, firing Firing) error {
			if calls.Add(1) == 1 {
				panic("boom")
			}
			return nil
		},
	}

	db := tbtest.CreateTestDB(t)
	store := NewStore(db)
	registry := NewRegistry()
	registry.Register(unit)

	runner := NewRunner(context.Background(), store, registry, RunnerConfig{Workers: 1, QueueSize: 8}, logger.NewTestLogger())
	runner.Start()
	t.Cleanup(runner.Stop)

	ctx := context.Background()
	job := &Job{ID: "job_panic", OwnerID: "alice", Expression: "* * * * * *", JobName: "crawl.board-posts", Status: StatusScheduled}
	require.NoError(t, store.CreateJob(ctx, job))

	firing := Firing{Job: job, FiredAt: time.Now()}
	require.True(t, runner.Submit(ctx, firing))

	// The panicking run marks the row failed
	require.Eventually(t, func() bool {
		row, err := store.GetJob(ctx, job.ID)
		return err == nil && row.Status == StatusFailed
	}, 3*time.Second, 20*time.Millisecond)

	// The single worker survived the panic and still executes firings
	require.True(t, runner.Submit(ctx, firing))
	require.Eventually(t, func() bool {
		return calls.Load() >= 2
	}, 3*time.Second, 20*time.Millisecond)
}

func TestRunnerQueueFullDropsFiring(t *testing.T) {
	db := tbtest.CreateTestDB(t)
	store := NewStore(db)
	registry := NewRegistry()
	registry.Register(noopUnit("crawl.board-posts"))

	// Not started: nothing drains the queue
	runner := NewRunner(context.Background(), store, registry, RunnerConfig{Workers: 1, QueueSize: 1}, logger.NewTestLogger())

	job := &Job{ID: "job_drop", OwnerID: "alice", Expression: "* * * * * *", JobName: "crawl.board-posts", Status: StatusScheduled}
	firing := Firing{Job: job, FiredAt: time.Now()}

	assert.True(t, runner.Submit(context.Background(), firing))
	assert.False(t, runner.Submit(context.Background(), firing))
}

func TestRunnerOneShotCompletion(t *testing.T) {
	unit := UnitFunc{
		UnitName: "crawl.board-posts",
		Fn: func(ctx context.Context, firing Firing) error {
			return ErrJobCompleted
		},
	}

	db := tbtest.CreateTestDB(t)
	store := NewStore(db)
	registry := NewRegistry()
	registry.Register(unit)

	runner := NewRunner(context.Background(), store, registry, RunnerConfig{Workers: 1, QueueSize: 8}, logger.NewTestLogger())
	completed := make(chan string, 1)
	runner.OnComplete = func(jobID string) { completed <- jobID }
	runner.Start()
	t.Cleanup(runner.Stop)

	ctx := context.Background()
	job := &Job{ID: "job_once", OwnerID: "alice", Expression: "* * * * * *", JobName: "crawl.board-posts", Status: StatusScheduled}
	require.NoError(t, store.CreateJob(ctx, job))
	require.True(t, runner.Submit(ctx, Firing{Job: job, FiredAt: time.Now()}))

	select {
	case id := <-completed:
		assert.Equal(t, "job_once", id)
	case <-time.After(3 * time.Second):
		t.Fatal("expected the completion hook to run")
	}

	require.Eventually(t, func() bool {
		row, err := store.GetJob(ctx, job.ID)
		return err == nil && row.Status == StatusCompleted
	}, 3*time.Second, 20*time.Millisecond)
}
