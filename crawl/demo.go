// Package crawl holds the demo crawling unit of work: a staged job that
// reports its progress over the delivery bridge while it runs.
package crawl

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tidebell/tidebell/bridge"
	"github.com/tidebell/tidebell/schedule"
)

// JobName is the registry key for the demo crawl.
const JobName = "crawl.board-posts"

const (
	crawlSteps = 10

	statusRunning   = "RUNNING"
	statusCompleted = "COMPLETED"
)

// Demo simulates a board crawl in ten stages. Each stage broadcasts a
// progress envelope to every connected client; completion additionally sends
// a targeted notification to the job's owner.
type Demo struct {
	publisher *bridge.Publisher
	logger    *zap.SugaredLogger

	// StepDelay is the pause between stages. Tests shrink it.
	StepDelay time.Duration
}

// NewDemo creates the demo crawl unit.
func NewDemo(publisher *bridge.Publisher, log *zap.SugaredLogger) *Demo {
	return &Demo{
		publisher: publisher,
		logger:    log.Named("crawl"),
		StepDelay: time.Second,
	}
}

// Name implements schedule.UnitOfWork.
func (d *Demo) Name() string { return JobName }

// Execute implements schedule.UnitOfWork. A cancelled job stops publishing
// at the next stage boundary.
func (d *Demo) Execute(ctx context.Context, firing schedule.Firing) error {
	return d.Run(ctx, firing.Job.OwnerID)
}

// Run performs one crawl for ownerID. Also invoked directly by the HTTP
// trigger, outside any schedule.
func (d *Demo) Run(ctx context.Context, ownerID string) error {
	d.logger.Infow("Crawl started", "owner_id", ownerID)

	for step := 1; step <= crawlSteps; step++ {
		select {
		case <-ctx.Done():
			d.logger.Infow("Crawl cancelled",
				"owner_id", ownerID,
				"progress", (step-1)*100/crawlSteps)
			return ctx.Err()
		case <-time.After(d.StepDelay):
		}

		progress := step * 100 / crawlSteps
		status := statusRunning
		if step == crawlSteps {
			status = statusCompleted
		}

		env := bridge.Envelope{
			Title:     "Crawling",
			Content:   fmt.Sprintf("Crawling in progress: %d%%", progress),
			Status:    status,
			Progress:  progress,
			Timestamp: time.Now().UTC(),
		}
		if err := d.publisher.Broadcast(ctx, env); err != nil {
			// Progress is best-effort; the crawl itself keeps going.
			d.logger.Warnw("Failed to broadcast progress",
				"owner_id", ownerID,
				"progress", progress,
				"error", err)
		}
	}

	done := bridge.Envelope{
		Title:     "Crawling finished",
		Content:   "Board crawl completed",
		Status:    statusCompleted,
		Progress:  100,
		Timestamp: time.Now().UTC(),
	}
	if err := d.publisher.Publish(ctx, ownerID, done); err != nil {
		d.logger.Warnw("Failed to notify owner",
			"owner_id", ownerID,
			"error", err)
	}

	d.logger.Infow("Crawl completed", "owner_id", ownerID)
	return nil
}
