package server

import (
	"encoding/json"
	"time"

	"github.com/tidebell/tidebell/schedule"
)

// createScheduleRequest is the POST /api/schedules body.
type createScheduleRequest struct {
	OwnerID    string          `json:"owner_id"`
	Expression string          `json:"expression"`
	JobName    string          `json:"job_name"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
}

// updateScheduleRequest is the PUT /api/schedules/{id} body.
type updateScheduleRequest struct {
	OwnerID    string `json:"owner_id"`
	Expression string `json:"expression"`
}

// crawlRequest is the POST /api/crawl body.
type crawlRequest struct {
	UserID string `json:"user_id"`
}

// scheduleResponse is the wire form of a job row.
type scheduleResponse struct {
	ID         string          `json:"id"`
	OwnerID    string          `json:"owner_id"`
	Expression string          `json:"expression"`
	JobName    string          `json:"job_name"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
	Status     string          `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func toScheduleResponse(job *schedule.Job) scheduleResponse {
	return scheduleResponse{
		ID:         job.ID,
		OwnerID:    job.OwnerID,
		Expression: job.Expression,
		JobName:    job.JobName,
		Parameters: json.RawMessage(job.Parameters),
		Status:     job.Status,
		CreatedAt:  job.CreatedAt,
		UpdatedAt:  job.UpdatedAt,
	}
}

func toScheduleResponses(jobs []*schedule.Job) []scheduleResponse {
	out := make([]scheduleResponse, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, toScheduleResponse(job))
	}
	return out
}
