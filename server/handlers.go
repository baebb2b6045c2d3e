package server

import (
	"net/http"

	"github.com/tidebell/tidebell/errors"
	"github.com/tidebell/tidebell/schedule"
)

// HandleHealth reports liveness.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"sessions": s.sessions.Count(),
	})
}

// HandleCreateSchedule registers a new recurring job.
func (s *Server) HandleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req createScheduleRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}
	if req.OwnerID == "" || req.Expression == "" || req.JobName == "" {
		writeError(w, http.StatusBadRequest, "owner_id, expression and job_name are required")
		return
	}

	job, err := s.service.AddSchedule(r.Context(), req.OwnerID, req.Expression, req.JobName, req.Parameters)
	if err != nil {
		if errors.Is(err, schedule.ErrInvalidExpression) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Errorw("Failed to create schedule", "owner_id", req.OwnerID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create schedule")
		return
	}

	writeJSON(w, http.StatusCreated, toScheduleResponse(job))
}

// HandleListSchedules returns all schedules for ?owner=<id>.
func (s *Server) HandleListSchedules(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner")
	if ownerID == "" {
		writeError(w, http.StatusBadRequest, "owner query parameter is required")
		return
	}

	jobs, err := s.service.ListSchedulesForOwner(r.Context(), ownerID)
	if err != nil {
		s.logger.Errorw("Failed to list schedules", "owner_id", ownerID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list schedules")
		return
	}

	writeJSON(w, http.StatusOK, toScheduleResponses(jobs))
}

// HandleGetSchedule returns one schedule by id.
func (s *Server) HandleGetSchedule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	job, err := s.service.GetSchedule(r.Context(), id)
	if err != nil {
		if errors.Is(err, schedule.ErrScheduleNotFound) {
			writeError(w, http.StatusNotFound, "schedule not found")
			return
		}
		s.logger.Errorw("Failed to get schedule", "job_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get schedule")
		return
	}

	writeJSON(w, http.StatusOK, toScheduleResponse(job))
}

// HandleUpdateSchedule replaces a schedule's expression and re-arms it.
func (s *Server) HandleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req updateScheduleRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}
	if req.OwnerID == "" || req.Expression == "" {
		writeError(w, http.StatusBadRequest, "owner_id and expression are required")
		return
	}

	job, err := s.service.UpdateSchedule(r.Context(), id, req.OwnerID, req.Expression)
	if err != nil {
		switch {
		case errors.Is(err, schedule.ErrInvalidExpression):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, schedule.ErrScheduleNotFound):
			writeError(w, http.StatusNotFound, "schedule not found")
		default:
			s.logger.Errorw("Failed to update schedule", "job_id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to update schedule")
		}
		return
	}

	writeJSON(w, http.StatusOK, toScheduleResponse(job))
}

// HandleCancelSchedule cancels a schedule for ?owner=<id>.
func (s *Server) HandleCancelSchedule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ownerID := r.URL.Query().Get("owner")
	if ownerID == "" {
		writeError(w, http.StatusBadRequest, "owner query parameter is required")
		return
	}

	job, err := s.service.CancelSchedule(r.Context(), id, ownerID)
	if err != nil {
		if errors.Is(err, schedule.ErrScheduleNotFound) {
			writeError(w, http.StatusNotFound, "schedule not found")
			return
		}
		s.logger.Errorw("Failed to cancel schedule", "job_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to cancel schedule")
		return
	}

	writeJSON(w, http.StatusOK, toScheduleResponse(job))
}

// HandleCrawl starts a demo crawl for the requesting user. The crawl runs in
// the background; progress arrives over the websocket.
func (s *Server) HandleCrawl(w http.ResponseWriter, r *http.Request) {
	if s.crawler == nil {
		writeError(w, http.StatusNotFound, "crawling is not enabled")
		return
	}

	var req crawlRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.crawler.Run(s.ctx, req.UserID); err != nil {
			s.logger.Warnw("Crawl aborted", "user_id", req.UserID, "error", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}
