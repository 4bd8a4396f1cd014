package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/telsalud/notefmt/internal/services/formatter"
	"github.com/telsalud/notefmt/internal/services/jobs"
)

// doctorHeader carries the authenticated doctor's opaque user id. The
// authentication layer itself is an external collaborator; this pipeline only
// consumes its result.
const doctorHeader = "X-Doctor-ID"

// JobHandler exposes the format job submission and read endpoints
type JobHandler struct {
	service *jobs.Service
	logger  arbor.ILogger
}

// NewJobHandler creates a job handler
func NewJobHandler(service *jobs.Service, logger arbor.ILogger) *JobHandler {
	return &JobHandler{service: service, logger: logger}
}

// CreateJobHandler handles POST /api/consultations/{id}/format-jobs
func (h *JobHandler) CreateJobHandler(w http.ResponseWriter, r *http.Request) {
	actorID := r.Header.Get(doctorHeader)
	if actorID == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "missing doctor identity")
		return
	}

	consultationID := consultationIDFromPath(r.URL.Path)
	if consultationID == "" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "not found")
		return
	}

	var req jobs.CreateJobRequest
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "failed to read request body")
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "malformed JSON body")
			return
		}
	}

	ref, err := h.service.CreateJob(r.Context(), actorID, consultationID, req)
	if err != nil {
		switch {
		case errors.Is(err, jobs.ErrNotFound):
			writeError(w, http.StatusNotFound, "NOT_FOUND", "not found")
		case errors.Is(err, jobs.ErrNoFinalNote):
			writeError(w, http.StatusConflict, "NO_FINAL_NOTE", "consultation has no finalized note to format")
		case errors.Is(err, jobs.ErrEnqueueFailed):
			// The job row exists and is marked failed: surface its id so the
			// caller fetches status instead of retrying blindly
			jobID := ""
			if ref != nil {
				jobID = ref.JobID
			}
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: errorBody{
				Code:    string(formatter.CodeEnqueueFailed),
				Message: "job could not be scheduled",
				JobID:   jobID,
			}})
		case strings.Contains(err.Error(), "invalid request"):
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		default:
			h.logger.Error().Err(err).Str("consultation_id", consultationID).Msg("Create job failed")
			writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, ref)
}

// GetJobHandler handles GET /api/format-jobs/{id}
func (h *JobHandler) GetJobHandler(w http.ResponseWriter, r *http.Request) {
	actorID := r.Header.Get(doctorHeader)
	if actorID == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "missing doctor identity")
		return
	}

	jobID := strings.TrimPrefix(r.URL.Path, "/api/format-jobs/")
	if jobID == "" || strings.Contains(jobID, "/") {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "not found")
		return
	}

	view, err := h.service.GetJob(r.Context(), actorID, jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "not found")
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Get job failed")
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// consultationIDFromPath extracts {id} from /api/consultations/{id}/format-jobs
func consultationIDFromPath(path string) string {
	rest := strings.TrimPrefix(path, "/api/consultations/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "format-jobs" {
		return ""
	}
	return parts[0]
}
