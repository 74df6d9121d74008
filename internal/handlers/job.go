package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"patashala-backend/internal/access"
	"patashala-backend/internal/middleware"
	"patashala-backend/internal/models"
)

type jobLookup interface {
	Job(ctx context.Context, caller access.Caller, id uuid.UUID) (*models.Job, error)
}

type JobHandler struct {
	jobs jobLookup
}

func NewJobHandler(jobs jobLookup) *JobHandler {
	return &JobHandler{jobs: jobs}
}

func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "job")
	if !ok {
		return
	}

	job, err := h.jobs.Job(r.Context(), middleware.GetCaller(r.Context()), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}
