package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"patashala-backend/internal/access"
	"patashala-backend/internal/middleware"
	"patashala-backend/internal/models"
	"patashala-backend/internal/services"
)

type attemptService interface {
	Start(ctx context.Context, caller access.Caller, quizID uuid.UUID, mode models.Mode) (*services.StartResult, error)
	Submit(ctx context.Context, caller access.Caller, id uuid.UUID, req models.SubmitAnswerRequest) (*services.SubmitResult, error)
	Current(ctx context.Context, caller access.Caller, id uuid.UUID) (*services.SessionView, error)
	Finalize(ctx context.Context, caller access.Caller, id uuid.UUID) (*models.CompletionSummary, error)
	Abandon(ctx context.Context, caller access.Caller, id uuid.UUID) error
	MyRecord(ctx context.Context, caller access.Caller, quizID uuid.UUID) (*models.AttemptRecord, error)
}

type AttemptHandler struct {
	attempts attemptService
}

func NewAttemptHandler(attempts attemptService) *AttemptHandler {
	return &AttemptHandler{attempts: attempts}
}

func (h *AttemptHandler) Start(w http.ResponseWriter, r *http.Request) {
	quizID, ok := parseID(w, r, "id", "quiz")
	if !ok {
		return
	}
	var req models.StartAttemptRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}

	res, err := h.attempts.Start(r.Context(), middleware.GetCaller(r.Context()), quizID, req.Mode)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	status := http.StatusCreated
	if res.Resumed {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

func (h *AttemptHandler) Submit(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "session")
	if !ok {
		return
	}
	var req models.SubmitAnswerRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	res, err := h.attempts.Submit(r.Context(), middleware.GetCaller(r.Context()), id, req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *AttemptHandler) Current(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "session")
	if !ok {
		return
	}

	view, err := h.attempts.Current(r.Context(), middleware.GetCaller(r.Context()), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *AttemptHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "session")
	if !ok {
		return
	}

	summary, err := h.attempts.Finalize(r.Context(), middleware.GetCaller(r.Context()), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"summary": summary})
}

func (h *AttemptHandler) Abandon(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "session")
	if !ok {
		return
	}

	if err := h.attempts.Abandon(r.Context(), middleware.GetCaller(r.Context()), id); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Attempt abandoned"})
}

func (h *AttemptHandler) MyRecord(w http.ResponseWriter, r *http.Request) {
	quizID, ok := parseID(w, r, "id", "quiz")
	if !ok {
		return
	}

	rec, err := h.attempts.MyRecord(r.Context(), middleware.GetCaller(r.Context()), quizID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
