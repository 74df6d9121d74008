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

type quizService interface {
	Generate(ctx context.Context, caller access.Caller, req models.GenerateQuizRequest) (*models.Quiz, *models.Job, error)
	Publish(ctx context.Context, caller access.Caller, id uuid.UUID, published bool) (*models.Quiz, error)
	SetEnabled(ctx context.Context, caller access.Caller, id uuid.UUID, enabled bool) (*models.Quiz, error)
	Status(ctx context.Context, contentID uuid.UUID) (*services.QuizStatusView, error)
	Get(ctx context.Context, caller access.Caller, id uuid.UUID) (*services.QuizView, error)
	List(ctx context.Context, caller access.Caller) ([]models.QuizSummary, error)
	Records(ctx context.Context, caller access.Caller, id uuid.UUID) ([]*models.AttemptRecord, error)
}

type QuizHandler struct {
	quizzes quizService
}

func NewQuizHandler(quizzes quizService) *QuizHandler {
	return &QuizHandler{quizzes: quizzes}
}

func (h *QuizHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req models.GenerateQuizRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	quiz, job, err := h.quizzes.Generate(r.Context(), middleware.GetCaller(r.Context()), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id":  job.ID,
		"quiz_id": quiz.ID,
		"status":  quiz.Status,
	})
}

func (h *QuizHandler) List(w http.ResponseWriter, r *http.Request) {
	quizzes, err := h.quizzes.List(r.Context(), middleware.GetCaller(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"quizzes": quizzes})
}

// Get returns the full quiz, answers included, to its managers and only
// the summary to everyone else.
func (h *QuizHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "quiz")
	if !ok {
		return
	}

	view, err := h.quizzes.Get(r.Context(), middleware.GetCaller(r.Context()), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if view.Quiz != nil {
		writeJSON(w, http.StatusOK, view.Quiz)
		return
	}
	writeJSON(w, http.StatusOK, view.Summary)
}

func (h *QuizHandler) Publish(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "quiz")
	if !ok {
		return
	}
	var req models.PublishQuizRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	quiz, err := h.quizzes.Publish(r.Context(), middleware.GetCaller(r.Context()), id, *req.Published)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quiz.Summary())
}

func (h *QuizHandler) SetEnabled(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "quiz")
	if !ok {
		return
	}
	var req models.EnableQuizRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	quiz, err := h.quizzes.SetEnabled(r.Context(), middleware.GetCaller(r.Context()), id, *req.Enabled)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": quiz.ID, "enabled": quiz.Enabled})
}

func (h *QuizHandler) Records(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "quiz")
	if !ok {
		return
	}

	records, err := h.quizzes.Records(r.Context(), middleware.GetCaller(r.Context()), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"attempts": records})
}

// Status backs the content dashboard: none, unpublished or published.
func (h *QuizHandler) Status(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "content")
	if !ok {
		return
	}

	view, err := h.quizzes.Status(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
