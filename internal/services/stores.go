package services

import (
	"context"

	"github.com/google/uuid"

	"patashala-backend/internal/models"
)

// QuizStore is satisfied by repository.QuizRepo and sqlstore.QuizRepo.
type QuizStore interface {
	Create(ctx context.Context, q *models.Quiz) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Quiz, error)
	GetByContentID(ctx context.Context, contentID uuid.UUID) (*models.Quiz, error)
	ListByAuthor(ctx context.Context, authorID uuid.UUID) ([]*models.Quiz, error)
	ListAvailable(ctx context.Context) ([]*models.Quiz, error)
	ReplaceQuestions(ctx context.Context, id uuid.UUID, questions []models.QuestionItem, lowConfidence bool) error
	SetPublished(ctx context.Context, id uuid.UUID, published bool) error
	SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status string, genErr *string) error
}

type AttemptStore interface {
	Insert(ctx context.Context, a *models.AttemptRecord) error
	Exists(ctx context.Context, quizID, learnerID uuid.UUID) (bool, error)
	GetByQuizAndLearner(ctx context.Context, quizID, learnerID uuid.UUID) (*models.AttemptRecord, error)
	ListByQuiz(ctx context.Context, quizID uuid.UUID) ([]*models.AttemptRecord, error)
	PriorScores(ctx context.Context, learnerID uuid.UUID, subject string) ([]float64, error)
}

type JobStore interface {
	Create(ctx context.Context, j *models.Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	UpdateError(ctx context.Context, id uuid.UUID, errMsg string, retryCount int) error
}

type ContentSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Content, error)
}
