package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"patashala-backend/internal/difficulty"
	"patashala-backend/internal/models"
)

type QuizRepo struct {
	pool *pgxpool.Pool
}

func NewQuizRepo(pool *pgxpool.Pool) *QuizRepo {
	return &QuizRepo{pool: pool}
}

const quizColumns = `id, content_id, author_id, subject, title, baseline, questions_json,
	enabled, published, adaptive, low_confidence, status, generation_error, created_at, updated_at`

func scanQuiz(row pgx.Row) (*models.Quiz, error) {
	q := &models.Quiz{}
	var baseline string
	var questions []byte
	err := row.Scan(
		&q.ID, &q.ContentID, &q.AuthorID, &q.Subject, &q.Title, &baseline, &questions,
		&q.Enabled, &q.Published, &q.Adaptive, &q.LowConfidence, &q.Status, &q.GenerationError,
		&q.CreatedAt, &q.UpdatedAt,
	)
	if err != nil {
		return nil, translate(err)
	}
	if q.Baseline, err = difficulty.Parse(baseline); err != nil {
		return nil, fmt.Errorf("quiz %s: %w", q.ID, err)
	}
	if err := json.Unmarshal(questions, &q.Questions); err != nil {
		return nil, fmt.Errorf("quiz %s: failed to decode questions: %w", q.ID, err)
	}
	return q, nil
}

// Create inserts a pending quiz. A second quiz for the same content item
// returns ErrDuplicate.
func (r *QuizRepo) Create(ctx context.Context, q *models.Quiz) error {
	q.ID = uuid.New()
	if q.Status == "" {
		q.Status = models.QuizPending
	}
	questions, err := json.Marshal(q.Questions)
	if err != nil {
		return err
	}
	if q.Questions == nil {
		questions = []byte("[]")
	}

	query := `INSERT INTO quizzes (id, content_id, author_id, subject, title, baseline, questions_json,
			enabled, published, adaptive, low_confidence, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING created_at, updated_at`

	err = r.pool.QueryRow(ctx, query,
		q.ID, q.ContentID, q.AuthorID, q.Subject, q.Title, q.Baseline.String(), questions,
		q.Enabled, q.Published, q.Adaptive, q.LowConfidence, q.Status,
	).Scan(&q.CreatedAt, &q.UpdatedAt)
	return translate(err)
}

func (r *QuizRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Quiz, error) {
	return scanQuiz(r.pool.QueryRow(ctx, "SELECT "+quizColumns+" FROM quizzes WHERE id = $1", id))
}

func (r *QuizRepo) GetByContentID(ctx context.Context, contentID uuid.UUID) (*models.Quiz, error) {
	return scanQuiz(r.pool.QueryRow(ctx, "SELECT "+quizColumns+" FROM quizzes WHERE content_id = $1", contentID))
}

func (r *QuizRepo) list(ctx context.Context, query string, args ...any) ([]*models.Quiz, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var quizzes []*models.Quiz
	for rows.Next() {
		q, err := scanQuiz(rows)
		if err != nil {
			return nil, err
		}
		quizzes = append(quizzes, q)
	}
	return quizzes, rows.Err()
}

func (r *QuizRepo) ListByAuthor(ctx context.Context, authorID uuid.UUID) ([]*models.Quiz, error) {
	return r.list(ctx, "SELECT "+quizColumns+" FROM quizzes WHERE author_id = $1 ORDER BY created_at DESC", authorID)
}

func (r *QuizRepo) ListAvailable(ctx context.Context) ([]*models.Quiz, error) {
	return r.list(ctx, "SELECT "+quizColumns+` FROM quizzes
		WHERE published = TRUE AND enabled = TRUE AND status = 'ready' ORDER BY created_at DESC`)
}

// ReplaceQuestions swaps the whole question set and marks the quiz ready.
// Published quizzes are left untouched and ErrNotFound is returned.
func (r *QuizRepo) ReplaceQuestions(ctx context.Context, id uuid.UUID, questions []models.QuestionItem, lowConfidence bool) error {
	data, err := json.Marshal(questions)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE quizzes SET questions_json = $1, low_confidence = $2, status = $3, generation_error = NULL, updated_at = $4
		 WHERE id = $5 AND published = FALSE`,
		data, lowConfidence, models.QuizReady, time.Now(), id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *QuizRepo) SetPublished(ctx context.Context, id uuid.UUID, published bool) error {
	return r.exec(ctx, "UPDATE quizzes SET published = $1, updated_at = $2 WHERE id = $3", published, time.Now(), id)
}

func (r *QuizRepo) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	return r.exec(ctx, "UPDATE quizzes SET enabled = $1, updated_at = $2 WHERE id = $3", enabled, time.Now(), id)
}

func (r *QuizRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string, genErr *string) error {
	return r.exec(ctx,
		"UPDATE quizzes SET status = $1, generation_error = $2, updated_at = $3 WHERE id = $4",
		status, genErr, time.Now(), id,
	)
}

func (r *QuizRepo) exec(ctx context.Context, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
