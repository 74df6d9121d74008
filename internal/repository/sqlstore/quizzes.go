package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"patashala-backend/internal/difficulty"
	"patashala-backend/internal/models"
)

type QuizRepo struct {
	db *sql.DB
}

func NewQuizRepo(db *sql.DB) *QuizRepo {
	return &QuizRepo{db: db}
}

const quizColumns = `id, content_id, author_id, subject, title, baseline, questions_json,
	enabled, published, adaptive, low_confidence, status, generation_error, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuiz(row rowScanner) (*models.Quiz, error) {
	q := &models.Quiz{}
	var baseline string
	var questions []byte
	var genErr sql.NullString
	err := row.Scan(
		&q.ID, &q.ContentID, &q.AuthorID, &q.Subject, &q.Title, &baseline, &questions,
		&q.Enabled, &q.Published, &q.Adaptive, &q.LowConfidence, &q.Status, &genErr,
		&q.CreatedAt, &q.UpdatedAt,
	)
	if err != nil {
		return nil, translate(err)
	}
	if genErr.Valid {
		q.GenerationError = &genErr.String
	}
	if q.Baseline, err = difficulty.Parse(baseline); err != nil {
		return nil, fmt.Errorf("quiz %s: %w", q.ID, err)
	}
	if err := json.Unmarshal(questions, &q.Questions); err != nil {
		return nil, fmt.Errorf("quiz %s: failed to decode questions: %w", q.ID, err)
	}
	return q, nil
}

func (r *QuizRepo) Create(ctx context.Context, q *models.Quiz) error {
	q.ID = uuid.New()
	if q.Status == "" {
		q.Status = models.QuizPending
	}
	questions := []byte("[]")
	if q.Questions != nil {
		var err error
		if questions, err = json.Marshal(q.Questions); err != nil {
			return err
		}
	}
	now := time.Now().UTC()
	q.CreatedAt, q.UpdatedAt = now, now

	_, err := r.db.ExecContext(ctx, `INSERT INTO quizzes (`+quizColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NULL, $13, $14)`,
		q.ID, q.ContentID, q.AuthorID, q.Subject, q.Title, q.Baseline.String(), string(questions),
		q.Enabled, q.Published, q.Adaptive, q.LowConfidence, q.Status, now, now,
	)
	return translate(err)
}

func (r *QuizRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Quiz, error) {
	return scanQuiz(r.db.QueryRowContext(ctx, "SELECT "+quizColumns+" FROM quizzes WHERE id = $1", id))
}

func (r *QuizRepo) GetByContentID(ctx context.Context, contentID uuid.UUID) (*models.Quiz, error) {
	return scanQuiz(r.db.QueryRowContext(ctx, "SELECT "+quizColumns+" FROM quizzes WHERE content_id = $1", contentID))
}

func (r *QuizRepo) list(ctx context.Context, query string, args ...any) ([]*models.Quiz, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
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
		WHERE published = $1 AND enabled = $1 AND status = $2 ORDER BY created_at DESC`, true, models.QuizReady)
}

func (r *QuizRepo) ReplaceQuestions(ctx context.Context, id uuid.UUID, questions []models.QuestionItem, lowConfidence bool) error {
	data, err := json.Marshal(questions)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE quizzes SET questions_json = $1, low_confidence = $2, status = $3, generation_error = NULL, updated_at = $4
		 WHERE id = $5 AND published = $6`,
		string(data), lowConfidence, models.QuizReady, time.Now().UTC(), id, false,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *QuizRepo) SetPublished(ctx context.Context, id uuid.UUID, published bool) error {
	return r.exec(ctx, "UPDATE quizzes SET published = $1, updated_at = $2 WHERE id = $3", published, time.Now().UTC(), id)
}

func (r *QuizRepo) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	return r.exec(ctx, "UPDATE quizzes SET enabled = $1, updated_at = $2 WHERE id = $3", enabled, time.Now().UTC(), id)
}

func (r *QuizRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string, genErr *string) error {
	return r.exec(ctx,
		"UPDATE quizzes SET status = $1, generation_error = $2, updated_at = $3 WHERE id = $4",
		status, genErr, time.Now().UTC(), id,
	)
}

func (r *QuizRepo) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return requireRow(res)
}
