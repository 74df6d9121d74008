package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"patashala-backend/internal/models"
	"patashala-backend/internal/repository"
)

type AttemptRepo struct {
	db *sql.DB
}

func NewAttemptRepo(db *sql.DB) *AttemptRepo {
	return &AttemptRepo{db: db}
}

const attemptColumns = `id, quiz_id, learner_id, subject, score, answers_json, trajectory_json,
	evaluation_json, time_taken_seconds, started_at, completed_at`

func scanAttempt(row rowScanner) (*models.AttemptRecord, error) {
	a := &models.AttemptRecord{}
	var answers, trajectory, evaluation []byte
	err := row.Scan(
		&a.ID, &a.QuizID, &a.LearnerID, &a.Subject, &a.Score, &answers, &trajectory,
		&evaluation, &a.TimeTakenSeconds, &a.StartedAt, &a.CompletedAt,
	)
	if err != nil {
		return nil, translate(err)
	}
	if err := json.Unmarshal(answers, &a.Answers); err != nil {
		return nil, fmt.Errorf("attempt %s: failed to decode answers: %w", a.ID, err)
	}
	if err := json.Unmarshal(trajectory, &a.Trajectory); err != nil {
		return nil, fmt.Errorf("attempt %s: failed to decode trajectory: %w", a.ID, err)
	}
	if err := json.Unmarshal(evaluation, &a.Evaluation); err != nil {
		return nil, fmt.Errorf("attempt %s: failed to decode evaluation: %w", a.ID, err)
	}
	return a, nil
}

func (r *AttemptRepo) Insert(ctx context.Context, a *models.AttemptRecord) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	answers, trajectory, evaluation, err := repository.EncodeAttempt(a)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `INSERT INTO attempt_records (`+attemptColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.ID, a.QuizID, a.LearnerID, a.Subject, a.Score, string(answers), string(trajectory),
		string(evaluation), a.TimeTakenSeconds, a.StartedAt.UTC(), a.CompletedAt.UTC(),
	)
	return translate(err)
}

func (r *AttemptRepo) Exists(ctx context.Context, quizID, learnerID uuid.UUID) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM attempt_records WHERE quiz_id = $1 AND learner_id = $2",
		quizID, learnerID,
	).Scan(&n)
	return n > 0, err
}

func (r *AttemptRepo) GetByQuizAndLearner(ctx context.Context, quizID, learnerID uuid.UUID) (*models.AttemptRecord, error) {
	return scanAttempt(r.db.QueryRowContext(ctx,
		"SELECT "+attemptColumns+" FROM attempt_records WHERE quiz_id = $1 AND learner_id = $2",
		quizID, learnerID,
	))
}

func (r *AttemptRepo) ListByQuiz(ctx context.Context, quizID uuid.UUID) ([]*models.AttemptRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+attemptColumns+" FROM attempt_records WHERE quiz_id = $1 ORDER BY completed_at DESC",
		quizID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.AttemptRecord
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, a)
	}
	return records, rows.Err()
}

func (r *AttemptRepo) PriorScores(ctx context.Context, learnerID uuid.UUID, subject string) ([]float64, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT score FROM attempt_records WHERE learner_id = $1 AND subject = $2 ORDER BY completed_at",
		learnerID, subject,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scores []float64
	for rows.Next() {
		var s float64
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		scores = append(scores, s)
	}
	return scores, rows.Err()
}
