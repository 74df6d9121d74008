package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"patashala-backend/internal/models"
)

type AttemptRepo struct {
	pool *pgxpool.Pool
}

func NewAttemptRepo(pool *pgxpool.Pool) *AttemptRepo {
	return &AttemptRepo{pool: pool}
}

const attemptColumns = `id, quiz_id, learner_id, subject, score, answers_json, trajectory_json,
	evaluation_json, time_taken_seconds, started_at, completed_at`

func scanAttempt(row pgx.Row) (*models.AttemptRecord, error) {
	a := &models.AttemptRecord{}
	var answers, trajectory, evaluation []byte
	err := row.Scan(
		&a.ID, &a.QuizID, &a.LearnerID, &a.Subject, &a.Score, &answers, &trajectory,
		&evaluation, &a.TimeTakenSeconds, &a.StartedAt, &a.CompletedAt,
	)
	if err != nil {
		return nil, translate(err)
	}
	if err := decodeAttempt(a, answers, trajectory, evaluation); err != nil {
		return nil, err
	}
	return a, nil
}

func decodeAttempt(a *models.AttemptRecord, answers, trajectory, evaluation []byte) error {
	if err := json.Unmarshal(answers, &a.Answers); err != nil {
		return fmt.Errorf("attempt %s: failed to decode answers: %w", a.ID, err)
	}
	if err := json.Unmarshal(trajectory, &a.Trajectory); err != nil {
		return fmt.Errorf("attempt %s: failed to decode trajectory: %w", a.ID, err)
	}
	if err := json.Unmarshal(evaluation, &a.Evaluation); err != nil {
		return fmt.Errorf("attempt %s: failed to decode evaluation: %w", a.ID, err)
	}
	return nil
}

// EncodeAttempt renders the JSON columns of a record.
func EncodeAttempt(a *models.AttemptRecord) (answers, trajectory, evaluation []byte, err error) {
	if answers, err = json.Marshal(a.Answers); err != nil {
		return
	}
	if trajectory, err = json.Marshal(a.Trajectory); err != nil {
		return
	}
	evaluation, err = json.Marshal(a.Evaluation)
	return
}

// Insert writes the one graded record for (quiz, learner). A second insert
// for the same pair returns ErrDuplicate.
func (r *AttemptRepo) Insert(ctx context.Context, a *models.AttemptRecord) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	answers, trajectory, evaluation, err := EncodeAttempt(a)
	if err != nil {
		return err
	}

	query := `INSERT INTO attempt_records (` + attemptColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = r.pool.Exec(ctx, query,
		a.ID, a.QuizID, a.LearnerID, a.Subject, a.Score, answers, trajectory,
		evaluation, a.TimeTakenSeconds, a.StartedAt, a.CompletedAt,
	)
	return translate(err)
}

func (r *AttemptRepo) Exists(ctx context.Context, quizID, learnerID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM attempt_records WHERE quiz_id = $1 AND learner_id = $2)",
		quizID, learnerID,
	).Scan(&exists)
	return exists, err
}

func (r *AttemptRepo) GetByQuizAndLearner(ctx context.Context, quizID, learnerID uuid.UUID) (*models.AttemptRecord, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		"SELECT "+attemptColumns+" FROM attempt_records WHERE quiz_id = $1 AND learner_id = $2",
		quizID, learnerID,
	))
}

func (r *AttemptRepo) ListByQuiz(ctx context.Context, quizID uuid.UUID) ([]*models.AttemptRecord, error) {
	rows, err := r.pool.Query(ctx,
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

// PriorScores returns the learner's graded scores on quizzes of subject.
func (r *AttemptRepo) PriorScores(ctx context.Context, learnerID uuid.UUID, subject string) ([]float64, error) {
	rows, err := r.pool.Query(ctx,
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
