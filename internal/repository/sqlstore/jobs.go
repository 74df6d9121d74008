package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"patashala-backend/internal/models"
)

type JobRepo struct {
	db *sql.DB
}

func NewJobRepo(db *sql.DB) *JobRepo {
	return &JobRepo{db: db}
}

func (r *JobRepo) Create(ctx context.Context, j *models.Job) error {
	j.ID = uuid.New()
	j.Status = models.JobPending
	j.RetryCount = 0
	j.MaxRetries = 3
	j.CreatedAt = time.Now().UTC()

	config := string(j.ConfigJSON)
	if config == "" {
		config = "{}"
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO jobs (id, user_id, type, reference_id, config_json, status, retry_count, max_retries, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		j.ID, j.UserID, j.Type, j.ReferenceID, config, j.Status, j.RetryCount, j.MaxRetries, j.CreatedAt,
	)
	return err
}

func (r *JobRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	j := &models.Job{}
	var config []byte
	var errMsg sql.NullString
	var completed sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, type, reference_id, config_json, status, retry_count, max_retries, error_message, created_at, completed_at
		 FROM jobs WHERE id = $1`, id,
	).Scan(&j.ID, &j.UserID, &j.Type, &j.ReferenceID, &config, &j.Status,
		&j.RetryCount, &j.MaxRetries, &errMsg, &j.CreatedAt, &completed)
	if err != nil {
		return nil, translate(err)
	}
	j.ConfigJSON = json.RawMessage(config)
	if errMsg.Valid {
		j.ErrorMessage = &errMsg.String
	}
	if completed.Valid {
		j.CompletedAt = &completed.Time
	}
	return j, nil
}

func (r *JobRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	if status == models.JobCompleted || status == models.JobFailed {
		_, err := r.db.ExecContext(ctx, "UPDATE jobs SET status = $1, completed_at = $2 WHERE id = $3", status, time.Now().UTC(), id)
		return err
	}
	_, err := r.db.ExecContext(ctx, "UPDATE jobs SET status = $1 WHERE id = $2", status, id)
	return err
}

func (r *JobRepo) UpdateError(ctx context.Context, id uuid.UUID, errMsg string, retryCount int) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE jobs SET error_message = $1, retry_count = $2 WHERE id = $3",
		errMsg, retryCount, id,
	)
	return err
}
