package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"patashala-backend/internal/models"
)

type ContentRepo struct {
	db *sql.DB
}

func NewContentRepo(db *sql.DB) *ContentRepo {
	return &ContentRepo{db: db}
}

func (r *ContentRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Content, error) {
	c := &models.Content{}
	var filePath, text sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, status, file_path, extracted_text, created_at FROM content WHERE id = $1`, id,
	).Scan(&c.ID, &c.UserID, &c.Title, &c.Status, &filePath, &text, &c.CreatedAt)
	if err != nil {
		return nil, translate(err)
	}
	if filePath.Valid {
		c.FilePath = &filePath.String
	}
	if text.Valid {
		c.ExtractedText = &text.String
	}
	return c, nil
}

// Put inserts a content row. The host owns this table in production; local
// runs and tests seed it through here.
func (r *ContentRepo) Put(ctx context.Context, c *models.Content) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = "completed"
	}
	c.CreatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO content (id, user_id, title, status, file_path, extracted_text, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.UserID, c.Title, c.Status, c.FilePath, c.ExtractedText, c.CreatedAt,
	)
	return translate(err)
}
