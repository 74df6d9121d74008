package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"patashala-backend/internal/models"
)

// ContentRepo reads the host's content rows. The engine never writes them.
type ContentRepo struct {
	pool *pgxpool.Pool
}

func NewContentRepo(pool *pgxpool.Pool) *ContentRepo {
	return &ContentRepo{pool: pool}
}

func (r *ContentRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Content, error) {
	c := &models.Content{}
	query := `SELECT id, user_id, title, status, file_path, extracted_text, created_at
		FROM content WHERE id = $1`

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.UserID, &c.Title, &c.Status, &c.FilePath, &c.ExtractedText, &c.CreatedAt,
	)
	if err != nil {
		return nil, translate(err)
	}
	return c, nil
}
