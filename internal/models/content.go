package models

import (
	"time"

	"github.com/google/uuid"
)

// Content is the host's record of an uploaded source item. The engine only
// reads it.
type Content struct {
	ID            uuid.UUID `json:"id"`
	UserID        uuid.UUID `json:"user_id"`
	Title         string    `json:"title"`
	Status        string    `json:"status"` // "pending" | "processing" | "completed" | "failed"
	FilePath      *string   `json:"file_path"`
	ExtractedText *string   `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
}
