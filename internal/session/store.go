package session

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("attempt session not found")
	ErrLocked   = errors.New("attempt session is busy")
)

// Store holds live sessions. Entries expire after a period of inactivity;
// every Save refreshes the deadline.
type Store interface {
	// Claim saves s and binds its (quiz, learner) slot. If the slot already
	// points at a live session, that session is returned and s is discarded.
	Claim(ctx context.Context, s *Session) (*Session, error)
	Get(ctx context.Context, id uuid.UUID) (*Session, error)
	// Active returns the live session bound to (quiz, learner), or ErrNotFound.
	Active(ctx context.Context, quizID, learnerID uuid.UUID) (*Session, error)
	Save(ctx context.Context, s *Session) error
	// Delete removes s and releases its slot.
	Delete(ctx context.Context, s *Session) error
	// Lock takes the per-session submit lock, or returns ErrLocked.
	Lock(ctx context.Context, id uuid.UUID) (unlock func(), err error)
}
