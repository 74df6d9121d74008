// Package access decides who may open an attempt session on a quiz and who
// may manage it.
package access

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"patashala-backend/internal/models"
)

const (
	RoleLearner = "learner"
	RoleFaculty = "faculty"
	RoleAdmin   = "admin"
)

const (
	PermAttemptGraded = "attempt:graded"
	PermAttemptTest   = "attempt:test"
	PermQuizManage    = "quiz:manage"
	PermRecordsView   = "records:view-all"
)

// RolePermissions is the default policy.
var RolePermissions = map[string][]string{
	RoleLearner: {
		PermAttemptGraded,
	},
	RoleFaculty: {
		PermAttemptTest,
		PermQuizManage,
		PermRecordsView,
	},
	RoleAdmin: {"*"},
}

type Caller struct {
	ID   uuid.UUID
	Role string
}

// RecordLookup reports whether a graded record already exists.
type RecordLookup interface {
	Exists(ctx context.Context, quizID, learnerID uuid.UUID) (bool, error)
}

type Checker struct {
	perms   map[string][]string
	records RecordLookup
}

func NewChecker(records RecordLookup, rp map[string][]string) *Checker {
	if rp == nil {
		rp = RolePermissions
	}
	return &Checker{perms: rp, records: records}
}

func (c *Checker) Has(role, perm string) bool {
	for _, p := range c.perms[role] {
		if p == "*" || p == perm {
			return true
		}
		if strings.HasSuffix(p, "*") && strings.HasPrefix(perm, strings.TrimSuffix(p, "*")) {
			return true
		}
	}
	return false
}

// CanStart gates a new session. Graded attempts need an available quiz and
// no prior record; test attempts are reserved for the quiz's author.
func (c *Checker) CanStart(ctx context.Context, caller Caller, quiz *models.Quiz, mode models.Mode) error {
	switch mode {
	case models.ModeTest:
		if !c.Has(caller.Role, PermAttemptTest) || caller.ID != quiz.AuthorID {
			return &models.ForbiddenError{Message: "Only the quiz author can take it in test mode"}
		}
		if len(quiz.Questions) == 0 {
			return &models.NotAvailableError{Message: "Quiz has no questions"}
		}
		return nil
	case models.ModeGraded:
		if !c.Has(caller.Role, PermAttemptGraded) {
			return &models.ForbiddenError{Message: "Your role cannot take graded attempts"}
		}
		if !quiz.Available() {
			return &models.NotAvailableError{Message: "Quiz is not available"}
		}
		exists, err := c.records.Exists(ctx, quiz.ID, caller.ID)
		if err != nil {
			return fmt.Errorf("failed to check attempt records: %w", err)
		}
		if exists {
			return &models.AttemptBlockedError{QuizID: quiz.ID, LearnerID: caller.ID}
		}
		return nil
	default:
		return &models.ValidationError{Fields: map[string]string{"mode": "must be graded or test"}}
	}
}

// CanManage allows the author to regenerate, publish, enable and review
// records. Admins may manage any quiz.
func (c *Checker) CanManage(caller Caller, quiz *models.Quiz) error {
	if caller.Role == RoleAdmin {
		return nil
	}
	if !c.Has(caller.Role, PermQuizManage) || caller.ID != quiz.AuthorID {
		return &models.ForbiddenError{Message: "Only the quiz author can manage this quiz"}
	}
	return nil
}

// RequireFaculty gates quiz generation.
func (c *Checker) RequireFaculty(caller Caller) error {
	if !c.Has(caller.Role, PermQuizManage) {
		return &models.ForbiddenError{Message: "Faculty role required"}
	}
	return nil
}
