package access

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"patashala-backend/internal/models"
)

type stubRecords struct {
	exists bool
	err    error
	calls  int
}

func (s *stubRecords) Exists(ctx context.Context, quizID, learnerID uuid.UUID) (bool, error) {
	s.calls++
	return s.exists, s.err
}

func publishedQuiz(author uuid.UUID) *models.Quiz {
	return &models.Quiz{
		ID:        uuid.New(),
		AuthorID:  author,
		Published: true,
		Enabled:   true,
		Questions: []models.QuestionItem{{ID: uuid.New()}},
	}
}

func TestCanStart(t *testing.T) {
	author := uuid.New()
	learner := Caller{ID: uuid.New(), Role: RoleLearner}
	faculty := Caller{ID: author, Role: RoleFaculty}
	otherFaculty := Caller{ID: uuid.New(), Role: RoleFaculty}

	unpublished := publishedQuiz(author)
	unpublished.Published = false
	disabled := publishedQuiz(author)
	disabled.Enabled = false
	empty := publishedQuiz(author)
	empty.Questions = nil

	tests := []struct {
		name    string
		caller  Caller
		quiz    *models.Quiz
		mode    models.Mode
		records *stubRecords
		check   func(error) bool
	}{
		{"graded ok", learner, publishedQuiz(author), models.ModeGraded, &stubRecords{}, func(err error) bool { return err == nil }},
		{"graded unpublished", learner, unpublished, models.ModeGraded, &stubRecords{}, isType[*models.NotAvailableError]},
		{"graded disabled", learner, disabled, models.ModeGraded, &stubRecords{}, isType[*models.NotAvailableError]},
		{"graded no questions", learner, empty, models.ModeGraded, &stubRecords{}, isType[*models.NotAvailableError]},
		{"graded already recorded", learner, publishedQuiz(author), models.ModeGraded, &stubRecords{exists: true}, isType[*models.AttemptBlockedError]},
		{"graded by faculty", faculty, publishedQuiz(author), models.ModeGraded, &stubRecords{}, isType[*models.ForbiddenError]},
		{"test by author on unpublished quiz", faculty, unpublished, models.ModeTest, &stubRecords{exists: true}, func(err error) bool { return err == nil }},
		{"test by other faculty", otherFaculty, publishedQuiz(author), models.ModeTest, &stubRecords{}, isType[*models.ForbiddenError]},
		{"test by learner", learner, publishedQuiz(author), models.ModeTest, &stubRecords{}, isType[*models.ForbiddenError]},
		{"unknown mode", learner, publishedQuiz(author), models.Mode("practice"), &stubRecords{}, isType[*models.ValidationError]},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			checker := NewChecker(tc.records, nil)
			err := checker.CanStart(context.Background(), tc.caller, tc.quiz, tc.mode)
			if !tc.check(err) {
				t.Fatalf("unexpected result: %v", err)
			}
		})
	}
}

func TestCanStart_TestModeSkipsRecordLookup(t *testing.T) {
	author := uuid.New()
	records := &stubRecords{exists: true}
	checker := NewChecker(records, nil)

	if err := checker.CanStart(context.Background(), Caller{ID: author, Role: RoleFaculty}, publishedQuiz(author), models.ModeTest); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if records.calls != 0 {
		t.Fatalf("expected no record lookup, got %d", records.calls)
	}
}

func TestCanStart_LookupFailure(t *testing.T) {
	checker := NewChecker(&stubRecords{err: errors.New("db down")}, nil)
	err := checker.CanStart(context.Background(), Caller{ID: uuid.New(), Role: RoleLearner}, publishedQuiz(uuid.New()), models.ModeGraded)
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestCanManage(t *testing.T) {
	author := uuid.New()
	quiz := publishedQuiz(author)
	checker := NewChecker(&stubRecords{}, nil)

	if err := checker.CanManage(Caller{ID: author, Role: RoleFaculty}, quiz); err != nil {
		t.Fatalf("expected author to manage, got %v", err)
	}
	if err := checker.CanManage(Caller{ID: uuid.New(), Role: RoleAdmin}, quiz); err != nil {
		t.Fatalf("expected admin to manage, got %v", err)
	}
	var forbidden *models.ForbiddenError
	if err := checker.CanManage(Caller{ID: uuid.New(), Role: RoleFaculty}, quiz); !errors.As(err, &forbidden) {
		t.Fatalf("expected ForbiddenError, got %v", err)
	}
	if err := checker.CanManage(Caller{ID: author, Role: RoleLearner}, quiz); !errors.As(err, &forbidden) {
		t.Fatalf("expected ForbiddenError for learner, got %v", err)
	}
}

func TestHas_Wildcards(t *testing.T) {
	checker := NewChecker(&stubRecords{}, map[string][]string{
		"reviewer": {"records:*"},
	})
	if !checker.Has("reviewer", PermRecordsView) {
		t.Fatal("expected prefix wildcard to match")
	}
	if checker.Has("reviewer", PermQuizManage) {
		t.Fatal("expected quiz:manage to be denied")
	}
	if checker.Has("nobody", PermAttemptGraded) {
		t.Fatal("expected unknown role to be denied")
	}
}

func isType[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}
