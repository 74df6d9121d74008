package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"patashala-backend/internal/difficulty"
	"patashala-backend/internal/models"
)

func tieredQuiz(adaptive bool, tiers ...difficulty.Tier) *models.Quiz {
	q := &models.Quiz{ID: uuid.New(), Subject: "Biology", Adaptive: adaptive, Published: true, Enabled: true}
	for _, t := range tiers {
		q.Questions = append(q.Questions, models.QuestionItem{
			ID:         uuid.New(),
			Type:       models.QuestionTrueFalse,
			Prompt:     "True or False: cells divide",
			Options:    []string{"True", "False"},
			Difficulty: t,
		})
	}
	return q
}

func answer(t *testing.T, s *Session, q models.QuestionItem, score float64, now time.Time) {
	t.Helper()
	if err := s.CheckTurn(q.ID); err != nil {
		t.Fatalf("expected turn for %s, got %v", q.ID, err)
	}
	if err := s.Record(models.AnswerRecord{QuestionID: q.ID, Score: score, Difficulty: q.Difficulty}, now); err != nil {
		t.Fatalf("expected record to succeed, got %v", err)
	}
}

func TestTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    State
		event   Event
		want    State
		wantErr bool
	}{
		{"start", NotStarted, EventStart, AwaitingAnswer, false},
		{"submit", AwaitingAnswer, EventSubmit, Scored, false},
		{"advance", Scored, EventAdvance, AwaitingAnswer, false},
		{"complete", Scored, EventComplete, Completed, false},
		{"abandon while awaiting", AwaitingAnswer, EventAbandon, Abandoned, false},
		{"double submit", Scored, EventSubmit, Scored, true},
		{"submit before start", NotStarted, EventSubmit, NotStarted, true},
		{"restart completed", Completed, EventStart, Completed, true},
		{"abandon completed", Completed, EventAbandon, Completed, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Transition(tc.from, tc.event)
			if tc.wantErr {
				var conflict *models.ConflictError
				if !errors.As(err, &conflict) {
					t.Fatalf("expected ConflictError, got %v", err)
				}
			} else if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestSession_AdaptiveTrajectory(t *testing.T) {
	quiz := tieredQuiz(true,
		difficulty.Easy, difficulty.Easy,
		difficulty.Medium, difficulty.Medium,
		difficulty.Hard, difficulty.Hard,
	)
	now := time.Now()
	s := New(quiz, uuid.New(), models.ModeGraded, difficulty.Medium, 4, now)

	q, err := s.Begin(quiz, now)
	if err != nil {
		t.Fatalf("expected begin to succeed, got %v", err)
	}
	if q.Difficulty != difficulty.Medium {
		t.Fatalf("expected first question medium, got %s", q.Difficulty)
	}

	for _, score := range []float64{1, 1, 0} {
		answer(t, s, q, score, now)
		q, err = s.Advance(quiz, score, now)
		if err != nil {
			t.Fatalf("expected advance to succeed, got %v", err)
		}
	}
	answer(t, s, q, 0, now)

	want := []difficulty.Tier{difficulty.Medium, difficulty.Hard, difficulty.Hard, difficulty.Medium}
	if len(s.Trajectory) != len(want) {
		t.Fatalf("expected trajectory %v, got %v", want, s.Trajectory)
	}
	for i := range want {
		if s.Trajectory[i] != want[i] {
			t.Fatalf("expected trajectory %v, got %v", want, s.Trajectory)
		}
	}
	if !s.Done() {
		t.Fatal("expected session to be done")
	}
	if err := s.Complete(now); err != nil {
		t.Fatalf("expected complete to succeed, got %v", err)
	}
	if s.State != Completed {
		t.Fatalf("expected completed, got %s", s.State)
	}
}

func TestSession_AdaptiveFallsBackToNearestTier(t *testing.T) {
	quiz := tieredQuiz(true, difficulty.Easy, difficulty.Easy, difficulty.Easy)
	now := time.Now()
	s := New(quiz, uuid.New(), models.ModeTest, difficulty.Hard, 0, now)

	q, err := s.Begin(quiz, now)
	if err != nil {
		t.Fatalf("expected begin to succeed, got %v", err)
	}
	if q.Difficulty != difficulty.Easy {
		t.Fatalf("expected easy fallback, got %s", q.Difficulty)
	}
	if s.Total != 3 {
		t.Fatalf("expected total capped at 3, got %d", s.Total)
	}
}

func TestSession_NonAdaptiveServesInOrder(t *testing.T) {
	quiz := tieredQuiz(false, difficulty.Hard, difficulty.Easy, difficulty.Medium)
	now := time.Now()
	s := New(quiz, uuid.New(), models.ModeGraded, difficulty.Medium, 10, now)

	q, _ := s.Begin(quiz, now)
	for i := 0; i < 2; i++ {
		if q.ID != quiz.Questions[i].ID {
			t.Fatalf("expected question %d served, got %s", i, q.ID)
		}
		answer(t, s, q, 0, now)
		q, _ = s.Advance(quiz, 0, now)
	}
	if q.ID != quiz.Questions[2].ID {
		t.Fatalf("expected last question served, got %s", q.ID)
	}
}

func TestSession_CheckTurn(t *testing.T) {
	quiz := tieredQuiz(false, difficulty.Medium, difficulty.Medium)
	now := time.Now()
	s := New(quiz, uuid.New(), models.ModeGraded, difficulty.Medium, 2, now)
	first, _ := s.Begin(quiz, now)

	var stale *models.StaleSessionError
	if err := s.CheckTurn(quiz.Questions[1].ID); !errors.As(err, &stale) {
		t.Fatalf("expected StaleSessionError for wrong question, got %v", err)
	}

	answer(t, s, first, 1, now)
	if err := s.CheckTurn(first.ID); !errors.As(err, &stale) {
		t.Fatalf("expected StaleSessionError for duplicate submit, got %v", err)
	}

	var conflict *models.ConflictError
	if err := s.CheckTurn(uuid.New()); !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError for submit while scored, got %v", err)
	}
}

func TestSession_BeginEmptyQuiz(t *testing.T) {
	quiz := tieredQuiz(false)
	s := New(quiz, uuid.New(), models.ModeGraded, difficulty.Medium, 10, time.Now())

	var na *models.NotAvailableError
	if _, err := s.Begin(quiz, time.Now()); !errors.As(err, &na) {
		t.Fatalf("expected NotAvailableError, got %v", err)
	}
}

func TestSession_CompleteTooEarly(t *testing.T) {
	quiz := tieredQuiz(false, difficulty.Medium, difficulty.Medium)
	now := time.Now()
	s := New(quiz, uuid.New(), models.ModeGraded, difficulty.Medium, 2, now)
	q, _ := s.Begin(quiz, now)
	answer(t, s, q, 1, now)

	if err := s.Complete(now); err == nil {
		t.Fatal("expected error completing with questions left")
	}
	if s.Score() != 1 {
		t.Fatalf("expected running score 1, got %v", s.Score())
	}
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestMemoryStore_ClaimResumesLiveSession(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	store := newMemoryStore(time.Minute, clock.now)
	ctx := context.Background()

	quiz := tieredQuiz(false, difficulty.Medium)
	learner := uuid.New()
	first := New(quiz, learner, models.ModeGraded, difficulty.Medium, 1, clock.t)

	got, err := store.Claim(ctx, first)
	if err != nil || got.ID != first.ID {
		t.Fatalf("expected first claim to win, got %v, %v", got, err)
	}

	second := New(quiz, learner, models.ModeGraded, difficulty.Medium, 1, clock.t)
	got, err = store.Claim(ctx, second)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.ID != first.ID {
		t.Fatalf("expected existing session %s, got %s", first.ID, got.ID)
	}

	active, err := store.Active(ctx, quiz.ID, learner)
	if err != nil || active.ID != first.ID {
		t.Fatalf("expected active session %s, got %v, %v", first.ID, active, err)
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	store := newMemoryStore(time.Minute, clock.now)
	ctx := context.Background()

	quiz := tieredQuiz(false, difficulty.Medium)
	s := New(quiz, uuid.New(), models.ModeGraded, difficulty.Medium, 1, clock.t)
	if _, err := store.Claim(ctx, s); err != nil {
		t.Fatalf("expected claim to succeed, got %v", err)
	}

	clock.t = clock.t.Add(45 * time.Second)
	if err := store.Save(ctx, s); err != nil {
		t.Fatalf("expected save to refresh ttl, got %v", err)
	}
	clock.t = clock.t.Add(45 * time.Second)
	if _, err := store.Get(ctx, s.ID); err != nil {
		t.Fatalf("expected session alive after refresh, got %v", err)
	}

	clock.t = clock.t.Add(2 * time.Minute)
	if n := store.Sweep(); n != 1 {
		t.Fatalf("expected 1 eviction, got %d", n)
	}
	if _, err := store.Get(ctx, s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.Active(ctx, quiz.ID, s.LearnerID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected slot released, got %v", err)
	}
	if err := store.Save(ctx, s); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected save of expired session to fail, got %v", err)
	}
}

func TestMemoryStore_RoundTripIsACopy(t *testing.T) {
	store := newMemoryStore(time.Minute, time.Now)
	ctx := context.Background()

	quiz := tieredQuiz(true, difficulty.Easy, difficulty.Hard)
	s := New(quiz, uuid.New(), models.ModeGraded, difficulty.Hard, 2, time.Now())
	if _, err := s.Begin(quiz, time.Now()); err != nil {
		t.Fatalf("expected begin to succeed, got %v", err)
	}
	if _, err := store.Claim(ctx, s); err != nil {
		t.Fatalf("expected claim to succeed, got %v", err)
	}
	s.Tier = difficulty.Easy

	got, err := store.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("expected get to succeed, got %v", err)
	}
	if got.Tier != difficulty.Hard || got.State != AwaitingAnswer || got.CurrentID != s.CurrentID {
		t.Fatalf("unexpected stored session %+v", got)
	}
}

func TestMemoryStore_Lock(t *testing.T) {
	store := newMemoryStore(time.Minute, time.Now)
	ctx := context.Background()
	id := uuid.New()

	unlock, err := store.Lock(ctx, id)
	if err != nil {
		t.Fatalf("expected lock, got %v", err)
	}
	if _, err := store.Lock(ctx, id); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	unlock()
	unlock2, err := store.Lock(ctx, id)
	if err != nil {
		t.Fatalf("expected lock after release, got %v", err)
	}
	unlock2()
}

func TestMemoryStore_DeleteReleasesSlot(t *testing.T) {
	store := newMemoryStore(time.Minute, time.Now)
	ctx := context.Background()

	quiz := tieredQuiz(false, difficulty.Medium)
	s := New(quiz, uuid.New(), models.ModeGraded, difficulty.Medium, 1, time.Now())
	store.Claim(ctx, s)

	if err := store.Delete(ctx, s); err != nil {
		t.Fatalf("expected delete to succeed, got %v", err)
	}
	if _, err := store.Active(ctx, quiz.ID, s.LearnerID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected slot released, got %v", err)
	}
}
