package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"patashala-backend/internal/access"
	"patashala-backend/internal/difficulty"
	"patashala-backend/internal/evaluator"
	"patashala-backend/internal/feedback"
	"patashala-backend/internal/models"
	"patashala-backend/internal/session"
)

type attemptFixture struct {
	svc      *AttemptService
	quiz     *models.Quiz
	attempts *stubAttemptStore
	sessions *session.MemoryStore
	tagger   *recordingTagger
	author   access.Caller
	learner  access.Caller
}

func newAttemptFixture(t *testing.T, adaptive bool) *attemptFixture {
	t.Helper()
	author := access.Caller{ID: uuid.New(), Role: access.RoleFaculty}
	quiz := &models.Quiz{
		ID:        uuid.New(),
		ContentID: uuid.New(),
		AuthorID:  author.ID,
		Subject:   "Biology",
		Baseline:  difficulty.Medium,
		Enabled:   true,
		Published: true,
		Adaptive:  adaptive,
		Status:    models.QuizReady,
	}
	for _, tier := range []difficulty.Tier{difficulty.Easy, difficulty.Medium, difficulty.Hard} {
		for i := 0; i < 4; i++ {
			quiz.Questions = append(quiz.Questions, models.QuestionItem{
				ID:           uuid.New(),
				Type:         models.QuestionTrueFalse,
				Prompt:       "True or False: mitochondria produce ATP",
				Options:      []string{"True", "False"},
				CorrectIndex: 0,
				Explanation:  "Mitochondria produce ATP.",
				Difficulty:   tier,
				Topic:        "cells",
			})
		}
	}

	attempts := &stubAttemptStore{}
	sessions := session.NewMemoryStore(time.Minute)
	t.Cleanup(sessions.Close)
	tagger := &recordingTagger{}
	svc := NewAttemptService(
		newStubQuizStore(quiz),
		attempts,
		sessions,
		evaluator.New(),
		nil,
		access.NewChecker(attempts, nil),
		tagger,
		10,
	)
	return &attemptFixture{
		svc:      svc,
		quiz:     quiz,
		attempts: attempts,
		sessions: sessions,
		tagger:   tagger,
		author:   author,
		learner:  access.Caller{ID: uuid.New(), Role: access.RoleLearner},
	}
}

func choice(i int) *int { return &i }

// runAttempt answers every question, correct when the predicate says so.
func runAttempt(t *testing.T, f *attemptFixture, caller access.Caller, mode models.Mode, correct func(n int) bool) (*StartResult, *SubmitResult, error) {
	t.Helper()
	ctx := context.Background()
	start, err := f.svc.Start(ctx, caller, f.quiz.ID, mode)
	if err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}

	q := start.Question
	for n := 1; ; n++ {
		idx := 1
		if correct(n) {
			idx = 0
		}
		res, err := f.svc.Submit(ctx, caller, start.SessionID, models.SubmitAnswerRequest{
			QuestionID:    q.ID,
			SelectedIndex: choice(idx),
		})
		if err != nil {
			return start, nil, err
		}
		if res.Summary != nil {
			return start, res, nil
		}
		if res.NextQuestion == nil {
			t.Fatalf("expected next question after answer %d", n)
		}
		q = res.NextQuestion
	}
}

func always(int) bool { return true }

func TestAttempt_ScenarioC_SecondGradedAttemptBlocked(t *testing.T) {
	f := newAttemptFixture(t, true)

	_, res, err := runAttempt(t, f, f.learner, models.ModeGraded, func(n int) bool { return n <= 8 })
	if err != nil {
		t.Fatalf("expected first attempt to complete, got %v", err)
	}
	if res.Summary.Evaluation == nil || res.Summary.RecordID == nil {
		t.Fatalf("expected evaluation and record, got %+v", res.Summary)
	}
	if res.Summary.Evaluation.Score != 0.8 {
		t.Fatalf("expected score 0.8, got %v", res.Summary.Evaluation.Score)
	}
	if len(res.Summary.Answers) != 10 || len(res.Summary.Trajectory) != 10 {
		t.Fatalf("expected 10 answers and trajectory steps, got %d/%d", len(res.Summary.Answers), len(res.Summary.Trajectory))
	}

	for i := 0; i < 2; i++ {
		_, err := f.svc.Start(context.Background(), f.learner, f.quiz.ID, models.ModeGraded)
		var blocked *models.AttemptBlockedError
		if !errors.As(err, &blocked) {
			t.Fatalf("expected AttemptBlockedError on retry %d, got %v", i+1, err)
		}
	}
	if len(f.attempts.records) != 1 {
		t.Fatalf("expected exactly one record, got %d", len(f.attempts.records))
	}
	if len(f.tagger.tags) != 1 {
		t.Fatalf("expected one feedback tag, got %d", len(f.tagger.tags))
	}
}

func TestAttempt_ScenarioD_TestModeNeverPersists(t *testing.T) {
	f := newAttemptFixture(t, true)

	_, res, err := runAttempt(t, f, f.author, models.ModeTest, always)
	if err != nil {
		t.Fatalf("expected test attempt to complete, got %v", err)
	}
	if res.Summary.Mode != models.ModeTest || res.Summary.Evaluation != nil || res.Summary.RecordID != nil {
		t.Fatalf("expected unrecorded test summary, got %+v", res.Summary)
	}
	if f.attempts.inserts != 0 {
		t.Fatalf("expected no record insert, got %d", f.attempts.inserts)
	}

	// Test mode may be repeated.
	if _, _, err := runAttempt(t, f, f.author, models.ModeTest, always); err != nil {
		t.Fatalf("expected second test attempt, got %v", err)
	}
}

func TestAttempt_TestModeRequiresAuthor(t *testing.T) {
	f := newAttemptFixture(t, false)
	var forbidden *models.ForbiddenError
	if _, err := f.svc.Start(context.Background(), f.learner, f.quiz.ID, models.ModeTest); !errors.As(err, &forbidden) {
		t.Fatalf("expected ForbiddenError, got %v", err)
	}
}

func TestAttempt_GradedUnavailable(t *testing.T) {
	f := newAttemptFixture(t, false)
	f.svc.quizzes.SetPublished(context.Background(), f.quiz.ID, false)

	var na *models.NotAvailableError
	if _, err := f.svc.Start(context.Background(), f.learner, f.quiz.ID, models.ModeGraded); !errors.As(err, &na) {
		t.Fatalf("expected NotAvailableError, got %v", err)
	}
}

func TestAttempt_StartResumesLiveSession(t *testing.T) {
	f := newAttemptFixture(t, false)
	ctx := context.Background()

	first, err := f.svc.Start(ctx, f.learner, f.quiz.ID, models.ModeGraded)
	if err != nil {
		t.Fatalf("expected start, got %v", err)
	}
	again, err := f.svc.Start(ctx, f.learner, f.quiz.ID, models.ModeGraded)
	if err != nil {
		t.Fatalf("expected resume, got %v", err)
	}
	if again.SessionID != first.SessionID || !again.Resumed || again.Question.ID != first.Question.ID {
		t.Fatalf("expected same session and question, got %+v", again)
	}

	var conflict *models.ConflictError
	if _, err := f.svc.Start(ctx, f.learner, f.quiz.ID, models.ModeTest); !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError for mode mismatch, got %v", err)
	}
}

func TestAttempt_StaleSubmit(t *testing.T) {
	f := newAttemptFixture(t, false)
	ctx := context.Background()
	start, _ := f.svc.Start(ctx, f.learner, f.quiz.ID, models.ModeGraded)

	var stale *models.StaleSessionError
	_, err := f.svc.Submit(ctx, f.learner, start.SessionID, models.SubmitAnswerRequest{QuestionID: uuid.New(), SelectedIndex: choice(0)})
	if !errors.As(err, &stale) {
		t.Fatalf("expected StaleSessionError, got %v", err)
	}

	res, err := f.svc.Submit(ctx, f.learner, start.SessionID, models.SubmitAnswerRequest{QuestionID: start.Question.ID, SelectedIndex: choice(0)})
	if err != nil || !res.Result.Correct {
		t.Fatalf("expected correct answer, got %+v, %v", res, err)
	}

	_, err = f.svc.Submit(ctx, f.learner, start.SessionID, models.SubmitAnswerRequest{QuestionID: start.Question.ID, SelectedIndex: choice(0)})
	if !errors.As(err, &stale) {
		t.Fatalf("expected StaleSessionError on replay, got %v", err)
	}
}

func TestAttempt_SubmitWhileLocked(t *testing.T) {
	f := newAttemptFixture(t, false)
	ctx := context.Background()
	start, _ := f.svc.Start(ctx, f.learner, f.quiz.ID, models.ModeGraded)

	unlock, err := f.sessions.Lock(ctx, start.SessionID)
	if err != nil {
		t.Fatalf("expected lock, got %v", err)
	}
	defer unlock()

	var stale *models.StaleSessionError
	_, err = f.svc.Submit(ctx, f.learner, start.SessionID, models.SubmitAnswerRequest{QuestionID: start.Question.ID, SelectedIndex: choice(0)})
	if !errors.As(err, &stale) {
		t.Fatalf("expected StaleSessionError while locked, got %v", err)
	}
}

func TestAttempt_InvalidAnswerKeepsTurn(t *testing.T) {
	f := newAttemptFixture(t, false)
	ctx := context.Background()
	start, _ := f.svc.Start(ctx, f.learner, f.quiz.ID, models.ModeGraded)

	var invalid *models.ValidationError
	_, err := f.svc.Submit(ctx, f.learner, start.SessionID, models.SubmitAnswerRequest{QuestionID: start.Question.ID, SelectedIndex: choice(7)})
	if !errors.As(err, &invalid) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	view, err := f.svc.Current(ctx, f.learner, start.SessionID)
	if err != nil {
		t.Fatalf("expected current view, got %v", err)
	}
	if view.Answered != 0 || view.Question == nil || view.Question.ID != start.Question.ID {
		t.Fatalf("expected unchanged turn, got %+v", view)
	}
}

func TestAttempt_PersistenceFailureThenFinalize(t *testing.T) {
	f := newAttemptFixture(t, false)
	f.attempts.insertErr = errors.New("connection reset")

	start, _, err := runAttempt(t, f, f.learner, models.ModeGraded, always)
	var pe *models.PersistenceError
	if !errors.As(err, &pe) || !pe.Retryable {
		t.Fatalf("expected retryable PersistenceError, got %v", err)
	}

	ctx := context.Background()
	view, err := f.svc.Current(ctx, f.learner, start.SessionID)
	if err != nil {
		t.Fatalf("expected session kept for retry, got %v", err)
	}
	if view.State != session.Scored || !view.PendingFinalize {
		t.Fatalf("expected scored session pending finalize, got %+v", view)
	}

	resumed, err := f.svc.Start(ctx, f.learner, f.quiz.ID, models.ModeGraded)
	if err != nil || !resumed.PendingFinalize {
		t.Fatalf("expected resume to report pending finalize, got %+v, %v", resumed, err)
	}

	f.attempts.insertErr = nil
	summary, err := f.svc.Finalize(ctx, f.learner, start.SessionID)
	if err != nil {
		t.Fatalf("expected finalize to succeed, got %v", err)
	}
	if summary.RecordID == nil || summary.Evaluation == nil || summary.Evaluation.Score != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if _, err := f.svc.Current(ctx, f.learner, start.SessionID); err == nil {
		t.Fatal("expected session removed after finalize")
	}
}

func TestAttempt_DuplicateAtCompletionBlocks(t *testing.T) {
	f := newAttemptFixture(t, false)
	ctx := context.Background()
	start, _ := f.svc.Start(ctx, f.learner, f.quiz.ID, models.ModeGraded)

	// Another instance wrote the record while this session was live.
	f.attempts.records = append(f.attempts.records, &models.AttemptRecord{QuizID: f.quiz.ID, LearnerID: f.learner.ID})

	q := start.Question
	var err error
	for i := 0; i < 10; i++ {
		var res *SubmitResult
		res, err = f.svc.Submit(ctx, f.learner, start.SessionID, models.SubmitAnswerRequest{QuestionID: q.ID, SelectedIndex: choice(0)})
		if err != nil {
			break
		}
		q = res.NextQuestion
	}
	var blocked *models.AttemptBlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("expected AttemptBlockedError at completion, got %v", err)
	}
}

func TestAttempt_AdaptiveSeedingFromSubjectHistory(t *testing.T) {
	f := newAttemptFixture(t, true)
	f.attempts.prior = []float64{0.9, 0.85}

	start, err := f.svc.Start(context.Background(), f.learner, f.quiz.ID, models.ModeGraded)
	if err != nil {
		t.Fatalf("expected start, got %v", err)
	}
	if start.Question.Difficulty != difficulty.Hard {
		t.Fatalf("expected hard first question, got %s", start.Question.Difficulty)
	}
}

func TestAttempt_AbandonDiscardsSession(t *testing.T) {
	f := newAttemptFixture(t, false)
	ctx := context.Background()
	start, _ := f.svc.Start(ctx, f.learner, f.quiz.ID, models.ModeGraded)

	if err := f.svc.Abandon(ctx, f.learner, start.SessionID); err != nil {
		t.Fatalf("expected abandon, got %v", err)
	}
	var nf *models.NotFoundError
	if _, err := f.svc.Current(ctx, f.learner, start.SessionID); !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError after abandon, got %v", err)
	}
	if f.attempts.inserts != 0 {
		t.Fatalf("expected no record, got %d inserts", f.attempts.inserts)
	}

	again, err := f.svc.Start(ctx, f.learner, f.quiz.ID, models.ModeGraded)
	if err != nil || again.Resumed {
		t.Fatalf("expected fresh session after abandon, got %+v, %v", again, err)
	}
}

func TestAttempt_OtherLearnerCannotSeeSession(t *testing.T) {
	f := newAttemptFixture(t, false)
	ctx := context.Background()
	start, _ := f.svc.Start(ctx, f.learner, f.quiz.ID, models.ModeGraded)

	other := access.Caller{ID: uuid.New(), Role: access.RoleLearner}
	var nf *models.NotFoundError
	if _, err := f.svc.Current(ctx, other, start.SessionID); !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestStart_ConcurrentStartsShareOneSession(t *testing.T) {
	f := newAttemptFixture(t, true)
	ctx := context.Background()

	const callers = 16
	results := make([]*StartResult, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.Start(ctx, f.learner, f.quiz.ID, models.ModeGraded)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("start %d: unexpected error %v", i, errs[i])
		}
		if results[i].SessionID != results[0].SessionID {
			t.Fatalf("expected one session, got %s and %s", results[0].SessionID, results[i].SessionID)
		}
		if results[i].Question == nil || results[i].Question.ID != results[0].Question.ID {
			t.Fatalf("start %d: expected the same first question", i)
		}
	}
	active, err := f.sessions.Active(ctx, f.quiz.ID, f.learner.ID)
	if err != nil || active.ID != results[0].SessionID {
		t.Fatalf("expected stored session %s, got %v, %v", results[0].SessionID, active, err)
	}
}

// gatedQuizStore holds GetByID until the expected number of callers arrive.
type gatedQuizStore struct {
	QuizStore
	arrived atomic.Int32
	release chan struct{}
}

func (g *gatedQuizStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Quiz, error) {
	g.arrived.Add(1)
	<-g.release
	return g.QuizStore.GetByID(ctx, id)
}

func TestStart_ConcurrentModesDoNotShareResult(t *testing.T) {
	f := newAttemptFixture(t, false)
	gate := &gatedQuizStore{QuizStore: f.svc.quizzes, release: make(chan struct{})}
	f.svc.quizzes = gate
	admin := access.Caller{ID: f.author.ID, Role: access.RoleAdmin}

	modes := []models.Mode{models.ModeGraded, models.ModeTest}
	results := make([]*StartResult, len(modes))
	errs := make([]error, len(modes))
	var wg sync.WaitGroup
	for i, mode := range modes {
		wg.Add(1)
		go func(i int, mode models.Mode) {
			defer wg.Done()
			results[i], errs[i] = f.svc.Start(context.Background(), admin, f.quiz.ID, mode)
		}(i, mode)
	}

	deadline := time.Now().Add(2 * time.Second)
	for gate.arrived.Load() < int32(len(modes)) {
		if time.Now().After(deadline) {
			close(gate.release)
			wg.Wait()
			t.Fatalf("expected both modes to load the quiz, got %d", gate.arrived.Load())
		}
		time.Sleep(time.Millisecond)
	}
	close(gate.release)
	wg.Wait()

	won := 0
	for i, mode := range modes {
		var conflict *models.ConflictError
		switch {
		case errs[i] == nil:
			won++
			if results[i].Mode != mode {
				t.Fatalf("expected %s session, got %s", mode, results[i].Mode)
			}
		case errors.As(errs[i], &conflict):
		default:
			t.Fatalf("%s start: unexpected error %v", mode, errs[i])
		}
	}
	if won != 1 {
		t.Fatalf("expected exactly one start to win, got %d", won)
	}
}

// ctxQuizStore fails reads on a done context, like a real driver.
type ctxQuizStore struct{ QuizStore }

func (c ctxQuizStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Quiz, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.QuizStore.GetByID(ctx, id)
}

func TestStart_CancelledCallerDoesNotFailSharedStart(t *testing.T) {
	f := newAttemptFixture(t, false)
	f.svc.quizzes = ctxQuizStore{f.svc.quizzes}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.svc.Start(ctx, f.learner, f.quiz.ID, models.ModeGraded)
	if err != nil {
		t.Fatalf("expected start to run detached from caller cancellation, got %v", err)
	}
	if res.Question == nil {
		t.Fatalf("expected first question")
	}
}

type failingWriter struct{ calls atomic.Int32 }

func (w *failingWriter) WriteFeedback(ctx context.Context, req feedback.Request) (*feedback.Personalized, error) {
	w.calls.Add(1)
	return nil, errors.New("model unavailable")
}

func TestSubmit_FeedbackWriterFailureStillRecords(t *testing.T) {
	f := newAttemptFixture(t, true)
	w := &failingWriter{}
	f.svc.synth = feedback.NewSynthesizer(w)

	_, res, err := runAttempt(t, f, f.learner, models.ModeGraded, func(n int) bool { return n%2 == 0 })
	if err != nil {
		t.Fatalf("expected completion, got %v", err)
	}
	if w.calls.Load() != 1 {
		t.Fatalf("expected one feedback request, got %d", w.calls.Load())
	}
	ev := res.Summary.Evaluation
	if ev == nil || len(ev.Misconceptions) == 0 || len(ev.RecommendedResources) == 0 || len(ev.SuggestedConcepts) == 0 {
		t.Fatalf("expected rule-based feedback, got %+v", ev)
	}
	if len(f.attempts.records) != 1 {
		t.Fatalf("expected one record, got %d", len(f.attempts.records))
	}
}
