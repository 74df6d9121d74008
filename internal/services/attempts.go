package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"patashala-backend/internal/access"
	"patashala-backend/internal/difficulty"
	"patashala-backend/internal/evaluator"
	"patashala-backend/internal/feedback"
	"patashala-backend/internal/models"
	"patashala-backend/internal/repository"
	"patashala-backend/internal/session"
)

type AttemptService struct {
	quizzes    QuizStore
	attempts   AttemptStore
	sessions   session.Store
	evaluator  *evaluator.Evaluator
	synth      *feedback.Synthesizer
	access     *access.Checker
	tagger     Tagger
	perAttempt int
	starts     singleflight.Group
	now        func() time.Time
}

func NewAttemptService(
	quizzes QuizStore,
	attempts AttemptStore,
	sessions session.Store,
	eval *evaluator.Evaluator,
	synth *feedback.Synthesizer,
	checker *access.Checker,
	tagger Tagger,
	perAttempt int,
) *AttemptService {
	if tagger == nil {
		tagger = NopTagger{}
	}
	if synth == nil {
		synth = feedback.NewSynthesizer(nil)
	}
	return &AttemptService{
		quizzes:    quizzes,
		attempts:   attempts,
		sessions:   sessions,
		evaluator:  eval,
		synth:      synth,
		access:     checker,
		tagger:     tagger,
		perAttempt: perAttempt,
		now:        time.Now,
	}
}

type StartResult struct {
	SessionID uuid.UUID            `json:"session_id"`
	Mode      models.Mode          `json:"mode"`
	Resumed   bool                 `json:"resumed"`
	Question  *models.QuestionView `json:"question"`
	// PendingFinalize is set when the attempt is answered but its record
	// has not been written yet.
	PendingFinalize bool `json:"pending_finalize,omitempty"`
}

type SubmitResult struct {
	Result       models.AnswerResult       `json:"result"`
	NextQuestion *models.QuestionView      `json:"next_question,omitempty"`
	Summary      *models.CompletionSummary `json:"summary,omitempty"`
}

type SessionView struct {
	SessionID       uuid.UUID            `json:"session_id"`
	QuizID          uuid.UUID            `json:"quiz_id"`
	Mode            models.Mode          `json:"mode"`
	State           session.State        `json:"state"`
	Answered        int                  `json:"answered"`
	Total           int                  `json:"total"`
	Question        *models.QuestionView `json:"question"`
	PendingFinalize bool                 `json:"pending_finalize"`
}

func persistence(op string, err error) error {
	return &models.PersistenceError{Op: op, Retryable: true, Err: err}
}

// Start opens a session, or resumes the live one for the same quiz and
// learner. Concurrent starts for one pair share a single result.
func (s *AttemptService) Start(ctx context.Context, caller access.Caller, quizID uuid.UUID, mode models.Mode) (*StartResult, error) {
	if mode == "" {
		mode = models.ModeGraded
	}
	if !mode.Valid() {
		return nil, &models.ValidationError{Fields: map[string]string{"mode": "must be graded or test"}}
	}

	// One flight per mode; the shared call must not die with the first caller.
	key := quizID.String() + ":" + caller.ID.String() + ":" + string(mode)
	flightCtx := context.WithoutCancel(ctx)
	v, err, _ := s.starts.Do(key, func() (interface{}, error) {
		return s.start(flightCtx, caller, quizID, mode)
	})
	if err != nil {
		return nil, err
	}
	return v.(*StartResult), nil
}

func (s *AttemptService) start(ctx context.Context, caller access.Caller, quizID uuid.UUID, mode models.Mode) (*StartResult, error) {
	quiz, err := s.quizzes.GetByID(ctx, quizID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &models.NotFoundError{Message: "Quiz not found"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load quiz %s: %w", quizID, err)
	}

	existing, err := s.sessions.Active(ctx, quiz.ID, caller.ID)
	switch {
	case err == nil:
		return s.resume(existing, quiz, mode)
	case !errors.Is(err, session.ErrNotFound):
		return nil, persistence("load attempt session", err)
	}

	if err := s.access.CanStart(ctx, caller, quiz, mode); err != nil {
		return nil, err
	}

	now := s.now()
	sess := session.New(quiz, caller.ID, mode, s.startTier(ctx, caller.ID, quiz, mode), s.perAttempt, now)
	first, err := sess.Begin(quiz, now)
	if err != nil {
		return nil, err
	}

	claimed, err := s.sessions.Claim(ctx, sess)
	if err != nil {
		return nil, persistence("store attempt session", err)
	}
	if claimed.ID != sess.ID {
		return s.resume(claimed, quiz, mode)
	}

	view := sess.View(first)
	return &StartResult{SessionID: sess.ID, Mode: mode, Question: &view}, nil
}

// startTier seeds graded adaptive attempts from the learner's prior records
// on the same subject.
func (s *AttemptService) startTier(ctx context.Context, learnerID uuid.UUID, quiz *models.Quiz, mode models.Mode) difficulty.Tier {
	if mode != models.ModeGraded || !quiz.Adaptive {
		return quiz.Baseline
	}
	prior, err := s.attempts.PriorScores(ctx, learnerID, quiz.Subject)
	if err != nil {
		log.Printf("WARNING: prior scores unavailable for learner %s, using baseline: %v", learnerID, err)
		return quiz.Baseline
	}
	return difficulty.Seed(prior, quiz.Baseline)
}

func (s *AttemptService) resume(sess *session.Session, quiz *models.Quiz, mode models.Mode) (*StartResult, error) {
	if sess.Mode != mode {
		return nil, &models.ConflictError{Message: fmt.Sprintf("A %s attempt is already in progress for this quiz", sess.Mode)}
	}
	res := &StartResult{SessionID: sess.ID, Mode: sess.Mode, Resumed: true}
	if q, ok := sess.Current(quiz); ok {
		view := sess.View(q)
		res.Question = &view
	} else {
		res.PendingFinalize = sess.State == session.Scored && sess.Done()
	}
	return res, nil
}

// load fetches a session owned by the caller. Sessions of other learners
// look the same as expired ones.
func (s *AttemptService) load(ctx context.Context, caller access.Caller, id uuid.UUID) (*session.Session, error) {
	sess, err := s.sessions.Get(ctx, id)
	if errors.Is(err, session.ErrNotFound) {
		return nil, &models.NotFoundError{Message: "Attempt session not found or expired"}
	}
	if err != nil {
		return nil, persistence("load attempt session", err)
	}
	if sess.LearnerID != caller.ID {
		return nil, &models.NotFoundError{Message: "Attempt session not found or expired"}
	}
	return sess, nil
}

func (s *AttemptService) lock(ctx context.Context, id uuid.UUID) (func(), error) {
	unlock, err := s.sessions.Lock(ctx, id)
	if errors.Is(err, session.ErrLocked) {
		return nil, &models.StaleSessionError{SessionID: id, Message: "Another request for this attempt is in progress"}
	}
	if err != nil {
		return nil, persistence("lock attempt session", err)
	}
	return unlock, nil
}

func (s *AttemptService) quizFor(ctx context.Context, sess *session.Session) (*models.Quiz, error) {
	quiz, err := s.quizzes.GetByID(ctx, sess.QuizID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &models.NotFoundError{Message: "Quiz not found"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load quiz %s: %w", sess.QuizID, err)
	}
	return quiz, nil
}

// Submit scores the answer to the current question and either serves the
// next one or completes the attempt.
func (s *AttemptService) Submit(ctx context.Context, caller access.Caller, id uuid.UUID, req models.SubmitAnswerRequest) (*SubmitResult, error) {
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sess, err := s.load(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if err := sess.CheckTurn(req.QuestionID); err != nil {
		return nil, err
	}
	quiz, err := s.quizFor(ctx, sess)
	if err != nil {
		return nil, err
	}
	q, ok := sess.Current(quiz)
	if !ok {
		return nil, &models.ConflictError{Message: "Current question is no longer part of the quiz"}
	}

	answer := models.Answer{SelectedIndex: req.SelectedIndex, Text: req.Text}
	scored, err := s.evaluator.Evaluate(ctx, q, answer)
	if err != nil {
		return nil, err
	}

	now := s.now()
	rec := models.AnswerRecord{
		QuestionID:    q.ID,
		Type:          q.Type,
		Prompt:        q.Prompt,
		Topic:         q.Topic,
		Difficulty:    q.Difficulty,
		Response:      answer,
		StudentAnswer: scored.StudentAnswer,
		CorrectAnswer: q.CorrectAnswer(),
		Score:         scored.Score,
		Explanation:   scored.Explanation,
		AnsweredAt:    now,
	}
	if err := sess.Record(rec, now); err != nil {
		return nil, err
	}
	out := &SubmitResult{Result: models.AnswerResult{
		QuestionID:  q.ID,
		Score:       scored.Score,
		Correct:     scored.Correct,
		Explanation: scored.Explanation,
	}}

	if sess.Done() {
		summary, err := s.complete(ctx, sess, now)
		if err != nil {
			return nil, err
		}
		out.Summary = summary
		return out, nil
	}

	next, err := sess.Advance(quiz, scored.Score, now)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, persistence("save attempt session", err)
	}
	view := sess.View(next)
	out.NextQuestion = &view
	return out, nil
}

// complete writes the graded record and closes the session. If the write
// fails for any reason other than an existing record, the session is kept
// in Scored with its evaluation cached so Finalize can retry.
func (s *AttemptService) complete(ctx context.Context, sess *session.Session, now time.Time) (*models.CompletionSummary, error) {
	summary := &models.CompletionSummary{
		SessionID:        sess.ID,
		QuizID:           sess.QuizID,
		Mode:             sess.Mode,
		Score:            sess.Score(),
		Answers:          sess.Answers,
		Trajectory:       sess.Trajectory,
		TimeTakenSeconds: sess.TimeTaken(now),
	}

	if sess.Mode == models.ModeTest {
		if err := sess.Complete(now); err != nil {
			return nil, err
		}
		s.discard(ctx, sess)
		return summary, nil
	}

	if sess.Evaluation == nil {
		ev := s.synth.Synthesize(ctx, sess.Subject, sess.Answers, sess.Tier)
		sess.Evaluation = &ev
	}
	record := &models.AttemptRecord{
		ID:               uuid.New(),
		QuizID:           sess.QuizID,
		LearnerID:        sess.LearnerID,
		Subject:          sess.Subject,
		Score:            sess.Evaluation.Score,
		Answers:          sess.Answers,
		Trajectory:       sess.Trajectory,
		Evaluation:       *sess.Evaluation,
		TimeTakenSeconds: summary.TimeTakenSeconds,
		StartedAt:        sess.StartedAt,
		CompletedAt:      now,
	}

	err := s.attempts.Insert(ctx, record)
	if errors.Is(err, repository.ErrDuplicate) {
		s.discard(ctx, sess)
		return nil, &models.AttemptBlockedError{QuizID: sess.QuizID, LearnerID: sess.LearnerID}
	}
	if err != nil {
		if saveErr := s.sessions.Save(ctx, sess); saveErr != nil {
			log.Printf("WARNING: failed to keep session %s for finalize retry: %v", sess.ID, saveErr)
		}
		return nil, persistence("record attempt", err)
	}

	if err := sess.Complete(now); err != nil {
		return nil, err
	}
	s.discard(ctx, sess)
	s.tagger.Tag(record)

	summary.Evaluation = sess.Evaluation
	summary.RecordID = &record.ID
	return summary, nil
}

func (s *AttemptService) discard(ctx context.Context, sess *session.Session) {
	if err := s.sessions.Delete(ctx, sess); err != nil {
		log.Printf("WARNING: failed to delete attempt session %s: %v", sess.ID, err)
	}
}

// Finalize retries a completion whose record write failed.
func (s *AttemptService) Finalize(ctx context.Context, caller access.Caller, id uuid.UUID) (*models.CompletionSummary, error) {
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sess, err := s.load(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if sess.State != session.Scored || !sess.Done() {
		return nil, &models.ConflictError{Message: "Attempt has no completion to finalize"}
	}
	return s.complete(ctx, sess, s.now())
}

// Current returns the question awaiting an answer without consuming a turn.
func (s *AttemptService) Current(ctx context.Context, caller access.Caller, id uuid.UUID) (*SessionView, error) {
	sess, err := s.load(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	view := &SessionView{
		SessionID:       sess.ID,
		QuizID:          sess.QuizID,
		Mode:            sess.Mode,
		State:           sess.State,
		Answered:        len(sess.Answers),
		Total:           sess.Total,
		PendingFinalize: sess.State == session.Scored && sess.Done(),
	}
	if sess.State == session.AwaitingAnswer {
		quiz, err := s.quizFor(ctx, sess)
		if err != nil {
			return nil, err
		}
		if q, ok := sess.Current(quiz); ok {
			qv := sess.View(q)
			view.Question = &qv
		}
	}
	return view, nil
}

// Abandon drops the session. No record is written.
func (s *AttemptService) Abandon(ctx context.Context, caller access.Caller, id uuid.UUID) error {
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	sess, err := s.load(ctx, caller, id)
	if err != nil {
		return err
	}
	if err := sess.Abandon(s.now()); err != nil {
		return err
	}
	if err := s.sessions.Delete(ctx, sess); err != nil {
		return persistence("delete attempt session", err)
	}
	return nil
}

func (s *AttemptService) MyRecord(ctx context.Context, caller access.Caller, quizID uuid.UUID) (*models.AttemptRecord, error) {
	rec, err := s.attempts.GetByQuizAndLearner(ctx, quizID, caller.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &models.NotFoundError{Message: "No graded attempt recorded for this quiz"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load attempt record: %w", err)
	}
	return rec, nil
}
