package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"patashala-backend/internal/access"
	"patashala-backend/internal/difficulty"
	"patashala-backend/internal/generator"
	"patashala-backend/internal/models"
	"patashala-backend/internal/repository"
)

type QuizService struct {
	quizzes         QuizStore
	attempts        AttemptStore
	jobs            JobStore
	content         *ContentText
	generator       *generator.Generator
	access          *access.Checker
	queue           JobQueue
	adaptiveDefault bool
}

func NewQuizService(
	quizzes QuizStore,
	attempts AttemptStore,
	jobs JobStore,
	content *ContentText,
	gen *generator.Generator,
	checker *access.Checker,
	queue JobQueue,
	adaptiveDefault bool,
) *QuizService {
	return &QuizService{
		quizzes:         quizzes,
		attempts:        attempts,
		jobs:            jobs,
		content:         content,
		generator:       gen,
		access:          checker,
		queue:           queue,
		adaptiveDefault: adaptiveDefault,
	}
}

func (s *QuizService) load(ctx context.Context, id uuid.UUID) (*models.Quiz, error) {
	quiz, err := s.quizzes.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &models.NotFoundError{Message: "Quiz not found"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load quiz %s: %w", id, err)
	}
	return quiz, nil
}

func (s *QuizService) requestedMix(req models.GenerateQuizRequest) generator.Mix {
	mix := s.generator.Mix()
	if req.MultipleChoice != nil {
		mix.MultipleChoice = *req.MultipleChoice
	}
	if req.TrueFalse != nil {
		mix.TrueFalse = *req.TrueFalse
	}
	if req.ShortAnswer != nil {
		mix.ShortAnswer = *req.ShortAnswer
	}
	return mix
}

// Generate creates (or, while unpublished, resets) the quiz for a content item
// and queues the background job that builds its question set.
func (s *QuizService) Generate(ctx context.Context, caller access.Caller, req models.GenerateQuizRequest) (*models.Quiz, *models.Job, error) {
	if err := s.access.RequireFaculty(caller); err != nil {
		return nil, nil, err
	}
	mix := s.requestedMix(req)
	if err := s.generator.CheckMix(mix); err != nil {
		return nil, nil, err
	}
	baseline, err := difficulty.Parse(req.Difficulty)
	if err != nil {
		return nil, nil, &models.ValidationError{Fields: map[string]string{"difficulty": err.Error()}}
	}

	content, err := s.content.Get(ctx, req.ContentID)
	if err != nil {
		return nil, nil, err
	}
	if content.UserID != caller.ID && caller.Role != access.RoleAdmin {
		return nil, nil, &models.ForbiddenError{Message: "Only the content owner can generate its quiz"}
	}

	quiz, err := s.quizzes.GetByContentID(ctx, req.ContentID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		quiz, err = s.create(ctx, caller, req, content, baseline)
		if err != nil {
			return nil, nil, err
		}
	case err != nil:
		return nil, nil, fmt.Errorf("failed to look up quiz for content: %w", err)
	default:
		if err := s.resetForRegeneration(ctx, caller, quiz); err != nil {
			return nil, nil, err
		}
	}

	cfg, _ := json.Marshal(models.GenerationConfig{
		MultipleChoice: mix.MultipleChoice,
		TrueFalse:      mix.TrueFalse,
		ShortAnswer:    mix.ShortAnswer,
		Difficulty:     quiz.Baseline.String(),
	})
	job := &models.Job{
		UserID:      caller.ID,
		Type:        models.JobQuizGeneration,
		ReferenceID: quiz.ID,
		ConfigJSON:  cfg,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, nil, fmt.Errorf("failed to create generation job: %w", err)
	}
	if err := s.queue.Enqueue(ctx, job.Type, job.ID); err != nil {
		return nil, nil, err
	}
	return quiz, job, nil
}

func (s *QuizService) create(ctx context.Context, caller access.Caller, req models.GenerateQuizRequest, content *models.Content, baseline difficulty.Tier) (*models.Quiz, error) {
	adaptive := s.adaptiveDefault
	if req.Adaptive != nil {
		adaptive = *req.Adaptive
	}
	title := req.Title
	if title == "" {
		title = content.Title
	}
	quiz := &models.Quiz{
		ContentID: content.ID,
		AuthorID:  caller.ID,
		Subject:   req.Subject,
		Title:     title,
		Baseline:  baseline,
		Enabled:   true,
		Adaptive:  adaptive,
		Status:    models.QuizPending,
	}
	err := s.quizzes.Create(ctx, quiz)
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, &models.ConflictError{Message: "A quiz for this content is already being created"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create quiz: %w", err)
	}
	return quiz, nil
}

func (s *QuizService) resetForRegeneration(ctx context.Context, caller access.Caller, quiz *models.Quiz) error {
	if err := s.access.CanManage(caller, quiz); err != nil {
		return err
	}
	if !quiz.Enabled {
		return &models.NotAvailableError{Message: "Quiz generation is disabled for this content"}
	}
	if quiz.Published {
		return &models.ConflictError{Message: "Unpublish the quiz before regenerating it"}
	}
	if quiz.Status == models.QuizPending {
		return &models.ConflictError{Message: "Quiz generation is already in progress"}
	}
	if err := s.quizzes.UpdateStatus(ctx, quiz.ID, models.QuizPending, nil); err != nil {
		return fmt.Errorf("failed to reset quiz: %w", err)
	}
	quiz.Status = models.QuizPending
	return nil
}

// BuildQuestionSet runs for a quiz-generation job. Thin source text falls
// back to a low-confidence set; text with no usable sentence fails the job.
func (s *QuizService) BuildQuestionSet(ctx context.Context, job *models.Job) (*models.Quiz, *generator.Result, error) {
	quiz, err := s.load(ctx, job.ReferenceID)
	if err != nil {
		return nil, nil, err
	}
	// Disabled while queued.
	if !quiz.Enabled {
		return nil, nil, &models.ConflictError{Message: "Quiz generation is disabled for this content"}
	}

	var cfg models.GenerationConfig
	if len(job.ConfigJSON) > 0 {
		if err := json.Unmarshal(job.ConfigJSON, &cfg); err != nil {
			return nil, nil, fmt.Errorf("invalid job config: %w", err)
		}
	}
	mix := generator.Mix{MultipleChoice: cfg.MultipleChoice, TrueFalse: cfg.TrueFalse, ShortAnswer: cfg.ShortAnswer}
	if mix.Total() == 0 {
		mix = s.generator.Mix()
	}

	text, err := s.content.Text(ctx, quiz.ContentID)
	if err != nil {
		return nil, nil, err
	}

	req := generator.Request{
		Subject:  quiz.Subject,
		Title:    quiz.Title,
		Text:     text,
		Mix:      mix,
		Baseline: quiz.Baseline,
	}
	res, err := s.generator.Generate(ctx, req)
	var thin *models.InsufficientContentError
	if errors.As(err, &thin) {
		log.Printf("WARNING: quiz %s: %v; using low-confidence fallback", quiz.ID, err)
		res, err = s.generator.Fallback(req)
	}
	if err != nil {
		return nil, nil, err
	}

	err = s.quizzes.ReplaceQuestions(ctx, quiz.ID, res.Questions, res.LowConfidence)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, &models.ConflictError{Message: "Quiz was published during generation"}
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to store questions: %w", err)
	}
	quiz.Questions = res.Questions
	quiz.LowConfidence = res.LowConfidence
	quiz.Status = models.QuizReady
	return quiz, res, nil
}

// MarkFailed records a generation that will not be retried.
func (s *QuizService) MarkFailed(ctx context.Context, quizID uuid.UUID, cause error) {
	msg := cause.Error()
	if err := s.quizzes.UpdateStatus(ctx, quizID, models.QuizFailed, &msg); err != nil {
		log.Printf("WARNING: failed to mark quiz %s failed: %v", quizID, err)
	}
}

func (s *QuizService) Publish(ctx context.Context, caller access.Caller, id uuid.UUID, published bool) (*models.Quiz, error) {
	quiz, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.access.CanManage(caller, quiz); err != nil {
		return nil, err
	}
	if published && (quiz.Status != models.QuizReady || len(quiz.Questions) == 0) {
		return nil, &models.ConflictError{Message: "Quiz has no generated questions to publish"}
	}
	if err := s.quizzes.SetPublished(ctx, id, published); err != nil {
		return nil, fmt.Errorf("failed to update quiz: %w", err)
	}
	quiz.Published = published
	return quiz, nil
}

func (s *QuizService) SetEnabled(ctx context.Context, caller access.Caller, id uuid.UUID, enabled bool) (*models.Quiz, error) {
	quiz, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.access.CanManage(caller, quiz); err != nil {
		return nil, err
	}
	if err := s.quizzes.SetEnabled(ctx, id, enabled); err != nil {
		return nil, fmt.Errorf("failed to update quiz: %w", err)
	}
	quiz.Enabled = enabled
	return quiz, nil
}

type QuizStatusView struct {
	Status models.QuizStatus `json:"status"`
	QuizID *uuid.UUID        `json:"quiz_id,omitempty"`
}

// Status reports whether a content item has a quiz and whether it is live.
func (s *QuizService) Status(ctx context.Context, contentID uuid.UUID) (*QuizStatusView, error) {
	quiz, err := s.quizzes.GetByContentID(ctx, contentID)
	if errors.Is(err, repository.ErrNotFound) {
		return &QuizStatusView{Status: models.QuizStatusNone}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up quiz for content: %w", err)
	}
	view := &QuizStatusView{Status: models.QuizStatusUnpublished, QuizID: &quiz.ID}
	if quiz.Published {
		view.Status = models.QuizStatusPublished
	}
	return view, nil
}

// QuizView carries the full quiz only for callers who manage it.
type QuizView struct {
	Summary models.QuizSummary
	Quiz    *models.Quiz
}

func (s *QuizService) Get(ctx context.Context, caller access.Caller, id uuid.UUID) (*QuizView, error) {
	quiz, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.access.CanManage(caller, quiz) == nil {
		return &QuizView{Summary: quiz.Summary(), Quiz: quiz}, nil
	}
	if !quiz.Available() {
		return nil, &models.NotFoundError{Message: "Quiz not found"}
	}
	return &QuizView{Summary: quiz.Summary()}, nil
}

// List returns the caller's own quizzes for faculty and the open quizzes
// for everyone else.
func (s *QuizService) List(ctx context.Context, caller access.Caller) ([]models.QuizSummary, error) {
	var (
		quizzes []*models.Quiz
		err     error
	)
	if s.access.Has(caller.Role, access.PermQuizManage) {
		quizzes, err = s.quizzes.ListByAuthor(ctx, caller.ID)
	} else {
		quizzes, err = s.quizzes.ListAvailable(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list quizzes: %w", err)
	}

	out := make([]models.QuizSummary, 0, len(quizzes))
	for _, q := range quizzes {
		out = append(out, q.Summary())
	}
	return out, nil
}

func (s *QuizService) Records(ctx context.Context, caller access.Caller, id uuid.UUID) ([]*models.AttemptRecord, error) {
	quiz, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.access.CanManage(caller, quiz); err != nil {
		return nil, err
	}
	if !s.access.Has(caller.Role, access.PermRecordsView) {
		return nil, &models.ForbiddenError{Message: "Your role cannot view attempt records"}
	}
	records, err := s.attempts.ListByQuiz(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempt records: %w", err)
	}
	if records == nil {
		records = []*models.AttemptRecord{}
	}
	return records, nil
}

func (s *QuizService) Job(ctx context.Context, caller access.Caller, id uuid.UUID) (*models.Job, error) {
	job, err := s.jobs.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &models.NotFoundError{Message: "Job not found"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	if job.UserID != caller.ID && caller.Role != access.RoleAdmin {
		return nil, &models.NotFoundError{Message: "Job not found"}
	}
	return job, nil
}
