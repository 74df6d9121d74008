package services

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"patashala-backend/internal/models"
	"patashala-backend/internal/repository"
)

type stubQuizStore struct {
	mu      sync.Mutex
	quizzes map[uuid.UUID]*models.Quiz
}

func newStubQuizStore(quizzes ...*models.Quiz) *stubQuizStore {
	s := &stubQuizStore{quizzes: map[uuid.UUID]*models.Quiz{}}
	for _, q := range quizzes {
		s.quizzes[q.ID] = q
	}
	return s
}

func (s *stubQuizStore) Create(ctx context.Context, q *models.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.quizzes {
		if existing.ContentID == q.ContentID {
			return repository.ErrDuplicate
		}
	}
	q.ID = uuid.New()
	cp := *q
	s.quizzes[q.ID] = &cp
	return nil
}

func (s *stubQuizStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quizzes[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *q
	return &cp, nil
}

func (s *stubQuizStore) GetByContentID(ctx context.Context, contentID uuid.UUID) (*models.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range s.quizzes {
		if q.ContentID == contentID {
			cp := *q
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *stubQuizStore) ListByAuthor(ctx context.Context, authorID uuid.UUID) ([]*models.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Quiz
	for _, q := range s.quizzes {
		if q.AuthorID == authorID {
			out = append(out, q)
		}
	}
	return out, nil
}

func (s *stubQuizStore) ListAvailable(ctx context.Context) ([]*models.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Quiz
	for _, q := range s.quizzes {
		if q.Available() {
			out = append(out, q)
		}
	}
	return out, nil
}

func (s *stubQuizStore) ReplaceQuestions(ctx context.Context, id uuid.UUID, questions []models.QuestionItem, low bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quizzes[id]
	if !ok || q.Published {
		return repository.ErrNotFound
	}
	q.Questions = questions
	q.LowConfidence = low
	q.Status = models.QuizReady
	return nil
}

func (s *stubQuizStore) SetPublished(ctx context.Context, id uuid.UUID, published bool) error {
	return s.update(id, func(q *models.Quiz) { q.Published = published })
}

func (s *stubQuizStore) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	return s.update(id, func(q *models.Quiz) { q.Enabled = enabled })
}

func (s *stubQuizStore) UpdateStatus(ctx context.Context, id uuid.UUID, status string, genErr *string) error {
	return s.update(id, func(q *models.Quiz) { q.Status = status; q.GenerationError = genErr })
}

func (s *stubQuizStore) update(id uuid.UUID, fn func(*models.Quiz)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quizzes[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(q)
	return nil
}

type stubAttemptStore struct {
	mu        sync.Mutex
	records   []*models.AttemptRecord
	prior     []float64
	insertErr error
	inserts   int
}

func (s *stubAttemptStore) Insert(ctx context.Context, a *models.AttemptRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserts++
	if s.insertErr != nil {
		return s.insertErr
	}
	for _, r := range s.records {
		if r.QuizID == a.QuizID && r.LearnerID == a.LearnerID {
			return repository.ErrDuplicate
		}
	}
	s.records = append(s.records, a)
	return nil
}

func (s *stubAttemptStore) Exists(ctx context.Context, quizID, learnerID uuid.UUID) (bool, error) {
	_, err := s.GetByQuizAndLearner(ctx, quizID, learnerID)
	return err == nil, nil
}

func (s *stubAttemptStore) GetByQuizAndLearner(ctx context.Context, quizID, learnerID uuid.UUID) (*models.AttemptRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.QuizID == quizID && r.LearnerID == learnerID {
			return r, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *stubAttemptStore) ListByQuiz(ctx context.Context, quizID uuid.UUID) ([]*models.AttemptRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.AttemptRecord
	for _, r := range s.records {
		if r.QuizID == quizID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *stubAttemptStore) PriorScores(ctx context.Context, learnerID uuid.UUID, subject string) ([]float64, error) {
	return s.prior, nil
}

type stubJobStore struct {
	jobs map[uuid.UUID]*models.Job
}

func newStubJobStore() *stubJobStore {
	return &stubJobStore{jobs: map[uuid.UUID]*models.Job{}}
}

func (s *stubJobStore) Create(ctx context.Context, j *models.Job) error {
	j.ID = uuid.New()
	j.Status = models.JobPending
	s.jobs[j.ID] = j
	return nil
}

func (s *stubJobStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	j, ok := s.jobs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return j, nil
}

func (s *stubJobStore) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	if j, ok := s.jobs[id]; ok {
		j.Status = status
	}
	return nil
}

func (s *stubJobStore) UpdateError(ctx context.Context, id uuid.UUID, errMsg string, retryCount int) error {
	if j, ok := s.jobs[id]; ok {
		j.ErrorMessage = &errMsg
		j.RetryCount = retryCount
	}
	return nil
}

type stubContent struct {
	items map[uuid.UUID]*models.Content
}

func (s *stubContent) GetByID(ctx context.Context, id uuid.UUID) (*models.Content, error) {
	c, ok := s.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return c, nil
}

type stubQueue struct {
	pushed []uuid.UUID
}

func (q *stubQueue) Enqueue(ctx context.Context, jobType string, jobID uuid.UUID) error {
	q.pushed = append(q.pushed, jobID)
	return nil
}

type recordingTagger struct {
	mu   sync.Mutex
	tags []*models.AttemptRecord
}

func (t *recordingTagger) Tag(rec *models.AttemptRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tags = append(t.tags, rec)
}
