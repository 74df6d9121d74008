// Package session models one learner's pass through a quiz and the keyed,
// expiring stores that hold it between requests.
package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"patashala-backend/internal/difficulty"
	"patashala-backend/internal/models"
)

type Session struct {
	ID         uuid.UUID             `json:"id"`
	QuizID     uuid.UUID             `json:"quiz_id"`
	LearnerID  uuid.UUID             `json:"learner_id"`
	Subject    string                `json:"subject"`
	Mode       models.Mode           `json:"mode"`
	State      State                 `json:"state"`
	Adaptive   bool                  `json:"adaptive"`
	Total      int                   `json:"total"`
	Tier       difficulty.Tier       `json:"tier"`
	CurrentID  uuid.UUID             `json:"current_id"`
	Served     []uuid.UUID           `json:"served"`
	Answers    []models.AnswerRecord `json:"answers"`
	Trajectory []difficulty.Tier     `json:"trajectory"`
	// Evaluation is cached when the completion write failed and must be retried.
	Evaluation *models.Evaluation `json:"evaluation,omitempty"`
	StartedAt  time.Time          `json:"started_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// New creates a NotStarted session. total is capped at the pool size.
func New(quiz *models.Quiz, learnerID uuid.UUID, mode models.Mode, start difficulty.Tier, total int, now time.Time) *Session {
	if total <= 0 || total > len(quiz.Questions) {
		total = len(quiz.Questions)
	}
	return &Session{
		ID:        uuid.New(),
		QuizID:    quiz.ID,
		LearnerID: learnerID,
		Subject:   quiz.Subject,
		Mode:      mode,
		State:     NotStarted,
		Adaptive:  quiz.Adaptive,
		Total:     total,
		Tier:      start,
		StartedAt: now,
		UpdatedAt: now,
	}
}

func (s *Session) apply(e Event) error {
	next, err := Transition(s.State, e)
	if err != nil {
		return err
	}
	s.State = next
	return nil
}

// Begin serves the first question.
func (s *Session) Begin(quiz *models.Quiz, now time.Time) (models.QuestionItem, error) {
	if s.Total == 0 {
		return models.QuestionItem{}, &models.NotAvailableError{Message: "Quiz has no questions"}
	}
	if err := s.apply(EventStart); err != nil {
		return models.QuestionItem{}, err
	}
	q, ok := s.pick(quiz)
	if !ok {
		return models.QuestionItem{}, fmt.Errorf("quiz %s has no question to serve", quiz.ID)
	}
	s.serve(q, now)
	return q, nil
}

// Current returns the question awaiting an answer.
func (s *Session) Current(quiz *models.Quiz) (models.QuestionItem, bool) {
	if s.State != AwaitingAnswer {
		return models.QuestionItem{}, false
	}
	return quiz.Question(s.CurrentID)
}

// Number is the 1-based position of the current question.
func (s *Session) Number() int {
	return len(s.Served)
}

func (s *Session) View(q models.QuestionItem) models.QuestionView {
	return models.QuestionView{
		ID:         q.ID,
		Number:     s.Number(),
		Total:      s.Total,
		Type:       q.Type,
		Prompt:     q.Prompt,
		Options:    q.Options,
		Difficulty: q.Difficulty,
	}
}

// CheckTurn rejects submissions aimed at anything but the current question.
func (s *Session) CheckTurn(questionID uuid.UUID) error {
	if s.State == AwaitingAnswer && questionID == s.CurrentID {
		return nil
	}
	if s.State == AwaitingAnswer || s.answered(questionID) {
		return &models.StaleSessionError{SessionID: s.ID, Message: "Answer does not match the current question"}
	}
	_, err := Transition(s.State, EventSubmit)
	return err
}

func (s *Session) answered(id uuid.UUID) bool {
	for _, a := range s.Answers {
		if a.QuestionID == id {
			return true
		}
	}
	return false
}

// Record stores the scored answer for the current question.
func (s *Session) Record(rec models.AnswerRecord, now time.Time) error {
	if err := s.apply(EventSubmit); err != nil {
		return err
	}
	rec.Number = s.Number()
	s.Answers = append(s.Answers, rec)
	s.UpdatedAt = now
	return nil
}

// Done reports whether every question of the attempt has been answered.
func (s *Session) Done() bool {
	return len(s.Answers) >= s.Total
}

// Advance adjusts the tier from the last score and serves the next question.
func (s *Session) Advance(quiz *models.Quiz, lastScore float64, now time.Time) (models.QuestionItem, error) {
	if s.Done() {
		return models.QuestionItem{}, &models.ConflictError{Message: "Attempt has no questions left"}
	}
	if err := s.apply(EventAdvance); err != nil {
		return models.QuestionItem{}, err
	}
	if s.Adaptive {
		s.Tier = difficulty.Next(s.Tier, lastScore)
	}
	q, ok := s.pick(quiz)
	if !ok {
		return models.QuestionItem{}, fmt.Errorf("quiz %s ran out of questions", quiz.ID)
	}
	s.serve(q, now)
	return q, nil
}

func (s *Session) Complete(now time.Time) error {
	if !s.Done() {
		return &models.ConflictError{Message: "Attempt still has unanswered questions"}
	}
	if err := s.apply(EventComplete); err != nil {
		return err
	}
	s.CurrentID = uuid.Nil
	s.UpdatedAt = now
	return nil
}

func (s *Session) Abandon(now time.Time) error {
	if err := s.apply(EventAbandon); err != nil {
		return err
	}
	s.UpdatedAt = now
	return nil
}

func (s *Session) Scores() []float64 {
	out := make([]float64, len(s.Answers))
	for i, a := range s.Answers {
		out[i] = a.Score
	}
	return out
}

// Score is the mean per-question score so far.
func (s *Session) Score() float64 {
	if len(s.Answers) == 0 {
		return 0
	}
	var sum float64
	for _, a := range s.Answers {
		sum += a.Score
	}
	return sum / float64(len(s.Answers))
}

func (s *Session) TimeTaken(now time.Time) int {
	return int(now.Sub(s.StartedAt).Seconds())
}

func (s *Session) serve(q models.QuestionItem, now time.Time) {
	s.CurrentID = q.ID
	s.Served = append(s.Served, q.ID)
	s.Trajectory = append(s.Trajectory, q.Difficulty)
	s.UpdatedAt = now
}

// pick chooses the next unserved question. Adaptive sessions take the
// nearest available tier to s.Tier; others follow generation order.
func (s *Session) pick(quiz *models.Quiz) (models.QuestionItem, bool) {
	served := make(map[uuid.UUID]bool, len(s.Served))
	for _, id := range s.Served {
		served[id] = true
	}
	firstAt := func(match func(models.QuestionItem) bool) (models.QuestionItem, bool) {
		for _, q := range quiz.Questions {
			if !served[q.ID] && match(q) {
				return q, true
			}
		}
		return models.QuestionItem{}, false
	}

	if !s.Adaptive {
		return firstAt(func(models.QuestionItem) bool { return true })
	}
	tier, ok := difficulty.Nearest(s.Tier, func(t difficulty.Tier) bool {
		_, found := firstAt(func(q models.QuestionItem) bool { return q.Difficulty == t })
		return found
	})
	if !ok {
		return models.QuestionItem{}, false
	}
	return firstAt(func(q models.QuestionItem) bool { return q.Difficulty == tier })
}
