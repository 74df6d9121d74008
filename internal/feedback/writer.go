package feedback

import (
	"context"
	"log"
	"strings"
	"time"

	"patashala-backend/internal/difficulty"
	"patashala-backend/internal/models"
)

const (
	maxSuggestedConcepts = 5
	writeTimeout         = 20 * time.Second
)

// Request is what a Writer sees of a finished attempt.
type Request struct {
	Subject        string
	Score          float64
	Tier           difficulty.Tier
	Misconceptions []models.Misconception
}

// Personalized is a Writer's answer. Empty fields keep the rule-based values.
type Personalized struct {
	Message              string   `json:"personalMessage"`
	ImprovementAreas     []string `json:"improvementAreas"`
	RecommendedResources []string `json:"recommendedResources"`
	SuggestedConcepts    []string `json:"suggestedConcepts"`
}

// Writer personalizes feedback, typically through an LLM.
type Writer interface {
	WriteFeedback(ctx context.Context, req Request) (*Personalized, error)
}

// Synthesizer runs the rule-based synthesis and, when a Writer is set and the
// learner missed something, replaces the template text with the Writer's.
type Synthesizer struct {
	writer  Writer
	timeout time.Duration
}

func NewSynthesizer(w Writer) *Synthesizer {
	return &Synthesizer{writer: w, timeout: writeTimeout}
}

func (s *Synthesizer) Synthesize(ctx context.Context, subject string, answers []models.AnswerRecord, tier difficulty.Tier) models.Evaluation {
	ev := Synthesize(subject, answers)
	if s == nil || s.writer == nil || len(ev.Misconceptions) == 0 {
		return ev
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	p, err := s.writer.WriteFeedback(ctx, Request{
		Subject:        subject,
		Score:          ev.Score,
		Tier:           tier,
		Misconceptions: ev.Misconceptions,
	})
	if err != nil {
		log.Printf("WARNING: personalized feedback unavailable, using template: %v", err)
		return ev
	}
	merge(&ev, p)
	return ev
}

func merge(ev *models.Evaluation, p *Personalized) {
	if p == nil {
		return
	}
	if msg := strings.TrimSpace(p.Message); msg != "" {
		ev.Message = msg
	}
	if areas := nonBlank(p.ImprovementAreas, maxImprovementAreas); len(areas) > 0 {
		ev.ImprovementAreas = areas
	}
	if res := nonBlank(p.RecommendedResources, maxImprovementAreas); len(res) > 0 {
		ev.RecommendedResources = res
	}
	if concepts := nonBlank(p.SuggestedConcepts, maxSuggestedConcepts); len(concepts) > 0 {
		ev.SuggestedConcepts = concepts
	}
}

func nonBlank(in []string, limit int) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s == "" {
			continue
		}
		out = append(out, s)
		if len(out) == limit {
			break
		}
	}
	return out
}
