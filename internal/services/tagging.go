package services

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"patashala-backend/internal/difficulty"
	"patashala-backend/internal/models"
)

const feedbackTagsChannel = "feedback_tags"

// Tagger forwards completed attempts to downstream analytics. It must not
// block or fail the completion path.
type Tagger interface {
	Tag(rec *models.AttemptRecord)
}

type NopTagger struct{}

func (NopTagger) Tag(*models.AttemptRecord) {}

type FeedbackTag struct {
	AttemptID       uuid.UUID       `json:"attempt_id"`
	QuizID          uuid.UUID       `json:"quiz_id"`
	LearnerID       uuid.UUID       `json:"learner_id"`
	Subject         string          `json:"subject"`
	Score           float64         `json:"score"`
	Bracket         string          `json:"bracket"`
	RecommendedTier difficulty.Tier `json:"recommended_tier"`
	ImprovementArea []string        `json:"improvement_areas"`
	CompletedAt     time.Time       `json:"completed_at"`
}

type RedisTagger struct {
	redis   *redis.Client
	timeout time.Duration
}

func NewRedisTagger(client *redis.Client) *RedisTagger {
	return &RedisTagger{redis: client, timeout: 5 * time.Second}
}

func (t *RedisTagger) Tag(rec *models.AttemptRecord) {
	tag := FeedbackTag{
		AttemptID:       rec.ID,
		QuizID:          rec.QuizID,
		LearnerID:       rec.LearnerID,
		Subject:         rec.Subject,
		Score:           rec.Score,
		Bracket:         rec.Evaluation.Bracket,
		RecommendedTier: rec.Evaluation.RecommendedTier,
		ImprovementArea: rec.Evaluation.ImprovementAreas,
		CompletedAt:     rec.CompletedAt,
	}
	go func() {
		data, err := json.Marshal(tag)
		if err != nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		defer cancel()
		if err := t.redis.Publish(ctx, feedbackTagsChannel, string(data)).Err(); err != nil {
			log.Printf("WARNING: failed to publish feedback tag for attempt %s: %v", rec.ID, err)
		}
	}()
}
