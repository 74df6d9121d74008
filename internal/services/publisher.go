package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"patashala-backend/internal/models"
)

// Publisher pushes WebSocket updates through Redis pub/sub so the hub on any
// instance can deliver them.
type Publisher struct {
	redis *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{redis: client}
}

func UpdatesChannel(userID uuid.UUID) string {
	return fmt.Sprintf("user_updates:%s", userID.String())
}

// PublishUpdate sends a WebSocket update via Redis pub/sub
func (p *Publisher) PublishUpdate(ctx context.Context, userID uuid.UUID, msg models.WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("WARNING: failed to encode update for %s: %v", userID, err)
		return
	}
	if err := p.redis.Publish(ctx, UpdatesChannel(userID), string(data)).Err(); err != nil {
		log.Printf("WARNING: failed to publish update for %s: %v", userID, err)
	}
}
