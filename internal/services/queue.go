package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// QueueName is the Redis list a job type is pushed to.
func QueueName(jobType string) string {
	return "queue:" + jobType
}

type JobQueue interface {
	Enqueue(ctx context.Context, jobType string, jobID uuid.UUID) error
}

type RedisQueue struct {
	redis *redis.Client
}

func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{redis: client}
}

func (q *RedisQueue) Enqueue(ctx context.Context, jobType string, jobID uuid.UUID) error {
	if err := q.redis.LPush(ctx, QueueName(jobType), jobID.String()).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}
