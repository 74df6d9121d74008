package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const lockTTL = 30 * time.Second

var releaseLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// claimSlot returns the live session the slot points at, or binds the slot
// and writes the new session in one step. A slot whose session has expired
// is taken over.
var claimSlot = redis.NewScript(`
local owner = redis.call("GET", KEYS[1])
if owner then
	local existing = redis.call("GET", ARGV[4] .. owner)
	if existing then
		return existing
	end
end
redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
return false
`)

// RedisStore keeps sessions as JSON under expiring keys so any API instance
// can serve the next request of an attempt.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

const sessionKeyPrefix = "attempt_session:"

func sessionKey(id uuid.UUID) string {
	return sessionKeyPrefix + id.String()
}

func slotKeyName(quizID, learnerID uuid.UUID) string {
	return fmt.Sprintf("attempt_slot:%s:%s", quizID, learnerID)
}

func lockKey(id uuid.UUID) string {
	return fmt.Sprintf("attempt_session_lock:%s", id)
}

func (r *RedisStore) load(ctx context.Context, key string) (*Session, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return decode(data)
}

func (r *RedisStore) Claim(ctx context.Context, s *Session) (*Session, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}

	keys := []string{slotKeyName(s.QuizID, s.LearnerID), sessionKey(s.ID)}
	existing, err := claimSlot.Run(ctx, r.client, keys,
		s.ID.String(), data, r.ttl.Milliseconds(), sessionKeyPrefix).Text()
	if errors.Is(err, redis.Nil) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim attempt slot: %w", err)
	}
	return decode([]byte(existing))
}

func (r *RedisStore) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	return r.load(ctx, sessionKey(id))
}

func (r *RedisStore) Active(ctx context.Context, quizID, learnerID uuid.UUID) (*Session, error) {
	raw, err := r.client.Get(ctx, slotKeyName(quizID, learnerID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read attempt slot: %w", err)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, ErrNotFound
	}
	return r.Get(ctx, id)
}

func (r *RedisStore) Save(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	updated := pipe.SetXX(ctx, sessionKey(s.ID), data, r.ttl)
	pipe.Expire(ctx, slotKeyName(s.QuizID, s.LearnerID), r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save attempt session: %w", err)
	}
	if !updated.Val() {
		return ErrNotFound
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, s *Session) error {
	slot := slotKeyName(s.QuizID, s.LearnerID)
	if err := r.client.Del(ctx, sessionKey(s.ID)).Err(); err != nil {
		return fmt.Errorf("failed to delete attempt session: %w", err)
	}
	owner, err := r.client.Get(ctx, slot).Result()
	if err == nil && owner == s.ID.String() {
		if err := r.client.Del(ctx, slot).Err(); err != nil {
			log.Printf("WARNING: failed to release attempt slot %s: %v", slot, err)
		}
	}
	return nil
}

func (r *RedisStore) Lock(ctx context.Context, id uuid.UUID) (func(), error) {
	key := lockKey(id)
	token := uuid.NewString()

	ok, err := r.client.SetNX(ctx, key, token, lockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to lock attempt session: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseLock.Run(ctx, r.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			log.Printf("WARNING: failed to release lock %s: %v", key, err)
		}
	}, nil
}
