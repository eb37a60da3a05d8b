package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "blogbeacon:session:"

// RedisStore keeps sessions in Redis with a TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore builds a Redis-backed session store.
func NewRedisStore(addr, password string, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		ttl: ttl,
	}
}

// Save writes a sid -> session mapping with TTL and returns the sid.
func (s *RedisStore) Save(ctx context.Context, sess Session) (string, error) {
	sid := uuid.NewString()
	payload, err := json.Marshal(sess)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := s.client.Set(ctx, redisKeyPrefix+sid, payload, s.ttl).Err(); err != nil {
		return "", err
	}
	return sid, nil
}

// Get resolves a sid to its session. A missing or expired key is not an error.
func (s *RedisStore) Get(ctx context.Context, sid string) (Session, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	val, err := s.client.Get(ctx, redisKeyPrefix+sid).Bytes()
	if err == redis.Nil {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, err
	}
	var sess Session
	if err := json.Unmarshal(val, &sess); err != nil {
		return Session{}, false, err
	}
	return sess, true, nil
}

// Delete removes a sid mapping.
func (s *RedisStore) Delete(ctx context.Context, sid string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := s.client.Del(ctx, redisKeyPrefix+sid).Err(); err != nil && err != redis.Nil {
		return err
	}
	return nil
}
