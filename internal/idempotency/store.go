package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrNotFound     = errors.New("idempotency key not found")
	ErrHashMismatch = errors.New("idempotency key body mismatch")
	ErrInProgress   = errors.New("idempotency key in progress")
)

const redisKeyPrefix = "idempotency"

// Record is a finalized response bound to an idempotency key.
type Record struct {
	Key         string
	RequestHash string
	Status      int
	Body        []byte
	ContentType string
	ServedBy    string
}

// Store keeps idempotency reservations and finalized responses in Redis. A
// key is reserved with SETNX before the handler runs and overwritten with the
// response once it finishes, so concurrent retries either replay or wait.
type Store struct {
	redis redis.Cmdable
	ttl   time.Duration
}

func NewStore(redis redis.Cmdable, ttl time.Duration) *Store {
	return &Store{redis: redis, ttl: ttl}
}

type envelope struct {
	Key         string `json:"key"`
	Hash        string `json:"hash"`
	Method      string `json:"method"`
	Path        string `json:"path"`
	InProgress  bool   `json:"in_progress"`
	Status      int    `json:"status"`
	Body        []byte `json:"body"`
	ContentType string `json:"content_type"`
}

// Lookup fetches the record for a key. ErrInProgress means another request
// holds the reservation; ErrHashMismatch means the key was reused with a
// different request body.
func (s *Store) Lookup(ctx context.Context, key, requestHash string) (*Record, error) {
	val, err := s.redis.Get(ctx, redisKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup idempotency key: %w", err)
	}

	var env envelope
	if err := json.Unmarshal([]byte(val), &env); err != nil {
		return nil, fmt.Errorf("decode idempotency record: %w", err)
	}
	if env.Hash != requestHash {
		return nil, ErrHashMismatch
	}
	if env.InProgress {
		return nil, ErrInProgress
	}
	return &Record{
		Key:         env.Key,
		RequestHash: env.Hash,
		Status:      env.Status,
		Body:        env.Body,
		ContentType: env.ContentType,
		ServedBy:    "redis",
	}, nil
}

// Reserve claims the key for the current request. It returns false when the
// key is already held or finalized.
func (s *Store) Reserve(ctx context.Context, key, requestHash, method, path string) (bool, error) {
	env := envelope{
		Key:        key,
		Hash:       requestHash,
		Method:     method,
		Path:       path,
		InProgress: true,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return false, fmt.Errorf("encode idempotency reservation: %w", err)
	}
	ok, err := s.redis.SetNX(ctx, redisKey(key), payload, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("reserve idempotency key: %w", err)
	}
	return ok, nil
}

// Finalize stores the handler's response under the reserved key.
func (s *Store) Finalize(ctx context.Context, key, requestHash string, status int, body []byte, contentType string) (*Record, error) {
	val, err := s.redis.Get(ctx, redisKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finalize idempotency key: %w", err)
	}
	var env envelope
	if err := json.Unmarshal([]byte(val), &env); err != nil {
		return nil, fmt.Errorf("decode idempotency record: %w", err)
	}
	if env.Hash != requestHash {
		return nil, ErrHashMismatch
	}

	env.InProgress = false
	env.Status = status
	env.Body = body
	env.ContentType = contentType
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode idempotency record: %w", err)
	}
	if err := s.redis.Set(ctx, redisKey(key), payload, redis.KeepTTL).Err(); err != nil {
		return nil, fmt.Errorf("store idempotency record: %w", err)
	}
	return &Record{
		Key:         env.Key,
		RequestHash: env.Hash,
		Status:      env.Status,
		Body:        env.Body,
		ContentType: env.ContentType,
		ServedBy:    "redis",
	}, nil
}

// WaitForCompletion polls until the in-flight holder finalizes the key.
func (s *Store) WaitForCompletion(ctx context.Context, key, requestHash string) (*Record, error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		rec, err := s.Lookup(ctx, key, requestHash)
		if err == nil {
			return rec, nil
		}
		if errors.Is(err, ErrInProgress) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-ticker.C:
				continue
			}
		}
		return nil, err
	}
}

func redisKey(key string) string {
	return fmt.Sprintf("%s:%s", redisKeyPrefix, key)
}
