package builder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisGenerationKey = "build:generation"
	maxWatchRetries    = 5
)

// RedisStore keeps build records as JSON snapshots in Redis so several server
// processes can serve the same records.
type RedisStore struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRedisStore connects to redisURL. A zero ttl keeps records until deleted.
func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{redis: client, ttl: ttl}, nil
}

func recordKey(projectID string) string {
	return fmt.Sprintf("build:%s", projectID)
}

func (s *RedisStore) Create(ctx context.Context, projectID string) (Record, error) {
	gen, err := s.redis.Incr(ctx, redisGenerationKey).Result()
	if err != nil {
		return Record{}, fmt.Errorf("next generation: %w", err)
	}

	rec := newRecord(projectID, uint64(gen), time.Now().UTC())
	data, err := json.Marshal(rec)
	if err != nil {
		return Record{}, err
	}
	if err := s.redis.Set(ctx, recordKey(projectID), data, s.ttl).Err(); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (s *RedisStore) Get(ctx context.Context, projectID string) (Record, error) {
	data, err := s.redis.Get(ctx, recordKey(projectID)).Bytes()
	if err == redis.Nil {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decode build record: %w", err)
	}
	return rec, nil
}

func (s *RedisStore) Apply(ctx context.Context, projectID string, t Transition) (Record, error) {
	key := recordKey(projectID)

	var out Record
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("decode build record: %w", err)
		}
		out = rec
		if err := rec.apply(t, time.Now().UTC()); err != nil {
			return err
		}
		updated, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, s.ttl)
			return nil
		})
		if err == nil {
			out = rec
		}
		return err
	}

	for i := 0; i < maxWatchRetries; i++ {
		err := s.redis.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return out, err
	}
	return out, fmt.Errorf("apply transition for %s: too much contention", projectID)
}

func (s *RedisStore) Delete(ctx context.Context, projectID string) error {
	return s.redis.Del(ctx, recordKey(projectID)).Err()
}

// Ping reports whether Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.redis.Close()
}
