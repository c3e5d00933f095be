package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "idemp:"

// completeScript flips an IN_FLIGHT record to the caller-provided value while
// keeping its TTL. Anything else is left untouched so replays never clobber a
// stored result.
var completeScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if not cur then return 0 end
local rec = cjson.decode(cur)
if rec.state ~= 'IN_FLIGHT' then return 0 end
redis.call('SET', KEYS[1], ARGV[1], 'KEEPTTL')
return 1
`)

// failScript deletes the record only while it is IN_FLIGHT, freeing the key
// for a retry.
var failScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if not cur then return 0 end
local rec = cjson.decode(cur)
if rec.state ~= 'IN_FLIGHT' then return 0 end
redis.call('DEL', KEYS[1])
return 1
`)

type redisRecord struct {
	State     State  `json:"state"`
	Snapshot  []byte `json:"snapshot,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

// RedisStore backs the guard with SET NX + TTL, the same shape the original
// request deduplication used. Expiry is delegated to Redis.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) PutIfAbsent(ctx context.Context, rec Record) (*Record, bool, error) {
	payload, err := json.Marshal(redisRecord{State: StateInFlight, CreatedAt: rec.CreatedAt.Unix()})
	if err != nil {
		return nil, false, err
	}

	key := redisKeyPrefix + rec.Key
	ok, err := s.client.SetNX(ctx, key, payload, s.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("setnx: %w", err)
	}
	if ok {
		return nil, true, nil
	}

	raw, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		// Record expired between SETNX and GET; one more attempt wins or loses
		// against whoever else is racing.
		ok, err := s.client.SetNX(ctx, key, payload, s.ttl).Result()
		if err != nil {
			return nil, false, fmt.Errorf("setnx retry: %w", err)
		}
		if ok {
			return nil, true, nil
		}
		inflight := Record{Key: rec.Key, State: StateInFlight}
		return &inflight, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get record: %w", err)
	}

	var stored redisRecord
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, false, fmt.Errorf("decode record: %w", err)
	}
	existing := Record{
		Key:      rec.Key,
		State:    stored.State,
		Snapshot: stored.Snapshot,
	}
	return &existing, false, nil
}

func (s *RedisStore) Complete(ctx context.Context, key string, snapshot []byte) error {
	payload, err := json.Marshal(redisRecord{State: StateCompleted, Snapshot: snapshot})
	if err != nil {
		return err
	}
	n, err := completeScript.Run(ctx, s.client, []string{redisKeyPrefix + key}, payload).Int()
	if err != nil {
		return fmt.Errorf("complete record: %w", err)
	}
	if n == 0 {
		return ErrStateMismatch
	}
	return nil
}

func (s *RedisStore) Fail(ctx context.Context, key string) error {
	if err := failScript.Run(ctx, s.client, []string{redisKeyPrefix + key}).Err(); err != nil {
		return fmt.Errorf("fail record: %w", err)
	}
	return nil
}
