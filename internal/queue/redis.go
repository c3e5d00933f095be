package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	ticketQueueKey = "intake:tickets:queue"
	pollInterval   = 100 * time.Millisecond
)

// RedisQueue is a ZSET scored by due time, so delayed retries and immediate
// enqueues share one structure. Members are ticket UUIDs.
type RedisQueue struct {
	client *redis.Client
}

func NewRedisQueue(redisURL string) (*RedisQueue, error) {
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
	return &RedisQueue{client: client}, nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, ticketID uuid.UUID, delay time.Duration) error {
	due := float64(time.Now().Add(delay).UnixNano())
	return q.client.ZAdd(ctx, ticketQueueKey, redis.Z{
		Score:  due,
		Member: ticketID.String(),
	}).Err()
}

func (q *RedisQueue) Dequeue(ctx context.Context) (uuid.UUID, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		id, ok, err := q.tryDequeue(ctx)
		if err != nil {
			return uuid.Nil, err
		}
		if ok {
			return id, nil
		}
		select {
		case <-ctx.Done():
			return uuid.Nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (q *RedisQueue) tryDequeue(ctx context.Context) (uuid.UUID, bool, error) {
	now := float64(time.Now().UnixNano())
	results, err := q.client.ZRangeByScore(ctx, ticketQueueKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%f", now),
		Count: 1,
	}).Result()
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("range queue: %w", err)
	}
	if len(results) == 0 {
		return uuid.Nil, false, nil
	}

	member := results[0]
	removed, err := q.client.ZRem(ctx, ticketQueueKey, member).Result()
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("remove from queue: %w", err)
	}
	if removed == 0 {
		// another worker claimed it first
		return uuid.Nil, false, nil
	}

	id, err := uuid.Parse(member)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("malformed queue member %q: %w", member, err)
	}
	return id, true, nil
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
