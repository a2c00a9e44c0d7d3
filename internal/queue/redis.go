package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/innosystem/dispatch-platform-backend/internal/data"
)

// RedisBroker implements Broker on a Redis backend. BRPOP across the four
// FIFO keys gives an atomic highest-priority pop: a single call observes one
// head and removes it, and the same id is never handed to two workers.
type RedisBroker struct {
	client *redis.Client
}

var _ Broker = (*RedisBroker)(nil)

func NewRedisBroker(redisURL string) (*RedisBroker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err = client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return &RedisBroker{client: client}, nil
}

// NewRedisBrokerWithClient wraps an existing client. Used by tests.
func NewRedisBrokerWithClient(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

func (b *RedisBroker) Push(ctx context.Context, jobID string, priority data.JobPriority) error {
	if err := priority.Validate(); err != nil {
		return fmt.Errorf("validating priority: %w", err)
	}

	err := b.client.LPush(ctx, PendingKey(priority), jobID).Err()
	if err != nil {
		return fmt.Errorf("pushing job %s at priority %s: %w", jobID, priority, err)
	}
	return nil
}

func (b *RedisBroker) Pop(ctx context.Context, timeout time.Duration) (string, error) {
	result, err := b.client.BRPop(ctx, timeout, PendingKeysByPriority()...).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// timeout, nothing to hand out
			return "", nil
		}
		return "", fmt.Errorf("popping job: %w", err)
	}

	// BRPOP returns [key, value].
	if len(result) != 2 {
		return "", fmt.Errorf("unexpected BRPOP reply of length %d", len(result))
	}
	return result[1], nil
}

func (b *RedisBroker) Length(ctx context.Context) (int64, error) {
	var total int64
	for _, priority := range data.JobPriorities() {
		length, err := b.LengthByPriority(ctx, priority)
		if err != nil {
			return 0, err
		}
		total += length
	}
	return total, nil
}

func (b *RedisBroker) LengthByPriority(ctx context.Context, priority data.JobPriority) (int64, error) {
	length, err := b.client.LLen(ctx, PendingKey(priority)).Result()
	if err != nil {
		return 0, fmt.Errorf("getting length of %s queue: %w", priority, err)
	}
	return length, nil
}

func (b *RedisBroker) PeekNext(ctx context.Context) (string, error) {
	for _, key := range PendingKeysByPriority() {
		// the pop side is the right end of the list
		jobID, err := b.client.LIndex(ctx, key, -1).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return "", fmt.Errorf("peeking %s: %w", key, err)
		}
		return jobID, nil
	}
	return "", nil
}

func (b *RedisBroker) Schedule(ctx context.Context, jobID string, dueTime time.Time) error {
	err := b.client.ZAdd(ctx, scheduledKey, redis.Z{
		Score:  float64(dueTime.UnixMilli()),
		Member: jobID,
	}).Err()
	if err != nil {
		return fmt.Errorf("scheduling job %s: %w", jobID, err)
	}
	return nil
}

func (b *RedisBroker) DrainDue(ctx context.Context) ([]string, error) {
	now := time.Now().UnixMilli()
	opt := &redis.ZRangeBy{Min: "0", Max: fmt.Sprintf("%d", now)}

	jobIDs, err := b.client.ZRangeByScore(ctx, scheduledKey, opt).Result()
	if err != nil {
		return nil, fmt.Errorf("ranging due scheduled jobs: %w", err)
	}
	if len(jobIDs) == 0 {
		return nil, nil
	}

	members := make([]interface{}, len(jobIDs))
	for i, id := range jobIDs {
		members[i] = id
	}
	if err = b.client.ZRem(ctx, scheduledKey, members...).Err(); err != nil {
		return nil, fmt.Errorf("removing due scheduled jobs: %w", err)
	}

	return jobIDs, nil
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}
