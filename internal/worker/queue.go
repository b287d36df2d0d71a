package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const RefreshQueueKey = "refresh_queue"

// Queue schedules goal refreshes in a Redis sorted set. Members are goal
// ids, scores are due times in microseconds. Scheduling a goal that is
// already queued moves it to the new due time.
type Queue struct {
	client *redis.Client
}

func NewQueue(client *redis.Client) *Queue {
	return &Queue{client: client}
}

// Enqueue schedules goalIDs for refresh at due.
func (q *Queue) Enqueue(ctx context.Context, due time.Time, goalIDs ...string) error {
	if len(goalIDs) == 0 {
		return nil
	}

	pipe := q.client.Pipeline()
	for _, id := range goalIDs {
		pipe.ZAdd(ctx, RefreshQueueKey, redis.Z{
			Score:  float64(due.UnixMicro()),
			Member: id,
		})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queuing refreshes to redis: %w", err)
	}
	return nil
}

// Depth returns the number of goals waiting in the queue.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, RefreshQueueKey).Result()
}
