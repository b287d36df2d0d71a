package worker

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Dispatcher continuously polls the refresh queue and sends due goals
// to the worker pool.
type Dispatcher struct {
	redisClient  *redis.Client
	pool         *Pool
	logger       *slog.Logger
	pollInterval time.Duration
	batchSize    int64
}

// NewDispatcher creates a dispatcher that pulls from the Redis sorted set.
func NewDispatcher(redisClient *redis.Client, pool *Pool, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		redisClient:  redisClient,
		pool:         pool,
		logger:       logger,
		pollInterval: 250 * time.Millisecond,
		batchSize:    10,
	}
}

// Start begins the polling loop. It runs until the context is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("dispatcher started")

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopping")
			return
		case <-ticker.C:
			d.poll(ctx)
		}
	}
}

// poll claims a batch of due goals and hands them to the pool.
func (d *Dispatcher) poll(ctx context.Context) {
	now := float64(time.Now().UnixMicro())

	results, err := d.redisClient.ZRangeByScore(ctx, RefreshQueueKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   formatFloat(now),
		Count: d.batchSize,
	}).Result()
	if err != nil {
		d.logger.Error("failed to poll refresh queue", "error", err)
		return
	}

	for _, goalID := range results {
		// ZRem returning 0 means another dispatcher claimed the goal.
		removed, err := d.redisClient.ZRem(ctx, RefreshQueueKey, goalID).Result()
		if err != nil {
			d.logger.Error("failed to remove goal from queue", "error", err, "goal_id", goalID)
			continue
		}
		if removed == 0 {
			continue
		}

		if !d.pool.Submit(ctx, goalID) {
			return
		}
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
