package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter is a per-client sliding window rate limiter backed by Redis.
// Each request is a member of a sorted set scored by its arrival time in
// milliseconds; a Lua script trims, counts and inserts atomically.
type RateLimiter struct {
	redisClient *redis.Client
	logger      *slog.Logger
	script      *redis.Script
	seq         atomic.Uint64
}

var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

local count = redis.call('ZCARD', key)

if count < limit then
    redis.call('ZADD', key, now, member)
    redis.call('EXPIRE', key, window / 1000 + 1)
    return 1
else
    return 0
end
`)

func NewRateLimiter(redisClient *redis.Client, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		redisClient: redisClient,
		logger:      logger,
		script:      slidingWindowScript,
	}
}

func rlKey(clientID string) string {
	return fmt.Sprintf("rl:%s", clientID)
}

// Allow reports whether another request from clientID fits in the current
// one second window. A non-positive limit disables limiting.
func (rl *RateLimiter) Allow(ctx context.Context, clientID string, limit int) bool {
	if limit <= 0 {
		return true
	}

	key := rlKey(clientID)
	now := time.Now().UnixMilli()
	window := int64(1000)
	member := fmt.Sprintf("%d:%d", now, rl.seq.Add(1))

	result, err := rl.script.Run(ctx, rl.redisClient, []string{key},
		now, window, limit, member,
	).Int64()
	if err != nil {
		// Fail open.
		rl.logger.Error("rate limiter script failed", "error", err, "client", clientID)
		return true
	}

	if result == 0 {
		rl.logger.Debug("rate limited", "client", clientID, "limit", limit)
		return false
	}

	return true
}

// Middleware rejects requests over limit per second with 429, keyed by the
// client address. It expects middleware.RealIP to run first.
func (rl *RateLimiter) Middleware(limit int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.Allow(r.Context(), clientIP(r), limit) {
				w.Header().Set("Retry-After", strconv.Itoa(1))
				respondError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
