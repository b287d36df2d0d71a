package relay

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Circuit breaker states
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half-open"
)

// CircuitBreaker tracks relay health in Redis so an unreachable relay does
// not hold every query until its timeout.
//
//   - Closed: queries go through, failures are counted.
//   - Open: the relay is skipped until the cooldown elapses.
//   - Half-open: the relay is tried again. Success closes, failure re-opens.
type CircuitBreaker struct {
	redisClient      *redis.Client
	logger           *slog.Logger
	failureThreshold int
	cooldownPeriod   time.Duration
}

// CircuitBreakerState is the reported state of one relay's circuit.
type CircuitBreakerState struct {
	Relay        string `json:"relay"`
	State        string `json:"state"`
	Failures     int    `json:"failures"`
	LastFailedAt string `json:"last_failed_at,omitempty"`
}

func NewCircuitBreaker(redisClient *redis.Client, logger *slog.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		redisClient:      redisClient,
		logger:           logger,
		failureThreshold: 5,
		cooldownPeriod:   30 * time.Second,
	}
}

func cbKey(relayURL string) string {
	return "cb:relay:" + relayURL
}

// AllowRequest reports the relay's state and whether it should be queried.
func (cb *CircuitBreaker) AllowRequest(ctx context.Context, relayURL string) (string, bool) {
	key := cbKey(relayURL)

	data, err := cb.redisClient.HGetAll(ctx, key).Result()
	if err != nil || len(data) == 0 {
		return StateClosed, true
	}

	switch data["state"] {
	case StateOpen:
		lastFailedAt, _ := strconv.ParseInt(data["last_failed_at"], 10, 64)
		if !cb.cooledDown(lastFailedAt) {
			return StateOpen, false
		}
		cb.redisClient.HSet(ctx, key, "state", StateHalfOpen)
		cb.logger.Info("relay circuit half-open", "relay", relayURL)
		return StateHalfOpen, true

	case StateHalfOpen:
		return StateHalfOpen, true

	default:
		return StateClosed, true
	}
}

// RecordSuccess closes the circuit and clears the failure count.
func (cb *CircuitBreaker) RecordSuccess(ctx context.Context, relayURL string) {
	key := cbKey(relayURL)

	state, _ := cb.redisClient.HGet(ctx, key, "state").Result()

	cb.redisClient.HSet(ctx, key,
		"state", StateClosed,
		"failures", 0,
	)

	if state == StateHalfOpen {
		cb.logger.Info("relay circuit closed (recovered)", "relay", relayURL)
	}
}

// RecordFailure counts a failed query and opens the circuit at the threshold.
func (cb *CircuitBreaker) RecordFailure(ctx context.Context, relayURL string) {
	key := cbKey(relayURL)

	failures, err := cb.redisClient.HIncrBy(ctx, key, "failures", 1).Result()
	if err != nil {
		cb.logger.Error("failed to record relay failure", "error", err, "relay", relayURL)
		return
	}

	cb.redisClient.HSet(ctx, key, "last_failed_at", time.Now().Unix())

	state, _ := cb.redisClient.HGet(ctx, key, "state").Result()

	switch {
	case state == StateHalfOpen:
		cb.redisClient.HSet(ctx, key, "state", StateOpen)
		cb.logger.Warn("relay circuit re-opened (half-open probe failed)", "relay", relayURL)
	case failures >= int64(cb.failureThreshold):
		cb.redisClient.HSet(ctx, key, "state", StateOpen)
		cb.logger.Warn("relay circuit opened",
			"relay", relayURL,
			"failures", failures,
			"threshold", cb.failureThreshold,
		)
	case state == "":
		cb.redisClient.HSet(ctx, key, "state", StateClosed)
	}
}

// GetState returns the current circuit state of a relay.
func (cb *CircuitBreaker) GetState(ctx context.Context, relayURL string) CircuitBreakerState {
	result := CircuitBreakerState{Relay: relayURL, State: StateClosed}

	data, err := cb.redisClient.HGetAll(ctx, cbKey(relayURL)).Result()
	if err != nil || len(data) == 0 {
		return result
	}

	result.Failures, _ = strconv.Atoi(data["failures"])
	if s := data["state"]; s != "" {
		result.State = s
	}

	lastFailedAt, _ := strconv.ParseInt(data["last_failed_at"], 10, 64)
	if result.State == StateOpen && cb.cooledDown(lastFailedAt) {
		result.State = StateHalfOpen
	}
	if lastFailedAt > 0 {
		result.LastFailedAt = time.Unix(lastFailedAt, 0).UTC().Format(time.RFC3339)
	}

	return result
}

func (cb *CircuitBreaker) cooledDown(lastFailedAt int64) bool {
	return time.Now().Unix()-lastFailedAt >= int64(cb.cooldownPeriod.Seconds())
}
