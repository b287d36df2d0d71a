package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Priya8975/zap-goal-tracker/internal/metrics"
	"github.com/nbd-wtf/go-nostr"
	"golang.org/x/sync/errgroup"
)

// ErrNoRelays is returned when every configured relay is being skipped.
var ErrNoRelays = errors.New("no relays available")

// Client queries a fixed set of relays and merges their answers.
type Client struct {
	relays         []string
	circuitBreaker *CircuitBreaker
	metrics        *metrics.Metrics
	logger         *slog.Logger
}

// NewClient creates a client for the given relay URLs. cb and m may be nil.
func NewClient(relayURLs []string, cb *CircuitBreaker, m *metrics.Metrics, logger *slog.Logger) *Client {
	relays := make([]string, 0, len(relayURLs))
	seen := make(map[string]bool, len(relayURLs))
	for _, u := range relayURLs {
		u = nostr.NormalizeURL(u)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		relays = append(relays, u)
	}

	return &Client{
		relays:         relays,
		circuitBreaker: cb,
		metrics:        m,
		logger:         logger,
	}
}

// Relays returns the normalized relay URLs.
func (c *Client) Relays() []string {
	return c.relays
}

// QueryEvents sends filter to every relay whose circuit allows it and
// returns the union of the stored events, deduplicated by id and ordered
// newest first. It fails when no relay answered or when ctx ends before
// every relay reached end of stored events.
func (c *Client) QueryEvents(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error) {
	var (
		mu       sync.Mutex
		byID     = make(map[string]*nostr.Event)
		errs     []error
		answered int
	)

	var g errgroup.Group
	attempted := 0
	for _, url := range c.relays {
		if c.circuitBreaker != nil {
			if state, ok := c.circuitBreaker.AllowRequest(ctx, url); !ok {
				c.logger.Debug("skipping relay", "relay", url, "circuit", state)
				continue
			}
		}
		attempted++

		g.Go(func() error {
			start := time.Now()
			events, err := c.queryRelay(ctx, url, filter)
			elapsed := time.Since(start)
			if err == nil && ctx.Err() != nil {
				// QuerySync returns what it has so far when ctx ends.
				err = fmt.Errorf("querying %s: %w", url, ctx.Err())
			}

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				errs = append(errs, err)
				c.metrics.RelayQuery(url, "error", elapsed)
				if c.circuitBreaker != nil && ctx.Err() == nil {
					c.circuitBreaker.RecordFailure(ctx, url)
				}
				c.logger.Warn("relay query failed", "relay", url, "error", err)
				return nil
			}

			answered++
			c.metrics.RelayQuery(url, "ok", elapsed)
			if c.circuitBreaker != nil {
				c.circuitBreaker.RecordSuccess(ctx, url)
			}
			for _, ev := range events {
				if _, dup := byID[ev.ID]; !dup {
					byID[ev.ID] = ev
				}
			}
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("querying relays: %w", err)
	}
	if attempted == 0 {
		return nil, ErrNoRelays
	}
	if answered == 0 {
		return nil, fmt.Errorf("all relays failed: %w", errors.Join(errs...))
	}

	events := make([]*nostr.Event, 0, len(byID))
	for _, ev := range byID {
		events = append(events, ev)
	}
	sortNewestFirst(events)
	if filter.Limit > 0 && len(events) > filter.Limit {
		events = events[:filter.Limit]
	}

	return events, nil
}

// CircuitStates reports the circuit of every configured relay.
func (c *Client) CircuitStates(ctx context.Context) []CircuitBreakerState {
	states := make([]CircuitBreakerState, 0, len(c.relays))
	for _, url := range c.relays {
		if c.circuitBreaker == nil {
			states = append(states, CircuitBreakerState{Relay: url, State: StateClosed})
			continue
		}
		states = append(states, c.circuitBreaker.GetState(ctx, url))
	}
	return states
}

func (c *Client) queryRelay(ctx context.Context, url string, filter nostr.Filter) ([]*nostr.Event, error) {
	r, err := nostr.RelayConnect(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", url, err)
	}
	defer r.Close()

	events, err := r.QuerySync(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", url, err)
	}
	return events, nil
}
