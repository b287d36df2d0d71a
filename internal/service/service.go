package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/Priya8975/zap-goal-tracker/internal/domain"
	"github.com/Priya8975/zap-goal-tracker/internal/engine"
	"github.com/Priya8975/zap-goal-tracker/internal/metrics"
	"github.com/nbd-wtf/go-nostr"
)

var (
	ErrGoalNotFound = errors.New("Goal not found")
	ErrInvalidGoal  = errors.New("Invalid goal event")
)

// receiptLimit caps every receipt query, batched or not.
const receiptLimit = 500

// SortOrder selects how goal listings are ordered.
type SortOrder string

const (
	SortNewest   SortOrder = "newest"
	SortTrending SortOrder = "trending"
)

// ParseSortOrder maps a query value to a SortOrder. Empty means newest.
func ParseSortOrder(s string) (SortOrder, bool) {
	switch SortOrder(s) {
	case "", SortNewest:
		return SortNewest, true
	case SortTrending:
		return SortTrending, true
	default:
		return "", false
	}
}

// Cache stores JSON-encoded listings. *store.RedisStore satisfies it.
type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

type Options struct {
	QueryTimeout time.Duration
	CacheTTL     time.Duration
	Now          func() time.Time
}

// Service fetches goals and receipts from a Source and derives progress.
type Service struct {
	source  Source
	cache   Cache
	metrics *metrics.Metrics
	logger  *slog.Logger

	queryTimeout time.Duration
	cacheTTL     time.Duration
	now          func() time.Time
}

// New creates a Service. cache and m may be nil.
func New(source Source, cache Cache, m *metrics.Metrics, logger *slog.Logger, opts Options) *Service {
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = 3 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		source:       source,
		cache:        cache,
		metrics:      m,
		logger:       logger,
		queryTimeout: opts.QueryTimeout,
		cacheTTL:     opts.CacheTTL,
		now:          opts.Now,
	}
}

// ListGoals returns up to limit goals with their progress, ordered by order.
func (s *Service) ListGoals(ctx context.Context, order SortOrder, limit int) ([]domain.GoalWithProgress, error) {
	key := fmt.Sprintf("goals:list:%s:%d", order, limit)
	if cached, ok := s.cachedListing(ctx, key); ok {
		return cached, nil
	}

	events, err := s.query(ctx, nostr.Filter{Kinds: []int{engine.KindZapGoal}, Limit: limit * 2})
	if err != nil {
		return nil, fmt.Errorf("fetching goals: %w", err)
	}
	goals := s.parseGoals(events)

	receipts, err := s.receiptsFor(ctx, goals)
	if err != nil {
		return nil, err
	}
	byGoal := groupByGoal(receipts)

	now := s.now()
	results := make([]domain.GoalWithProgress, 0, len(goals))
	for i := range goals {
		goal := &goals[i]
		zaps := byGoal[goal.ID]
		progress := engine.CalculateProgress(goal, zaps, now)
		item := domain.GoalWithProgress{
			Goal:     *goal,
			Progress: progress,
			Status:   engine.Status(progress),
		}
		if order == SortTrending {
			score := engine.CalculateTrendingScore(goal, progress, zaps, now)
			item.Score = &score
		}
		results = append(results, item)
	}

	switch order {
	case SortTrending:
		slices.SortStableFunc(results, func(a, b domain.GoalWithProgress) int {
			return cmp.Compare(*b.Score, *a.Score)
		})
	default:
		slices.SortStableFunc(results, func(a, b domain.GoalWithProgress) int {
			return cmp.Compare(b.Goal.CreatedAt, a.Goal.CreatedAt)
		})
	}
	if limit >= 0 && len(results) > limit {
		results = results[:limit]
	}

	s.storeListing(ctx, key, results)
	return results, nil
}

// GetGoal returns a goal with every receipt referencing it, newest first.
func (s *Service) GetGoal(ctx context.Context, id string) (*domain.GoalDetail, error) {
	events, err := s.query(ctx, nostr.Filter{Kinds: []int{engine.KindZapGoal}, IDs: []string{id}})
	if err != nil {
		return nil, fmt.Errorf("fetching goal %s: %w", id, err)
	}
	if len(events) == 0 {
		return nil, ErrGoalNotFound
	}

	goal := engine.ParseGoal(events[0])
	if goal == nil {
		s.metrics.Rejected("goal", 1)
		return nil, ErrInvalidGoal
	}

	zapEvents, err := s.query(ctx, nostr.Filter{
		Kinds: []int{engine.KindZapReceipt},
		Tags:  nostr.TagMap{"e": []string{id}},
		Limit: receiptLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("fetching receipts for %s: %w", id, err)
	}
	receipts := s.parseReceipts(zapEvents)
	slices.SortStableFunc(receipts, func(a, b domain.Receipt) int {
		return cmp.Compare(b.Timestamp, a.Timestamp)
	})

	progress := engine.CalculateProgress(goal, receipts, s.now())
	return &domain.GoalDetail{
		Goal:     *goal,
		Receipts: receipts,
		Progress: progress,
		Status:   engine.Status(progress),
	}, nil
}

// AuthorGoals returns the goals published by pubkey, newest first.
func (s *Service) AuthorGoals(ctx context.Context, pubkey string, limit int) ([]domain.GoalWithProgress, error) {
	if pubkey == "" {
		return []domain.GoalWithProgress{}, nil
	}

	events, err := s.query(ctx, nostr.Filter{
		Kinds:   []int{engine.KindZapGoal},
		Authors: []string{pubkey},
		Limit:   limit,
	})
	if err != nil {
		return nil, fmt.Errorf("fetching goals of %s: %w", pubkey, err)
	}
	goals := s.parseGoals(events)
	slices.SortStableFunc(goals, func(a, b domain.Goal) int {
		return cmp.Compare(b.CreatedAt, a.CreatedAt)
	})

	receipts, err := s.receiptsFor(ctx, goals)
	if err != nil {
		return nil, err
	}
	byGoal := groupByGoal(receipts)

	now := s.now()
	results := make([]domain.GoalWithProgress, 0, len(goals))
	for i := range goals {
		progress := engine.CalculateProgress(&goals[i], byGoal[goals[i].ID], now)
		results = append(results, domain.GoalWithProgress{
			Goal:     goals[i],
			Progress: progress,
			Status:   engine.Status(progress),
		})
	}
	return results, nil
}

func (s *Service) query(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	return s.source.QueryEvents(ctx, filter)
}

// receiptsFor fetches the receipts of all goals in one query.
func (s *Service) receiptsFor(ctx context.Context, goals []domain.Goal) ([]domain.Receipt, error) {
	if len(goals) == 0 {
		return nil, nil
	}

	ids := make([]string, len(goals))
	for i, g := range goals {
		ids[i] = g.ID
	}

	events, err := s.query(ctx, nostr.Filter{
		Kinds: []int{engine.KindZapReceipt},
		Tags:  nostr.TagMap{"e": ids},
		Limit: receiptLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("fetching receipts: %w", err)
	}
	return s.parseReceipts(events), nil
}

func (s *Service) parseGoals(events []*nostr.Event) []domain.Goal {
	goals := make([]domain.Goal, 0, len(events))
	for _, ev := range events {
		if g := engine.ParseGoal(ev); g != nil {
			goals = append(goals, *g)
		}
	}
	if dropped := len(events) - len(goals); dropped > 0 {
		s.metrics.Rejected("goal", dropped)
		s.logger.Debug("dropped invalid goals", "count", dropped)
	}
	return goals
}

func (s *Service) parseReceipts(events []*nostr.Event) []domain.Receipt {
	receipts := make([]domain.Receipt, 0, len(events))
	for _, ev := range events {
		if r := engine.ParseReceipt(ev); r != nil {
			receipts = append(receipts, *r)
		}
	}
	if dropped := len(events) - len(receipts); dropped > 0 {
		s.metrics.Rejected("receipt", dropped)
		s.logger.Debug("dropped invalid receipts", "count", dropped)
	}
	return receipts
}

// groupByGoal keys receipts by the value of their first "e" tag.
func groupByGoal(receipts []domain.Receipt) map[string][]domain.Receipt {
	byGoal := make(map[string][]domain.Receipt)
	for _, r := range receipts {
		if r.GoalID == "" {
			continue
		}
		byGoal[r.GoalID] = append(byGoal[r.GoalID], r)
	}
	return byGoal
}

func (s *Service) cachedListing(ctx context.Context, key string) ([]domain.GoalWithProgress, bool) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return nil, false
	}

	var cached []domain.GoalWithProgress
	hit, err := s.cache.GetJSON(ctx, key, &cached)
	if err != nil {
		s.logger.Warn("reading listing cache failed", "key", key, "error", err)
		return nil, false
	}
	s.metrics.CacheLookup(hit)
	return cached, hit
}

func (s *Service) storeListing(ctx context.Context, key string, results []domain.GoalWithProgress) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}
	if err := s.cache.SetJSON(ctx, key, results, s.cacheTTL); err != nil {
		s.logger.Warn("writing listing cache failed", "key", key, "error", err)
	}
}
