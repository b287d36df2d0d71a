package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Priya8975/zap-goal-tracker/internal/domain"
	"github.com/Priya8975/zap-goal-tracker/internal/relay"
	"github.com/Priya8975/zap-goal-tracker/internal/store"
	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/nbd-wtf/go-nostr"
	"github.com/redis/go-redis/v9"
)

var testNow = time.Unix(1_700_100_000, 0)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// memorySource answers filters from a fixed event list.
type memorySource struct {
	mu      sync.Mutex
	events  []*nostr.Event
	filters []nostr.Filter
	err     error
}

func (m *memorySource) QueryEvents(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filters = append(m.filters, filter)
	if m.err != nil {
		return nil, m.err
	}

	var out []*nostr.Event
	for _, ev := range m.events {
		if filter.Matches(ev) {
			out = append(out, ev)
		}
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *memorySource) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.filters)
}

func goalEv(id, pubkey string, createdAt int64, amount string, extra ...nostr.Tag) *nostr.Event {
	tags := nostr.Tags{{"relays", "wss://relay.example.com"}, {"amount", amount}}
	tags = append(tags, extra...)
	return &nostr.Event{
		ID:        id,
		PubKey:    pubkey,
		CreatedAt: nostr.Timestamp(createdAt),
		Kind:      9041,
		Tags:      tags,
		Content:   "goal " + id,
	}
}

func zapEv(id string, createdAt int64, msats int64, goalIDs ...string) *nostr.Event {
	tags := nostr.Tags{{"bolt11", "lnbc1"}, {"description", "{}"}, {"amount", fmt.Sprint(msats)}}
	for _, g := range goalIDs {
		tags = append(tags, nostr.Tag{"e", g})
	}
	return &nostr.Event{
		ID:        id,
		PubKey:    "zapper",
		CreatedAt: nostr.Timestamp(createdAt),
		Kind:      9735,
		Tags:      tags,
	}
}

func newTestService(src Source, cache Cache, ttl time.Duration) *Service {
	return New(src, cache, nil, testLogger(), Options{
		QueryTimeout: time.Second,
		CacheTTL:     ttl,
		Now:          func() time.Time { return testNow },
	})
}

func TestParseSortOrder(t *testing.T) {
	tests := []struct {
		in   string
		want SortOrder
		ok   bool
	}{
		{"", SortNewest, true},
		{"newest", SortNewest, true},
		{"trending", SortTrending, true},
		{"oldest", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseSortOrder(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseSortOrder(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestListGoals_Newest(t *testing.T) {
	now := testNow.Unix()
	src := &memorySource{events: []*nostr.Event{
		goalEv("g1", "alice", now-300, "100000000"),
		goalEv("g2", "bob", now-100, "1000000"),
		goalEv("bad", "bob", now-50, "-5"),
		zapEv("z1", now-10, 50_000_000, "g1"),
		zapEv("z2", now-20, 1_000_000, "g2"),
		zapEv("z3", now-30, 7_000, "g2", "g1"),
	}}
	svc := newTestService(src, nil, 0)

	got, err := svc.ListGoals(context.Background(), SortNewest, 20)
	if err != nil {
		t.Fatalf("ListGoals() error: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 valid goals, got %d", len(got))
	}
	if got[0].Goal.ID != "g2" || got[1].Goal.ID != "g1" {
		t.Errorf("order = %s, %s; want g2, g1", got[0].Goal.ID, got[1].Goal.ID)
	}

	// z3 counts only for its first "e" tag.
	if got[0].Progress.Raised != 1_007_000 || got[0].Progress.ZapCount != 2 {
		t.Errorf("g2 progress = %+v", got[0].Progress)
	}
	if got[1].Progress.Raised != 50_000_000 || got[1].Progress.Percentage != 50 {
		t.Errorf("g1 progress = %+v", got[1].Progress)
	}
	if got[0].Status != domain.StatusCompleted {
		t.Errorf("g2 status = %q, want completed", got[0].Status)
	}
	if got[0].Score != nil {
		t.Error("newest listing should not carry scores")
	}

	if src.calls() != 2 {
		t.Errorf("expected one goal query and one batched receipt query, got %d", src.calls())
	}
	goalFilter, zapFilter := src.filters[0], src.filters[1]
	if goalFilter.Limit != 40 {
		t.Errorf("goal query limit = %d, want 40", goalFilter.Limit)
	}
	if zapFilter.Limit != 500 || len(zapFilter.Tags["e"]) != 2 {
		t.Errorf("receipt query = %+v", zapFilter)
	}
}

func TestListGoals_TrendingAndTruncate(t *testing.T) {
	now := testNow.Unix()
	src := &memorySource{events: []*nostr.Event{
		goalEv("old", "a", now-40*86400, "1000000"),
		goalEv("busy", "a", now-5*86400, "1000000000"),
		goalEv("fresh", "a", now-60, "1000000000"),
		zapEv("z1", now-100, 1_000_000, "busy"),
		zapEv("z2", now-200, 1_000_000, "busy"),
		zapEv("z3", now-300, 1_000_000, "busy"),
	}}
	svc := newTestService(src, nil, 0)

	got, err := svc.ListGoals(context.Background(), SortTrending, 2)
	if err != nil {
		t.Fatalf("ListGoals() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 goals after truncation, got %d", len(got))
	}
	if got[0].Goal.ID != "busy" || got[1].Goal.ID != "fresh" {
		t.Errorf("order = %s, %s; want busy, fresh", got[0].Goal.ID, got[1].Goal.ID)
	}
	if got[0].Score == nil || *got[0].Score <= *got[1].Score {
		t.Error("expected descending scores")
	}
}

func TestListGoals_NoGoalsSkipsReceiptQuery(t *testing.T) {
	src := &memorySource{}
	svc := newTestService(src, nil, 0)

	got, err := svc.ListGoals(context.Background(), SortNewest, 10)
	if err != nil {
		t.Fatalf("ListGoals() error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no goals, got %d", len(got))
	}
	if src.calls() != 1 {
		t.Errorf("expected a single query, got %d", src.calls())
	}
}

func TestListGoals_SourceError(t *testing.T) {
	boom := errors.New("relays down")
	svc := newTestService(&memorySource{err: boom}, nil, 0)

	_, err := svc.ListGoals(context.Background(), SortNewest, 10)
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped source error, got %v", err)
	}
}

func TestListGoals_CacheHitAvoidsSource(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	cache := store.NewRedisFromClient(client)

	src := &memorySource{events: []*nostr.Event{goalEv("g1", "a", testNow.Unix()-10, "1000")}}
	svc := newTestService(src, cache, time.Minute)
	ctx := context.Background()

	first, err := svc.ListGoals(ctx, SortNewest, 5)
	if err != nil {
		t.Fatalf("first ListGoals() error: %v", err)
	}
	callsAfterFirst := src.calls()

	second, err := svc.ListGoals(ctx, SortNewest, 5)
	if err != nil {
		t.Fatalf("second ListGoals() error: %v", err)
	}
	if src.calls() != callsAfterFirst {
		t.Error("cached listing should not query the source")
	}
	if len(second) != len(first) || second[0].Goal.ID != "g1" {
		t.Errorf("cached listing differs: %+v", second)
	}

	mr.FastForward(2 * time.Minute)
	if _, err := svc.ListGoals(ctx, SortNewest, 5); err != nil {
		t.Fatalf("ListGoals() after expiry error: %v", err)
	}
	if src.calls() == callsAfterFirst {
		t.Error("expired cache entry should query the source again")
	}
}

func TestGetGoal(t *testing.T) {
	now := testNow.Unix()
	closedAt := fmt.Sprint(now - 100)
	src := &memorySource{events: []*nostr.Event{
		goalEv("g1", "a", now-1000, "10000", nostr.Tag{"closed_at", closedAt}),
		zapEv("z1", now-500, 3000, "g1"),
		zapEv("z2", now-200, 2000, "g1"),
		zapEv("late", now-50, 9000, "g1"),
		zapEv("second-ref", now-300, 1000, "other", "g1"),
	}}
	svc := newTestService(src, nil, 0)

	detail, err := svc.GetGoal(context.Background(), "g1")
	if err != nil {
		t.Fatalf("GetGoal() error: %v", err)
	}

	if len(detail.Receipts) != 4 {
		t.Fatalf("expected 4 receipts, got %d", len(detail.Receipts))
	}
	for i := 1; i < len(detail.Receipts); i++ {
		if detail.Receipts[i-1].Timestamp < detail.Receipts[i].Timestamp {
			t.Fatal("receipts should be newest first")
		}
	}
	if detail.Progress.Raised != 6000 || detail.Progress.ZapCount != 3 {
		t.Errorf("progress = %+v; the receipt after closed_at must be excluded", detail.Progress)
	}
	if !detail.Progress.IsClosed || detail.Status != domain.StatusClosed {
		t.Errorf("expected closed goal, got %+v / %q", detail.Progress, detail.Status)
	}
}

func TestGetGoal_Errors(t *testing.T) {
	src := &memorySource{events: []*nostr.Event{goalEv("broken", "a", 1, "zero")}}
	svc := newTestService(src, nil, 0)

	if _, err := svc.GetGoal(context.Background(), "missing"); !errors.Is(err, ErrGoalNotFound) {
		t.Errorf("expected ErrGoalNotFound, got %v", err)
	}
	if _, err := svc.GetGoal(context.Background(), "broken"); !errors.Is(err, ErrInvalidGoal) {
		t.Errorf("expected ErrInvalidGoal, got %v", err)
	}
	if ErrGoalNotFound.Error() != "Goal not found" || ErrInvalidGoal.Error() != "Invalid goal event" {
		t.Error("error messages changed")
	}
}

func TestAuthorGoals(t *testing.T) {
	now := testNow.Unix()
	src := &memorySource{events: []*nostr.Event{
		goalEv("a1", "alice", now-500, "1000"),
		goalEv("a2", "alice", now-100, "1000"),
		goalEv("b1", "bob", now-50, "1000"),
		zapEv("z1", now-10, 1000, "a1"),
	}}
	svc := newTestService(src, nil, 0)

	got, err := svc.AuthorGoals(context.Background(), "alice", 10)
	if err != nil {
		t.Fatalf("AuthorGoals() error: %v", err)
	}
	if len(got) != 2 || got[0].Goal.ID != "a2" || got[1].Goal.ID != "a1" {
		t.Fatalf("unexpected goals: %+v", got)
	}
	if got[1].Progress.Raised != 1000 || got[1].Status != domain.StatusCompleted {
		t.Errorf("a1 progress = %+v", got[1].Progress)
	}

	empty, err := svc.AuthorGoals(context.Background(), "", 10)
	if err != nil || len(empty) != 0 {
		t.Errorf("empty pubkey: got %v, %v", empty, err)
	}
}

func TestQueryTimeout(t *testing.T) {
	blocking := sourceFunc(func(ctx context.Context, _ nostr.Filter) ([]*nostr.Event, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	svc := New(blocking, nil, nil, testLogger(), Options{QueryTimeout: 20 * time.Millisecond})

	_, err := svc.GetGoal(context.Background(), "g1")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

type sourceFunc func(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error)

func (f sourceFunc) QueryEvents(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error) {
	return f(ctx, filter)
}

type recordingArchive struct {
	saved []*nostr.Event
	err   error
}

func (r *recordingArchive) SaveEvents(ctx context.Context, events []*nostr.Event) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	r.saved = append(r.saved, events...)
	return len(events), nil
}

func TestArchivingSource(t *testing.T) {
	src := &memorySource{events: []*nostr.Event{goalEv("g1", "a", 1, "1000")}}

	archive := &recordingArchive{}
	as := NewArchivingSource(src, archive, testLogger())
	events, err := as.QueryEvents(context.Background(), nostr.Filter{Kinds: []int{9041}})
	if err != nil || len(events) != 1 {
		t.Fatalf("QueryEvents() = %d events, %v", len(events), err)
	}
	if len(archive.saved) != 1 {
		t.Errorf("expected 1 archived event, got %d", len(archive.saved))
	}

	failing := NewArchivingSource(src, &recordingArchive{err: errors.New("db down")}, testLogger())
	if _, err := failing.QueryEvents(context.Background(), nostr.Filter{}); err != nil {
		t.Errorf("archive failure should not fail the query: %v", err)
	}
}

func TestRelayTimeoutIsNotNotFound(t *testing.T) {
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer ts.Close()

	client := relay.NewClient([]string{"ws" + strings.TrimPrefix(ts.URL, "http")}, nil, nil, testLogger())
	svc := New(client, nil, nil, testLogger(), Options{QueryTimeout: 200 * time.Millisecond})

	_, err := svc.GetGoal(context.Background(), strings.Repeat("ab", 32))
	if errors.Is(err, ErrGoalNotFound) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("GetGoal() error = %v, want deadline exceeded", err)
	}

	goals, err := svc.ListGoals(context.Background(), SortNewest, 5)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("ListGoals() = %d goals, %v; want deadline exceeded", len(goals), err)
	}
}
