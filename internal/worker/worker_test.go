package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Priya8975/zap-goal-tracker/internal/domain"
	"github.com/Priya8975/zap-goal-tracker/internal/service"
	ws "github.com/Priya8975/zap-goal-tracker/internal/websocket"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func setupQueue(t *testing.T) (*Queue, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewQueue(client), client
}

type fakeGoals struct {
	detail *domain.GoalDetail
	err    error
}

func (f *fakeGoals) GetGoal(ctx context.Context, id string) (*domain.GoalDetail, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.detail, nil
}

type recordingHub struct {
	mu     sync.Mutex
	events []ws.ProgressEvent
}

func (h *recordingHub) Broadcast(event ws.ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
}

func (h *recordingHub) last() ws.ProgressEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.events[len(h.events)-1]
}

func TestQueue_EnqueueAndDepth(t *testing.T) {
	q, client := setupQueue(t)
	ctx := context.Background()
	due := time.Unix(1_700_000_000, 0)

	if err := q.Enqueue(ctx, due, "g1", "g2"); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	// Re-enqueueing moves the goal instead of duplicating it.
	if err := q.Enqueue(ctx, due.Add(time.Minute), "g1"); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}

	depth, err := q.Depth(ctx)
	if err != nil {
		t.Fatalf("Depth() error: %v", err)
	}
	if depth != 2 {
		t.Errorf("expected depth 2, got %d", depth)
	}

	score := client.ZScore(ctx, RefreshQueueKey, "g1").Val()
	if int64(score) != due.Add(time.Minute).UnixMicro() {
		t.Errorf("g1 due = %v, want %v", int64(score), due.Add(time.Minute).UnixMicro())
	}
}

func TestRefresher_OpenGoalIsRescheduled(t *testing.T) {
	q, client := setupQueue(t)
	hub := &recordingHub{}
	goals := &fakeGoals{detail: &domain.GoalDetail{
		Goal:     domain.Goal{ID: "g1"},
		Progress: domain.Progress{Raised: 500, Target: 1000, Percentage: 50},
		Status:   domain.StatusOpen,
	}}

	r := NewRefresher(goals, q, hub, nil, testLogger(), time.Minute)
	now := time.Unix(1_700_000_000, 0)
	r.now = func() time.Time { return now }

	r.Refresh(context.Background(), "g1")

	ev := hub.last()
	if ev.Type != ws.EventProgress || ev.Progress.Raised != 500 {
		t.Errorf("unexpected event: %+v", ev)
	}

	score, err := client.ZScore(context.Background(), RefreshQueueKey, "g1").Result()
	if err != nil {
		t.Fatalf("goal was not rescheduled: %v", err)
	}
	if int64(score) != now.Add(time.Minute).UnixMicro() {
		t.Errorf("rescheduled at %v, want now+interval", int64(score))
	}
}

func TestRefresher_ClosedGoalStops(t *testing.T) {
	q, _ := setupQueue(t)
	hub := &recordingHub{}
	goals := &fakeGoals{detail: &domain.GoalDetail{
		Goal:     domain.Goal{ID: "g1"},
		Progress: domain.Progress{IsClosed: true},
		Status:   domain.StatusClosed,
	}}

	r := NewRefresher(goals, q, hub, nil, testLogger(), time.Minute)
	r.Refresh(context.Background(), "g1")

	if ev := hub.last(); ev.Type != ws.EventClosed {
		t.Errorf("expected %q, got %q", ws.EventClosed, ev.Type)
	}
	if depth, _ := q.Depth(context.Background()); depth != 0 {
		t.Errorf("closed goal should not be rescheduled, depth %d", depth)
	}
}

func TestRefresher_Errors(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		rescheduled bool
	}{
		{"not found", service.ErrGoalNotFound, false},
		{"invalid", fmt.Errorf("wrapped: %w", service.ErrInvalidGoal), false},
		{"transient", errors.New("all relays failed"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, _ := setupQueue(t)
			hub := &recordingHub{}
			r := NewRefresher(&fakeGoals{err: tt.err}, q, hub, nil, testLogger(), time.Minute)

			r.Refresh(context.Background(), "g1")

			if ev := hub.last(); ev.Type != ws.EventRefreshFailed || ev.Error == "" {
				t.Errorf("unexpected event: %+v", ev)
			}
			depth, _ := q.Depth(context.Background())
			if (depth == 1) != tt.rescheduled {
				t.Errorf("rescheduled = %v, want %v", depth == 1, tt.rescheduled)
			}
		})
	}
}

type handlerFunc func(ctx context.Context, goalID string)

func (f handlerFunc) Refresh(ctx context.Context, goalID string) { f(ctx, goalID) }

func TestDispatcher_DeliversDueGoals(t *testing.T) {
	q, client := setupQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan string, 4)
	pool := NewPool(2, handlerFunc(func(_ context.Context, goalID string) {
		got <- goalID
	}), testLogger())
	pool.Start(ctx)

	d := NewDispatcher(client, pool, testLogger())
	d.pollInterval = 10 * time.Millisecond

	if err := q.Enqueue(ctx, time.Now().Add(-time.Second), "due"); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	if err := q.Enqueue(ctx, time.Now().Add(time.Hour), "later"); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}

	done := make(chan struct{})
	go func() {
		d.Start(ctx)
		close(done)
	}()

	select {
	case id := <-got:
		if id != "due" {
			t.Errorf("dispatched %q, want due", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("due goal was not dispatched")
	}

	select {
	case id := <-got:
		t.Errorf("unexpected dispatch of %q", id)
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	<-done
	pool.Stop()

	if depth, _ := q.Depth(context.Background()); depth != 1 {
		t.Errorf("expected only the future goal to remain, depth %d", depth)
	}
}
