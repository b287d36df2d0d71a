package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Priya8975/zap-goal-tracker/internal/domain"
	"github.com/Priya8975/zap-goal-tracker/internal/metrics"
	"github.com/Priya8975/zap-goal-tracker/internal/service"
	ws "github.com/Priya8975/zap-goal-tracker/internal/websocket"
)

// GoalGetter loads a goal with its progress.
type GoalGetter interface {
	GetGoal(ctx context.Context, id string) (*domain.GoalDetail, error)
}

// Broadcaster publishes progress events to live clients.
type Broadcaster interface {
	Broadcast(event ws.ProgressEvent)
}

// Refresher recomputes a watched goal's progress, broadcasts it and
// schedules the next refresh until the goal closes.
type Refresher struct {
	goals    GoalGetter
	queue    *Queue
	hub      Broadcaster
	metrics  *metrics.Metrics
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time
}

func NewRefresher(goals GoalGetter, queue *Queue, hub Broadcaster, m *metrics.Metrics, logger *slog.Logger, interval time.Duration) *Refresher {
	return &Refresher{
		goals:    goals,
		queue:    queue,
		hub:      hub,
		metrics:  m,
		logger:   logger,
		interval: interval,
		now:      time.Now,
	}
}

// Watch schedules an immediate refresh of goalID.
func (r *Refresher) Watch(ctx context.Context, goalID string) error {
	return r.queue.Enqueue(ctx, r.now(), goalID)
}

func (r *Refresher) Refresh(ctx context.Context, goalID string) {
	now := r.now()

	detail, err := r.goals.GetGoal(ctx, goalID)
	if err != nil {
		r.hub.Broadcast(ws.ProgressEvent{
			Type:      ws.EventRefreshFailed,
			GoalID:    goalID,
			Error:     err.Error(),
			Timestamp: now,
		})

		if errors.Is(err, service.ErrGoalNotFound) || errors.Is(err, service.ErrInvalidGoal) {
			r.metrics.Refresh("dropped")
			r.logger.Info("dropping watched goal", "goal_id", goalID, "error", err)
			return
		}

		r.metrics.Refresh("error")
		r.logger.Warn("goal refresh failed", "goal_id", goalID, "error", err)
		r.reschedule(ctx, goalID, now)
		return
	}

	event := ws.ProgressEvent{
		Type:      ws.EventProgress,
		GoalID:    goalID,
		Progress:  &detail.Progress,
		Status:    detail.Status,
		Timestamp: now,
	}
	if detail.Progress.IsClosed {
		event.Type = ws.EventClosed
	}
	r.hub.Broadcast(event)

	if detail.Progress.IsClosed {
		r.metrics.Refresh("closed")
		r.logger.Info("watched goal closed", "goal_id", goalID, "raised", detail.Progress.Raised)
		return
	}

	r.metrics.Refresh("ok")
	r.reschedule(ctx, goalID, now)
}

func (r *Refresher) reschedule(ctx context.Context, goalID string, now time.Time) {
	if ctx.Err() != nil {
		return
	}
	if err := r.queue.Enqueue(ctx, now.Add(r.interval), goalID); err != nil {
		r.logger.Error("failed to reschedule goal", "goal_id", goalID, "error", err)
	}
}
