package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Priya8975/zap-goal-tracker/internal/domain"
	"github.com/Priya8975/zap-goal-tracker/internal/engine"
	"github.com/Priya8975/zap-goal-tracker/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/nbd-wtf/go-nostr"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// GoalService is the read side used by the goal handlers.
type GoalService interface {
	ListGoals(ctx context.Context, order service.SortOrder, limit int) ([]domain.GoalWithProgress, error)
	GetGoal(ctx context.Context, id string) (*domain.GoalDetail, error)
	AuthorGoals(ctx context.Context, pubkey string, limit int) ([]domain.GoalWithProgress, error)
}

// Watcher schedules live refreshes of a goal.
type Watcher interface {
	Watch(ctx context.Context, goalID string) error
}

type GoalHandler struct {
	goals   GoalService
	watcher Watcher
	now     func() time.Time
}

func NewGoalHandler(goals GoalService, watcher Watcher) *GoalHandler {
	return &GoalHandler{goals: goals, watcher: watcher, now: time.Now}
}

func (h *GoalHandler) List(w http.ResponseWriter, r *http.Request) {
	order, ok := service.ParseSortOrder(r.URL.Query().Get("sort"))
	if !ok {
		respondError(w, http.StatusBadRequest, "sort must be newest or trending")
		return
	}

	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	goals, err := h.goals.ListGoals(r.Context(), order, limit)
	if err != nil {
		respondError(w, http.StatusBadGateway, "failed to fetch goals")
		return
	}

	respondJSON(w, http.StatusOK, goals)
}

func (h *GoalHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !nostr.IsValid32ByteHex(id) {
		respondError(w, http.StatusBadRequest, "id must be a 64 character hex event id")
		return
	}

	detail, err := h.goals.GetGoal(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, detail)
}

func (h *GoalHandler) Watch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !nostr.IsValid32ByteHex(id) {
		respondError(w, http.StatusBadRequest, "id must be a 64 character hex event id")
		return
	}
	if h.watcher == nil {
		respondError(w, http.StatusServiceUnavailable, "live updates are disabled")
		return
	}

	if err := h.watcher.Watch(r.Context(), id); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to watch goal")
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{
		"goal_id": id,
		"stream":  "/ws?goal=" + id,
	})
}

func (h *GoalHandler) ByAuthor(w http.ResponseWriter, r *http.Request) {
	pubkey := chi.URLParam(r, "pubkey")
	if !nostr.IsValidPublicKey(pubkey) {
		respondError(w, http.StatusBadRequest, "pubkey must be a 64 character hex public key")
		return
	}

	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	goals, err := h.goals.AuthorGoals(r.Context(), pubkey, limit)
	if err != nil {
		respondError(w, http.StatusBadGateway, "failed to fetch goals")
		return
	}

	respondJSON(w, http.StatusOK, goals)
}

// Template returns the unsigned goal event for the posted input.
func (h *GoalHandler) Template(w http.ResponseWriter, r *http.Request) {
	var in engine.GoalInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ev, err := engine.BuildGoalEvent(in, h.now())
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, ev)
}

func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrGoalNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidGoal):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		respondError(w, http.StatusBadGateway, "failed to fetch goal")
	}
}

var errBadLimit = errors.New("limit must be an integer between 1 and 100")

func parseLimit(s string) (int, error) {
	if s == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, errBadLimit
	}
	return min(n, maxLimit), nil
}
