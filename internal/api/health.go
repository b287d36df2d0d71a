package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/Priya8975/zap-goal-tracker/internal/relay"
	"github.com/Priya8975/zap-goal-tracker/internal/store"
)

// CircuitReporter reports the circuit state of every relay.
type CircuitReporter interface {
	CircuitStates(ctx context.Context) []relay.CircuitBreakerState
}

// ArchiveReporter summarizes the event archive.
type ArchiveReporter interface {
	GetArchiveStats(ctx context.Context) (*store.ArchiveStats, error)
}

// QueueReporter reports how many goals wait for a refresh.
type QueueReporter interface {
	Depth(ctx context.Context) (int64, error)
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status           string                      `json:"status"`
	Version          string                      `json:"version"`
	Source           string                      `json:"source"`
	Relays           []relay.CircuitBreakerState `json:"relays,omitempty"`
	Archive          *store.ArchiveStats         `json:"archive,omitempty"`
	RefreshQueue     int64                       `json:"refresh_queue"`
	WebSocketClients int                         `json:"websocket_clients"`
}

type HealthHandler struct {
	source  string
	relays  CircuitReporter
	archive ArchiveReporter
	queue   QueueReporter
	clients func() int
	logger  *slog.Logger
}

// ServeHTTP reports "degraded" when relays are the source and none of them
// has a closed circuit.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "healthy",
		Version: "1.0.0",
		Source:  h.source,
	}

	if h.relays != nil {
		resp.Relays = h.relays.CircuitStates(r.Context())
		usable := 0
		for _, st := range resp.Relays {
			if st.State != relay.StateOpen {
				usable++
			}
		}
		if usable == 0 {
			resp.Status = "degraded"
		}
	}

	if h.archive != nil {
		stats, err := h.archive.GetArchiveStats(r.Context())
		if err != nil {
			h.logger.Warn("reading archive stats failed", "error", err)
			resp.Status = "degraded"
		} else {
			resp.Archive = stats
		}
	}

	if h.queue != nil {
		if depth, err := h.queue.Depth(r.Context()); err == nil {
			resp.RefreshQueue = depth
		}
	}
	if h.clients != nil {
		resp.WebSocketClients = h.clients()
	}

	respondJSON(w, http.StatusOK, resp)
}
