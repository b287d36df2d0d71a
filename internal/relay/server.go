package relay

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip11"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Server is a read-only, in-memory relay. It answers REQ with the stored
// events that match and then EOSE; it never streams live events.
type Server struct {
	mu     sync.RWMutex
	events map[string]*nostr.Event
	logger *slog.Logger
}

// NewServer creates an empty relay.
func NewServer(logger *slog.Logger) *Server {
	return &Server{
		events: make(map[string]*nostr.Event),
		logger: logger,
	}
}

// Add stores events, replacing any with the same id.
func (s *Server) Add(events ...*nostr.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range events {
		s.events[ev.ID] = ev
	}
}

// Len returns the number of stored events.
func (s *Server) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Match returns stored events matching any of filters, newest first, each
// filter capped by its own limit.
func (s *Server) Match(filters nostr.Filters) []*nostr.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var out []*nostr.Event
	for _, f := range filters {
		var matched []*nostr.Event
		for _, ev := range s.events {
			if f.Matches(ev) {
				matched = append(matched, ev)
			}
		}
		sortNewestFirst(matched)
		if f.Limit > 0 && len(matched) > f.Limit {
			matched = matched[:f.Limit]
		}
		for _, ev := range matched {
			if !seen[ev.ID] {
				seen[ev.ID] = true
				out = append(out, ev)
			}
		}
	}
	return out
}

// Info returns the NIP-11 information document served over plain HTTP.
func (s *Server) Info() nip11.RelayInformationDocument {
	info := nip11.RelayInformationDocument{
		Name:        "zap-goal-tracker mock relay",
		Description: "read-only fixture relay",
		Software:    "zap-goal-tracker",
	}
	for _, n := range []int{1, 11, 57, 75} {
		info.AddSupportedNIP(n)
	}
	return info
}

// ServeHTTP upgrades websocket requests and answers plain HTTP requests
// with the relay information document.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		w.Header().Set("Content-Type", "application/nostr+json")
		json.NewEncoder(w).Encode(s.Info())
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(64 * 1024)
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if err := s.handle(conn, message); err != nil {
			s.logger.Debug("relay write failed", "error", err)
			return
		}
	}
}

func (s *Server) handle(conn *websocket.Conn, message []byte) error {
	switch env := nostr.ParseMessage(message).(type) {
	case *nostr.ReqEnvelope:
		subID := env.SubscriptionID
		for _, ev := range s.Match(env.Filters) {
			if err := send(conn, &nostr.EventEnvelope{SubscriptionID: &subID, Event: *ev}); err != nil {
				return err
			}
		}
		eose := nostr.EOSEEnvelope(subID)
		return send(conn, &eose)

	case *nostr.EventEnvelope:
		return send(conn, &nostr.OKEnvelope{
			EventID: env.Event.ID,
			OK:      false,
			Reason:  "blocked: read-only relay",
		})

	case *nostr.CloseEnvelope:
		return nil

	case *nostr.CountEnvelope:
		return send(conn, &nostr.ClosedEnvelope{
			SubscriptionID: env.SubscriptionID,
			Reason:         "unsupported: COUNT",
		})

	default:
		notice := nostr.NoticeEnvelope("invalid: unsupported or malformed message")
		return send(conn, &notice)
	}
}

func send(conn *websocket.Conn, env nostr.Envelope) error {
	data, err := env.MarshalJSON()
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func sortNewestFirst(events []*nostr.Event) {
	sort.Slice(events, func(i, j int) bool {
		if events[i].CreatedAt != events[j].CreatedAt {
			return events[i].CreatedAt > events[j].CreatedAt
		}
		return events[i].ID < events[j].ID
	})
}
