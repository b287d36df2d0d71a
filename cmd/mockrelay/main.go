package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/Priya8975/zap-goal-tracker/internal/relay"
	"github.com/nbd-wtf/go-nostr"
)

var requestCount atomic.Int64

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	port := "7447"
	if p := os.Getenv("PORT"); p != "" {
		port = p
	}

	srv := relay.NewServer(logger)

	if path := os.Getenv("FIXTURES"); path != "" {
		events, err := loadFixtures(path)
		if err != nil {
			logger.Error("failed to load fixtures", "error", err, "path", path)
			os.Exit(1)
		}
		srv.Add(events...)
	} else {
		events, err := relay.SampleEvents(time.Now())
		if err != nil {
			logger.Error("failed to build sample events", "error", err)
			os.Exit(1)
		}
		srv.Add(events...)
	}

	mux := http.NewServeMux()
	mux.Handle("/", countRequests(srv))

	// Stats endpoint, shows request count
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int64{
			"total_requests": requestCount.Load(),
			"events":         int64(srv.Len()),
		})
	})

	logger.Info("mock relay starting", "port", port, "events", srv.Len())
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount.Add(1)
		next.ServeHTTP(w, r)
	})
}

// loadFixtures reads one JSON event per line. Events with a bad signature
// are rejected so clients see exactly what a real relay would serve.
func loadFixtures(path string) ([]*nostr.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening fixtures: %w", err)
	}
	defer f.Close()

	var events []*nostr.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}

		var ev nostr.Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if ok, err := ev.CheckSignature(); !ok {
			return nil, fmt.Errorf("line %d: invalid signature: %v", line, err)
		}
		events = append(events, &ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading fixtures: %w", err)
	}

	return events, nil
}
