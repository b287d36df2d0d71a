package service

import (
	"context"
	"log/slog"

	"github.com/nbd-wtf/go-nostr"
)

// Source answers a single Nostr filter with the matching stored events.
// Both the relay client and the Postgres archive satisfy it.
type Source interface {
	QueryEvents(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error)
}

// Archiver persists events fetched from relays.
type Archiver interface {
	SaveEvents(ctx context.Context, events []*nostr.Event) (int, error)
}

// ArchivingSource copies every answer of its upstream Source into an
// Archiver. Archive failures are logged and never fail the query.
type ArchivingSource struct {
	upstream Source
	archive  Archiver
	logger   *slog.Logger
}

func NewArchivingSource(upstream Source, archive Archiver, logger *slog.Logger) *ArchivingSource {
	return &ArchivingSource{upstream: upstream, archive: archive, logger: logger}
}

func (a *ArchivingSource) QueryEvents(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error) {
	events, err := a.upstream.QueryEvents(ctx, filter)
	if err != nil {
		return nil, err
	}

	if len(events) > 0 {
		saved, err := a.archive.SaveEvents(ctx, events)
		if err != nil {
			a.logger.Warn("archiving events failed", "error", err, "count", len(events))
		} else if saved > 0 {
			a.logger.Debug("archived events", "new", saved, "fetched", len(events))
		}
	}

	return events, nil
}
