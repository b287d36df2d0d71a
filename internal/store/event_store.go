package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/nbd-wtf/go-nostr"
)

// SaveEvents archives events, ignoring ids that are already stored.
// It returns the number of newly inserted events.
func (s *PostgresStore) SaveEvents(ctx context.Context, events []*nostr.Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, ev := range events {
		tags, err := json.Marshal(ev.Tags)
		if err != nil {
			return 0, fmt.Errorf("encoding tags for %s: %w", ev.ID, err)
		}
		batch.Queue(`
			INSERT INTO events (id, pubkey, created_at, kind, content, tags, sig, e_refs)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO NOTHING
		`, ev.ID, ev.PubKey, int64(ev.CreatedAt), ev.Kind, ev.Content, tags, ev.Sig, eventRefs(ev.Tags))
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	for range events {
		tag, err := results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("inserting event: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// QueryEvents returns archived events matching filter, newest first.
func (s *PostgresStore) QueryEvents(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error) {
	query, args := buildEventQuery(filter)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	events := []*nostr.Event{}
	for rows.Next() {
		var (
			ev        nostr.Event
			createdAt int64
			tags      []byte
		)
		if err := rows.Scan(&ev.ID, &ev.PubKey, &createdAt, &ev.Kind, &ev.Content, &tags, &ev.Sig); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		if err := json.Unmarshal(tags, &ev.Tags); err != nil {
			return nil, fmt.Errorf("decoding tags for %s: %w", ev.ID, err)
		}
		ev.CreatedAt = nostr.Timestamp(createdAt)
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}

	return events, nil
}

// buildEventQuery translates the subset of a relay filter the archive
// understands (ids, kinds, authors, #e, since, until, limit) into SQL.
func buildEventQuery(filter nostr.Filter) (string, []any) {
	query := `SELECT id, pubkey, created_at, kind, content, tags, sig FROM events`
	args := []any{}
	conditions := []string{}

	add := func(cond string, arg any) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if len(filter.IDs) > 0 {
		add("id = ANY($%d)", filter.IDs)
	}
	if len(filter.Kinds) > 0 {
		add("kind = ANY($%d)", filter.Kinds)
	}
	if len(filter.Authors) > 0 {
		add("pubkey = ANY($%d)", filter.Authors)
	}
	if refs := filter.Tags["e"]; len(refs) > 0 {
		add("e_refs && $%d", refs)
	}
	if filter.Since != nil {
		add("created_at >= $%d", int64(*filter.Since))
	}
	if filter.Until != nil {
		add("created_at <= $%d", int64(*filter.Until))
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	return query, args
}

// eventRefs collects every "e" tag value so receipts can be looked up by goal.
func eventRefs(tags nostr.Tags) []string {
	refs := []string{}
	for _, tag := range tags {
		if len(tag) >= 2 && tag[0] == "e" && tag[1] != "" {
			refs = append(refs, tag[1])
		}
	}
	return refs
}
