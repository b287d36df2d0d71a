package store

import (
	"context"
	"fmt"
)

// ArchiveStats summarizes what the event archive holds.
type ArchiveStats struct {
	TotalEvents   int   `json:"total_events"`
	GoalEvents    int   `json:"goal_events"`
	ReceiptEvents int   `json:"receipt_events"`
	LatestEventAt int64 `json:"latest_event_at"`
}

// GetArchiveStats returns aggregated counts from the events table.
func (s *PostgresStore) GetArchiveStats(ctx context.Context) (*ArchiveStats, error) {
	var st ArchiveStats

	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE kind = 9041) AS goals,
			COUNT(*) FILTER (WHERE kind = 9735) AS receipts,
			COALESCE(MAX(created_at), 0) AS latest
		FROM events
	`).Scan(&st.TotalEvents, &st.GoalEvents, &st.ReceiptEvents, &st.LatestEventAt)
	if err != nil {
		return nil, fmt.Errorf("querying archive stats: %w", err)
	}

	return &st, nil
}
