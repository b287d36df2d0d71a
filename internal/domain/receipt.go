package domain

// Receipt is a parsed NIP-57 zap receipt (kind 9735).
type Receipt struct {
	ID        string  `json:"id"`
	Amount    int64   `json:"amount"` // millisats
	Sender    *string `json:"sender,omitempty"`
	Timestamp int64   `json:"timestamp"`
	GoalID    string  `json:"goal_id,omitempty"`
}
