package domain

// Goal is a parsed NIP-75 zap goal (kind 9041).
type Goal struct {
	ID        string   `json:"id"`
	PubKey    string   `json:"pubkey"`
	CreatedAt int64    `json:"created_at"`
	Amount    int64    `json:"amount"` // target in millisats
	Relays    []string `json:"relays"`
	Content   string   `json:"content"`
	ClosedAt  *int64   `json:"closed_at,omitempty"`
	Image     *string  `json:"image,omitempty"`
	Summary   *string  `json:"summary,omitempty"`
}

// GoalStatus is the display state derived from a goal's progress.
type GoalStatus string

const (
	StatusOpen        GoalStatus = "open"
	StatusAlmostThere GoalStatus = "almost_there"
	StatusCompleted   GoalStatus = "completed"
	StatusClosed      GoalStatus = "closed"
)

// GoalWithProgress is one entry of a goal listing.
type GoalWithProgress struct {
	Goal     Goal       `json:"goal"`
	Progress Progress   `json:"progress"`
	Status   GoalStatus `json:"status"`
	Score    *float64   `json:"score,omitempty"`
}

// GoalDetail is a single goal with every receipt that references it.
type GoalDetail struct {
	Goal     Goal       `json:"goal"`
	Receipts []Receipt  `json:"receipts"`
	Progress Progress   `json:"progress"`
	Status   GoalStatus `json:"status"`
}
