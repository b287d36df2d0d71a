package engine

import (
	"errors"
	"strconv"
	"time"

	"github.com/nbd-wtf/go-nostr"
)

// DefaultGoalRelays are used when a new goal does not name its own relays.
var DefaultGoalRelays = []string{
	"wss://relay.damus.io",
	"wss://relay.nostr.band",
	"wss://nos.lol",
	"wss://relay.primal.net",
}

// GoalInput describes a goal to be published by a client.
type GoalInput struct {
	Content    string   `json:"content"`
	AmountSats int64    `json:"amount_sats"`
	Summary    string   `json:"summary"`
	Image      string   `json:"image,omitempty"`
	ClosedAt   int64    `json:"closed_at,omitempty"`
	Relays     []string `json:"relays,omitempty"`
}

var (
	ErrInvalidAmount = errors.New("amount_sats must be positive")
	ErrAmountTooBig  = errors.New("amount_sats is too large")
)

// BuildGoalEvent returns the unsigned kind 9041 event for in. Signing and
// publishing are left to the caller.
func BuildGoalEvent(in GoalInput, now time.Time) (nostr.Event, error) {
	if in.AmountSats <= 0 {
		return nostr.Event{}, ErrInvalidAmount
	}
	if in.AmountSats > mulLimit {
		return nostr.Event{}, ErrAmountTooBig
	}

	relays := in.Relays
	if len(relays) == 0 {
		relays = DefaultGoalRelays
	}

	tags := nostr.Tags{
		{"amount", strconv.FormatInt(in.AmountSats*1000, 10)},
		append(nostr.Tag{"relays"}, relays...),
		{"summary", in.Summary},
	}
	if in.Image != "" {
		tags = append(tags, nostr.Tag{"image", in.Image})
	}
	if in.ClosedAt != 0 {
		tags = append(tags, nostr.Tag{"closed_at", strconv.FormatInt(in.ClosedAt, 10)})
	}

	return nostr.Event{
		Kind:      KindZapGoal,
		CreatedAt: nostr.Timestamp(now.Unix()),
		Content:   in.Content,
		Tags:      tags,
	}, nil
}

const mulLimit = (1<<63 - 1) / 1000
