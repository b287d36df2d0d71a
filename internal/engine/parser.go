package engine

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/Priya8975/zap-goal-tracker/internal/domain"
	"github.com/nbd-wtf/go-nostr"
)

// Event kinds handled by the engine.
const (
	KindZapGoal    = 9041
	KindZapReceipt = 9735
)

// bolt11Amount matches the human-readable amount of a Lightning invoice.
var bolt11Amount = regexp.MustCompile(`(?i)lnbc?(\d+)([munp]?)`)

// findTag returns the first tag with the given name.
func findTag(tags nostr.Tags, name string) (nostr.Tag, bool) {
	for _, tag := range tags {
		if len(tag) > 0 && tag[0] == name {
			return tag, true
		}
	}
	return nil, false
}

// tagValue returns the first value of the first tag with the given name.
func tagValue(tags nostr.Tags, name string) (string, bool) {
	tag, ok := findTag(tags, name)
	if !ok || len(tag) < 2 {
		return "", false
	}
	return tag[1], true
}

func parsePositiveInt(s string) (int64, bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// ValidateGoal reports whether ev is a structurally valid zap goal.
func ValidateGoal(ev *nostr.Event) bool {
	if ev == nil || ev.Kind != KindZapGoal {
		return false
	}

	relays, ok := findTag(ev.Tags, "relays")
	if !ok || len(relays) < 2 {
		return false
	}

	amount, ok := tagValue(ev.Tags, "amount")
	if !ok || amount == "" {
		return false
	}
	_, ok = parsePositiveInt(amount)
	return ok
}

// ParseGoal converts ev into a Goal, or returns nil when ev is not a valid goal.
// A closed_at tag that is present but not an integer rejects the goal.
func ParseGoal(ev *nostr.Event) *domain.Goal {
	if !ValidateGoal(ev) {
		return nil
	}

	relaysTag, _ := findTag(ev.Tags, "relays")
	amountStr, _ := tagValue(ev.Tags, "amount")
	amount, _ := parsePositiveInt(amountStr)

	relays := make([]string, len(relaysTag)-1)
	copy(relays, relaysTag[1:])

	goal := &domain.Goal{
		ID:        ev.ID,
		PubKey:    ev.PubKey,
		CreatedAt: int64(ev.CreatedAt),
		Amount:    amount,
		Relays:    relays,
		Content:   ev.Content,
	}

	if v, ok := tagValue(ev.Tags, "closed_at"); ok && v != "" {
		closedAt, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil
		}
		goal.ClosedAt = &closedAt
	}
	if v, ok := tagValue(ev.Tags, "image"); ok {
		goal.Image = &v
	}
	if v, ok := tagValue(ev.Tags, "summary"); ok {
		goal.Summary = &v
	}

	return goal
}

// ValidateReceipt reports whether ev is a zap receipt carrying both the
// bolt11 and description tags. Tag values are not inspected.
func ValidateReceipt(ev *nostr.Event) bool {
	if ev == nil || ev.Kind != KindZapReceipt {
		return false
	}
	if _, ok := findTag(ev.Tags, "bolt11"); !ok {
		return false
	}
	if _, ok := findTag(ev.Tags, "description"); !ok {
		return false
	}
	return true
}

// ParseReceipt converts ev into a Receipt, or returns nil when ev is not a
// valid zap receipt. The amount falls back to zero when it cannot be determined.
func ParseReceipt(ev *nostr.Event) *domain.Receipt {
	if !ValidateReceipt(ev) {
		return nil
	}

	receipt := &domain.Receipt{
		ID:        ev.ID,
		Timestamp: int64(ev.CreatedAt),
		Amount:    receiptAmount(ev.Tags),
	}
	if v, ok := tagValue(ev.Tags, "P"); ok {
		receipt.Sender = &v
	}
	if v, ok := tagValue(ev.Tags, "e"); ok {
		receipt.GoalID = v
	}

	return receipt
}

func receiptAmount(tags nostr.Tags) int64 {
	if v, ok := tagValue(tags, "amount"); ok && v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	if invoice, ok := tagValue(tags, "bolt11"); ok && invoice != "" {
		return Bolt11Millisats(invoice)
	}
	return 0
}

// Bolt11Millisats extracts the amount of a Lightning invoice in millisats.
// It returns 0 when the invoice carries no recognizable amount.
func Bolt11Millisats(invoice string) int64 {
	m := bolt11Amount.FindStringSubmatch(invoice)
	if m == nil {
		return 0
	}

	value, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0
	}

	switch strings.ToLower(m[2]) {
	case "m":
		return mulOrZero(value, 100_000_000)
	case "u":
		return mulOrZero(value, 100_000)
	case "n":
		return mulOrZero(value, 100)
	case "p":
		// pico-BTC is a tenth of a millisat
		return value / 10
	default:
		return mulOrZero(value, 100_000_000_000)
	}
}

func mulOrZero(value, multiplier int64) int64 {
	if value > math.MaxInt64/multiplier {
		return 0
	}
	return value * multiplier
}
