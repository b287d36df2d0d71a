package relay

import (
	"fmt"
	"strconv"
	"time"

	"github.com/nbd-wtf/go-nostr"
)

// SignedEvent signs a copy of ev with sk.
func SignedEvent(sk string, ev nostr.Event) (*nostr.Event, error) {
	pk, err := nostr.GetPublicKey(sk)
	if err != nil {
		return nil, fmt.Errorf("deriving public key: %w", err)
	}
	ev.PubKey = pk
	if err := ev.Sign(sk); err != nil {
		return nil, fmt.Errorf("signing event: %w", err)
	}
	return &ev, nil
}

// SampleEvents builds a small signed data set of goals and zap receipts
// relative to now, for the development relay.
func SampleEvents(now time.Time) ([]*nostr.Event, error) {
	author := nostr.GeneratePrivateKey()
	zapper := nostr.GeneratePrivateKey()
	supporter := nostr.GeneratePrivateKey()
	supporterPK, err := nostr.GetPublicKey(supporter)
	if err != nil {
		return nil, fmt.Errorf("deriving public key: %w", err)
	}

	ts := func(ago time.Duration) nostr.Timestamp {
		return nostr.Timestamp(now.Add(-ago).Unix())
	}

	goalFixtures := []struct {
		summary  string
		content  string
		msats    int64
		age      time.Duration
		closedAt *time.Time
	}{
		{"Relay hardware", "A second disk for the community relay.", 50_000_000, 2 * time.Hour, nil},
		{"Conference travel", "Flights to present the project.", 500_000_000, 10 * 24 * time.Hour, nil},
		{"Old fundraiser", "Finished last month.", 10_000_000, 45 * 24 * time.Hour, ptrTime(now.Add(-20 * 24 * time.Hour))},
	}

	var events []*nostr.Event
	for i, fx := range goalFixtures {
		tags := nostr.Tags{
			{"relays", "wss://relay.damus.io", "wss://nos.lol"},
			{"amount", strconv.FormatInt(fx.msats, 10)},
			{"summary", fx.summary},
		}
		if fx.closedAt != nil {
			tags = append(tags, nostr.Tag{"closed_at", strconv.FormatInt(fx.closedAt.Unix(), 10)})
		}
		goal, err := SignedEvent(author, nostr.Event{
			Kind:      9041,
			CreatedAt: ts(fx.age),
			Content:   fx.content,
			Tags:      tags,
		})
		if err != nil {
			return nil, err
		}
		events = append(events, goal)

		for j := 0; j <= i+1; j++ {
			zap, err := SignedEvent(zapper, nostr.Event{
				Kind:      9735,
				CreatedAt: ts(fx.age / time.Duration(j+2)),
				Tags: nostr.Tags{
					{"e", goal.ID},
					{"p", goal.PubKey},
					{"P", supporterPK},
					{"bolt11", fmt.Sprintf("lnbc%du1pfixture", 10*(j+1))},
					{"description", "{}"},
				},
			})
			if err != nil {
				return nil, err
			}
			events = append(events, zap)
		}
	}

	return events, nil
}

func ptrTime(t time.Time) *time.Time { return &t }
