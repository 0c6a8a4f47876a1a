package events

import (
	"math/big"
	"sort"

	"deficore/core/types"
	"deficore/crypto"
)

// Notification is the record every mutating operation publishes: what
// happened, who did it, who it happened to and the amount involved. Amount is
// zero for events without a natural numeric payload.
type Notification struct {
	Type    string
	Height  uint64
	Actor   crypto.Address
	Subject crypto.Address
	Amount  *big.Int
	Extra   map[string]string
}

// EventType satisfies the Event interface.
func (n Notification) EventType() string { return n.Type }

// Event converts the notification into its broadcast form.
func (n Notification) Event() *types.Event {
	attrs := map[string]string{
		"amount": formatAmount(n.Amount),
	}
	if !n.Actor.IsZero() {
		attrs["actor"] = n.Actor.String()
	}
	if !n.Subject.IsZero() {
		attrs["subject"] = n.Subject.String()
	}
	for k, v := range n.Extra {
		if _, taken := attrs[k]; !taken {
			attrs[k] = v
		}
	}
	return &types.Event{Type: n.Type, Height: n.Height, Attributes: attrs}
}

// ExtraKeys returns the extra attribute names in sorted order.
func (n Notification) ExtraKeys() []string {
	keys := make([]string, 0, len(n.Extra))
	for k := range n.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
