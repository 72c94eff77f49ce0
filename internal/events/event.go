// Package events decodes raw Streamlabs payloads into typed interaction events.
package events

import "fmt"

// Kind classifies an interaction event
type Kind int

const (
	KindUnknown Kind = iota
	KindDonation
	KindFollow
	KindSubscription
	KindBits
)

// String returns the config/log name of the kind
func (k Kind) String() string {
	switch k {
	case KindDonation:
		return "donation"
	case KindFollow:
		return "follow"
	case KindSubscription:
		return "subscription"
	case KindBits:
		return "bits"
	default:
		return "unknown"
	}
}

// HasAmount reports whether events of this kind carry an amount
func (k Kind) HasAmount() bool {
	return k == KindDonation || k == KindBits
}

// Event is a single classified interaction. Amount is only meaningful
// when Kind.HasAmount() is true; the decoder guarantees it is finite and
// non-negative in that case.
type Event struct {
	Kind   Kind
	Source string
	Amount float64
	RawID  string
}

func (e Event) String() string {
	if e.Kind.HasAmount() {
		return fmt.Sprintf("%s(%s, %g, %s)", e.Kind, e.Source, e.Amount, e.RawID)
	}
	return fmt.Sprintf("%s(%s, %s)", e.Kind, e.Source, e.RawID)
}
