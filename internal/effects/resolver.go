package effects

import "github.com/dokzlo13/streamlights/internal/events"

// Tier pairs an amount threshold with the effect shown at or above it
type Tier struct {
	Threshold float64
	Effect    LightEffect
}

// SingleRule configures an event kind that always shows the same effect
type SingleRule struct {
	Enabled bool
	Effect  LightEffect
}

// TieredRule configures an event kind whose effect scales with the amount.
// Tiers are ordered by threshold, highest first.
type TieredRule struct {
	Enabled bool
	Tiers   []Tier
}

// Rules is the per-kind effect configuration
type Rules struct {
	Donation     TieredRule
	Follow       SingleRule
	Subscription SingleRule
	Bits         TieredRule
}

// Resolve returns the effect for an event, or false if the event produces no device action
func Resolve(ev events.Event, rules Rules) (LightEffect, bool) {
	switch ev.Kind {
	case events.KindFollow:
		return rules.Follow.resolve()
	case events.KindSubscription:
		return rules.Subscription.resolve()
	case events.KindDonation:
		return rules.Donation.resolve(ev.Amount)
	case events.KindBits:
		return rules.Bits.resolve(ev.Amount)
	default:
		return LightEffect{}, false
	}
}

func (r SingleRule) resolve() (LightEffect, bool) {
	if !r.Enabled {
		return LightEffect{}, false
	}
	return r.Effect, true
}

func (r TieredRule) resolve(amount float64) (LightEffect, bool) {
	if !r.Enabled || len(r.Tiers) == 0 {
		return LightEffect{}, false
	}
	for _, tier := range r.Tiers {
		if amount >= tier.Threshold {
			return tier.Effect, true
		}
	}
	// Below every threshold: the lowest tier is the catch-all
	return r.Tiers[len(r.Tiers)-1].Effect, true
}
