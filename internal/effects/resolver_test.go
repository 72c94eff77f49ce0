package effects

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dokzlo13/streamlights/internal/events"
)

var (
	red   = LightEffect{Color: "#FF0000", Brightness: 254, Alert: AlertRepeating, Duration: 5 * time.Second}
	green = LightEffect{Color: "#00FF00", Brightness: 254, Alert: AlertSingle, Duration: 5 * time.Second}
	blue  = LightEffect{Color: "#0000FF", Brightness: 254, Alert: AlertSingle, Duration: 5 * time.Second}
)

func testRules() Rules {
	tiers := []Tier{{100, red}, {50, green}, {0, blue}}
	return Rules{
		Donation:     TieredRule{Enabled: true, Tiers: tiers},
		Bits:         TieredRule{Enabled: true, Tiers: []Tier{{1000, red}, {100, green}}},
		Follow:       SingleRule{Enabled: false, Effect: blue},
		Subscription: SingleRule{Enabled: true, Effect: green},
	}
}

func TestResolve_DonationTiers(t *testing.T) {
	rules := testRules()

	tests := []struct {
		amount float64
		want   LightEffect
	}{
		{150, red},
		{100, red},
		{99.99, green},
		{75, green},
		{50, green},
		{10, blue},
		{0, blue},
	}

	for _, tt := range tests {
		got, ok := Resolve(events.Event{Kind: events.KindDonation, Amount: tt.amount}, rules)
		assert.True(t, ok, "amount %v", tt.amount)
		assert.Equal(t, tt.want, got, "amount %v", tt.amount)
	}
}

func TestResolve_FallbackToLastTier(t *testing.T) {
	// Bits tiers have no zero threshold, so small cheers fall back to the lowest tier
	got, ok := Resolve(events.Event{Kind: events.KindBits, Amount: 5}, testRules())
	assert.True(t, ok)
	assert.Equal(t, green, got)

	got, ok = Resolve(events.Event{Kind: events.KindBits, Amount: 5000}, testRules())
	assert.True(t, ok)
	assert.Equal(t, red, got)
}

func TestResolve_FirstQualifyingTierForAllAmounts(t *testing.T) {
	rules := testRules()
	tiers := rules.Donation.Tiers

	for amount := 0.0; amount <= 300; amount += 0.5 {
		want := tiers[len(tiers)-1].Effect
		for _, tier := range tiers {
			if tier.Threshold <= amount {
				want = tier.Effect
				break
			}
		}
		got, ok := Resolve(events.Event{Kind: events.KindDonation, Amount: amount}, rules)
		assert.True(t, ok)
		assert.Equal(t, want, got, "amount %v", amount)
	}
}

func TestResolve_Disabled(t *testing.T) {
	rules := testRules()

	_, ok := Resolve(events.Event{Kind: events.KindFollow}, rules)
	assert.False(t, ok, "disabled follow must not resolve")

	rules.Donation.Enabled = false
	_, ok = Resolve(events.Event{Kind: events.KindDonation, Amount: 500}, rules)
	assert.False(t, ok)

	rules.Bits = TieredRule{Enabled: true}
	_, ok = Resolve(events.Event{Kind: events.KindBits, Amount: 500}, rules)
	assert.False(t, ok, "no tiers configured")
}

func TestResolve_SingleEffect(t *testing.T) {
	got, ok := Resolve(events.Event{Kind: events.KindSubscription}, testRules())
	assert.True(t, ok)
	assert.Equal(t, green, got)
}

func TestResolve_Unknown(t *testing.T) {
	_, ok := Resolve(events.Event{Kind: events.KindUnknown, Amount: 1000}, testRules())
	assert.False(t, ok)
}
