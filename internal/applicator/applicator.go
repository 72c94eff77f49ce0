// Package applicator shows an effect on every light and then restores the baseline.
package applicator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/streamlights/internal/effects"
	"github.com/dokzlo13/streamlights/internal/hue"
)

var (
	// ErrUnreachable is returned when the light list cannot be fetched
	ErrUnreachable = errors.New("device unreachable")
	// ErrInvalidColor is returned when the effect color is not valid hex RGB
	ErrInvalidColor = effects.ErrInvalidColor
)

// Device is the subset of the bridge API the applicator needs
type Device interface {
	Lights(ctx context.Context) ([]hue.Light, error)
	SetState(ctx context.Context, lightID int, cmd effects.Command) error
}

// Phase identifies which fan-out pass a light command belongs to
type Phase string

const (
	PhaseEffect Phase = "effect"
	PhaseReset  Phase = "reset"
)

// Observer receives per-light outcomes. May be nil.
type Observer interface {
	LightCommand(phase Phase, err error)
}

// Applicator owns the device and applies one effect at a time.
// It is not safe for concurrent use: the pipeline loop is its only caller,
// so device access needs no lock and nothing is held across the effect wait.
type Applicator struct {
	device       Device
	baseline     effects.Command
	resetTimeout time.Duration
	observer     Observer
}

// New creates an Applicator. resetTimeout bounds the baseline pass when the
// effect wait was interrupted by cancellation.
func New(device Device, baseline effects.Baseline, resetTimeout time.Duration, observer Observer) *Applicator {
	if resetTimeout <= 0 {
		resetTimeout = 5 * time.Second
	}
	return &Applicator{
		device:       device,
		baseline:     baseline.Command(),
		resetTimeout: resetTimeout,
		observer:     observer,
	}
}

// Apply shows effect on every light, waits effect.Duration and resets every
// light to the baseline. Per-light failures are logged, not returned.
// Cancelling ctx cuts the wait short; the reset still runs.
func (a *Applicator) Apply(ctx context.Context, effect effects.LightEffect) error {
	cmd, err := effect.Command()
	if err != nil {
		return err
	}

	lights, err := a.device.Lights(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	applied := a.fanOut(ctx, PhaseEffect, lights, cmd)
	log.Info().
		Str("color", effect.Color).
		Uint8("bri", effect.Brightness).
		Str("alert", string(effect.Alert)).
		Int("lights", len(lights)).
		Int("applied", applied).
		Dur("duration", effect.Duration).
		Msg("Effect applied")

	interrupted := !wait(ctx, effect.Duration)
	if interrupted {
		log.Info().Msg("Effect interrupted, resetting early")
	}

	// The reset must still go out when ctx is already cancelled
	resetCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.resetTimeout)
	defer cancel()

	lights, err = a.device.Lights(resetCtx)
	if err != nil {
		return fmt.Errorf("%w: reset: %v", ErrUnreachable, err)
	}

	reset := a.fanOut(resetCtx, PhaseReset, lights, a.baseline)
	log.Info().
		Int("lights", len(lights)).
		Int("reset", reset).
		Msg("Lights reset to baseline")

	return nil
}

// fanOut sends cmd to every light and returns how many accepted it
func (a *Applicator) fanOut(ctx context.Context, phase Phase, lights []hue.Light, cmd effects.Command) int {
	ok := 0
	for _, light := range lights {
		err := a.device.SetState(ctx, light.ID, cmd)
		if a.observer != nil {
			a.observer.LightCommand(phase, err)
		}
		if err != nil {
			log.Warn().
				Err(err).
				Str("phase", string(phase)).
				Int("light", light.ID).
				Str("name", light.Name).
				Msg("Light command failed")
			continue
		}
		ok++
		log.Debug().
			Str("phase", string(phase)).
			Int("light", light.ID).
			Str("name", light.Name).
			Msg("Light command applied")
	}
	return ok
}

// wait sleeps for d and returns false if ctx was cancelled first
func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
