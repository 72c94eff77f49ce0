// Package hue drives a Philips Hue bridge over the v1 API.
package hue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amimof/huego"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dokzlo13/streamlights/internal/effects"
)

// ErrNoBridge is returned when discovery finds no bridge on the network
var ErrNoBridge = errors.New("no hue bridge found")

// Config contains bridge connection settings
type Config struct {
	Address      string        // Bridge host; empty = discover
	Username     string        // Whitelisted API user
	Timeout      time.Duration // Per-request timeout
	RateLimitRPS float64       // Light commands per second
}

// Client wraps a huego bridge with per-request timeouts and command rate limiting
type Client struct {
	bridge  *huego.Bridge
	limiter *rate.Limiter
	timeout time.Duration
}

// Connect locates the bridge, logs in and verifies access by listing lights.
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Username == "" {
		return nil, errors.New("hue username is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 10.0
	}

	var bridge *huego.Bridge
	if cfg.Address != "" {
		bridge = huego.New(cfg.Address, cfg.Username)
	} else {
		discoverCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		found, err := huego.DiscoverContext(discoverCtx)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoBridge, err)
		}
		if found == nil || found.Host == "" {
			return nil, ErrNoBridge
		}
		log.Info().Str("host", found.Host).Msg("Discovered Hue bridge")
		bridge = found.Login(cfg.Username)
	}

	burst := int(cfg.RateLimitRPS)
	if burst < 1 {
		burst = 1
	}

	c := &Client{
		bridge:  bridge,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst),
		timeout: cfg.Timeout,
	}

	lights, err := c.Lights(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Hue bridge at %s: %w", bridge.Host, err)
	}
	if len(lights) == 0 {
		log.Warn().Str("host", bridge.Host).Msg("Hue bridge reports no lights")
	}

	log.Info().Str("host", bridge.Host).Int("lights", len(lights)).Msg("Connected to Hue bridge")
	return c, nil
}

// Lights returns every light currently known to the bridge
func (c *Client) Lights(ctx context.Context) ([]Light, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.bridge.GetLightsContext(reqCtx)
	if err != nil {
		return nil, err
	}

	lights := make([]Light, 0, len(raw))
	for _, l := range raw {
		light := Light{ID: l.ID, Name: l.Name}
		if l.State != nil {
			light.Reachable = l.State.Reachable
		}
		lights = append(lights, light)
	}
	return lights, nil
}

// SetState sends a command to a single light, waiting for a rate limiter slot first
func (c *Client) SetState(ctx context.Context, lightID int, cmd effects.Command) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, err := c.bridge.SetLightStateContext(reqCtx, lightID, toState(cmd))
	return err
}

// Host returns the bridge address
func (c *Client) Host() string {
	return c.bridge.Host
}

// Close releases the bridge handle
func (c *Client) Close() error {
	log.Debug().Str("host", c.bridge.Host).Msg("Released Hue bridge")
	return nil
}

// toState maps a command onto huego's state. huego drops zero hue and
// saturation (omitempty), so they are nudged to visually identical values.
func toState(cmd effects.Command) huego.State {
	state := huego.State{
		On:    cmd.On,
		Bri:   cmd.Bri,
		Hue:   cmd.Hue,
		Sat:   cmd.Sat,
		Alert: cmd.Alert,
	}
	if state.Hue == 0 {
		state.Hue = 65535
	}
	if state.Sat == 0 {
		state.Sat = 1
	}
	if state.Bri == 0 {
		state.Bri = 1
	}
	return state
}
