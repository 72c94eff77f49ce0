package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/dokzlo13/streamlights/internal/effects"
)

// Transport modes
const (
	TransportSocket  = "socket"
	TransportWebhook = "webhook"
)

// Config represents the application configuration
type Config struct {
	Credentials     CredentialsConfig `yaml:"credentials"`
	Transport       TransportConfig   `yaml:"transport"`
	Hue             HueConfig         `yaml:"hue"`
	Pipeline        PipelineConfig    `yaml:"pipeline"`
	DefaultState    BaselineConfig    `yaml:"default_state"`
	Events          EventsConfig      `yaml:"events"`
	Log             LogConfig         `yaml:"log"`
	Healthcheck     HealthcheckConfig `yaml:"healthcheck"`
	ShutdownTimeout Duration          `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// CredentialsConfig contains secrets for the transport and the bridge
type CredentialsConfig struct {
	StreamlabsToken string `yaml:"streamlabs_token"`
	HueAddress      string `yaml:"hue_address"` // Empty = discover
	HueUsername     string `yaml:"hue_username"`
}

// TransportConfig selects and tunes the event transport
type TransportConfig struct {
	Mode      string `yaml:"mode"` // socket | webhook
	SocketURL string `yaml:"socket_url"`

	// Socket reconnect settings
	MinRetryBackoff Duration `yaml:"min_retry_backoff"` // Minimum backoff between reconnects (default: 1s)
	MaxRetryBackoff Duration `yaml:"max_retry_backoff"` // Maximum backoff between reconnects (default: 2m)
	RetryMultiplier float64  `yaml:"retry_multiplier"`  // Backoff multiplier (default: 2.0)
	MaxReconnects   int      `yaml:"max_reconnects"`    // Max reconnect attempts, 0 = infinite (default: 0)

	Webhook WebhookConfig `yaml:"webhook"`
}

// WebhookConfig contains webhook server settings
type WebhookConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// HueConfig contains Hue bridge request settings
type HueConfig struct {
	Timeout      Duration `yaml:"timeout"`        // HTTP timeout for Hue API requests
	RateLimitRPS float64  `yaml:"rate_limit_rps"` // Light commands per second
}

// PipelineConfig contains event pipeline settings
type PipelineConfig struct {
	QueueSize    int      `yaml:"queue_size"`
	ResetTimeout Duration `yaml:"reset_timeout"` // Bound on the baseline pass after an interrupted effect
}

// BaselineConfig is the idle light state
// Unset fields default to a warm white; explicit zeros are kept.
type BaselineConfig struct {
	On         *bool  `yaml:"on"`
	Brightness *int   `yaml:"brightness"`
	Hue        *int   `yaml:"hue"`
	Saturation *int   `yaml:"saturation"`
	Alert      string `yaml:"alert"`
}

// EffectConfig is a single light effect
type EffectConfig struct {
	Color      string    `yaml:"color"`
	Brightness *int      `yaml:"brightness"` // default 254
	Alert      string    `yaml:"alert"`      // none | single | repeating
	Duration   *Duration `yaml:"duration"`   // default 5s, must be positive when set
}

// TierConfig pairs a threshold with an effect
type TierConfig struct {
	Threshold float64      `yaml:"threshold"`
	Effect    EffectConfig `yaml:"effect"`
}

// SingleEventConfig configures follow/subscription effects
type SingleEventConfig struct {
	Enabled bool         `yaml:"enabled"`
	Effect  EffectConfig `yaml:"effect"`
}

// TieredEventConfig configures donation/bits effects
type TieredEventConfig struct {
	Enabled bool         `yaml:"enabled"`
	Tiers   []TierConfig `yaml:"tiers"`
}

// EventsConfig maps each event kind to its effect configuration
type EventsConfig struct {
	Donation     TieredEventConfig `yaml:"streamlabs_donation"`
	Follow       SingleEventConfig `yaml:"twitch_follow"`
	Subscription SingleEventConfig `yaml:"twitch_subscription"`
	Bits         TieredEventConfig `yaml:"twitch_bits"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level"`
	Colors  bool   `yaml:"colors"`
	UseJSON bool   `yaml:"use_json"`
}

// HealthcheckConfig contains health check server settings
type HealthcheckConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// Duration is a wrapper around time.Duration for YAML unmarshalling.
// Accepts Go duration strings ("5s") or integer milliseconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Tag == "!!int" {
		var ms int64
		if err := value.Decode(&ms); err != nil {
			return err
		}
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}

	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads, parses and validates the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse parses and validates a configuration document
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	// Transport defaults
	if cfg.Transport.Mode == "" {
		cfg.Transport.Mode = TransportSocket
	}
	if cfg.Transport.SocketURL == "" {
		cfg.Transport.SocketURL = "wss://sockets.streamlabs.com"
	}
	if cfg.Transport.MinRetryBackoff == 0 {
		cfg.Transport.MinRetryBackoff = Duration(1 * time.Second)
	}
	if cfg.Transport.MaxRetryBackoff == 0 {
		cfg.Transport.MaxRetryBackoff = Duration(2 * time.Minute)
	}
	if cfg.Transport.RetryMultiplier == 0 {
		cfg.Transport.RetryMultiplier = 2.0
	}
	// MaxReconnects defaults to 0 (infinite), no need to set
	if cfg.Transport.Webhook.Host == "" {
		cfg.Transport.Webhook.Host = "0.0.0.0"
	}
	if cfg.Transport.Webhook.Port == 0 {
		cfg.Transport.Webhook.Port = 8080
	}
	if cfg.Transport.Webhook.Path == "" {
		cfg.Transport.Webhook.Path = "/webhook"
	}

	// Hue defaults
	if cfg.Hue.Timeout == 0 {
		cfg.Hue.Timeout = Duration(10 * time.Second)
	}
	if cfg.Hue.RateLimitRPS == 0 {
		cfg.Hue.RateLimitRPS = 10.0 // 10 light commands per second
	}

	// Pipeline defaults
	if cfg.Pipeline.QueueSize == 0 {
		cfg.Pipeline.QueueSize = 32
	}
	if cfg.Pipeline.ResetTimeout == 0 {
		cfg.Pipeline.ResetTimeout = Duration(5 * time.Second)
	}

	// Baseline defaults match a warm white
	if cfg.DefaultState.On == nil {
		on := true
		cfg.DefaultState.On = &on
	}
	if cfg.DefaultState.Brightness == nil {
		cfg.DefaultState.Brightness = intPtr(254)
	}
	if cfg.DefaultState.Hue == nil {
		cfg.DefaultState.Hue = intPtr(8418)
	}
	if cfg.DefaultState.Saturation == nil {
		cfg.DefaultState.Saturation = intPtr(140)
	}

	// Healthcheck defaults
	if cfg.Healthcheck.Port == 0 {
		cfg.Healthcheck.Port = 9090
	}
	if cfg.Healthcheck.Host == "" {
		cfg.Healthcheck.Host = "0.0.0.0"
	}

	// General shutdown timeout, leaves room for a full reset pass
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(10 * time.Second)
	}
}

func intPtr(v int) *int {
	return &v
}

// Validate checks the configuration and normalizes tier order.
// Tiers are sorted by threshold, highest first; duplicate thresholds are rejected.
func (cfg *Config) Validate() error {
	var errs []error

	switch cfg.Transport.Mode {
	case TransportSocket:
		if cfg.Credentials.StreamlabsToken == "" {
			errs = append(errs, errors.New("credentials.streamlabs_token is required for socket transport"))
		}
	case TransportWebhook:
		if !strings.HasPrefix(cfg.Transport.Webhook.Path, "/") {
			errs = append(errs, fmt.Errorf("transport.webhook.path must start with '/', got %q", cfg.Transport.Webhook.Path))
		}
	default:
		errs = append(errs, fmt.Errorf("transport.mode must be %q or %q, got %q", TransportSocket, TransportWebhook, cfg.Transport.Mode))
	}

	if cfg.Credentials.HueUsername == "" {
		errs = append(errs, errors.New("credentials.hue_username is required"))
	}
	if cfg.Pipeline.QueueSize < 0 {
		errs = append(errs, errors.New("pipeline.queue_size must be positive"))
	}
	if cfg.Pipeline.ResetTimeout <= 0 {
		errs = append(errs, errors.New("pipeline.reset_timeout must be positive"))
	}
	// Stop must outlast an interrupted effect's reset pass
	if cfg.Pipeline.ResetTimeout >= cfg.ShutdownTimeout {
		errs = append(errs, fmt.Errorf("pipeline.reset_timeout (%s) must be shorter than shutdown_timeout (%s)",
			cfg.Pipeline.ResetTimeout.Duration(), cfg.ShutdownTimeout.Duration()))
	}
	if cfg.Transport.MinRetryBackoff > cfg.Transport.MaxRetryBackoff {
		errs = append(errs, errors.New("transport.min_retry_backoff exceeds max_retry_backoff"))
	}

	if _, err := cfg.Baseline(); err != nil {
		errs = append(errs, fmt.Errorf("default_state: %w", err))
	}

	errs = append(errs, cfg.Events.Donation.normalize("streamlabs_donation")...)
	errs = append(errs, cfg.Events.Bits.normalize("twitch_bits")...)
	errs = append(errs, cfg.Events.Follow.validate("twitch_follow")...)
	errs = append(errs, cfg.Events.Subscription.validate("twitch_subscription")...)

	return errors.Join(errs...)
}

func (t *TieredEventConfig) normalize(name string) []error {
	if !t.Enabled {
		return nil
	}
	if len(t.Tiers) == 0 {
		return []error{fmt.Errorf("events.%s: enabled without tiers", name)}
	}

	var errs []error
	for i, tier := range t.Tiers {
		if tier.Threshold < 0 {
			errs = append(errs, fmt.Errorf("events.%s.tiers[%d]: negative threshold %g", name, i, tier.Threshold))
		}
		if _, err := tier.Effect.toEffect(); err != nil {
			errs = append(errs, fmt.Errorf("events.%s.tiers[%d]: %w", name, i, err))
		}
	}

	sorted := sort.SliceIsSorted(t.Tiers, func(i, j int) bool {
		return t.Tiers[i].Threshold > t.Tiers[j].Threshold
	})
	if !sorted {
		log.Warn().Str("event", name).Msg("Tiers not in descending threshold order, sorting")
		sort.SliceStable(t.Tiers, func(i, j int) bool {
			return t.Tiers[i].Threshold > t.Tiers[j].Threshold
		})
	}

	for i := 1; i < len(t.Tiers); i++ {
		if t.Tiers[i].Threshold == t.Tiers[i-1].Threshold {
			errs = append(errs, fmt.Errorf("events.%s: duplicate tier threshold %g", name, t.Tiers[i].Threshold))
		}
	}
	return errs
}

func (s *SingleEventConfig) validate(name string) []error {
	if !s.Enabled {
		return nil
	}
	if _, err := s.Effect.toEffect(); err != nil {
		return []error{fmt.Errorf("events.%s: %w", name, err)}
	}
	return nil
}

func (e EffectConfig) toEffect() (effects.LightEffect, error) {
	if _, _, _, err := effects.ParseHex(e.Color); err != nil {
		return effects.LightEffect{}, err
	}

	bri := effects.MaxBrightness
	if e.Brightness != nil {
		bri = *e.Brightness
	}
	if bri < 0 || bri > effects.MaxBrightness {
		return effects.LightEffect{}, fmt.Errorf("brightness %d out of range 0..%d", bri, effects.MaxBrightness)
	}

	alert, err := effects.ParseAlertMode(e.Alert)
	if err != nil {
		return effects.LightEffect{}, err
	}

	duration := 5 * time.Second
	if e.Duration != nil {
		duration = e.Duration.Duration()
		if duration <= 0 {
			return effects.LightEffect{}, fmt.Errorf("duration must be positive, got %s", duration)
		}
	}

	return effects.LightEffect{
		Color:      e.Color,
		Brightness: uint8(bri),
		Alert:      alert,
		Duration:   duration,
	}, nil
}

// Baseline converts default_state into the baseline the lights return to
func (cfg *Config) Baseline() (effects.Baseline, error) {
	s := cfg.DefaultState
	bri, hue, sat := derefOr(s.Brightness, 254), derefOr(s.Hue, 8418), derefOr(s.Saturation, 140)
	if bri < 0 || bri > effects.MaxBrightness {
		return effects.Baseline{}, fmt.Errorf("brightness %d out of range", bri)
	}
	if hue < 0 || hue > 65535 {
		return effects.Baseline{}, fmt.Errorf("hue %d out of range", hue)
	}
	if sat < 0 || sat > effects.MaxBrightness {
		return effects.Baseline{}, fmt.Errorf("saturation %d out of range", sat)
	}
	alert, err := effects.ParseAlertMode(s.Alert)
	if err != nil {
		return effects.Baseline{}, err
	}

	on := true
	if s.On != nil {
		on = *s.On
	}
	return effects.Baseline{
		On:         on,
		Brightness: uint8(bri),
		Hue:        uint16(hue),
		Saturation: uint8(sat),
		Alert:      alert,
	}, nil
}

func derefOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

// Rules converts the events section into resolver rules.
// Call only on a validated config.
func (cfg *Config) Rules() effects.Rules {
	return effects.Rules{
		Donation:     cfg.Events.Donation.rule(),
		Follow:       cfg.Events.Follow.rule(),
		Subscription: cfg.Events.Subscription.rule(),
		Bits:         cfg.Events.Bits.rule(),
	}
}

func (t TieredEventConfig) rule() effects.TieredRule {
	r := effects.TieredRule{Enabled: t.Enabled}
	for _, tier := range t.Tiers {
		effect, err := tier.Effect.toEffect()
		if err != nil {
			continue
		}
		r.Tiers = append(r.Tiers, effects.Tier{Threshold: tier.Threshold, Effect: effect})
	}
	return r
}

func (s SingleEventConfig) rule() effects.SingleRule {
	effect, err := s.Effect.toEffect()
	if err != nil {
		return effects.SingleRule{}
	}
	return effects.SingleRule{Enabled: s.Enabled, Effect: effect}
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
