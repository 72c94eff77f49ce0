package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/streamlights/internal/applicator"
	"github.com/dokzlo13/streamlights/internal/config"
	"github.com/dokzlo13/streamlights/internal/effects"
	"github.com/dokzlo13/streamlights/internal/hue"
	"github.com/dokzlo13/streamlights/internal/metrics"
)

// HueService owns the bridge connection and the applicator driving it.
type HueService struct {
	cfg      *config.Config
	baseline effects.Baseline
	metrics  *metrics.Metrics

	Client     *hue.Client
	Applicator *applicator.Applicator
}

// NewHueService creates a HueService; nothing is connected until Start.
func NewHueService(cfg *config.Config, m *metrics.Metrics) (*HueService, error) {
	baseline, err := cfg.Baseline()
	if err != nil {
		return nil, err
	}
	return &HueService{
		cfg:      cfg,
		baseline: baseline,
		metrics:  m,
	}, nil
}

// Start connects to the Hue bridge and builds the applicator.
func (s *HueService) Start(ctx context.Context) error {
	client, err := hue.Connect(ctx, hue.Config{
		Address:      s.cfg.Credentials.HueAddress,
		Username:     s.cfg.Credentials.HueUsername,
		Timeout:      s.cfg.Hue.Timeout.Duration(),
		RateLimitRPS: s.cfg.Hue.RateLimitRPS,
	})
	if err != nil {
		return err
	}
	s.Client = client
	s.Applicator = applicator.New(client, s.baseline, s.cfg.Pipeline.ResetTimeout.Duration(), s.metrics)

	log.Debug().
		Uint8("baseline_bri", s.baseline.Brightness).
		Uint16("baseline_hue", s.baseline.Hue).
		Msg("Applicator ready")
	return nil
}

// Close releases the bridge handle.
func (s *HueService) Close() {
	if s.Client != nil {
		s.Client.Close()
	}
}
