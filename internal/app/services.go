package app

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/streamlights/internal/config"
	"github.com/dokzlo13/streamlights/internal/metrics"
	"github.com/dokzlo13/streamlights/internal/pipeline"
	"github.com/dokzlo13/streamlights/internal/queue"
)

// Options tunes optional start-up behavior.
type Options struct {
	Rehearse       bool
	RehearseScript string // empty = built-in cycle
}

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg  *config.Config
	opts Options

	Metrics   *metrics.Metrics
	Queue     *queue.Queue
	Transport pipeline.Transport

	Hue       *HueService
	Health    *HealthService
	Rehearsal *RehearsalService

	pipeline atomic.Pointer[pipeline.Coordinator]
}

// NewServices creates all services with proper dependency injection.
// Nothing touches the network until Start.
func NewServices(cfg *config.Config, opts Options) (*Services, error) {
	s := &Services{
		cfg:     cfg,
		opts:    opts,
		Metrics: metrics.New(),
		Queue:   queue.New(cfg.Pipeline.QueueSize),
	}

	var err error
	s.Hue, err = NewHueService(cfg, s.Metrics)
	if err != nil {
		return nil, err
	}

	s.Transport, err = NewTransport(cfg, s.Metrics)
	if err != nil {
		return nil, err
	}

	s.Health = NewHealthService(cfg, s.Metrics, s.ready)

	return s, nil
}

// Pipeline returns the running coordinator, or nil before Start.
func (s *Services) Pipeline() *pipeline.Coordinator {
	return s.pipeline.Load()
}

func (s *Services) ready() bool {
	p := s.pipeline.Load()
	return p != nil && p.State() == pipeline.StateRunning
}

// Start starts all services in the correct order.
// The onFatalError callback is called when a fatal error occurs (e.g., max reconnects exceeded).
func (s *Services) Start(ctx context.Context, onFatalError func(error)) error {
	// Connect to Hue bridge
	if err := s.Hue.Start(ctx); err != nil {
		return err
	}

	coordinator := pipeline.New(pipeline.Options{
		Queue:           s.Queue,
		Rules:           s.cfg.Rules(),
		Applier:         s.Hue.Applicator,
		Device:          s.Hue.Client,
		Transport:       s.Transport,
		Metrics:         s.Metrics,
		ShutdownTimeout: s.cfg.ShutdownTimeout.Duration(),
	})
	if err := coordinator.Start(ctx, onFatalError); err != nil {
		s.Hue.Close()
		return err
	}
	s.pipeline.Store(coordinator)

	s.Health.Start(ctx)

	if s.opts.Rehearse {
		log.Info().Str("script", s.opts.RehearseScript).Msg("Rehearsal enabled")
		s.Rehearsal = NewRehearsalService(coordinator.HandlePayload, s.opts.RehearseScript)
		s.Rehearsal.Start(ctx)
	}

	return nil
}

// Stop gracefully stops all services.
func (s *Services) Stop() error {
	if p := s.pipeline.Load(); p != nil {
		// The coordinator releases the bridge and the transport
		return p.Stop()
	}
	s.Hue.Close()
	return nil
}
