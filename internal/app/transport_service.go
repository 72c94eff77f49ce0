package app

import (
	"context"
	"fmt"

	"github.com/dokzlo13/streamlights/internal/config"
	"github.com/dokzlo13/streamlights/internal/metrics"
	"github.com/dokzlo13/streamlights/internal/pipeline"
	"github.com/dokzlo13/streamlights/internal/streamlabs"
	"github.com/dokzlo13/streamlights/internal/webhook"
)

// NewTransport builds the event transport selected by transport.mode.
func NewTransport(cfg *config.Config, m *metrics.Metrics) (pipeline.Transport, error) {
	switch cfg.Transport.Mode {
	case config.TransportSocket:
		return streamlabs.NewClient(streamlabs.Config{
			URL:           cfg.Transport.SocketURL,
			Token:         cfg.Credentials.StreamlabsToken,
			MinBackoff:    cfg.Transport.MinRetryBackoff.Duration(),
			MaxBackoff:    cfg.Transport.MaxRetryBackoff.Duration(),
			Multiplier:    cfg.Transport.RetryMultiplier,
			MaxReconnects: cfg.Transport.MaxReconnects,
		}, m), nil
	case config.TransportWebhook:
		return &webhookTransport{
			Server: webhook.NewServer(
				cfg.Transport.Webhook.Host,
				cfg.Transport.Webhook.Port,
				cfg.Transport.Webhook.Path,
				cfg.ShutdownTimeout.Duration(),
			),
			metrics: m,
		}, nil
	default:
		return nil, fmt.Errorf("unknown transport mode %q", cfg.Transport.Mode)
	}
}

// webhookTransport reports the listener as the transport connection
type webhookTransport struct {
	*webhook.Server
	metrics *metrics.Metrics
}

func (t *webhookTransport) Start(ctx context.Context, handle func(raw []byte), onFatal func(error)) error {
	if err := t.Server.Start(ctx, handle, onFatal); err != nil {
		return err
	}
	t.metrics.SetTransportConnected(true)
	return nil
}

func (t *webhookTransport) Close() error {
	t.metrics.SetTransportConnected(false)
	return t.Server.Close()
}
