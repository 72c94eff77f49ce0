// Package pipeline wires transport delivery, the event queue, effect
// resolution and the applicator into a single serialized consumer loop.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/streamlights/internal/effects"
	"github.com/dokzlo13/streamlights/internal/events"
	"github.com/dokzlo13/streamlights/internal/metrics"
	"github.com/dokzlo13/streamlights/internal/queue"
)

// ErrShutdownTimeout is returned by Stop when the loop did not exit in time
var ErrShutdownTimeout = errors.New("pipeline shutdown timed out")

// State is the coordinator lifecycle state
type State int32

const (
	StateStarting State = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Applier applies a single effect, blocking until the lights are reset
type Applier interface {
	Apply(ctx context.Context, effect effects.LightEffect) error
}

// Transport delivers raw payloads to handle from its own goroutine.
// Start returns once the transport is connected; onFatal reports errors
// that end delivery for good after Start succeeded.
type Transport interface {
	Start(ctx context.Context, handle func(raw []byte), onFatal func(error)) error
	Close() error
}

// Options configures a Coordinator
type Options struct {
	Queue           *queue.Queue
	Rules           effects.Rules
	Applier         Applier
	Device          io.Closer // released on Stop, may be nil
	Transport       Transport // may be nil when events only come from HandlePayload
	Metrics         *metrics.Metrics
	ShutdownTimeout time.Duration
}

// Coordinator owns the queue consumer loop and the applicator
type Coordinator struct {
	queue           *queue.Queue
	rules           effects.Rules
	applier         Applier
	device          io.Closer
	transport       Transport
	metrics         *metrics.Metrics
	shutdownTimeout time.Duration

	state    atomic.Int32
	cancel   context.CancelFunc
	done     chan struct{}
	startMu  sync.Mutex
	stopOnce sync.Once
}

// New creates a Coordinator in the Starting state
func New(opts Options) *Coordinator {
	if opts.Queue == nil {
		opts.Queue = queue.New(queue.DefaultCapacity)
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}

	c := &Coordinator{
		queue:           opts.Queue,
		rules:           opts.Rules,
		applier:         opts.Applier,
		device:          opts.Device,
		transport:       opts.Transport,
		metrics:         opts.Metrics,
		shutdownTimeout: opts.ShutdownTimeout,
	}
	c.setState(StateStarting)
	return c
}

// Start connects the transport and launches the consumer loop.
// A transport failure here is fatal and returned.
func (c *Coordinator) Start(ctx context.Context, onFatal func(error)) error {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	if c.done != nil {
		return errors.New("pipeline already started")
	}

	if c.transport != nil {
		if err := c.transport.Start(ctx, c.HandlePayload, onFatal); err != nil {
			return fmt.Errorf("failed to start transport: %w", err)
		}
	}

	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(loopCtx)

	c.setState(StateRunning)
	log.Info().Int("queue_size", c.queue.Cap()).Msg("Pipeline running")
	return nil
}

// HandlePayload decodes a raw payload and enqueues it without blocking.
// It is the callback handed to transports.
func (c *Coordinator) HandlePayload(raw []byte) {
	c.metrics.PayloadsReceived.Inc()
	log.Debug().Int("bytes", len(raw)).Msg("Payload received")

	ev, err := events.Decode(raw)
	if err != nil {
		c.metrics.Dropped(metrics.DropDecodeError, 1)
		log.Warn().Err(err).Msg("Dropping undecodable payload")
		return
	}

	if ev.Kind == events.KindUnknown {
		c.metrics.Dropped(metrics.DropUnknown, 1)
		log.Debug().Str("raw_id", ev.RawID).Msg("Dropping unrecognized event")
		return
	}

	logEvent(log.Info(), ev).Msg("Event classified")

	if err := c.queue.Enqueue(ev); err != nil {
		switch {
		case errors.Is(err, queue.ErrQueueFull):
			c.metrics.Dropped(metrics.DropQueueFull, 1)
			logEvent(log.Warn(), ev).Int("capacity", c.queue.Cap()).Msg("Event queue full, dropping event")
		case errors.Is(err, queue.ErrQueueClosed):
			c.metrics.Dropped(metrics.DropQueueClosed, 1)
			logEvent(log.Debug(), ev).Msg("Pipeline stopping, dropping event")
		}
		return
	}

	c.metrics.EventsQueued.WithLabelValues(ev.Kind.String()).Inc()
	c.metrics.QueueDepth.Set(float64(c.queue.Len()))
}

// run is the single consumer: one event is fully applied and reset before the next
func (c *Coordinator) run(ctx context.Context) {
	defer close(c.done)

	for {
		ev, ok := c.queue.Dequeue(ctx)
		if !ok {
			log.Debug().Msg("Pipeline loop exiting")
			return
		}
		c.metrics.QueueDepth.Set(float64(c.queue.Len()))
		c.process(ctx, ev)
	}
}

func (c *Coordinator) process(ctx context.Context, ev events.Event) {
	effect, ok := effects.Resolve(ev, c.rules)
	if !ok {
		logEvent(log.Debug(), ev).Msg("No effect configured for event")
		return
	}

	logEvent(log.Info(), ev).
		Str("color", effect.Color).
		Str("alert", string(effect.Alert)).
		Dur("duration", effect.Duration).
		Msg("Effect resolved")

	if err := c.applier.Apply(ctx, effect); err != nil {
		c.metrics.EffectErrors.WithLabelValues(ev.Kind.String()).Inc()
		logEvent(log.Error().Err(err), ev).Msg("Failed to apply effect")
		return
	}
	c.metrics.EffectsApplied.WithLabelValues(ev.Kind.String()).Inc()
}

// Stop drains the pipeline: the queue is closed, an in-flight effect is cut
// short and reset, still-queued events are discarded, then the device and
// transport are released. Safe to call more than once.
func (c *Coordinator) Stop() error {
	var stopErr error

	c.stopOnce.Do(func() {
		c.setState(StateDraining)
		log.Info().Msg("Pipeline draining")

		c.queue.Close()

		c.startMu.Lock()
		cancel, done := c.cancel, c.done
		c.startMu.Unlock()

		if cancel != nil {
			cancel()
		}
		if done != nil {
			select {
			case <-done:
				log.Debug().Msg("Pipeline loop stopped")
			case <-time.After(c.shutdownTimeout):
				log.Warn().Dur("timeout", c.shutdownTimeout).Msg("Pipeline loop did not stop in time")
				stopErr = ErrShutdownTimeout
			}
		}

		if discarded := c.queue.Drain(); len(discarded) > 0 {
			c.metrics.Dropped(metrics.DropShutdown, len(discarded))
			log.Warn().Int("discarded", len(discarded)).Msg("Discarded queued events on shutdown")
		}
		c.metrics.QueueDepth.Set(0)

		if c.device != nil {
			if err := c.device.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to release device")
			}
		}

		if c.transport != nil {
			if err := c.transport.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close transport")
			}
		}

		c.setState(StateStopped)
		log.Info().Msg("Pipeline stopped")
	})

	return stopErr
}

// State returns the current lifecycle state
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

func (c *Coordinator) setState(s State) {
	c.state.Store(int32(s))
	c.metrics.PipelineState.Set(float64(s))
}

func logEvent(e *zerolog.Event, ev events.Event) *zerolog.Event {
	e = e.Str("kind", ev.Kind.String()).Str("source", ev.Source).Str("raw_id", ev.RawID)
	if ev.Kind.HasAmount() {
		e = e.Float64("amount", ev.Amount)
	}
	return e
}
