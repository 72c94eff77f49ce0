// Package streamlabs receives alert events from the Streamlabs Socket API
// (socket.io over websocket) with automatic reconnection.
package streamlabs

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"
)

// ErrMaxReconnectsExceeded is returned when the maximum number of reconnect attempts is exceeded.
var ErrMaxReconnectsExceeded = errors.New("max reconnects exceeded")

// errServerClosed is returned when the server ends the session
var errServerClosed = errors.New("server closed the session")

// maxMessageSize bounds a single websocket message
const maxMessageSize = 1 << 20

// Config contains connection and reconnection settings.
type Config struct {
	URL   string // Base URL, e.g. wss://sockets.streamlabs.com
	Token string // Socket API token

	MinBackoff    time.Duration // Minimum backoff between reconnects
	MaxBackoff    time.Duration // Maximum backoff between reconnects
	Multiplier    float64       // Backoff multiplier
	MaxReconnects int           // Max reconnect attempts, 0 = infinite
}

// DefaultConfig returns sensible defaults for the socket connection.
func DefaultConfig() Config {
	return Config{
		URL:           "wss://sockets.streamlabs.com",
		MinBackoff:    1 * time.Second,
		MaxBackoff:    2 * time.Minute,
		Multiplier:    2.0,
		MaxReconnects: 0, // infinite
	}
}

// ConnectionObserver is notified about connection state changes. May be nil.
type ConnectionObserver interface {
	SetTransportConnected(up bool)
}

// Client listens to the Streamlabs socket and forwards event payloads
type Client struct {
	config   Config
	observer ConnectionObserver

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewClient creates a new socket client
func NewClient(config Config, observer ConnectionObserver) *Client {
	defaults := DefaultConfig()
	if config.URL == "" {
		config.URL = defaults.URL
	}
	if config.MinBackoff <= 0 {
		config.MinBackoff = defaults.MinBackoff
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = defaults.MaxBackoff
	}
	if config.Multiplier < 1 {
		config.Multiplier = defaults.Multiplier
	}

	return &Client{
		config:   config,
		observer: observer,
	}
}

// session is one live socket connection
type session struct {
	conn      *websocket.Conn
	handshake handshake
}

// Start connects once synchronously and then serves in the background,
// reconnecting on failure. Each received "event" payload is passed to handle.
// onFatal is called with ErrMaxReconnectsExceeded if reconnection gives up.
func (c *Client) Start(ctx context.Context, handle func(raw []byte), onFatal func(error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done != nil {
		return errors.New("streamlabs client already started")
	}

	sess, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to Streamlabs socket: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	go func() {
		defer close(c.done)
		if err := c.run(runCtx, sess, handle); err != nil {
			log.Error().Err(err).Msg("Streamlabs socket: giving up")
			if onFatal != nil {
				onFatal(err)
			}
		}
	}()

	return nil
}

// Close disconnects and waits for the receive loop to exit
func (c *Client) Close() error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		return errors.New("streamlabs client did not stop in time")
	}
	log.Info().Msg("Disconnected from Streamlabs socket")
	return nil
}

// run serves the session and reconnects with exponential backoff.
// Returns ErrMaxReconnectsExceeded if max reconnects is exceeded.
func (c *Client) run(ctx context.Context, sess *session, handle func([]byte)) error {
	retryCount := 0
	currentBackoff := c.config.MinBackoff

	for {
		if sess != nil {
			err := c.serve(ctx, sess, handle)
			c.setConnected(false)
			if ctx.Err() != nil {
				return nil
			}
			log.Warn().Err(err).Msg("Streamlabs socket disconnected")
			// Reset retry count and backoff after a session that was established
			retryCount = 0
			currentBackoff = c.config.MinBackoff
		}

		retryCount++

		// Check if we exceeded max reconnects
		if c.config.MaxReconnects > 0 && retryCount > c.config.MaxReconnects {
			log.Error().
				Int("max_reconnects", c.config.MaxReconnects).
				Msg("Streamlabs socket: max reconnects exceeded, terminating")
			return ErrMaxReconnectsExceeded
		}

		log.Info().
			Dur("backoff", currentBackoff).
			Int("retry", retryCount).
			Int("max_reconnects", c.config.MaxReconnects).
			Msg("Streamlabs socket reconnecting")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(currentBackoff):
		}

		// Calculate next backoff with multiplier, capped at max
		nextBackoff := time.Duration(float64(currentBackoff) * c.config.Multiplier)
		if nextBackoff > c.config.MaxBackoff {
			nextBackoff = c.config.MaxBackoff
		}
		currentBackoff = nextBackoff

		var err error
		sess, err = c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn().Err(err).Int("retry", retryCount).Msg("Streamlabs socket reconnect failed")
			sess = nil
		}
	}
}

func (c *Client) socketURL() (string, error) {
	u, err := url.Parse(c.config.URL)
	if err != nil {
		return "", err
	}
	u.Path = "/socket.io/"
	q := u.Query()
	q.Set("token", c.config.Token)
	q.Set("EIO", "3")
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// dial opens the websocket and completes the engine.io handshake
func (c *Client) dial(ctx context.Context) (*session, error) {
	target, err := c.socketURL()
	if err != nil {
		return nil, err
	}

	dialCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("dial websocket: %w", err)
	}
	conn.SetReadLimit(maxMessageSize)

	_, msg, err := conn.Read(dialCtx)
	if err != nil {
		conn.CloseNow()
		return nil, fmt.Errorf("read open packet: %w", err)
	}
	p, err := parsePacket(msg)
	if err != nil || p.typ != packetOpen {
		conn.CloseNow()
		return nil, fmt.Errorf("expected open packet, got %q", msg)
	}
	hs, err := parseHandshake(p.data)
	if err != nil {
		conn.CloseNow()
		return nil, err
	}

	log.Info().
		Str("sid", hs.SID).
		Dur("ping_interval", hs.interval()).
		Msg("Connected to Streamlabs socket")
	c.setConnected(true)

	return &session{conn: conn, handshake: hs}, nil
}

// serve reads packets until the connection fails or ctx is cancelled
func (c *Client) serve(ctx context.Context, sess *session, handle func([]byte)) error {
	conn := sess.conn
	defer conn.CloseNow()

	pingErr := make(chan error, 1)
	pingCtx, stopPing := context.WithCancel(ctx)
	defer stopPing()
	go func() {
		pingErr <- c.keepalive(pingCtx, sess)
	}()

	readTimeout := sess.handshake.interval() + sess.handshake.timeout()

	for {
		readCtx, cancel := context.WithTimeout(ctx, readTimeout)
		_, msg, err := conn.Read(readCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				conn.Close(websocket.StatusNormalClosure, "shutting down")
				return ctx.Err()
			}
			select {
			case perr := <-pingErr:
				if perr != nil {
					return fmt.Errorf("keepalive: %w", perr)
				}
			default:
			}
			return err
		}

		if err := c.handlePacket(ctx, conn, msg, handle); err != nil {
			return err
		}
	}
}

func (c *Client) handlePacket(ctx context.Context, conn *websocket.Conn, msg []byte, handle func([]byte)) error {
	p, err := parsePacket(msg)
	if err != nil {
		log.Warn().Err(err).Msg("Ignoring invalid socket packet")
		return nil
	}

	switch p.typ {
	case packetPing:
		return conn.Write(ctx, websocket.MessageText, []byte{packetPong})
	case packetPong, packetOpen:
		return nil
	case packetClose:
		return errServerClosed
	}

	switch p.sioType {
	case socketConnect:
		log.Debug().Msg("Streamlabs socket namespace connected")
	case socketDisconnect:
		return errServerClosed
	case socketError:
		log.Warn().Str("data", string(p.data)).Msg("Streamlabs socket error packet")
	case socketEvent:
		name, payload, err := parseEvent(p.data)
		if err != nil {
			log.Warn().Err(err).Msg("Ignoring invalid socket event")
			return nil
		}
		if name != "event" || payload == nil {
			log.Trace().Str("name", name).Msg("Ignoring socket event")
			return nil
		}
		handle([]byte(payload))
	}
	return nil
}

// keepalive sends engine.io pings every ping interval
func (c *Client) keepalive(ctx context.Context, sess *session) error {
	ticker := time.NewTicker(sess.handshake.interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			writeCtx, cancel := context.WithTimeout(ctx, sess.handshake.timeout())
			err := sess.conn.Write(writeCtx, websocket.MessageText, []byte{packetPing})
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}

func (c *Client) setConnected(up bool) {
	if c.observer != nil {
		c.observer.SetTransportConnected(up)
	}
}
