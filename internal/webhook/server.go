// Package webhook receives Streamlabs alert payloads pushed over HTTP.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// MaxBodySize bounds a webhook request body
const MaxBodySize = 1 << 20

// Server is an HTTP server that receives webhooks and forwards their bodies.
type Server struct {
	addr            string
	path            string
	shutdownTimeout time.Duration

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
	done       chan struct{}
	handle     func([]byte)
}

// NewServer creates a new webhook server.
func NewServer(host string, port int, path string, shutdownTimeout time.Duration) *Server {
	if path == "" {
		path = "/webhook"
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = 5 * time.Second
	}
	return &Server{
		addr:            fmt.Sprintf("%s:%d", host, port),
		path:            path,
		shutdownTimeout: shutdownTimeout,
	}
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Start binds the listener and serves in the background. A bind failure is
// returned directly; a later serve failure is reported through onFatal.
func (s *Server) Start(ctx context.Context, handle func(raw []byte), onFatal func(error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.httpServer != nil {
		return errors.New("webhook server already started")
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to bind webhook server on %s: %w", s.addr, err)
	}

	s.handle = handle
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.done = make(chan struct{})

	log.Info().Str("addr", ln.Addr().String()).Str("path", s.path).Msg("Starting webhook server")

	go func() {
		defer close(s.done)
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Webhook server error")
			if onFatal != nil {
				onFatal(err)
			}
		}
	}()

	// Handle graceful shutdown
	go func() {
		select {
		case <-ctx.Done():
			s.shutdown()
		case <-s.done:
		}
	}()

	return nil
}

// Close stops accepting requests and waits for in-flight ones to finish.
func (s *Server) Close() error {
	s.mu.Lock()
	started := s.httpServer != nil
	s.mu.Unlock()

	if !started {
		return nil
	}
	return s.shutdown()
}

func (s *Server) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Webhook server shutdown error")
		return err
	}
	<-s.done
	return nil
}

// Handler returns the webhook HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.handleWebhook)
	return mux
}

// handleWebhook forwards the request body to the pipeline.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != s.path {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			log.Warn().Int64("limit", tooLarge.Limit).Msg("Webhook body too large")
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		log.Error().Err(err).Msg("Failed to read webhook request body")
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	log.Debug().
		Str("remote", r.RemoteAddr).
		Int("body_len", len(body)).
		Msg("Received webhook request")

	if s.handle != nil {
		s.handle(body)
	}

	// Respond with 200 OK
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
