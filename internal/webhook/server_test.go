package webhook

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	bodies []string
}

func (r *recorder) handle(raw []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bodies = append(r.bodies, string(raw))
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.bodies...)
}

func TestHandler(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantBody   string
		forwarded  bool
	}{
		{
			name:       "post forwards body",
			method:     http.MethodPost,
			path:       "/webhook",
			body:       `{"type":"donation","message":[{"amount":"5"}]}`,
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ok"}`,
			forwarded:  true,
		},
		{
			name:       "get not allowed",
			method:     http.MethodGet,
			path:       "/webhook",
			wantStatus: http.StatusMethodNotAllowed,
		},
		{
			name:       "other path",
			method:     http.MethodPost,
			path:       "/other",
			body:       `{}`,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "body too large",
			method:     http.MethodPost,
			path:       "/webhook",
			body:       strings.Repeat("x", MaxBodySize+1),
			wantStatus: http.StatusRequestEntityTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			s := NewServer("127.0.0.1", 0, "/webhook", time.Second)
			s.handle = rec.handle

			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			s.Handler().ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, w.Body.String())
			}
			if tt.forwarded {
				assert.Equal(t, []string{tt.body}, rec.all())
			} else {
				assert.Empty(t, rec.all())
			}
		})
	}
}

func TestServer_StartAndClose(t *testing.T) {
	rec := &recorder{}
	s := NewServer("127.0.0.1", 0, "/hooks/streamlabs", time.Second)
	require.NoError(t, s.Start(context.Background(), rec.handle, nil))

	resp, err := http.Post("http://"+s.Addr()+"/hooks/streamlabs", "application/json",
		bytes.NewBufferString(`{"type":"follow","for":"twitch_account"}`))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
	assert.Equal(t, []string{`{"type":"follow","for":"twitch_account"}`}, rec.all())

	require.NoError(t, s.Close())
	_, err = http.Post("http://"+s.Addr()+"/hooks/streamlabs", "application/json", nil)
	assert.Error(t, err)
}

func TestServer_BindFailure(t *testing.T) {
	first := NewServer("127.0.0.1", 0, "/webhook", time.Second)
	require.NoError(t, first.Start(context.Background(), func([]byte) {}, nil))
	defer first.Close()

	_, port, _ := strings.Cut(first.Addr(), ":")
	second := &Server{addr: "127.0.0.1:" + port, path: "/webhook", shutdownTimeout: time.Second}
	assert.Error(t, second.Start(context.Background(), func([]byte) {}, nil))
}

func TestServer_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewServer("127.0.0.1", 0, "/webhook", time.Second)
	require.NoError(t, s.Start(ctx, func([]byte) {}, nil))

	cancel()
	select {
	case <-s.done:
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
