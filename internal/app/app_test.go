package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/streamlights/internal/config"
	"github.com/dokzlo13/streamlights/internal/pipeline"
	"github.com/dokzlo13/streamlights/internal/streamlabs"
)

// fakeBridge records light state bodies
type fakeBridge struct {
	mu     sync.Mutex
	states []map[string]any
}

func (b *fakeBridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/tester/lights":
		w.Write([]byte(`{"1":{"name":"Desk","state":{"on":true,"reachable":true}}}`))
	case r.Method == http.MethodPut && r.URL.Path == "/api/tester/lights/1/state":
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		b.mu.Lock()
		b.states = append(b.states, body)
		b.mu.Unlock()
		w.Write([]byte(`[{"success":{"/lights/1/state/on":true}}]`))
	default:
		http.NotFound(w, r)
	}
}

func (b *fakeBridge) snapshot() []map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]map[string]any(nil), b.states...)
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rehearse.lua")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func testConfig(t *testing.T, bridgeHost string, webhookPort int) *config.Config {
	t.Helper()
	doc := fmt.Sprintf(`
credentials:
  hue_address: %s
  hue_username: tester
transport:
  mode: webhook
  webhook:
    host: 127.0.0.1
    port: %d
    path: /webhook
pipeline:
  reset_timeout: 1s
events:
  streamlabs_donation:
    enabled: true
    tiers:
      - threshold: 100
        effect: {color: "#FF0000", alert: repeating, duration: 50ms}
      - threshold: 0
        effect: {color: "#0000FF", alert: single, duration: 50ms}
shutdown_timeout: 2s
`, bridgeHost, webhookPort)
	cfg, err := config.Parse([]byte(doc))
	require.NoError(t, err)
	return cfg
}

func TestApp_WebhookDonationDrivesLights(t *testing.T) {
	bridge := &fakeBridge{}
	srv := httptest.NewServer(bridge)
	defer srv.Close()

	port := freePort(t)
	cfg := testConfig(t, strings.TrimPrefix(srv.URL, "http://"), port)

	application, err := New(cfg, Options{})
	require.NoError(t, err)
	require.NoError(t, application.Start(context.Background()))
	defer application.Stop()

	assert.Equal(t, pipeline.StateRunning, application.Services().Pipeline().State())

	resp, err := http.Post(fmt.Sprintf("http://127.0.0.1:%d/webhook", port), "application/json",
		strings.NewReader(`{"type":"donation","message":[{"amount":"150","name":"Alice"}]}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool { return len(bridge.snapshot()) >= 2 }, 3*time.Second, 10*time.Millisecond)

	states := bridge.snapshot()
	assert.Equal(t, float64(65535), states[0]["hue"], "red wraps to the top of the hue circle")
	assert.Equal(t, "lselect", states[0]["alert"])
	assert.Equal(t, float64(8418), states[1]["hue"])
	assert.Equal(t, "none", states[1]["alert"])

	require.NoError(t, application.Stop())
	assert.Equal(t, pipeline.StateStopped, application.Services().Pipeline().State())
}

func TestApp_RehearsalFeedsPipeline(t *testing.T) {
	bridge := &fakeBridge{}
	srv := httptest.NewServer(bridge)
	defer srv.Close()

	cfg := testConfig(t, strings.TrimPrefix(srv.URL, "http://"), freePort(t))

	application, err := New(cfg, Options{Rehearse: true, RehearseScript: writeScript(t, `donation(10)`)})
	require.NoError(t, err)
	require.NoError(t, application.Start(context.Background()))
	defer application.Stop()

	require.Eventually(t, func() bool { return len(bridge.snapshot()) >= 2 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, float64(43690), bridge.snapshot()[0]["hue"])
}

func TestApp_StartFailsWithoutBridge(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	host := strings.TrimPrefix(srv.URL, "http://")
	srv.Close()

	application, err := New(testConfig(t, host, freePort(t)), Options{})
	require.NoError(t, err)
	assert.Error(t, application.Start(context.Background()))
	assert.NoError(t, application.Stop())
}

func TestNewTransport(t *testing.T) {
	cfg := testConfig(t, "127.0.0.1:1", 8080)

	tr, err := NewTransport(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &webhookTransport{}, tr)

	cfg.Transport.Mode = config.TransportSocket
	tr, err = NewTransport(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &streamlabs.Client{}, tr)

	cfg.Transport.Mode = "carrier-pigeon"
	_, err = NewTransport(cfg, nil)
	assert.Error(t, err)
}

func TestHealthService_Handler(t *testing.T) {
	cfg := testConfig(t, "127.0.0.1:1", 8080)
	services, err := NewServices(cfg, Options{})
	require.NoError(t, err)

	ready := false
	health := NewHealthService(cfg, services.Metrics, func() bool { return ready })
	h := health.Handler()

	get := func(path string) (int, string) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		body, _ := io.ReadAll(w.Result().Body)
		return w.Code, string(body)
	}

	code, _ := get("/health")
	assert.Equal(t, http.StatusOK, code)

	code, _ = get("/ready")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	ready = true
	code, _ = get("/ready")
	assert.Equal(t, http.StatusOK, code)

	services.Metrics.PayloadsReceived.Inc()
	code, body := get("/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "streamlights_payloads_received_total 1")
}
