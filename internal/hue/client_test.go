package hue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/streamlights/internal/effects"
)

func TestToState(t *testing.T) {
	state := toState(effects.Command{On: true, Bri: 200, Hue: 21845, Sat: 254, Alert: "select"})
	assert.True(t, state.On)
	assert.Equal(t, uint8(200), state.Bri)
	assert.Equal(t, uint16(21845), state.Hue)
	assert.Equal(t, uint8(254), state.Sat)
	assert.Equal(t, "select", state.Alert)
}

func TestToState_ZeroValuesSurviveOmitempty(t *testing.T) {
	// Red and white would otherwise be dropped from the request body
	state := toState(effects.Command{On: true, Bri: 0, Hue: 0, Sat: 0, Alert: "none"})
	assert.Equal(t, uint16(65535), state.Hue)
	assert.Equal(t, uint8(1), state.Sat)
	assert.Equal(t, uint8(1), state.Bri)
	assert.Equal(t, "none", state.Alert)
}

func TestClient_AgainstFakeBridge(t *testing.T) {
	var gotPath string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/tester/lights":
			w.Write([]byte(`{"1":{"name":"Desk","state":{"on":true,"reachable":true}},"2":{"name":"Shelf","state":{"on":false,"reachable":false}}}`))
		case r.Method == http.MethodPut:
			gotPath = r.URL.Path
			json.NewDecoder(r.Body).Decode(&gotBody)
			w.Write([]byte(`[{"success":{"/lights/1/state/on":true}}]`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	host := strings.TrimPrefix(srv.URL, "http://")
	client, err := Connect(context.Background(), Config{Address: host, Username: "tester", Timeout: time.Second})
	require.NoError(t, err)
	defer client.Close()

	lights, err := client.Lights(context.Background())
	require.NoError(t, err)
	require.Len(t, lights, 2)

	byID := map[int]Light{}
	for _, l := range lights {
		byID[l.ID] = l
	}
	assert.Equal(t, "Desk", byID[1].Name)
	assert.True(t, byID[1].Reachable)
	assert.False(t, byID[2].Reachable)

	err = client.SetState(context.Background(), 1, effects.Command{On: true, Bri: 254, Hue: 46920, Sat: 254, Alert: "select"})
	require.NoError(t, err)
	assert.Equal(t, "/api/tester/lights/1/state", gotPath)
	assert.Equal(t, true, gotBody["on"])
	assert.Equal(t, float64(46920), gotBody["hue"])
	assert.Equal(t, "select", gotBody["alert"])
}

func TestConnect_RequiresUsername(t *testing.T) {
	_, err := Connect(context.Background(), Config{Address: "127.0.0.1:1"})
	assert.Error(t, err)
}
