package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wheelseye/devicegateway/internal/protocol/gt06"
	"github.com/wheelseye/devicegateway/pkg/api"
	"github.com/wheelseye/devicegateway/pkg/api/handlers"
	"github.com/wheelseye/devicegateway/pkg/session"
	"github.com/wheelseye/devicegateway/pkg/session/store/memory"
)

const testIMEI = "123456789012345"

var errOffline = errors.New("device offline")

// fakeSender records delivered commands and simulates offline devices.
type fakeSender struct {
	online map[string]bool
	sent   []*gt06.Command
	serial uint16
}

func (f *fakeSender) SendCommand(ctx context.Context, imei string, cmd *gt06.Command) (uint16, error) {
	if !f.online[imei] {
		return 0, errOffline
	}
	f.sent = append(f.sent, cmd)
	f.serial++
	return f.serial, nil
}

func newTestServer(t *testing.T, sender handlers.CommandSender) (*httptest.Server, *session.Registry) {
	t.Helper()
	registry := session.NewRegistry(memory.New(), session.RegistryConfig{})
	router := api.NewRouter(api.RouterDeps{
		Registry:  registry,
		Sender:    sender,
		IsOffline: func(err error) bool { return errors.Is(err, errOffline) },
	}, 0)
	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)
	return ts, registry
}

func getJSON(t *testing.T, url string, out *handlers.Response) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp
}

// ============================================================================
// Health
// ============================================================================

func TestHealthEndpoints(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	t.Run("Liveness", func(t *testing.T) {
		var body handlers.Response
		resp := getJSON(t, ts.URL+"/health", &body)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "healthy", body.Status)
	})

	t.Run("Readiness", func(t *testing.T) {
		var body handlers.Response
		resp := getJSON(t, ts.URL+"/health/ready", &body)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "healthy", body.Status)
	})
}

// ============================================================================
// Sessions
// ============================================================================

func TestSessionEndpoints(t *testing.T) {
	ts, registry := newTestServer(t, nil)
	ctx := context.Background()

	t.Run("EmptyList", func(t *testing.T) {
		var body handlers.Response
		resp := getJSON(t, ts.URL+"/api/v1/devices/sessions", &body)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		data := body.Data.(map[string]any)
		assert.Equal(t, float64(0), data["count"])
	})

	t.Run("UnknownDevice", func(t *testing.T) {
		var body handlers.Response
		resp := getJSON(t, ts.URL+"/api/v1/devices/"+testIMEI+"/session", &body)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "error", body.Status)
	})

	t.Run("KnownDevice", func(t *testing.T) {
		_, _, err := registry.CreateOrRebind(ctx, testIMEI, "c000001", "10.0.0.1:40000", gt06.VariantV5)
		require.NoError(t, err)

		var body handlers.Response
		resp := getJSON(t, ts.URL+"/api/v1/devices/"+testIMEI+"/session", &body)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		data := body.Data.(map[string]any)
		assert.Equal(t, testIMEI, data["imei"])
		assert.Equal(t, string(gt06.VariantV5), data["variant"])

		var list handlers.Response
		getJSON(t, ts.URL+"/api/v1/devices/sessions", &list)
		assert.Equal(t, float64(1), list.Data.(map[string]any)["count"])
	})
}

// ============================================================================
// Commands
// ============================================================================

func postCommand(t *testing.T, url string, payload any) (*http.Response, handlers.Response) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()
	var body handlers.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp, body
}

func TestCommandEndpoint(t *testing.T) {
	sender := &fakeSender{online: map[string]bool{testIMEI: true}}
	ts, _ := newTestServer(t, sender)
	url := fmt.Sprintf("%s/api/v1/devices/%s/commands", ts.URL, testIMEI)

	t.Run("Delivered", func(t *testing.T) {
		resp, body := postCommand(t, url, map[string]any{"kind": "IMMOBILIZE", "enable": true})
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)

		data := body.Data.(map[string]any)
		assert.Equal(t, "IMMOBILIZE", data["kind"])
		assert.Equal(t, float64(1), data["serial"])
		require.Len(t, sender.sent, 1)
		assert.True(t, sender.sent[0].Enable)
	})

	t.Run("OfflineDevice", func(t *testing.T) {
		offURL := fmt.Sprintf("%s/api/v1/devices/%s/commands", ts.URL, "999999999999999")
		resp, body := postCommand(t, offURL, map[string]any{"kind": "LOCATE"})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Contains(t, body.Error, "not connected")
	})

	t.Run("UnknownKind", func(t *testing.T) {
		resp, _ := postCommand(t, url, map[string]any{"kind": "SELF_DESTRUCT"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("GenericRequiresText", func(t *testing.T) {
		resp, _ := postCommand(t, url, map[string]any{"kind": "GENERIC"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("InvalidBody", func(t *testing.T) {
		resp, err := http.Post(url, "application/json", bytes.NewReader([]byte("{not json")))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("NoSenderConfigured", func(t *testing.T) {
		bare, _ := newTestServer(t, nil)
		resp, _ := postCommand(t, fmt.Sprintf("%s/api/v1/devices/%s/commands", bare.URL, testIMEI),
			map[string]any{"kind": "LOCATE"})
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})
}
