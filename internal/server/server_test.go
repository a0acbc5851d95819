package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatjpcsguy/portlease/internal/netstate/netstatetest"
	"github.com/thatjpcsguy/portlease/internal/registry"
	"github.com/thatjpcsguy/portlease/internal/service"
)

type fixture struct {
	srv      *Server
	provider *netstatetest.Provider
	clock    *testclock.Clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := registry.NewFileStore(filepath.Join(t.TempDir(), "registry.json"), nil)
	require.NoError(t, err)
	clk := testclock.NewClock(time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC))
	provider := netstatetest.New()
	svc := service.New(registry.New(store, registry.WithClock(clk)), provider)
	return &fixture{srv: New(svc, WithSuggestRange(5000, 5002)), provider: provider, clock: clk}
}

func (f *fixture) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)

	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec.Code, out
}

func register(t *testing.T, f *fixture, port int, agent string) {
	t.Helper()
	code, body := f.do(t, http.MethodPost, "/ports/register", map[string]any{
		"port": port, "agent": agent, "reason": "test",
	})
	require.Equal(t, http.StatusCreated, code, body)
}

func TestRegisterAndCheck(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodPost, "/ports/register", map[string]any{
		"port": 8080, "agent": "a", "reason": "web", "ttlMinutes": 5,
	})
	require.Equal(t, http.StatusCreated, code)
	reg := body["registration"].(map[string]any)
	assert.Equal(t, float64(8080), reg["port"])
	assert.Equal(t, "2026-08-01T10:05:00Z", reg["expiresAt"])

	code, body = f.do(t, http.MethodGet, "/ports/check/8080", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["available"])
	assert.Equal(t, "a", body["registeredBy"].(map[string]any)["agent"])
	assert.Equal(t, "not-bound", body["osPresence"])
	assert.NotEmpty(t, body["recommendation"])
}

func TestRegister_Errors(t *testing.T) {
	f := newFixture(t)
	register(t, f, 8080, "a")

	code, body := f.do(t, http.MethodPost, "/ports/register", map[string]any{"port": 8080, "agent": "b", "reason": "x"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "a", body["registeredBy"].(map[string]any)["agent"])

	bad := []map[string]any{
		{"port": 0, "agent": "a", "reason": "r"},
		{"port": 70000, "agent": "a", "reason": "r"},
		{"port": 3000, "agent": " ", "reason": "r"},
		{"port": 3000, "agent": "a"},
		{"port": 3000, "agent": "a", "reason": "r", "ttlMinutes": 0},
		{"port": 3000, "agent": "a", "reason": "r", "ttlMinutes": -1},
		{"port": "3000", "agent": "a", "reason": "r"},
	}
	for _, b := range bad {
		code, _ := f.do(t, http.MethodPost, "/ports/register", b)
		assert.Equal(t, http.StatusBadRequest, code, "%v", b)
	}
}

func TestHeartbeat(t *testing.T) {
	f := newFixture(t)
	register(t, f, 8080, "a")
	f.clock.Advance(10 * time.Minute)

	code, body := f.do(t, http.MethodPost, "/ports/8080/heartbeat", map[string]any{"agent": "a"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "2026-08-01T11:10:00Z", body["expiresAt"])
	assert.Equal(t, "2026-08-01T10:10:00Z", body["lastHeartbeat"])

	code, _ = f.do(t, http.MethodPost, "/ports/8080/heartbeat", nil)
	assert.Equal(t, http.StatusOK, code, "agent is optional")

	code, _ = f.do(t, http.MethodPost, "/ports/8080/heartbeat", map[string]any{"agent": "b"})
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = f.do(t, http.MethodPost, "/ports/9090/heartbeat", map[string]any{"agent": "a"})
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRelease(t *testing.T) {
	f := newFixture(t)
	register(t, f, 8080, "a")

	code, _ := f.do(t, http.MethodDelete, "/ports/8080", map[string]any{"agent": "b"})
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = f.do(t, http.MethodDelete, "/ports/8080?agent=b", nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = f.do(t, http.MethodDelete, "/ports/8080?agent=%20%20", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, http.MethodPost, "/ports/register", map[string]any{
		"port": 9000, "agent": "a", "reason": "r", "ttlMinutes": 2e8,
	})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body := f.do(t, http.MethodDelete, "/ports/8080", map[string]any{"agent": "a"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(8080), body["released"].(map[string]any)["port"])

	code, _ = f.do(t, http.MethodDelete, "/ports/8080", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, body = f.do(t, http.MethodGet, "/ports/check/8080", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["available"])
}

func TestClearAll(t *testing.T) {
	f := newFixture(t)
	register(t, f, 8080, "a")
	register(t, f, 8081, "b")

	code, body := f.do(t, http.MethodDelete, "/ports", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(2), body["cleared"])

	code, body = f.do(t, http.MethodGet, "/ports", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(0), body["count"])
}

func TestCheck_InvalidPort(t *testing.T) {
	f := newFixture(t)
	for _, p := range []string{"abc", "0", "65536", "-1"} {
		code, _ := f.do(t, http.MethodGet, "/ports/check/"+p, nil)
		assert.Equal(t, http.StatusBadRequest, code, p)
	}
}

func TestSuggest(t *testing.T) {
	f := newFixture(t)
	register(t, f, 5000, "a")

	code, body := f.do(t, http.MethodGet, "/suggest?min=5000&max=5002", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(5001), body["port"])
	assert.Equal(t, true, body["osChecked"])

	register(t, f, 5001, "a")
	f.provider.Bind(5002, 42, "postgres")

	code, _ = f.do(t, http.MethodGet, "/suggest?min=5000&max=5002", nil)
	assert.Equal(t, http.StatusNotFound, code)

	// configured default range applies when the query is empty
	code, _ = f.do(t, http.MethodGet, "/suggest", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = f.do(t, http.MethodGet, "/suggest?min=x", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestSystem(t *testing.T) {
	f := newFixture(t)
	f.provider.Bind(8080, 10, "node").Bind(22, 1, "sshd")
	register(t, f, 8080, "a")

	code, body := f.do(t, http.MethodGet, "/ports/system", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(2), body["count"])

	ports := body["ports"].([]any)
	first := ports[0].(map[string]any)
	second := ports[1].(map[string]any)
	assert.Equal(t, float64(22), first["port"])
	assert.Equal(t, "sshd", first["processName"])
	assert.Equal(t, false, first["registered"])
	assert.Equal(t, float64(8080), second["port"])
	assert.Equal(t, true, second["registered"])
	assert.Equal(t, "a", second["registration"].(map[string]any)["agent"])
}

func TestScanUnavailable(t *testing.T) {
	f := newFixture(t)
	register(t, f, 8080, "a")
	register(t, f, 8081, "b")
	f.provider.SetUnavailable(true)

	code, body := f.do(t, http.MethodGet, "/ports/system", nil)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Contains(t, body["error"], "unavailable")

	code, body = f.do(t, http.MethodGet, "/ports", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(2), body["count"])
	assert.Equal(t, false, body["scanAvailable"])
	for _, r := range body["registrations"].([]any) {
		reg := r.(map[string]any)
		assert.Equal(t, "unknown", reg["osPresence"])
		assert.Nil(t, reg["osBound"])
	}
}

func TestUnknownRoute(t *testing.T) {
	f := newFixture(t)
	code, _ := f.do(t, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = f.do(t, http.MethodPut, "/ports", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, code)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	f := newFixture(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
