package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/fatih/color"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/thatjpcsguy/portlease/internal/config"
	"github.com/thatjpcsguy/portlease/internal/netstate"
	"github.com/thatjpcsguy/portlease/internal/netstate/netstatetest"
	"github.com/thatjpcsguy/portlease/internal/service"
)

func init() {
	color.NoColor = true
}

func newTestApp(t *testing.T, driver string) (*app, *netstatetest.Provider) {
	t.Helper()
	cfg := config.Default()
	cfg.StoreDriver = driver
	cfg.StorePath = filepath.Join(t.TempDir(), "registry")
	cfg.HooksDir = ""

	provider := netstatetest.New()
	a, err := newApp(cfg, nil, provider)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a, provider
}

func TestRegisterListRelease(t *testing.T) {
	a, provider := newTestApp(t, config.StoreJSON)
	ctx := context.Background()
	provider.Bind(8080, 77, "node")

	var out bytes.Buffer
	require.NoError(t, registerLocal(ctx, a, &out, outputText, service.RegisterRequest{Port: 8080, Agent: "build-42", Reason: "dev server"}))
	assert.Contains(t, out.String(), "Registered port 8080 for build-42")

	out.Reset()
	require.NoError(t, listLocal(ctx, a, &out, outputJSON))
	var listing struct {
		Count         int  `json:"count"`
		ScanAvailable bool `json:"scanAvailable"`
		Registrations []struct {
			Port       int    `json:"port"`
			Agent      string `json:"agent"`
			OSPresence string `json:"osPresence"`
		} `json:"registrations"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &listing))
	assert.Equal(t, 1, listing.Count)
	assert.True(t, listing.ScanAvailable)
	assert.Equal(t, "build-42", listing.Registrations[0].Agent)
	assert.Equal(t, "bound", listing.Registrations[0].OSPresence)

	out.Reset()
	require.NoError(t, listLocal(ctx, a, &out, outputText))
	assert.Contains(t, out.String(), "8080 (bound)")
	assert.Contains(t, out.String(), "node (pid 77, tcp)")

	out.Reset()
	err := releaseLocal(ctx, a, &out, 8080, "someone-else")
	assert.True(t, errors.Is(err, errors.Forbidden))

	require.NoError(t, releaseLocal(ctx, a, &out, 8080, "build-42"))
	assert.Contains(t, out.String(), "Released port 8080 (was held by build-42)")

	out.Reset()
	require.NoError(t, listLocal(ctx, a, &out, outputText))
	assert.Equal(t, "No registered ports\n", out.String())
}

func TestCheck(t *testing.T) {
	a, provider := newTestApp(t, config.StoreJSON)
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, checkLocal(ctx, a, &out, outputText, 9000))
	assert.Contains(t, out.String(), "Port 9000 is available")

	provider.Bind(9000, 5, "redis-server")
	out.Reset()
	err := checkLocal(ctx, a, &out, outputText, 9000)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, out.String(), "Port 9000 is unavailable")
	assert.Contains(t, out.String(), "redis-server")

	out.Reset()
	err = checkLocal(ctx, a, &out, outputText, 0)
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestSystemYAML(t *testing.T) {
	a, provider := newTestApp(t, config.StoreJSON)
	ctx := context.Background()
	provider.Bind(22, 1, "sshd").Bind(8080, 10, "node")

	var out bytes.Buffer
	require.NoError(t, registerLocal(ctx, a, &out, outputText, service.RegisterRequest{Port: 8080, Agent: "a", Reason: "web"}))

	out.Reset()
	require.NoError(t, systemLocal(ctx, a, &out, outputYAML))
	var listing struct {
		Count int `yaml:"count"`
		Ports []struct {
			Port        int    `yaml:"port"`
			ProcessName string `yaml:"processName"`
			Registered  bool   `yaml:"registered"`
		} `yaml:"ports"`
	}
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &listing))
	require.Equal(t, 2, listing.Count)
	assert.Equal(t, 22, listing.Ports[0].Port)
	assert.False(t, listing.Ports[0].Registered)
	assert.Equal(t, 8080, listing.Ports[1].Port)
	assert.True(t, listing.Ports[1].Registered)

	provider.SetUnavailable(true)
	err := systemLocal(ctx, a, &out, outputText)
	assert.Error(t, err)
}

func TestSuggestAndClear(t *testing.T) {
	a, provider := newTestApp(t, config.StoreJSON)
	ctx := context.Background()
	provider.Bind(5000, 1, "")

	var out, errOut bytes.Buffer
	require.NoError(t, registerLocal(ctx, a, &out, outputText, service.RegisterRequest{Port: 5001, Agent: "a", Reason: "r"}))

	out.Reset()
	require.NoError(t, suggestLocal(ctx, a, &out, &errOut, outputText, 5000, 5005))
	assert.Equal(t, "5002\n", out.String())
	assert.Empty(t, errOut.String())

	provider.SetUnavailable(true)
	out.Reset()
	require.NoError(t, suggestLocal(ctx, a, &out, &errOut, outputText, 5000, 5005))
	assert.Equal(t, "5000\n", out.String())
	assert.Contains(t, errOut.String(), "OS scan unavailable")

	err := suggestLocal(ctx, a, &out, &errOut, outputText, 6000, 5000)
	assert.True(t, errors.Is(err, errors.NotValid))

	out.Reset()
	require.NoError(t, clearLocal(ctx, a, &out))
	assert.Equal(t, "Cleared 1 registration(s)\n", out.String())
}

func TestHeartbeatLocal(t *testing.T) {
	a, _ := newTestApp(t, config.StoreJSON)
	ctx := context.Background()

	var out bytes.Buffer
	err := heartbeatLocal(ctx, a, &out, outputText, 8080, "a")
	assert.True(t, errors.Is(err, errors.NotFound))

	require.NoError(t, registerLocal(ctx, a, &out, outputText, service.RegisterRequest{Port: 8080, Agent: "a", Reason: "r"}))
	out.Reset()
	require.NoError(t, heartbeatLocal(ctx, a, &out, outputJSON, 8080, "a"))

	var r struct {
		Port          int     `json:"port"`
		LastHeartbeat *string `json:"lastHeartbeat"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &r))
	assert.Equal(t, 8080, r.Port)
	assert.NotNil(t, r.LastHeartbeat)
}

func TestValidateOutput(t *testing.T) {
	for _, f := range []string{outputText, outputJSON, outputYAML} {
		assert.NoError(t, validateOutput(f))
	}
	assert.Error(t, validateOutput("xml"))
}

func TestParseHook(t *testing.T) {
	h, err := parseHook("post-release")
	require.NoError(t, err)
	assert.Equal(t, "post-release", string(h))

	_, err = parseHook("pre-deploy")
	assert.Error(t, err)
}

func TestRemoteArgs(t *testing.T) {
	c := NewSuggestCmd()
	require.NoError(t, c.ParseFlags([]string{"--remote", "--min", "4000", "-o", "json"}))
	assert.Equal(t, []string{"suggest", "--output", "json", "--min", "4000"}, remoteArgs(c, nil))

	c = NewCheckCmd()
	require.NoError(t, c.ParseFlags([]string{"--remote"}))
	assert.Equal(t, []string{"check", "8080"}, remoteArgs(c, []string{"8080"}))
}

func TestNewProviderMatchesRunningPlatform(t *testing.T) {
	cfg := config.Default()
	p := newProvider(cfg, zap.NewNop())
	assert.Equal(t, netstate.PlatformFor(runtime.GOOS).Name, p.Platform().Name)
}
