package allocator

import (
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatjpcsguy/portlease/internal/netstate"
	"github.com/thatjpcsguy/portlease/internal/registry"
)

func registered(ports ...int) []registry.Registration {
	now := time.Now()
	out := make([]registry.Registration, 0, len(ports))
	for _, p := range ports {
		out = append(out, registry.Registration{Port: p, Agent: "a", Reason: "r", RegisteredAt: now, ExpiresAt: now.Add(time.Hour)})
	}
	return out
}

func bound(ports ...int) netstate.Snapshot {
	bindings := make(map[int]netstate.SocketBinding, len(ports))
	for _, p := range ports {
		bindings[p] = netstate.SocketBinding{Port: p, PID: 1, Protocol: netstate.TCP, State: netstate.StateListen}
	}
	return netstate.Snapshot{Bindings: bindings, Names: map[int]string{}}
}

func TestSuggest_SkipsRegistered(t *testing.T) {
	s, err := Suggest(5000, 5002, registered(5000), bound())
	require.NoError(t, err)
	assert.Equal(t, 5001, s.Port)
	assert.True(t, s.OSChecked)
}

func TestSuggest_Exhausted(t *testing.T) {
	_, err := Suggest(5000, 5002, registered(5000, 5001), bound(5002))
	assert.True(t, errors.Is(err, errors.NotFound), "got %v", err)
}

func TestSuggest_SkipsOSBound(t *testing.T) {
	s, err := Suggest(5000, 5010, registered(5001), bound(5000, 5002))
	require.NoError(t, err)
	assert.Equal(t, 5003, s.Port)
}

func TestSuggest_LowestFirst(t *testing.T) {
	s, err := Suggest(5000, 6000, nil, bound())
	require.NoError(t, err)
	assert.Equal(t, 5000, s.Port)

	s, err = Suggest(7000, 7000, nil, bound())
	require.NoError(t, err)
	assert.Equal(t, 7000, s.Port)
}

func TestSuggest_ScanUnavailableUsesRegistrations(t *testing.T) {
	snap := netstate.Snapshot{Err: netstate.ErrScanUnavailable}
	s, err := Suggest(5000, 5002, registered(5000), snap)
	require.NoError(t, err)
	assert.Equal(t, 5001, s.Port)
	assert.False(t, s.OSChecked)
}

func TestValidateRange(t *testing.T) {
	assert.NoError(t, ValidateRange(1, 65535))
	for _, r := range [][2]int{{0, 10}, {10, 65536}, {6000, 5000}} {
		err := ValidateRange(r[0], r[1])
		assert.True(t, errors.Is(err, errors.NotValid), "%v: %v", r, err)
	}
}
