package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPrune_RemovesExpired(t *testing.T) {
	now := time.Date(2026, 1, 2, 15, 0, 0, 0, time.UTC)
	regs := []Registration{
		{Port: 3000, ExpiresAt: now.Add(time.Minute)},
		{Port: 3001, ExpiresAt: now.Add(-time.Minute)},
		{Port: 3002, ExpiresAt: now},
		{Port: 3003},
	}

	active := Prune(regs, now)

	// Expiry at exactly now is expired; a zero expiry never is.
	assert.Equal(t, []Registration{regs[0], regs[3]}, active)
}

func TestPrune_Idempotent(t *testing.T) {
	now := time.Date(2026, 1, 2, 15, 0, 0, 0, time.UTC)
	regs := []Registration{
		{Port: 3000, ExpiresAt: now.Add(-time.Second)},
		{Port: 3001, ExpiresAt: now.Add(time.Second)},
		{Port: 3002, ExpiresAt: now.Add(time.Hour)},
	}

	once := Prune(regs, now)
	twice := Prune(once, now)

	assert.Equal(t, once, twice)
	assert.Len(t, twice, 2)
}

func TestPrune_Empty(t *testing.T) {
	assert.Empty(t, Prune(nil, time.Now()))
}

func TestDedupe_KeepsFirstPerPort(t *testing.T) {
	regs := []Registration{
		{Port: 8080, Agent: "a"},
		{Port: 3000, Agent: "c"},
		{Port: 8080, Agent: "b"},
	}

	assert.Equal(t, []Registration{regs[0], regs[1]}, Dedupe(regs))
	assert.Empty(t, Dedupe(nil))
}
