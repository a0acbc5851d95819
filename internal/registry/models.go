package registry

import (
	"fmt"
	"time"
)

// Registration represents a port lease held by an agent
type Registration struct {
	ID            string     `json:"id" yaml:"id"`
	Port          int        `json:"port" yaml:"port"`
	Agent         string     `json:"agent" yaml:"agent"`
	Reason        string     `json:"reason" yaml:"reason"`
	RegisteredAt  time.Time  `json:"registeredAt" yaml:"registeredAt"`
	ExpiresAt     time.Time  `json:"expiresAt" yaml:"expiresAt"`
	LastHeartbeat *time.Time `json:"lastHeartbeat,omitempty" yaml:"lastHeartbeat,omitempty"`
}

// newID derives the stable registration identifier from the port and creation time
func newID(port int, createdAt time.Time) string {
	return fmt.Sprintf("%d-%d", port, createdAt.UnixMilli())
}
