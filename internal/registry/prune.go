package registry

import "time"

// Prune returns the registrations that have not expired at now, preserving order.
// A zero ExpiresAt never expires.
func Prune(registrations []Registration, now time.Time) []Registration {
	active := make([]Registration, 0, len(registrations))
	for _, r := range registrations {
		if r.ExpiresAt.IsZero() || r.ExpiresAt.After(now) {
			active = append(active, r)
		}
	}
	return active
}

// Dedupe keeps the first registration for each port, preserving order.
func Dedupe(registrations []Registration) []Registration {
	seen := make(map[int]bool, len(registrations))
	unique := make([]Registration, 0, len(registrations))
	for _, r := range registrations {
		if seen[r.Port] {
			continue
		}
		seen[r.Port] = true
		unique = append(unique, r)
	}
	return unique
}
