package config

import (
	"github.com/chainwatch-io/chainwatch/internal/models"
)

// Snapshot is one immutable view of the full configuration. Services hold a
// snapshot for the duration of a tick; hot reload publishes a new snapshot
// without touching old ones, so no reader ever sees a half-updated set.
type Snapshot struct {
	Networks map[string]models.Network
	Monitors map[string]models.Monitor
	Triggers map[string]models.Trigger
}

// MonitorsForNetwork returns the active (unpaused) monitors that reference
// the network slug.
func (s *Snapshot) MonitorsForNetwork(slug string) []models.Monitor {
	var out []models.Monitor
	for _, m := range s.Monitors {
		if m.Paused {
			continue
		}
		for _, n := range m.Networks {
			if n == slug {
				out = append(out, m)
				break
			}
		}
	}
	return out
}

// ActiveNetworks returns the networks referenced by at least one unpaused
// monitor.
func (s *Snapshot) ActiveNetworks() []models.Network {
	var out []models.Network
	for slug, n := range s.Networks {
		if len(s.MonitorsForNetwork(slug)) > 0 {
			out = append(out, n)
		}
	}
	return out
}
