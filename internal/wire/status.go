// Package wire builds the JSON records the visualization client consumes.
// Field names and shapes here are part of the client protocol.
package wire

import "github.com/NNTin/d-cogs/internal/platform"

// Status is the canonical presence vocabulary understood by the client.
type Status string

const (
	StatusOnline  Status = "online"
	StatusIdle    Status = "idle"
	StatusDnd     Status = "dnd"
	StatusOffline Status = "offline"
)

// CanonicalStatus maps a raw platform status onto the client vocabulary.
// Invisible members and statuses outside the table read as offline.
func CanonicalStatus(raw platform.Status) Status {
	switch raw {
	case platform.StatusOnline:
		return StatusOnline
	case platform.StatusIdle:
		return StatusIdle
	case platform.StatusDnd:
		return StatusDnd
	case platform.StatusOffline, platform.StatusInvisible:
		return StatusOffline
	default:
		return StatusOffline
	}
}
