package model

import "time"

type EventType string

// The set of event types is closed: every switch over EventType handles all
// six values and treats anything else as a fault.
const (
	EventCreate EventType = "CREATE"
	EventWrite  EventType = "WRITE"
	EventChmod  EventType = "CHMOD"
	EventRemove EventType = "REMOVE"
	EventRename EventType = "RENAME"
	EventError  EventType = "ERROR"
)

// FileEvent is a single change reported for a source tree.
// For EventRename, OldPath is the previous location and Path the new one.
// For EventError, Err carries the watch failure and Path may be empty.
type FileEvent struct {
	Type      EventType
	Path      string
	OldPath   string
	Err       error
	Timestamp time.Time
}
