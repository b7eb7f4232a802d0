package model

import "time"

type WatcherState string

const (
	StateStarting    WatcherState = "STARTING"
	StateReconciling WatcherState = "RECONCILING"
	StateWatching    WatcherState = "WATCHING"
	StateStopped     WatcherState = "STOPPED"
)

type PairSnapshot struct {
	Source    string       `json:"source"`
	Target    string       `json:"target"`
	State     WatcherState `json:"state"`
	StartedAt time.Time    `json:"started_at"`
	Synced    int          `json:"synced"`
	Failed    int          `json:"failed"`
	LastSync  *time.Time   `json:"last_sync"`
	LastError string       `json:"last_error,omitempty"`
}
