package syncer

import (
	"mirrord/internal/model"
)

// EventSource is a subscription to the changes of one source tree.
// Events is closed once the subscription ends.
type EventSource interface {
	Events() <-chan model.FileEvent
	Start() error
	Stop()
}

type Syncer interface {
	FullSync() ([]model.SyncResult, error)
	Handle(event model.FileEvent) []model.SyncResult
}
