package pipeline

import (
	"mirrord/internal/model"
	"sort"
	"time"
)

// Debounce coalesces the events of each path over window: the merged event
// for a path is emitted once no new event for it arrived for window.
//
// It also pairs renames. The watcher reports a move as a rename of the old
// path with an empty Path, immediately followed by a create of the new path.
// Such a pair is emitted at once as a single rename with OldPath set. A move
// without a following create left the tree and is emitted as a remove of the
// old path when its window closes. Watch errors are never delayed.
//
// With window <= 0 events pass through, and every unpaired rename becomes a
// remove.
func Debounce(inCh <-chan model.FileEvent, window time.Duration) <-chan model.FileEvent {
	outCh := make(chan model.FileEvent, cap(inCh))

	go func() {
		defer close(outCh)

		d := newDebouncer(window)
		timer := time.NewTimer(time.Hour)
		timer.Stop()
		defer timer.Stop()

		for {
			var timerCh <-chan time.Time
			if next, ok := d.nextDeadline(); ok {
				timer.Reset(time.Until(next))
				timerCh = timer.C
			}

			select {
			case event, ok := <-inCh:
				if !ok {
					for _, e := range d.drain() {
						outCh <- e
					}
					return
				}

				for _, e := range d.add(event, time.Now()) {
					outCh <- e
				}

			case now := <-timerCh:
				for _, e := range d.flush(now) {
					outCh <- e
				}
			}
		}
	}()

	return outCh
}

type pendingEvent struct {
	event    model.FileEvent
	deadline time.Time
	seq      uint64
}

type debouncer struct {
	window  time.Duration
	pending map[string]*pendingEvent
	seq     uint64

	// old path of a rename that the next event may complete
	lastRename string
}

func newDebouncer(window time.Duration) *debouncer {
	return &debouncer{
		window:  window,
		pending: make(map[string]*pendingEvent),
	}
}

func (d *debouncer) add(event model.FileEvent, now time.Time) []model.FileEvent {
	if event.Type == model.EventError {
		return []model.FileEvent{event}
	}

	movedAway := event.Type == model.EventRename && event.Path == ""

	if d.window <= 0 {
		if movedAway {
			return []model.FileEvent{removed(event)}
		}
		return []model.FileEvent{event}
	}

	lastRename := d.lastRename
	d.lastRename = ""

	switch {
	case movedAway:
		delete(d.pending, event.OldPath)
		d.schedule(event.OldPath, removed(event), now)
		d.lastRename = event.OldPath
		return nil

	case event.Type == model.EventCreate && lastRename != "":
		delete(d.pending, lastRename)
		delete(d.pending, event.Path)
		event.Type = model.EventRename
		event.OldPath = lastRename
		return []model.FileEvent{event}

	case event.Type == model.EventRename:
		// already paired upstream
		delete(d.pending, event.OldPath)
		delete(d.pending, event.Path)
		return []model.FileEvent{event}

	default:
		d.schedule(event.Path, event, now)
		return nil
	}
}

func (d *debouncer) schedule(path string, event model.FileEvent, now time.Time) {
	if prev, ok := d.pending[path]; ok {
		event.Type = merge(prev.event.Type, event.Type)
	}

	d.seq++
	d.pending[path] = &pendingEvent{
		event:    event,
		deadline: now.Add(d.window),
		seq:      d.seq,
	}
}

// flush returns, in deadline order, every event whose window has closed.
func (d *debouncer) flush(now time.Time) []model.FileEvent {
	var due []*pendingEvent
	for path, p := range d.pending {
		if p.deadline.After(now) {
			continue
		}
		due = append(due, p)
		delete(d.pending, path)
		if path == d.lastRename {
			d.lastRename = ""
		}
	}

	return sorted(due)
}

func (d *debouncer) drain() []model.FileEvent {
	due := make([]*pendingEvent, 0, len(d.pending))
	for _, p := range d.pending {
		due = append(due, p)
	}
	d.pending = make(map[string]*pendingEvent)
	d.lastRename = ""

	return sorted(due)
}

func (d *debouncer) nextDeadline() (time.Time, bool) {
	var next time.Time
	found := false
	for _, p := range d.pending {
		if !found || p.deadline.Before(next) {
			next = p.deadline
			found = true
		}
	}

	return next, found
}

func sorted(due []*pendingEvent) []model.FileEvent {
	sort.Slice(due, func(i, j int) bool {
		if due[i].deadline.Equal(due[j].deadline) {
			return due[i].seq < due[j].seq
		}
		return due[i].deadline.Before(due[j].deadline)
	})

	events := make([]model.FileEvent, len(due))
	for i, p := range due {
		events[i] = p.event
	}

	return events
}

// merge folds two successive event types for one path into the one that
// brings the target to the latest state.
func merge(prev, next model.EventType) model.EventType {
	switch {
	case next == model.EventRemove:
		return model.EventRemove
	case prev == model.EventCreate || prev == model.EventRemove || next == model.EventCreate:
		return model.EventCreate
	case prev == model.EventWrite || next == model.EventWrite:
		return model.EventWrite
	default:
		return model.EventChmod
	}
}

func removed(event model.FileEvent) model.FileEvent {
	return model.FileEvent{
		Type:      model.EventRemove,
		Path:      event.OldPath,
		Timestamp: event.Timestamp,
	}
}
