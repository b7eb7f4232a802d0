package pipeline

import (
	"mirrord/internal/model"
	"path/filepath"
	"strings"
)

// Filter drops events for paths under root that match ignoreList. A rename
// that crosses the ignore boundary becomes a create or a remove of the side
// that is mirrored.
func Filter(inCh <-chan model.FileEvent, root string, ignoreList []string) <-chan model.FileEvent {
	outCh := make(chan model.FileEvent, cap(inCh))

	go func() {
		defer close(outCh)

		for event := range inCh {
			if event, ok := filterEvent(event, root, ignoreList); ok {
				outCh <- event
			}
		}
	}()

	return outCh
}

func filterEvent(event model.FileEvent, root string, ignoreList []string) (model.FileEvent, bool) {
	if len(ignoreList) == 0 || event.Type == model.EventError {
		return event, true
	}

	if event.Type != model.EventRename {
		return event, !Ignored(relative(root, event.Path), ignoreList)
	}

	oldIgnored := Ignored(relative(root, event.OldPath), ignoreList)
	newIgnored := Ignored(relative(root, event.Path), ignoreList)

	switch {
	case oldIgnored && newIgnored:
		return event, false
	case oldIgnored:
		event.Type = model.EventCreate
		event.OldPath = ""
	case newIgnored:
		event.Type = model.EventRemove
		event.Path = event.OldPath
		event.OldPath = ""
	}

	return event, true
}

// Ignored reports whether any component of path matches one of the patterns.
func Ignored(path string, ignoreList []string) bool {
	parts := strings.Split(filepath.ToSlash(path), "/")

	for _, part := range parts {
		for _, pattern := range ignoreList {
			matched, err := filepath.Match(pattern, part)
			if err == nil && matched {
				return true
			}
		}
	}

	return false
}

func relative(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}

	return rel
}
