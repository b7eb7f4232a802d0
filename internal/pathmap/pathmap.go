// Package pathmap translates paths inside a source tree into the matching
// paths inside its mirror.
package pathmap

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned when a path does not lie under the source root.
// Paths reported by a watch on the source root never trigger it.
var ErrOutsideRoot = errors.New("path is outside the source root")

type Mapper struct {
	source string
	target string
}

func New(source, target string) *Mapper {
	return &Mapper{
		source: filepath.Clean(source),
		target: filepath.Clean(target),
	}
}

func (m *Mapper) Source() string {
	return m.source
}

func (m *Mapper) Target() string {
	return m.target
}

// Rel returns the path of p relative to the source root.
func (m *Mapper) Rel(p string) (string, error) {
	rel, err := filepath.Rel(m.source, filepath.Clean(p))
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrOutsideRoot, p, err)
	}

	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, p)
	}

	return rel, nil
}

// ToTarget maps a source path onto the target tree.
func (m *Mapper) ToTarget(p string) (string, error) {
	rel, err := m.Rel(p)
	if err != nil {
		return "", err
	}

	return filepath.Join(m.target, rel), nil
}
