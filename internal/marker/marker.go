// Package marker persists the VersionMarker: the version and per-file hashes
// of the last fully successful sync.
//
// The marker is only ever replaced whole, by write-then-rename. A reader
// sees either the previous marker or the new one, never a mix.
package marker

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/ZebulonRouseFrantzich/starter/internal/fsutil"
)

// VersionMarker records what the last successful sync installed.
type VersionMarker struct {
	Version string            `json:"version"`
	Files   map[string]string `json:"files"` // relative path => content hash
}

// Empty returns a marker for a root that has never been synced.
func Empty() *VersionMarker {
	return &VersionMarker{Files: map[string]string{}}
}

// IsEmpty reports whether the marker records no sync.
func (m *VersionMarker) IsEmpty() bool {
	return m.Version == "" && len(m.Files) == 0
}

// Clone returns a deep copy.
func (m *VersionMarker) Clone() *VersionMarker {
	c := &VersionMarker{Version: m.Version, Files: make(map[string]string, len(m.Files))}
	for p, h := range m.Files {
		c.Files[p] = h
	}
	return c
}

// Paths returns the tracked paths in sorted order.
func (m *VersionMarker) Paths() []string {
	paths := make([]string, 0, len(m.Files))
	for p := range m.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Store reads and writes the marker file at Path.
type Store struct {
	Path string
}

// NewStore returns a store for the marker file at path.
func NewStore(path string) *Store {
	return &Store{Path: path}
}

// Load reads the marker. A missing file yields an empty marker.
func (s *Store) Load() (*VersionMarker, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return Empty(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read version marker: %w", err)
	}

	var m VersionMarker
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal version marker %s: %w", s.Path, err)
	}
	if m.Files == nil {
		m.Files = map[string]string{}
	}
	return &m, nil
}

// Save replaces the marker atomically.
func (s *Store) Save(m *VersionMarker) error {
	if m.Files == nil {
		m = &VersionMarker{Version: m.Version, Files: map[string]string{}}
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal version marker: %w", err)
	}
	data = append(data, '\n')

	if err := fsutil.WriteFile(s.Path, data, 0o644); err != nil {
		return fmt.Errorf("write version marker: %w", err)
	}
	return nil
}
