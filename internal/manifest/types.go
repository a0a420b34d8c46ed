package manifest

import (
	"fmt"
	"os"
	"strconv"
)

// Manifest is the remote description of a release.
type Manifest struct {
	Version  string          `json:"version" yaml:"version"`
	Entries  []Entry         `json:"files" yaml:"files"`
	Launcher []LauncherBuild `json:"launcher,omitempty" yaml:"launcher,omitempty"`
}

// Entry is one file the release expects on disk.
type Entry struct {
	Path       string `json:"path" yaml:"path"`
	Hash       string `json:"hash" yaml:"hash"`
	ContentURL string `json:"content_url" yaml:"content_url"`
	Size       int64  `json:"size,omitempty" yaml:"size,omitempty"`
	Mode       string `json:"mode,omitempty" yaml:"mode,omitempty"` // octal, e.g. "0755"
}

// LauncherBuild is a published launcher binary for one platform.
type LauncherBuild struct {
	OS      string `json:"os" yaml:"os"`
	Arch    string `json:"arch" yaml:"arch"`
	Version string `json:"version" yaml:"version"`
	URL     string `json:"url" yaml:"url"`
	Hash    string `json:"hash" yaml:"hash"`
}

// DefaultFileMode is used for entries without a mode.
const DefaultFileMode os.FileMode = 0o644

// FileMode returns the permission bits for the entry.
func (e Entry) FileMode() (os.FileMode, error) {
	if e.Mode == "" {
		return DefaultFileMode, nil
	}
	bits, err := strconv.ParseUint(e.Mode, 8, 32)
	if err != nil || bits > 0o777 {
		return 0, fmt.Errorf("invalid mode %q", e.Mode)
	}
	return os.FileMode(bits), nil
}

// Lookup returns the entry for path.
func (m *Manifest) Lookup(path string) (Entry, bool) {
	for _, e := range m.Entries {
		if e.Path == path {
			return e, true
		}
	}
	return Entry{}, false
}

// Paths returns the set of paths the manifest references.
func (m *Manifest) Paths() map[string]bool {
	paths := make(map[string]bool, len(m.Entries))
	for _, e := range m.Entries {
		paths[e.Path] = true
	}
	return paths
}

// LauncherFor returns the launcher build published for goos/goarch, if any.
func (m *Manifest) LauncherFor(goos, goarch string) (LauncherBuild, bool) {
	for _, b := range m.Launcher {
		if b.OS == goos && b.Arch == goarch {
			return b, true
		}
	}
	return LauncherBuild{}, false
}
