// Package transaction provides the single-instance lock and the sync
// journal: a record of an in-flight sync that lets the next start clean up
// after an interrupted run.
package transaction

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ZebulonRouseFrantzich/starter/internal/fsutil"
)

// State represents the current state of a journal path.
type State string

const (
	StatePending    State = "pending"
	StateInProgress State = "in_progress"
	StateStaged     State = "staged"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

const (
	journalPrefix = "journal-"
	journalSuffix = ".json"
)

// Journal records one sync run.
type Journal struct {
	Version int         `json:"version"` // Schema version for future evolution
	ID      string      `json:"id"`      // UUID for unique identification
	Release string      `json:"release"` // manifest version being installed
	Started time.Time   `json:"started"`
	Paths   []PathEntry `json:"paths"`

	mu  sync.Mutex
	dir string
}

// PathEntry is the journal state for a single path.
type PathEntry struct {
	Path      string `json:"path"`
	Action    string `json:"action"`
	State     State  `json:"state"`
	Temp      string `json:"temp,omitempty"` // staging file, absolute
	LastError string `json:"last_error,omitempty"`
}

// NewJournal creates a journal in dir for the given paths, all pending.
func NewJournal(dir, release string, paths []PathEntry) *Journal {
	entries := make([]PathEntry, len(paths))
	copy(entries, paths)
	for i := range entries {
		entries[i].State = StatePending
	}

	return &Journal{
		Version: 1,
		ID:      uuid.New().String(),
		Release: release,
		Started: time.Now().UTC(),
		Paths:   entries,
		dir:     dir,
	}
}

// FileName returns the journal's file name.
func (j *Journal) FileName() string {
	return journalPrefix + j.ID + journalSuffix
}

// Save writes the journal to disk atomically.
func (j *Journal) Save() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.saveLocked()
}

func (j *Journal) saveLocked() error {
	if err := os.MkdirAll(j.dir, 0o700); err != nil {
		return fmt.Errorf("create journal directory: %w", err)
	}

	data, err := json.MarshalIndent(j, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal journal: %w", err)
	}

	if err := fsutil.WriteFile(filepath.Join(j.dir, j.FileName()), data, 0o600); err != nil {
		return fmt.Errorf("write journal: %w", err)
	}
	return nil
}

// Update sets the state of path in memory. Call Save to persist it. Safe
// for concurrent use.
func (j *Journal) Update(path string, state State, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	for i := range j.Paths {
		if j.Paths[i].Path == path {
			j.Paths[i].State = state
			if err != nil {
				j.Paths[i].LastError = err.Error()
			} else {
				j.Paths[i].LastError = ""
			}
			return
		}
	}
}

// Snapshot returns a copy of the path entries.
func (j *Journal) Snapshot() []PathEntry {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]PathEntry, len(j.Paths))
	copy(out, j.Paths)
	return out
}

// Completed reports whether every path completed.
func (j *Journal) Completed() bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	for _, p := range j.Paths {
		if p.State != StateCompleted {
			return false
		}
	}
	return true
}

// Remove deletes the journal file.
func (j *Journal) Remove() error {
	err := os.Remove(filepath.Join(j.dir, j.FileName()))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove journal: %w", err)
	}
	return nil
}

// Load reads a journal from disk.
func Load(path string) (*Journal, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read journal file: %w", err)
	}

	var j Journal
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("unmarshal journal: %w", err)
	}
	j.dir = filepath.Dir(path)
	return &j, nil
}

// LoadAll returns every journal left in dir, oldest first. Unreadable
// journal files are returned as paths in the second result.
func LoadAll(dir string) ([]*Journal, []string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read journal directory: %w", err)
	}

	var journals []*Journal
	var broken []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, journalPrefix) || !strings.HasSuffix(name, journalSuffix) {
			continue
		}
		path := filepath.Join(dir, name)
		j, err := Load(path)
		if err != nil {
			broken = append(broken, path)
			continue
		}
		journals = append(journals, j)
	}

	sort.Slice(journals, func(a, b int) bool {
		return journals[a].Started.Before(journals[b].Started)
	})
	return journals, broken, nil
}

// Recover removes the staging files recorded by leftover journals, then the
// journals themselves and any journal write that was interrupted. Temp paths
// outside root are ignored. It returns the journals it cleaned up.
func Recover(dir, root string) ([]*Journal, error) {
	journals, broken, err := LoadAll(dir)
	if err != nil {
		return nil, err
	}

	var errs []error
	for _, j := range journals {
		for _, p := range j.Paths {
			if p.Temp == "" || !within(root, p.Temp) {
				continue
			}
			if err := os.Remove(p.Temp); err != nil && !os.IsNotExist(err) {
				errs = append(errs, fmt.Errorf("remove staging file %s: %w", p.Temp, err))
			}
		}
		if err := j.Remove(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, path := range broken {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("remove broken journal: %w", err))
		}
	}

	if _, err := fsutil.RemoveStale(dir, journalPrefix+"*"+journalSuffix); err != nil {
		errs = append(errs, err)
	}

	return journals, errors.Join(errs...)
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
