package syncer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ZebulonRouseFrantzich/starter/internal/fsutil"
	"github.com/ZebulonRouseFrantzich/starter/internal/integrity"
	"github.com/ZebulonRouseFrantzich/starter/internal/logging"
	"github.com/ZebulonRouseFrantzich/starter/internal/marker"
	"github.com/ZebulonRouseFrantzich/starter/internal/transaction"
)

const (
	// StateDirName is the launcher's state directory under the root.
	StateDirName = ".starter"
	// StagingDirName is the staging directory under the state directory.
	StagingDirName = "staging"
	// DefaultWorkers is the default download concurrency.
	DefaultWorkers = 4
)

// Downloader fetches a URL into a local file. *manifest.Client satisfies it.
type Downloader interface {
	DownloadToFile(ctx context.Context, url, destPath string) error
}

// Options configures a Synchronizer.
type Options struct {
	Root       string
	Workers    int
	Downloader Downloader
	Logger     logging.Logger
	// Reserved lists root-relative paths the manifest may not claim, such as
	// the marker file and the config file.
	Reserved []string
}

// Synchronizer plans and applies changes under one root.
type Synchronizer struct {
	root       string
	workers    int
	downloader Downloader
	logger     logging.Logger
	reserved   []string
}

// New creates a new synchronizer
func New(opts Options) *Synchronizer {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	return &Synchronizer{
		root:       opts.Root,
		workers:    opts.Workers,
		downloader: opts.Downloader,
		logger:     logging.OrNop(opts.Logger),
		reserved:   opts.Reserved,
	}
}

// StateDir returns the launcher state directory.
func (s *Synchronizer) StateDir() string {
	return filepath.Join(s.root, StateDirName)
}

// StagingDir returns the staging directory.
func (s *Synchronizer) StagingDir() string {
	return filepath.Join(s.root, StateDirName, StagingDirName)
}

// Cleanup removes what an interrupted run left behind: the staging files
// recorded in leftover journals, the journals, anything else in the staging
// directory, and temporary files of interrupted writes to reserved files
// such as the version marker.
func (s *Synchronizer) Cleanup() error {
	recovered, err := transaction.Recover(s.StateDir(), s.root)
	for _, j := range recovered {
		s.logger.Warn("cleaned up interrupted sync", "id", j.ID, "release", j.Release, "started", j.Started)
	}
	if err != nil {
		return fmt.Errorf("recover journals: %w", err)
	}

	for _, r := range s.reserved {
		target := s.abs(r)
		removed, err := fsutil.RemoveStale(filepath.Dir(target), filepath.Base(target))
		for _, p := range removed {
			s.logger.Debug("removed stale temp file", "path", p)
		}
		if err != nil {
			return &FileSystemError{Op: "remove", Path: target, Err: err}
		}
	}

	entries, err := os.ReadDir(s.StagingDir())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return &FileSystemError{Op: "read", Path: s.StagingDir(), Err: err}
	}
	for _, e := range entries {
		p := filepath.Join(s.StagingDir(), e.Name())
		if err := os.RemoveAll(p); err != nil {
			return &FileSystemError{Op: "remove", Path: p, Err: err}
		}
		s.logger.Debug("removed stale staging file", "path", p)
	}
	return nil
}

// Apply executes plan in two phases. Every add and update is first
// downloaded into staging and verified; if any of them fails, the root is
// left untouched. Then removals that stand in the way of a new path run,
// staged files are renamed into place, and the remaining removals run once
// every rename succeeded.
//
// On success it returns the marker describing the root; the caller persists
// it. On any failure it returns nil and an error: a *PartialError for
// per-file failures, a *FileSystemError when staging cannot be prepared, or
// the context error. Files renamed before a later failure stay in place;
// they verified against the manifest.
func (s *Synchronizer) Apply(ctx context.Context, plan *Plan) (*marker.VersionMarker, error) {
	if plan.Empty() {
		return plan.Target(), nil
	}

	if err := os.MkdirAll(s.StagingDir(), 0o755); err != nil {
		return nil, &FileSystemError{Op: "create", Path: s.StagingDir(), Err: err}
	}

	journal := s.newJournal(plan)
	if err := journal.Save(); err != nil {
		return nil, &FileSystemError{Op: "write", Path: s.StateDir(), Err: err}
	}
	defer func() {
		if err := journal.Remove(); err != nil {
			s.logger.Warn("failed to remove journal", "err", err)
		}
	}()

	temps := make(map[string]string, len(plan.Changes))
	for _, p := range journal.Snapshot() {
		temps[p.Path] = p.Temp
	}
	defer func() {
		for _, temp := range temps {
			os.Remove(temp) // no-op once renamed
		}
	}()

	var writes, removals []Change
	for _, c := range plan.Changes {
		if c.Action == ActionRemove {
			removals = append(removals, c)
		} else {
			writes = append(writes, c)
		}
	}

	failures := s.stage(ctx, journal, writes, temps)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.checkpoint(journal)
	if len(failures) > 0 {
		if len(removals) > 0 {
			s.logger.Warn("skipping removals after failed downloads", "count", len(removals))
		}
		return nil, newPartialError(failures, len(plan.Changes))
	}

	blocking, deferred := splitBlocking(removals, writes)
	for _, c := range blocking {
		if err := s.removeChange(journal, c); err != nil {
			failures[c.Path] = err
		}
	}

	for _, c := range writes {
		if err := s.commit(c, temps[c.Path]); err != nil {
			journal.Update(c.Path, transaction.StateFailed, err)
			failures[c.Path] = err
			continue
		}
		journal.Update(c.Path, transaction.StateCompleted, nil)
		s.logger.Info("synced file", "path", c.Path, "action", string(c.Action))
	}

	if len(failures) == 0 {
		// Only now does the new marker validly omit these paths.
		for _, c := range deferred {
			if err := s.removeChange(journal, c); err != nil {
				failures[c.Path] = err
			}
		}
	} else if len(deferred) > 0 {
		s.logger.Warn("skipping removals after failed writes", "count", len(deferred))
	}
	s.checkpoint(journal)

	if len(failures) > 0 {
		return nil, newPartialError(failures, len(plan.Changes))
	}
	return plan.Target(), nil
}

// stage downloads and verifies writes into their staging files with at most
// s.workers downloads in flight. It returns the failures by path.
func (s *Synchronizer) stage(ctx context.Context, journal *transaction.Journal, writes []Change, temps map[string]string) map[string]error {
	var (
		mu       sync.Mutex
		failures = map[string]error{}
	)

	g := new(errgroup.Group)
	g.SetLimit(s.workers)
	for _, c := range writes {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				mu.Lock()
				failures[c.Path] = err
				mu.Unlock()
				return nil
			}
			journal.Update(c.Path, transaction.StateInProgress, nil)
			if err := s.fetch(ctx, c, temps[c.Path]); err != nil {
				journal.Update(c.Path, transaction.StateFailed, err)
				mu.Lock()
				failures[c.Path] = err
				mu.Unlock()
				return nil
			}
			journal.Update(c.Path, transaction.StateStaged, nil)
			return nil
		})
	}
	_ = g.Wait()

	return failures
}

// splitBlocking separates removals whose path is an ancestor or a
// descendant of a path being written from the rest. Those have to go before
// the write can land.
func splitBlocking(removals, writes []Change) (blocking, deferred []Change) {
	for _, r := range removals {
		blocks := false
		for _, w := range writes {
			if strings.HasPrefix(w.Path, r.Path+"/") || strings.HasPrefix(r.Path, w.Path+"/") {
				blocks = true
				break
			}
		}
		if blocks {
			blocking = append(blocking, r)
		} else {
			deferred = append(deferred, r)
		}
	}
	return blocking, deferred
}

func (s *Synchronizer) removeChange(journal *transaction.Journal, c Change) error {
	journal.Update(c.Path, transaction.StateInProgress, nil)
	if err := s.remove(c.Path); err != nil {
		journal.Update(c.Path, transaction.StateFailed, err)
		return err
	}
	journal.Update(c.Path, transaction.StateCompleted, nil)
	s.logger.Info("removed file", "path", c.Path)
	return nil
}

func (s *Synchronizer) newJournal(plan *Plan) *transaction.Journal {
	entries := make([]transaction.PathEntry, 0, len(plan.Changes))
	for i, c := range plan.Changes {
		entry := transaction.PathEntry{Path: c.Path, Action: string(c.Action)}
		if c.Action != ActionRemove {
			entry.Temp = filepath.Join(s.StagingDir(), fmt.Sprintf("%04d-%s", i, filepath.Base(c.Path)))
		}
		entries = append(entries, entry)
	}
	return transaction.NewJournal(s.StateDir(), plan.Version, entries)
}

// checkpoint persists the journal between phases.
func (s *Synchronizer) checkpoint(j *transaction.Journal) {
	if err := j.Save(); err != nil {
		s.logger.Warn("failed to update journal", "err", err)
	}
}

// fetch downloads c into temp, verifies it and applies its mode.
func (s *Synchronizer) fetch(ctx context.Context, c Change, temp string) error {
	if err := s.downloader.DownloadToFile(ctx, c.Entry.ContentURL, temp); err != nil {
		return fmt.Errorf("download %s: %w", c.Path, err)
	}

	if err := integrity.VerifyFile(temp, c.Entry.Hash); err != nil {
		var ce *integrity.ChecksumError
		switch {
		case errors.As(err, &ce):
			return &CorruptDownloadError{Path: c.Path, URL: c.Entry.ContentURL, Expected: ce.Expected, Got: ce.Got}
		case errors.Is(err, integrity.ErrInvalidHash):
			return fmt.Errorf("verify %s: %w", c.Path, err)
		default:
			return &FileSystemError{Op: "hash", Path: temp, Err: err}
		}
	}

	mode, err := c.Entry.FileMode()
	if err != nil {
		return fmt.Errorf("mode for %s: %w", c.Path, err)
	}
	if err := os.Chmod(temp, mode); err != nil {
		return &FileSystemError{Op: "chmod", Path: temp, Err: err}
	}
	return nil
}

// commit renames a staged file over its target.
func (s *Synchronizer) commit(c Change, temp string) error {
	target := s.abs(c.Path)
	if info, err := os.Lstat(target); err == nil && info.IsDir() {
		return &FileSystemError{Op: "replace", Path: target, Err: errors.New("target is a directory")}
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return &FileSystemError{Op: "create", Path: filepath.Dir(target), Err: err}
	}
	if err := os.Rename(temp, target); err != nil {
		return &FileSystemError{Op: "rename", Path: target, Err: err}
	}
	if err := fsutil.SyncDir(filepath.Dir(target)); err != nil {
		return &FileSystemError{Op: "sync", Path: filepath.Dir(target), Err: err}
	}
	return nil
}

// remove deletes a tracked file and prunes parent directories it leaves
// empty, stopping at the root.
func (s *Synchronizer) remove(p string) error {
	target := s.abs(p)
	info, err := os.Lstat(target)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return &FileSystemError{Op: "stat", Path: target, Err: err}
	}
	if info.IsDir() {
		return &FileSystemError{Op: "remove", Path: target, Err: errors.New("tracked path is a directory")}
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &FileSystemError{Op: "remove", Path: target, Err: err}
	}

	root := filepath.Clean(s.root)
	for dir := filepath.Dir(target); dir != root && len(dir) > len(root); dir = filepath.Dir(dir) {
		if os.Remove(dir) != nil {
			break // not empty
		}
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
