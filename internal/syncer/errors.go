package syncer

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ZebulonRouseFrantzich/starter/internal/integrity"
)

// CorruptDownloadError reports a download that did not hash to the manifest
// value. The target file is left untouched.
type CorruptDownloadError struct {
	Path     string
	URL      string
	Expected string
	Got      string
}

func (e *CorruptDownloadError) Error() string {
	return fmt.Sprintf("corrupt download for %s from %s: expected %s, got %s", e.Path, e.URL, e.Expected, e.Got)
}

// Unwrap returns integrity.ErrChecksumMismatch so callers can use errors.Is.
func (e *CorruptDownloadError) Unwrap() error { return integrity.ErrChecksumMismatch }

// FileSystemError reports a local filesystem failure while applying a change.
type FileSystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FileSystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileSystemError) Unwrap() error { return e.Err }

// PartialError collects the per-file failures of one Apply. Err is the
// errors.Join of every failure, so errors.As finds the individual errors.
type PartialError struct {
	Failed []string // sorted
	Total  int
	Err    error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("sync failed for %d of %d files (%s): %v",
		len(e.Failed), e.Total, strings.Join(e.Failed, ", "), e.Err)
}

func (e *PartialError) Unwrap() error { return e.Err }

func newPartialError(failures map[string]error, total int) *PartialError {
	paths := make([]string, 0, len(failures))
	for p := range failures {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	errs := make([]error, 0, len(paths))
	for _, p := range paths {
		errs = append(errs, failures[p])
	}
	return &PartialError{Failed: paths, Total: total, Err: errors.Join(errs...)}
}
