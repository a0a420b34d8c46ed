package transaction

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

const (
	// LockFileName is the lock file created in the state directory.
	LockFileName = "starter.lock"
	// StaleLockThreshold is the maximum age of a lock before it's considered
	// stale even when its owner appears to be alive (pid reuse).
	StaleLockThreshold = 30 * time.Minute
)

var (
	ErrLockExists = errors.New("launcher lock exists: another instance may be updating this directory")
	ErrStaleLock  = errors.New("stale lock detected")
)

// Lock represents the single-instance lock for a root directory.
type Lock struct {
	path string
	file *os.File
}

// AcquireLock attempts to acquire an exclusive lock in dir.
// Uses O_CREATE|O_EXCL for atomic lock creation. A lock whose owner process
// is gone, or which is older than StaleLockThreshold, is replaced once.
func AcquireLock(ctx context.Context, dir string) (*Lock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	lockPath := filepath.Join(dir, LockFileName)

	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if err != nil {
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create lock file: %w", err)
		}
		if stale, _ := isLockStale(ctx, lockPath); !stale {
			return nil, ErrLockExists
		}
		// Remove stale lock and retry once
		os.Remove(lockPath)
		file, err = os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
		if err != nil {
			return nil, ErrLockExists
		}
	}

	lockData := fmt.Sprintf("pid=%d\ntimestamp=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	if _, err := file.WriteString(lockData); err != nil {
		file.Close()
		os.Remove(lockPath)
		return nil, fmt.Errorf("write lock data: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(lockPath)
		return nil, fmt.Errorf("sync lock file: %w", err)
	}

	return &Lock{
		path: lockPath,
		file: file,
	}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Release releases the lock. Calling it more than once is a no-op.
func (l *Lock) Release() error {
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}

	if l.path != "" {
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove lock file: %w", err)
		}
		l.path = ""
	}

	return nil
}

// LockOwner is the metadata stored in a lock file.
type LockOwner struct {
	PID       int32
	Timestamp time.Time
}

// ReadLockOwner parses the lock file at path.
func ReadLockOwner(path string) (LockOwner, error) {
	f, err := os.Open(path)
	if err != nil {
		return LockOwner{}, err
	}
	defer f.Close()

	var owner LockOwner
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			pid, err := strconv.ParseInt(value, 10, 32)
			if err != nil {
				return LockOwner{}, fmt.Errorf("parse lock pid: %w", err)
			}
			owner.PID = int32(pid)
		case "timestamp":
			ts, err := time.Parse(time.RFC3339, value)
			if err != nil {
				return LockOwner{}, fmt.Errorf("parse lock timestamp: %w", err)
			}
			owner.Timestamp = ts
		}
	}
	if err := scanner.Err(); err != nil {
		return LockOwner{}, err
	}
	return owner, nil
}

// isLockStale reports whether the lock owner is gone or the lock is older
// than StaleLockThreshold.
func isLockStale(ctx context.Context, lockPath string) (bool, error) {
	info, err := os.Stat(lockPath)
	if err != nil {
		return false, err
	}
	if time.Since(info.ModTime()) > StaleLockThreshold {
		return true, nil
	}

	owner, err := ReadLockOwner(lockPath)
	if err != nil || owner.PID <= 0 {
		// Unreadable or still being written; trust the age check only.
		return false, err
	}
	if owner.PID == int32(os.Getpid()) {
		return false, nil
	}

	alive, err := process.PidExistsWithContext(ctx, owner.PID)
	if err != nil {
		return false, err
	}
	return !alive, nil
}
