// Package deps ensures the application's declared packages are installed at
// a minimum version before launch.
package deps

import (
	"context"
	"fmt"

	"github.com/ZebulonRouseFrantzich/starter/internal/config"
	"github.com/ZebulonRouseFrantzich/starter/internal/logging"
)

// PackageManager queries and installs packages. *CommandManager is the
// implementation used outside tests.
type PackageManager interface {
	// Installed returns the installed version; found is false when the
	// package is absent. An empty version with found=true means present
	// but unknown.
	Installed(ctx context.Context, dep config.Dependency) (version string, found bool, err error)
	Install(ctx context.Context, dep config.Dependency) error
}

// InstallError is returned when a dependency cannot be brought up to its
// minimum version.
type InstallError struct {
	Name     string
	Min      string
	Found    string // version after the last attempt, empty if absent
	Attempts int
	Err      error
}

func (e *InstallError) Error() string {
	msg := fmt.Sprintf("install dependency %s", e.Name)
	if e.Min != "" {
		msg += " >= " + e.Min
	}
	msg += fmt.Sprintf(" failed after %d attempts", e.Attempts)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	} else if e.Found != "" {
		msg += fmt.Sprintf(": still at version %s", e.Found)
	} else {
		msg += ": still not installed"
	}
	return msg
}

func (e *InstallError) Unwrap() error { return e.Err }

// Status is the outcome for one dependency.
type Status struct {
	Name      string
	Version   string
	Installed bool // true when Ensure had to install it
}

// InstallResult summarizes an Ensure run.
type InstallResult struct {
	Deps []Status
}

// InstalledCount returns how many dependencies Ensure installed.
func (r *InstallResult) InstalledCount() int {
	n := 0
	for _, d := range r.Deps {
		if d.Installed {
			n++
		}
	}
	return n
}

// MaxAttempts is how many times an install is tried before giving up.
const MaxAttempts = 2

// Installer ensures dependencies through a PackageManager.
type Installer struct {
	pm     PackageManager
	logger logging.Logger
}

// NewInstaller creates a new installer
func NewInstaller(pm PackageManager, logger logging.Logger) *Installer {
	return &Installer{pm: pm, logger: logging.OrNop(logger)}
}

// Ensure checks each dependency in order and installs the ones that are
// missing or too old. The first dependency that cannot be satisfied stops
// the run with an *InstallError.
func (i *Installer) Ensure(ctx context.Context, deps []config.Dependency) (*InstallResult, error) {
	result := &InstallResult{}

	for _, dep := range deps {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		version, ok, err := i.check(ctx, dep)
		if err != nil {
			return result, fmt.Errorf("query dependency %s: %w", dep.Name, err)
		}
		if ok {
			i.logger.Debug("dependency satisfied", "name", dep.Name, "version", version)
			result.Deps = append(result.Deps, Status{Name: dep.Name, Version: version})
			continue
		}

		i.logger.Info("installing dependency", "name", dep.Name, "min_version", dep.MinVersion, "found", version)
		version, err = i.install(ctx, dep)
		if err != nil {
			return result, err
		}
		result.Deps = append(result.Deps, Status{Name: dep.Name, Version: version, Installed: true})
	}

	return result, nil
}

func (i *Installer) check(ctx context.Context, dep config.Dependency) (string, bool, error) {
	version, found, err := i.pm.Installed(ctx, dep)
	if err != nil || !found {
		return "", false, err
	}
	ok, err := Satisfies(version, dep.MinVersion)
	if err != nil {
		// An unparseable installed version is treated as too old.
		i.logger.Warn("cannot compare dependency version", "name", dep.Name, "version", version, "err", err)
		return version, false, nil
	}
	return version, ok, nil
}

func (i *Installer) install(ctx context.Context, dep config.Dependency) (string, error) {
	var lastErr error
	var found string

	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		lastErr = i.pm.Install(ctx, dep)
		if lastErr != nil {
			i.logger.Warn("dependency install failed", "name", dep.Name, "attempt", attempt, "err", lastErr)
			continue
		}

		version, ok, err := i.check(ctx, dep)
		if err != nil {
			lastErr = fmt.Errorf("re-query after install: %w", err)
			continue
		}
		if ok {
			return version, nil
		}
		found = version
		i.logger.Warn("dependency still unsatisfied after install", "name", dep.Name, "attempt", attempt, "version", version)
	}

	return "", &InstallError{Name: dep.Name, Min: dep.MinVersion, Found: found, Attempts: MaxAttempts, Err: lastErr}
}
