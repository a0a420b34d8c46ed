// Package launcher runs the update-then-launch state machine:
//
//	START → CHECK_DEPS → FETCH_MANIFEST → SYNC_FILES → PERSIST_MARKER → LAUNCH → RUNNING
//
// Any fatal error moves to FAILED with nothing further done; files already
// on disk stay as they are and the version marker keeps describing the last
// complete sync. In supervise mode an application exit with the restart
// exit code runs the whole machine again from START.
//
// After PERSIST_MARKER an optional SELF_UPDATE replaces the launcher binary.
// In exec mode the updated launcher is then re-executed in place and starts
// the application itself; in supervise mode the run ends in RESTART with the
// restart exit code for the outer supervisor.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"

	"github.com/ZebulonRouseFrantzich/starter/internal/config"
	"github.com/ZebulonRouseFrantzich/starter/internal/deps"
	"github.com/ZebulonRouseFrantzich/starter/internal/logging"
	"github.com/ZebulonRouseFrantzich/starter/internal/manifest"
	"github.com/ZebulonRouseFrantzich/starter/internal/marker"
	"github.com/ZebulonRouseFrantzich/starter/internal/syncer"
	"github.com/ZebulonRouseFrantzich/starter/internal/transaction"
)

// DependencyEnsurer installs missing dependencies. *deps.Installer satisfies it.
type DependencyEnsurer interface {
	Ensure(ctx context.Context, deps []config.Dependency) (*deps.InstallResult, error)
}

// Syncer plans and applies file changes. *syncer.Synchronizer satisfies it.
type Syncer interface {
	Cleanup() error
	Plan(local *marker.VersionMarker, remote *manifest.Manifest) (*syncer.Plan, error)
	Apply(ctx context.Context, plan *syncer.Plan) (*marker.VersionMarker, error)
}

// MarkerStore loads and persists the version marker. *marker.Store satisfies it.
type MarkerStore interface {
	Load() (*marker.VersionMarker, error)
	Save(m *marker.VersionMarker) error
}

// SelfUpdater replaces the launcher binary. *selfupdate.Updater satisfies it.
type SelfUpdater interface {
	Check(m *manifest.Manifest) (manifest.LauncherBuild, bool)
	Apply(ctx context.Context, b manifest.LauncherBuild) error
}

// Components are the collaborators of an Orchestrator. SelfUpdater may be nil.
type Components struct {
	Deps        DependencyEnsurer
	Fetcher     manifest.Fetcher
	Syncer      Syncer
	Markers     MarkerStore
	SelfUpdater SelfUpdater
	Launcher    Launcher
}

// Options control a run.
type Options struct {
	DryRun   bool // plan only; nothing is written and nothing is launched
	SkipDeps bool
	Logger   logging.Logger
	// OnStage, when set, is called on every state transition.
	OnStage func(Stage)
	// Relaunch is the launcher's own command line, re-executed after a
	// successful self-update in exec mode.
	Relaunch []string
}

// Result describes how a run ended.
type Result struct {
	Stage       Stage // RUNNING, RESTART or FAILED
	Version     string
	Plan        *syncer.Plan // last plan computed
	Deps        *deps.InstallResult
	ExitCode    int
	SelfUpdated bool
	Cycles      int // update cycles run, > 1 after restart requests
}

// Orchestrator drives the state machine.
type Orchestrator struct {
	cfg    *config.Config
	c      Components
	opts   Options
	logger logging.Logger
}

// New creates an orchestrator from explicit components.
func New(cfg *config.Config, c Components, opts Options) *Orchestrator {
	return &Orchestrator{cfg: cfg, c: c, opts: opts, logger: logging.OrNop(opts.Logger)}
}

// Run executes update cycles until the application exits with something
// other than the restart exit code, a stage fails, or the context ends.
// Fatal errors are returned as *StageError.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	result := &Result{}

	for {
		result.Cycles++
		o.enter(StageStart)

		cycle, err := o.update(ctx)
		if cycle != nil {
			result.Version = cycle.version
			result.Plan = cycle.plan
			result.Deps = cycle.deps
		}
		if err != nil {
			o.enter(StageFailed)
			result.Stage = StageFailed
			return result, err
		}

		if cycle.launcherVersion != "" {
			result.SelfUpdated = true
			return o.relaunch(ctx, result, cycle.launcherVersion)
		}
		if o.opts.DryRun {
			result.Stage = StageRunning
			return result, nil
		}

		o.enter(StageLaunch)
		code, err := o.c.Launcher.Launch(ctx, o.launchSpec(cycle.version))
		if err != nil {
			o.enter(StageFailed)
			result.Stage = StageFailed
			return result, stageErr(StageLaunch, err)
		}
		o.enter(StageRunning)
		result.Stage = StageRunning
		result.ExitCode = code

		if o.cfg.App.Mode != config.ModeSupervise || code != o.cfg.App.RestartExitCode {
			return result, nil
		}
		if ctx.Err() != nil {
			return result, nil
		}
		o.logger.Info("application requested an update", "exit_code", code)
	}
}

// relaunch hands over to the freshly installed launcher binary.
func (o *Orchestrator) relaunch(ctx context.Context, result *Result, version string) (*Result, error) {
	if o.cfg.App.Mode == config.ModeSupervise || len(o.opts.Relaunch) == 0 {
		o.logger.Info("launcher updated, restart required", "version", version, "exit_code", o.cfg.App.RestartExitCode)
		o.enter(StageRestart)
		result.Stage = StageRestart
		result.ExitCode = o.cfg.App.RestartExitCode
		return result, nil
	}

	o.logger.Info("launcher updated, relaunching", "version", version)
	o.enter(StageLaunch)
	code, err := o.c.Launcher.Launch(ctx, o.relaunchSpec(version))
	if err != nil {
		o.enter(StageFailed)
		result.Stage = StageFailed
		return result, stageErr(StageLaunch, fmt.Errorf("relaunch updated launcher: %w", err))
	}
	o.enter(StageRunning)
	result.Stage = StageRunning
	result.ExitCode = code
	return result, nil
}

type cycleResult struct {
	version string
	plan    *syncer.Plan
	deps    *deps.InstallResult
	// launcherVersion is the version of a launcher build installed this cycle.
	launcherVersion string
}

// update runs START through PERSIST_MARKER (and the optional self-update)
// while holding the single-instance lock. A dry run takes no lock and
// writes nothing.
func (o *Orchestrator) update(ctx context.Context) (*cycleResult, error) {
	if !o.opts.DryRun {
		lock, err := transaction.AcquireLock(ctx, filepath.Join(o.cfg.Dir, syncer.StateDirName))
		if err != nil {
			return nil, stageErr(StageStart, fmt.Errorf("acquire lock: %w", err))
		}
		defer func() {
			if err := lock.Release(); err != nil {
				o.logger.Warn("failed to release lock", "err", err)
			}
		}()

		if err := o.c.Syncer.Cleanup(); err != nil {
			return nil, stageErr(StageStart, fmt.Errorf("clean staging: %w", err))
		}
	}
	local, err := o.c.Markers.Load()
	if err != nil {
		return nil, stageErr(StageStart, err)
	}
	cycle := &cycleResult{version: local.Version}

	o.enter(StageCheckDeps)
	if o.opts.SkipDeps || len(o.cfg.Dependencies) == 0 {
		o.logger.Debug("dependency check skipped", "declared", len(o.cfg.Dependencies))
	} else {
		res, err := o.c.Deps.Ensure(ctx, o.cfg.Dependencies)
		cycle.deps = res
		if err != nil {
			return cycle, stageErr(StageCheckDeps, err)
		}
	}

	o.enter(StageFetchManifest)
	remote, err := o.c.Fetcher.Fetch(ctx)
	if err != nil {
		return cycle, stageErr(StageFetchManifest, err)
	}

	o.enter(StageSyncFiles)
	plan, err := o.c.Syncer.Plan(local, remote)
	if err != nil {
		return cycle, stageErr(StageSyncFiles, err)
	}
	cycle.plan = plan
	o.logger.Info("sync plan",
		"version", plan.Version,
		"add", plan.Count(syncer.ActionAdd),
		"update", plan.Count(syncer.ActionUpdate),
		"remove", plan.Count(syncer.ActionRemove),
		"unchanged", plan.Unchanged(),
	)

	if o.opts.DryRun {
		o.logger.Info("dry run, nothing written")
		return cycle, nil
	}

	next, err := o.c.Syncer.Apply(ctx, plan)
	if err != nil {
		return cycle, stageErr(StageSyncFiles, err)
	}

	o.enter(StagePersistMarker)
	if sameMarker(local, next) {
		o.logger.Debug("version marker unchanged", "version", next.Version)
	} else {
		if err := o.c.Markers.Save(next); err != nil {
			return cycle, stageErr(StagePersistMarker, err)
		}
		o.logger.Info("version marker updated", "from", local.Version, "to", next.Version)
	}
	cycle.version = next.Version

	if o.c.SelfUpdater != nil {
		if b, ok := o.c.SelfUpdater.Check(remote); ok {
			o.enter(StageSelfUpdate)
			if err := o.c.SelfUpdater.Apply(ctx, b); err != nil {
				if errors.Is(err, context.Canceled) {
					return cycle, stageErr(StageSelfUpdate, err)
				}
				// The synced files are consistent; an old launcher can still start them.
				o.logger.Warn("launcher self-update failed, continuing with current binary", "version", b.Version, "err", err)
			} else {
				cycle.launcherVersion = b.Version
			}
		}
	}

	return cycle, nil
}

func (o *Orchestrator) enter(s Stage) {
	o.logger.Debug("stage", "stage", string(s))
	if o.opts.OnStage != nil {
		o.opts.OnStage(s)
	}
}

func (o *Orchestrator) launchSpec(version string) LaunchSpec {
	env := make(map[string]string, len(o.cfg.App.Env)+1)
	maps.Copy(env, o.cfg.App.Env)
	env[EnvVersion] = version

	return LaunchSpec{
		Argv: o.cfg.App.Command,
		Dir:  o.cfg.Dir,
		Env:  env,
		Mode: o.cfg.App.Mode,
	}
}

// relaunchSpec re-executes the launcher with its original arguments from
// the directory it was started in.
func (o *Orchestrator) relaunchSpec(version string) LaunchSpec {
	dir, err := os.Getwd()
	if err != nil {
		dir = o.cfg.Dir
	}
	return LaunchSpec{
		Argv: o.opts.Relaunch,
		Dir:  dir,
		Env:  map[string]string{EnvRelaunched: version},
		Mode: config.ModeExec,
	}
}

func sameMarker(a, b *marker.VersionMarker) bool {
	return a.Version == b.Version && maps.Equal(a.Files, b.Files)
}
