package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ZebulonRouseFrantzich/starter/internal/config"
	"github.com/ZebulonRouseFrantzich/starter/internal/launcher"
	"github.com/ZebulonRouseFrantzich/starter/internal/logging"
	"github.com/ZebulonRouseFrantzich/starter/internal/platform"
	"github.com/ZebulonRouseFrantzich/starter/internal/syncer"
)

type runOptions struct {
	dir      string
	config   string
	verbose  bool
	dryRun   bool
	skipDeps bool
}

// loadConfig reads the config named by opts and warns about secrets
// written into it.
func loadConfig(ctx context.Context, opts *runOptions, logger logging.Logger) (*config.Config, error) {
	cfg, err := config.Load(ctx, config.LoadOptions{
		Dir:      opts.dir,
		Path:     opts.config,
		Detector: platform.NewDetector(),
	})
	if err != nil {
		var parseErr *config.ParseError
		if errors.As(err, &parseErr) {
			return nil, errors.New(config.FormatError(err, opts.verbose))
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load config: %w\nRun 'starter init' to create one", err)
		}
		return nil, fmt.Errorf("load config: %w", err)
	}

	if data, err := os.ReadFile(cfg.Path); err == nil {
		if findings := config.DetectSensitiveData(string(data)); len(findings) > 0 {
			logger.Warn(config.FormatSensitiveDataWarning(findings), "config", cfg.Path)
		}
	}
	return cfg, nil
}

// runStart performs one launcher run. The application's exit status is
// returned as an exitCode error so main can pass it on.
func runStart(ctx context.Context, opts *runOptions, stdout, stderr io.Writer) error {
	logger := logging.New(stderr, opts.verbose)

	cfg, err := loadConfig(ctx, opts, logger)
	if err != nil {
		return &launcher.StageError{Stage: launcher.StageStart, Err: err}
	}

	orch, err := launcher.Build(cfg, launcher.BuildOptions{
		Options: launcher.Options{
			DryRun:   opts.dryRun,
			SkipDeps: opts.skipDeps,
			Logger:   logger,
			Relaunch: relaunchCommand(logger),
		},
		LauncherVersion: Version,
	})
	if err != nil {
		return &launcher.StageError{Stage: launcher.StageStart, Err: err}
	}

	result, err := orch.Run(ctx)
	if err != nil {
		return err
	}

	if opts.dryRun {
		printPlan(stdout, result.Plan)
		return nil
	}
	if result.ExitCode != 0 {
		return exitCode(result.ExitCode)
	}
	return nil
}

// relaunchCommand is this process's command line with the executable
// resolved, so an updated binary can be started in its place.
func relaunchCommand(logger logging.Logger) []string {
	exe, err := os.Executable()
	if err != nil {
		logger.Warn("cannot resolve launcher executable, relaunch disabled", "err", err)
		return nil
	}
	return append([]string{exe}, os.Args[1:]...)
}

func printPlan(w io.Writer, plan *syncer.Plan) {
	if plan == nil {
		return
	}
	if plan.Empty() {
		fmt.Fprintf(w, "Up to date with version %s (%d files)\n", plan.Version, plan.Unchanged())
		return
	}
	fmt.Fprintln(w, plan.String())
}
