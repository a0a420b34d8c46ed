package launcher

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ZebulonRouseFrantzich/starter/internal/config"
	"github.com/ZebulonRouseFrantzich/starter/internal/deps"
	"github.com/ZebulonRouseFrantzich/starter/internal/logging"
	"github.com/ZebulonRouseFrantzich/starter/internal/manifest"
	"github.com/ZebulonRouseFrantzich/starter/internal/marker"
	"github.com/ZebulonRouseFrantzich/starter/internal/selfupdate"
	"github.com/ZebulonRouseFrantzich/starter/internal/syncer"
)

// BuildOptions adds the process-level inputs Build needs beyond the config.
type BuildOptions struct {
	Options
	// LauncherVersion is the running launcher's version, compared against
	// published launcher builds when self-update is enabled.
	LauncherVersion string
}

// Build wires the production components for cfg.
func Build(cfg *config.Config, opts BuildOptions) (*Orchestrator, error) {
	logger := logging.OrNop(opts.Logger)

	client := manifest.NewClientFromConfig(cfg, logger)
	fetcher, err := manifest.NewFetcher(cfg, client, logger)
	if err != nil {
		return nil, err
	}

	c := Components{
		Fetcher: fetcher,
		Syncer: syncer.New(syncer.Options{
			Root:       cfg.Dir,
			Workers:    cfg.Sync.Workers,
			Downloader: client,
			Logger:     logger,
			Reserved:   reservedPaths(cfg),
		}),
		Markers:  marker.NewStore(filepath.Join(cfg.Dir, cfg.Sync.Marker)),
		Launcher: NewProcessLauncher(logger),
	}

	if len(cfg.Dependencies) > 0 && !opts.SkipDeps {
		pm, err := deps.NewCommandManager(cfg.PackageManager, cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("package manager: %w", err)
		}
		c.Deps = deps.NewInstaller(pm, logger)
	}

	if cfg.SelfUpdate {
		if v := os.Getenv(EnvRelaunched); v != "" {
			logger.Debug("self-update skipped after relaunch", "version", v)
		} else {
			c.SelfUpdater = selfupdate.New(selfupdate.Options{
				Current:    opts.LauncherVersion,
				StagingDir: filepath.Join(cfg.Dir, syncer.StateDirName, syncer.StagingDirName),
				Downloader: client,
				Logger:     logger,
			})
		}
	}

	return New(cfg, c, opts.Options), nil
}

// reservedPaths lists root-relative files the manifest must not overwrite.
func reservedPaths(cfg *config.Config) []string {
	reserved := []string{filepath.ToSlash(cfg.Sync.Marker)}
	if rel, err := filepath.Rel(cfg.Dir, cfg.Path); err == nil && cfg.Path != "" {
		reserved = append(reserved, filepath.ToSlash(rel))
	}
	return reserved
}
