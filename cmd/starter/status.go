package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/starter/internal/config"
	"github.com/ZebulonRouseFrantzich/starter/internal/marker"
	"github.com/ZebulonRouseFrantzich/starter/internal/platform"
	"github.com/ZebulonRouseFrantzich/starter/internal/syncer"
	"github.com/ZebulonRouseFrantzich/starter/internal/transaction"
)

func newStatusCmd(opts *runOptions, stdout io.Writer) *cobra.Command {
	var listFiles bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the installed version and any interrupted sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, path, err := config.ResolvePaths(opts.dir, opts.config)
			if err != nil {
				return err
			}
			markerFile := config.DefaultMarkerFile
			if cfg, err := config.NewParser(platform.NewDetector()).ParseFile(cmd.Context(), path); err == nil {
				markerFile = cfg.Sync.Marker
			}
			return runStatus(dir, markerFile, listFiles, stdout)
		},
	}
	cmd.Flags().BoolVarP(&listFiles, "files", "l", false, "list tracked files")
	return cmd
}

// runStatus reads local state only; it never contacts the network.
func runStatus(dir, markerFile string, listFiles bool, w io.Writer) error {
	m, err := marker.NewStore(filepath.Join(dir, markerFile)).Load()
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Directory: %s\n", dir)
	if m.IsEmpty() {
		fmt.Fprintln(w, "Version:   none (never synced)")
	} else {
		fmt.Fprintf(w, "Version:   %s\n", m.Version)
		fmt.Fprintf(w, "Files:     %d\n", len(m.Files))
	}

	if listFiles {
		for _, p := range m.Paths() {
			fmt.Fprintf(w, "  %s  %s\n", m.Files[p], p)
		}
	}

	stateDir := filepath.Join(dir, syncer.StateDirName)
	journals, broken, err := transaction.LoadAll(stateDir)
	if err != nil {
		return fmt.Errorf("read journals: %w", err)
	}
	for _, j := range journals {
		started := j.Started.Format("2006-01-02 15:04:05")
		if j.Completed() {
			fmt.Fprintf(w, "Sync to %s started %s finished but was not cleaned up; it is cleaned up on the next run\n", j.Release, started)
			continue
		}
		done := 0
		for _, e := range j.Snapshot() {
			if e.State == transaction.StateCompleted {
				done++
			}
		}
		fmt.Fprintf(w, "Interrupted sync to %s started %s (%d/%d files done); it is cleaned up on the next run\n",
			j.Release, started, done, len(j.Paths))
	}
	if len(broken) > 0 {
		fmt.Fprintf(w, "%d unreadable journal(s) in %s\n", len(broken), stateDir)
	}
	return nil
}
