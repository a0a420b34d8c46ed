package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/starter/internal/config"
)

func newInitCmd(opts *runOptions, stdout io.Writer) *cobra.Command {
	var (
		initOpts config.InitOptions
		force    bool
	)

	cmd := &cobra.Command{
		Use:   "init [-- command...]",
		Short: "Write a starter.lua for the managed directory",
		Example: `  starter init --manifest-url https://example.com/releases/manifest.json -- python bot.py
  starter init --github-owner acme --github-repo bot --branch stable`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _, err := config.ResolvePaths(opts.dir, "")
			if err != nil {
				return err
			}
			initOpts.Command = args

			path, err := config.WriteDefault(dir, initOpts, force)
			if err != nil {
				return err
			}

			fmt.Fprintf(stdout, "Created %s\n", path)
			fmt.Fprintln(stdout, "Review it, then run 'starter --dry-run' to see what would be synced.")
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&initOpts.Name, "name", "", "application name")
	f.StringVar(&initOpts.ManifestURL, "manifest-url", "", "URL of the release manifest")
	f.StringVar(&initOpts.Owner, "github-owner", "", "GitHub repository owner")
	f.StringVar(&initOpts.Repo, "github-repo", "", "GitHub repository name")
	f.StringVar(&initOpts.Branch, "branch", "", "GitHub branch to track")
	f.BoolVarP(&force, "force", "f", false, "overwrite an existing starter.lua")
	return cmd
}
