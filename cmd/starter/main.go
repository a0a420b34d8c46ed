package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version will be set at build time via -ldflags
var Version = "0.0.0-dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// exitCode carries a process exit status out of a command without it
// being reported as an error.
type exitCode int

func (e exitCode) Error() string { return "exit status" }

// execute runs the command line and returns the process exit status.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var code exitCode
	if errors.As(err, &code) {
		return int(code)
	}
	printFailure(stderr, err)
	return 1
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "starter",
		Short: "Keep an application in sync with its published release, then launch it",
		Long: `starter checks the host dependencies, fetches the release manifest,
brings the local files in line with it, and hands control to the application.`,
		Version:       Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd.Context(), opts, stdout, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.dir, "dir", "d", "", "managed root directory (default $STARTER_DIR or the working directory)")
	flags.StringVarP(&opts.config, "config", "c", "", "config file (default $STARTER_CONFIG or <dir>/starter.lua)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	cmd.Flags().BoolVarP(&opts.dryRun, "dry-run", "n", false, "show what would change without writing or launching")
	cmd.Flags().BoolVar(&opts.skipDeps, "skip-deps", false, "skip the dependency check")

	cmd.AddCommand(newInitCmd(opts, stdout), newStatusCmd(opts, stdout))
	return cmd
}
