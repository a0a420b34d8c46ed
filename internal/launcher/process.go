package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ZebulonRouseFrantzich/starter/internal/config"
	"github.com/ZebulonRouseFrantzich/starter/internal/logging"
)

const (
	// EnvVersion is set in the application's environment to the synced version.
	EnvVersion = "STARTER_VERSION"
	// EnvRelaunched is set to the new launcher version when a self-updated
	// launcher re-executes itself. A relaunched launcher skips self-update.
	EnvRelaunched = "STARTER_RELAUNCHED"
)

// LaunchSpec describes the application process.
type LaunchSpec struct {
	Argv []string
	Dir  string
	Env  map[string]string // added to the launcher's own environment
	Mode config.LaunchMode
}

// Launcher hands control to the application. In exec mode a successful
// Launch does not return.
type Launcher interface {
	Launch(ctx context.Context, spec LaunchSpec) (exitCode int, err error)
}

// ProcessLauncher starts the application as an OS process.
type ProcessLauncher struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger logging.Logger
}

// NewProcessLauncher returns a launcher wired to the launcher's own stdio.
func NewProcessLauncher(logger logging.Logger) *ProcessLauncher {
	return &ProcessLauncher{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr, Logger: logger}
}

// Launch execs or supervises the application according to spec.Mode.
// Exec falls back to supervision where the platform cannot replace the
// running process.
func (p *ProcessLauncher) Launch(ctx context.Context, spec LaunchSpec) (int, error) {
	logger := logging.OrNop(p.Logger)

	if len(spec.Argv) == 0 {
		return 0, errors.New("application command is empty")
	}
	path, err := resolveCommand(spec.Argv[0], spec.Dir)
	if err != nil {
		return 0, err
	}
	env := mergeEnv(os.Environ(), spec.Env)

	if spec.Mode != config.ModeSupervise && execSupported {
		logger.Info("launching application", "mode", "exec", "command", strings.Join(spec.Argv, " "))
		if err := os.Chdir(spec.Dir); err != nil {
			return 0, fmt.Errorf("enter %s: %w", spec.Dir, err)
		}
		return 0, execve(path, spec.Argv, env)
	}

	logger.Info("launching application", "mode", "supervise", "command", strings.Join(spec.Argv, " "))
	return p.supervise(ctx, path, spec, env)
}

func (p *ProcessLauncher) supervise(ctx context.Context, path string, spec LaunchSpec, env []string) (int, error) {
	logger := logging.OrNop(p.Logger)

	cmd := exec.Command(path, spec.Argv[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = env
	cmd.Stdin = p.Stdin
	cmd.Stdout = p.Stdout
	cmd.Stderr = p.Stderr

	// Registered before Start so nothing arrives between start and forward.
	sigs := make(chan os.Signal, 4)
	signal.Notify(sigs, forwardedSignals...)
	defer signal.Stop(sigs)

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start %s: %w", spec.Argv[0], err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	for {
		select {
		case sig := <-sigs:
			logger.Debug("forwarding signal", "signal", sig.String(), "pid", cmd.Process.Pid)
			if err := forward(cmd.Process, sig); err != nil {
				logger.Warn("failed to forward signal", "signal", sig.String(), "err", err)
			}
		case err := <-done:
			if err == nil {
				return 0, nil
			}
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				return exitCode(exitErr), nil
			}
			return 0, fmt.Errorf("wait for %s: %w", spec.Argv[0], err)
		}
	}
}

// resolveCommand finds the executable for name. Names with a path separator
// are taken relative to dir; bare names are looked up in PATH.
func resolveCommand(name, dir string) (string, error) {
	if strings.ContainsRune(name, '/') || strings.ContainsRune(name, filepath.Separator) {
		path := name
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		info, err := os.Stat(path)
		if err != nil {
			return "", fmt.Errorf("application command: %w", err)
		}
		if info.IsDir() {
			return "", fmt.Errorf("application command %s is a directory", path)
		}
		return path, nil
	}

	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("application command: %w", err)
	}
	return path, nil
}

// mergeEnv overlays extra onto base. Keys in extra replace existing ones.
func mergeEnv(base []string, extra map[string]string) []string {
	out := make([]string, 0, len(base)+len(extra))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, overridden := extra[key]; overridden {
			continue
		}
		out = append(out, kv)
	}

	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+extra[k])
	}
	return out
}
