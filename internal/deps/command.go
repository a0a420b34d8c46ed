package deps

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"github.com/ZebulonRouseFrantzich/starter/internal/config"
)

// DefaultVersionPattern extracts a version from query output such as
// "Version: 2.31.0" (pip show) or "requests 2.31.0".
const DefaultVersionPattern = `(?im)(?:^version:\s*|\s)v?(\d+(?:\.\d+)*(?:[-+.][0-9A-Za-z.+-]*)?)\s*$`

// CommandManager drives a host package manager through command templates.
// {name} expands to the dependency name, {version} to its minimum version
// and {spec} to name>=min_version (or name when there is no minimum).
type CommandManager struct {
	query   []string
	install []string
	pattern *regexp.Regexp
	dir     string
}

// NewCommandManager creates a manager from config templates. dir is the
// working directory for every command.
func NewCommandManager(pm config.PackageManager, dir string) (*CommandManager, error) {
	if len(pm.Query) == 0 || len(pm.Install) == 0 {
		return nil, fmt.Errorf("package manager query and install commands are required")
	}

	expr := pm.VersionPattern
	if expr == "" {
		expr = DefaultVersionPattern
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile version pattern: %w", err)
	}

	return &CommandManager{
		query:   pm.Query,
		install: pm.Install,
		pattern: re,
		dir:     dir,
	}, nil
}

// Installed runs the query command. A non-zero exit means the package is
// absent. A successful query whose output carries no recognizable version
// reports the package present with an empty version.
func (m *CommandManager) Installed(ctx context.Context, dep config.Dependency) (string, bool, error) {
	out, err := m.run(ctx, expand(m.query, dep))
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", false, nil
		}
		return "", false, err
	}
	return m.parseVersion(out), true, nil
}

// Install runs the install command.
func (m *CommandManager) Install(ctx context.Context, dep config.Dependency) error {
	out, err := m.run(ctx, expand(m.install, dep))
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("%s exited with code %d: %s", m.install[0], exitErr.ExitCode(), summarize(out))
		}
		return err
	}
	return nil
}

func (m *CommandManager) parseVersion(out []byte) string {
	match := m.pattern.FindSubmatch(out)
	switch {
	case match == nil:
		return ""
	case len(match) > 1:
		return string(match[1])
	default:
		return string(match[0])
	}
}

func (m *CommandManager) run(ctx context.Context, argv []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = m.dir
	cmd.Env = os.Environ()

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return buf.Bytes(), fmt.Errorf("run %s: %w", argv[0], ctxErr)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return buf.Bytes(), err
		}
		return buf.Bytes(), fmt.Errorf("run %s: %w", argv[0], err)
	}
	return buf.Bytes(), nil
}

func expand(template []string, dep config.Dependency) []string {
	spec := dep.Name
	if dep.MinVersion != "" {
		spec = dep.Name + ">=" + dep.MinVersion
	}
	r := strings.NewReplacer("{name}", dep.Name, "{version}", dep.MinVersion, "{spec}", spec)

	argv := make([]string, len(template))
	for i, arg := range template {
		argv[i] = r.Replace(arg)
	}
	return argv
}

// summarize trims command output for error messages and hides the home
// directory.
func summarize(out []byte) string {
	const maxLen = 300
	msg := strings.TrimSpace(string(out))
	if len(msg) > maxLen {
		msg = "..." + msg[len(msg)-maxLen:]
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		msg = strings.ReplaceAll(msg, home, "$HOME")
	}
	return msg
}
