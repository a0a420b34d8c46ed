package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// InitOptions seeds a generated starter.lua.
type InitOptions struct {
	Name        string
	ManifestURL string
	Owner       string
	Repo        string
	Branch      string
	Command     []string
}

// Generate renders a starter.lua for opts. Either ManifestURL or Owner/Repo
// selects the manifest source; the GitHub source wins when both are given.
func Generate(opts InitOptions) string {
	var buf bytes.Buffer

	name := opts.Name
	if name == "" {
		name = "app"
	}
	command := opts.Command
	if len(command) == 0 {
		command = []string{"python", "scripts/main.py"}
	}

	buf.WriteString("-- starter configuration\n")
	buf.WriteString("-- The read-only `platform` table describes this machine (platform.os,\n")
	buf.WriteString("-- platform.arch, platform.distro); platform.when(cond, value) returns\n")
	buf.WriteString("-- value only when cond holds.\n\n")
	buf.WriteString("starter = {\n")
	fmt.Fprintf(&buf, "  name = %s,\n\n", quote(name))

	if opts.Owner != "" && opts.Repo != "" {
		branch := opts.Branch
		if branch == "" {
			branch = DefaultGitHubBranch
		}
		buf.WriteString("  github = {\n")
		fmt.Fprintf(&buf, "    owner = %s,\n", quote(opts.Owner))
		fmt.Fprintf(&buf, "    repo = %s,\n", quote(opts.Repo))
		fmt.Fprintf(&buf, "    branch = %s,\n", quote(branch))
		buf.WriteString("    -- prefix = \"scripts\",\n")
		buf.WriteString("  },\n\n")
	} else {
		url := opts.ManifestURL
		if url == "" {
			url = "https://example.com/releases/manifest.json"
		}
		buf.WriteString("  manifest = {\n")
		fmt.Fprintf(&buf, "    url = %s,\n", quote(url))
		buf.WriteString("    -- signature_url = \"https://example.com/releases/manifest.json.asc\",\n")
		buf.WriteString("    -- keyring = \"keys/release.asc\",\n")
		buf.WriteString("  },\n\n")
	}

	buf.WriteString("  app = {\n")
	fmt.Fprintf(&buf, "    command = %s,\n", quoteList(command))
	fmt.Fprintf(&buf, "    mode = %s,\n", quote(string(ModeExec)))
	fmt.Fprintf(&buf, "    restart_exit_code = %d,\n", DefaultRestartExitCode)
	buf.WriteString("  },\n\n")

	buf.WriteString("  dependencies = {\n")
	buf.WriteString("    -- { name = \"requests\", min_version = \"2.31.0\" },\n")
	buf.WriteString("    -- platform.when(platform.is_linux, \"uvloop\"),\n")
	buf.WriteString("  },\n\n")

	buf.WriteString("  package_manager = {\n")
	buf.WriteString("    query = { \"python\", \"-m\", \"pip\", \"show\", \"{name}\" },\n")
	buf.WriteString("    install = { \"python\", \"-m\", \"pip\", \"install\", \"--upgrade\", \"{spec}\" },\n")
	buf.WriteString("    version_pattern = \"(?m)^Version:\\\\s*(\\\\S+)\",\n")
	buf.WriteString("  },\n\n")

	buf.WriteString("  sync = {\n")
	fmt.Fprintf(&buf, "    workers = %d,\n", DefaultWorkers)
	fmt.Fprintf(&buf, "    timeout = %d,\n", int(DefaultTimeout.Seconds()))
	fmt.Fprintf(&buf, "    retries = %d,\n", DefaultRetries)
	buf.WriteString("  },\n")
	buf.WriteString("}\n")

	return buf.String()
}

// WriteDefault writes a generated config to dir/starter.lua. An existing
// file is left alone unless force is set.
func WriteDefault(dir string, opts InitOptions, force bool) (string, error) {
	path := filepath.Join(dir, DefaultFileName)
	if !force {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(Generate(opts)), 0644); err != nil {
		return "", fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("rename config: %w", err)
	}

	return path, nil
}

func quote(s string) string {
	return strconv.Quote(s)
}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = quote(item)
	}
	return "{ " + strings.Join(quoted, ", ") + " }"
}
