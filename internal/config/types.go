package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// LaunchMode selects how control is handed to the application.
type LaunchMode string

const (
	// ModeExec replaces the launcher process with the application.
	ModeExec LaunchMode = "exec"
	// ModeSupervise runs the application as a child and re-runs the update
	// cycle when it exits with the restart exit code.
	ModeSupervise LaunchMode = "supervise"
)

// Config is the complete launcher configuration.
type Config struct {
	Name           string
	Manifest       ManifestSource
	GitHub         *GitHubSource
	App            App
	Dependencies   []Dependency
	PackageManager PackageManager
	Sync           Sync
	SelfUpdate     bool

	// Dir is the root directory the launcher manages. Set by Load.
	Dir string
	// Path is the file the config was read from. Set by Load.
	Path string
}

// ManifestSource points at a published manifest document.
type ManifestSource struct {
	URL          string
	SignatureURL string // detached OpenPGP signature over the manifest bytes
	Keyring      string // keyring file, relative to Dir
	BundleURL    string // sigstore bundle over the manifest bytes
	TrustedRoot  string // sigstore trusted root JSON, relative to Dir
	Identity     Identity
}

// Identity is the certificate identity a sigstore bundle must carry.
type Identity struct {
	Issuer    string
	SANRegexp string
}

// GitHubSource derives the manifest from a GitHub repository tree.
type GitHubSource struct {
	Owner    string
	Repo     string
	Branch   string
	Prefix   string // only blobs below this path are tracked
	TokenEnv string // environment variable holding an API token
	APIURL   string
	RawURL   string
}

// App describes the application entry point.
type App struct {
	Command         []string
	Mode            LaunchMode
	RestartExitCode int
	Env             map[string]string
}

// Dependency is a package that must be installed before launch.
type Dependency struct {
	Name       string
	MinVersion string
}

// PackageManager holds the host package manager command templates.
// {name} expands to the dependency name, {spec} to name>=min_version.
type PackageManager struct {
	Query          []string
	Install        []string
	VersionPattern string
}

// Sync tunes the file synchronizer and the network client.
type Sync struct {
	Workers int
	Retries int
	Timeout time.Duration
	Marker  string
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.App.Mode == "" {
		c.App.Mode = ModeExec
	}
	if c.App.RestartExitCode == 0 {
		c.App.RestartExitCode = DefaultRestartExitCode
	}
	if c.Sync.Workers == 0 {
		c.Sync.Workers = DefaultWorkers
	}
	if c.Sync.Retries == 0 {
		c.Sync.Retries = DefaultRetries
	}
	if c.Sync.Timeout == 0 {
		c.Sync.Timeout = DefaultTimeout
	}
	if c.Sync.Marker == "" {
		c.Sync.Marker = DefaultMarkerFile
	}
	if gh := c.GitHub; gh != nil {
		if gh.Branch == "" {
			gh.Branch = DefaultGitHubBranch
		}
		if gh.APIURL == "" {
			gh.APIURL = DefaultGitHubAPI
		}
		if gh.RawURL == "" {
			gh.RawURL = DefaultGitHubRaw
		}
		if gh.TokenEnv == "" {
			gh.TokenEnv = DefaultTokenEnv
		}
	}
}

// ValidationError represents a config validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return "config validation failed for " + e.Field + ": " + e.Message
	}
	return "config validation failed: " + e.Message
}

var (
	versionPattern = regexp.MustCompile(`^v?\d+(\.\d+){0,2}([-+][0-9A-Za-z.+-]+)?$`)
	depNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._@/-]*$`)
)

// Validate checks a config after defaults have been applied.
func (c *Config) Validate() error {
	hasURL := c.Manifest.URL != ""
	hasGitHub := c.GitHub != nil
	switch {
	case hasURL && hasGitHub:
		return &ValidationError{Field: "manifest", Message: "manifest.url and github are mutually exclusive"}
	case !hasURL && !hasGitHub:
		return &ValidationError{Field: "manifest", Message: "one of manifest.url or github is required"}
	}

	if hasURL {
		if err := validateHTTPURL(c.Manifest.URL); err != nil {
			return &ValidationError{Field: "manifest.url", Message: err.Error()}
		}
		if c.Manifest.SignatureURL != "" && c.Manifest.Keyring == "" {
			return &ValidationError{Field: "manifest.keyring", Message: "required when signature_url is set"}
		}
		if c.Manifest.BundleURL != "" {
			if c.Manifest.TrustedRoot == "" {
				return &ValidationError{Field: "manifest.trusted_root", Message: "required when bundle_url is set"}
			}
			if c.Manifest.Identity.Issuer == "" || c.Manifest.Identity.SANRegexp == "" {
				return &ValidationError{Field: "manifest.identity", Message: "issuer and san_regexp are required when bundle_url is set"}
			}
			if _, err := regexp.Compile(c.Manifest.Identity.SANRegexp); err != nil {
				return &ValidationError{Field: "manifest.identity.san_regexp", Message: err.Error()}
			}
		}
	}

	if gh := c.GitHub; gh != nil {
		if gh.Owner == "" || gh.Repo == "" {
			return &ValidationError{Field: "github", Message: "owner and repo are required"}
		}
		if strings.Contains(gh.Prefix, "..") {
			return &ValidationError{Field: "github.prefix", Message: "must not contain '..'"}
		}
	}

	if len(c.App.Command) == 0 || c.App.Command[0] == "" {
		return &ValidationError{Field: "app.command", Message: "command cannot be empty"}
	}
	if c.App.Mode != ModeExec && c.App.Mode != ModeSupervise {
		return &ValidationError{Field: "app.mode", Message: fmt.Sprintf("unknown mode %q (expected exec or supervise)", c.App.Mode)}
	}
	if c.App.RestartExitCode < 1 || c.App.RestartExitCode > 125 {
		return &ValidationError{Field: "app.restart_exit_code", Message: "must be between 1 and 125"}
	}

	seen := make(map[string]bool, len(c.Dependencies))
	for i, dep := range c.Dependencies {
		field := fmt.Sprintf("dependencies[%d]", i)
		if !depNamePattern.MatchString(dep.Name) {
			return &ValidationError{Field: field, Message: fmt.Sprintf("invalid package name %q", dep.Name)}
		}
		if seen[dep.Name] {
			return &ValidationError{Field: field, Message: fmt.Sprintf("duplicate dependency %q", dep.Name)}
		}
		seen[dep.Name] = true
		if dep.MinVersion != "" && !versionPattern.MatchString(dep.MinVersion) {
			return &ValidationError{Field: field + ".min_version", Message: fmt.Sprintf("invalid version %q", dep.MinVersion)}
		}
	}

	if len(c.Dependencies) > 0 {
		if len(c.PackageManager.Query) == 0 || len(c.PackageManager.Install) == 0 {
			return &ValidationError{Field: "package_manager", Message: "query and install commands are required when dependencies are declared"}
		}
		if !containsPlaceholder(c.PackageManager.Install) {
			return &ValidationError{Field: "package_manager.install", Message: "must reference {name} or {spec}"}
		}
	}
	if c.PackageManager.VersionPattern != "" {
		if _, err := regexp.Compile(c.PackageManager.VersionPattern); err != nil {
			return &ValidationError{Field: "package_manager.version_pattern", Message: err.Error()}
		}
	}

	if c.Sync.Workers < 1 || c.Sync.Workers > MaxWorkers {
		return &ValidationError{Field: "sync.workers", Message: fmt.Sprintf("must be between 1 and %d", MaxWorkers)}
	}
	if c.Sync.Retries < 0 {
		return &ValidationError{Field: "sync.retries", Message: "cannot be negative"}
	}
	if c.Sync.Timeout <= 0 {
		return &ValidationError{Field: "sync.timeout", Message: "must be positive"}
	}
	if strings.ContainsAny(c.Sync.Marker, `/\`) {
		return &ValidationError{Field: "sync.marker", Message: "must be a plain file name"}
	}

	return nil
}

func validateHTTPURL(raw string) error {
	if !strings.HasPrefix(raw, "https://") && !strings.HasPrefix(raw, "http://") {
		return fmt.Errorf("must use http:// or https:// (got %q)", raw)
	}
	return nil
}

func containsPlaceholder(args []string) bool {
	for _, a := range args {
		if strings.Contains(a, "{name}") || strings.Contains(a, "{spec}") {
			return true
		}
	}
	return false
}
