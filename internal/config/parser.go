package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ZebulonRouseFrantzich/starter/internal/platform"
	lua "github.com/yuin/gopher-lua"
)

// Parser evaluates starter.lua with platform detection.
type Parser struct {
	detector platform.Detector
}

// NewParser creates a new config parser with the given platform detector.
// A nil detector leaves the platform table undefined.
func NewParser(detector platform.Detector) *Parser {
	return &Parser{detector: detector}
}

// ParseError represents a config parsing error with friendly message.
type ParseError struct {
	Message string // User-friendly message
	Detail  string // Technical details (raw Lua error)
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Message, e.Detail)
}

// ParseFile reads and parses a config file.
func (p *Parser) ParseFile(ctx context.Context, path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config: %w", err)
	}
	if info.Size() > MaxConfigSize {
		return nil, &ParseError{
			Message: "config file too large",
			Detail:  fmt.Sprintf("%d bytes, maximum is %d", info.Size(), MaxConfigSize),
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	return p.ParseString(ctx, string(data))
}

// ParseString parses a Lua config from a string. Defaults are applied and
// the result is validated.
func (p *Parser) ParseString(ctx context.Context, code string) (*Config, error) {
	L := newSandboxedVM()
	defer L.Close()

	ctx, cancel := context.WithTimeout(ctx, ParseTimeout)
	defer cancel()
	L.SetContext(ctx)

	if p.detector != nil {
		info, err := p.detector.Detect(ctx)
		if err != nil {
			return nil, fmt.Errorf("platform detection failed: %w", err)
		}
		if err := platform.InjectPlatformTable(L, info); err != nil {
			return nil, fmt.Errorf("inject platform table: %w", err)
		}
	}

	if err := L.DoString(code); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &ParseError{Message: "config evaluation timed out", Detail: ParseTimeout.String()}
		}
		return nil, &ParseError{Message: "Lua syntax error", Detail: err.Error()}
	}

	cfg, err := extractConfig(L)
	if err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadOptions controls where Load looks for the config.
type LoadOptions struct {
	// Dir is the managed root. Defaults to $STARTER_DIR, then the working directory.
	Dir string
	// Path is the config file. Defaults to $STARTER_CONFIG, then Dir/starter.lua.
	Path     string
	Detector platform.Detector
}

// Load resolves the root directory and config path, then parses the file.
func Load(ctx context.Context, opts LoadOptions) (*Config, error) {
	dir, path, err := ResolvePaths(opts.Dir, opts.Path)
	if err != nil {
		return nil, err
	}

	cfg, err := NewParser(opts.Detector).ParseFile(ctx, path)
	if err != nil {
		return nil, err
	}

	cfg.Dir = dir
	cfg.Path = path
	return cfg, nil
}

// ResolvePaths applies the environment and default fallbacks for the
// managed root and the config file. Returned paths are absolute.
func ResolvePaths(dir, path string) (string, string, error) {
	if dir == "" {
		dir = os.Getenv(EnvDir)
	}
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", "", fmt.Errorf("get working directory: %w", err)
		}
		dir = wd
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", "", fmt.Errorf("resolve dir: %w", err)
	}

	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path == "" {
		path = filepath.Join(dir, DefaultFileName)
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}

	return dir, path, nil
}

// extractConfig reads the global "starter" table.
func extractConfig(L *lua.LState) (*Config, error) {
	root, ok := L.GetGlobal(luaGlobalStarter).(*lua.LTable)
	if !ok {
		return nil, &ParseError{
			Message: "missing or invalid 'starter' table",
			Detail:  fmt.Sprintf("expected table, got %s", L.GetGlobal(luaGlobalStarter).Type()),
		}
	}

	cfg := &Config{
		Name: getString(root, luaFieldName),
	}

	if t := getTable(root, luaFieldManifest); t != nil {
		cfg.Manifest = ManifestSource{
			URL:          getString(t, luaFieldURL),
			SignatureURL: getString(t, luaFieldSignatureURL),
			Keyring:      getString(t, luaFieldKeyring),
			BundleURL:    getString(t, luaFieldBundleURL),
			TrustedRoot:  getString(t, luaFieldTrustedRoot),
		}
		if id := getTable(t, luaFieldIdentity); id != nil {
			cfg.Manifest.Identity = Identity{
				Issuer:    getString(id, luaFieldIssuer),
				SANRegexp: getString(id, luaFieldSANRegexp),
			}
		}
	}

	if t := getTable(root, luaFieldGitHub); t != nil {
		cfg.GitHub = &GitHubSource{
			Owner:    getString(t, luaFieldOwner),
			Repo:     getString(t, luaFieldRepo),
			Branch:   getString(t, luaFieldBranch),
			Prefix:   strings.Trim(getString(t, luaFieldPrefix), "/"),
			TokenEnv: getString(t, luaFieldTokenEnv),
			APIURL:   strings.TrimRight(getString(t, luaFieldAPIURL), "/"),
			RawURL:   strings.TrimRight(getString(t, luaFieldRawURL), "/"),
		}
	}

	if t := getTable(root, luaFieldApp); t != nil {
		cfg.App = App{
			Command:         getStringList(t, luaFieldCommand),
			Mode:            LaunchMode(getString(t, luaFieldMode)),
			RestartExitCode: getInt(t, luaFieldRestartCode),
			Env:             getStringMap(t, luaFieldEnv),
		}
	}

	if t := getTable(root, luaFieldDependencies); t != nil {
		deps, err := extractDependencies(t)
		if err != nil {
			return nil, err
		}
		cfg.Dependencies = deps
	}

	if t := getTable(root, luaFieldPackageMgr); t != nil {
		cfg.PackageManager = PackageManager{
			Query:          getStringList(t, luaFieldQuery),
			Install:        getStringList(t, luaFieldInstall),
			VersionPattern: getString(t, luaFieldVersionRegexp),
		}
	}

	if t := getTable(root, luaFieldSync); t != nil {
		cfg.Sync = Sync{
			Workers: getInt(t, luaFieldWorkers),
			Retries: getInt(t, luaFieldRetries),
			Timeout: time.Duration(getInt(t, luaFieldTimeout)) * time.Second,
			Marker:  getString(t, luaFieldMarker),
		}
	}

	if v, ok := root.RawGetString(luaFieldSelfUpdate).(lua.LBool); ok {
		cfg.SelfUpdate = bool(v)
	}

	return cfg, nil
}

// extractDependencies accepts plain strings ("requests", "requests>=2.31")
// and tables ({name = "requests", min_version = "2.31"}). Nil holes left by
// platform.when are skipped.
func extractDependencies(t *lua.LTable) ([]Dependency, error) {
	var deps []Dependency
	var bad lua.LValue

	t.ForEach(func(_, value lua.LValue) {
		switch v := value.(type) {
		case lua.LString:
			name, minVersion, _ := strings.Cut(string(v), ">=")
			deps = append(deps, Dependency{
				Name:       strings.TrimSpace(name),
				MinVersion: strings.TrimSpace(minVersion),
			})
		case *lua.LTable:
			deps = append(deps, Dependency{
				Name:       getString(v, luaFieldName),
				MinVersion: getString(v, luaFieldMinVersion),
			})
		case *lua.LNilType, lua.LBool:
			// platform.when(false, ...) or `cond and x` leftovers
		default:
			if bad == nil {
				bad = value
			}
		}
	})

	if bad != nil {
		return nil, &ParseError{
			Message: "invalid dependency entry",
			Detail:  fmt.Sprintf("expected string or table, got %s", bad.Type()),
		}
	}
	return deps, nil
}

func getTable(t *lua.LTable, key string) *lua.LTable {
	v, _ := t.RawGetString(key).(*lua.LTable)
	return v
}

func getString(t *lua.LTable, key string) string {
	if v, ok := t.RawGetString(key).(lua.LString); ok {
		return string(v)
	}
	return ""
}

func getInt(t *lua.LTable, key string) int {
	if v, ok := t.RawGetString(key).(lua.LNumber); ok {
		return int(v)
	}
	return 0
}

// getStringList reads an array of strings. A single string is treated as a
// one-element list.
func getStringList(t *lua.LTable, key string) []string {
	switch v := t.RawGetString(key).(type) {
	case lua.LString:
		return []string{string(v)}
	case *lua.LTable:
		var out []string
		for i := 1; i <= v.Len(); i++ {
			if s, ok := v.RawGetInt(i).(lua.LString); ok {
				out = append(out, string(s))
			}
		}
		return out
	}
	return nil
}

func getStringMap(t *lua.LTable, key string) map[string]string {
	v, ok := t.RawGetString(key).(*lua.LTable)
	if !ok {
		return nil
	}
	out := make(map[string]string)
	v.ForEach(func(k, val lua.LValue) {
		ks, kok := k.(lua.LString)
		if !kok {
			return
		}
		switch val.(type) {
		case lua.LString, lua.LNumber, lua.LBool:
			out[string(ks)] = val.String()
		}
	})
	return out
}

// FormatError formats a ParseError for user display.
// In verbose mode, show the raw Lua error. Otherwise, show friendly message.
func FormatError(err error, verbose bool) string {
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		if verbose {
			return fmt.Sprintf("%s\n\nDetails:\n%s", parseErr.Message, parseErr.Detail)
		}
		detail := parseErr.Detail
		if idx := strings.Index(detail, "stack traceback"); idx > 0 {
			detail = strings.TrimSpace(detail[:idx])
		}
		return fmt.Sprintf("%s: %s", parseErr.Message, detail)
	}
	return err.Error()
}
