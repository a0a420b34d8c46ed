package config

import "time"

// Lua schema field names and globals
const (
	luaGlobalStarter      = "starter"
	luaFieldName          = "name"
	luaFieldManifest      = "manifest"
	luaFieldURL           = "url"
	luaFieldSignatureURL  = "signature_url"
	luaFieldKeyring       = "keyring"
	luaFieldBundleURL     = "bundle_url"
	luaFieldTrustedRoot   = "trusted_root"
	luaFieldIdentity      = "identity"
	luaFieldIssuer        = "issuer"
	luaFieldSANRegexp     = "san_regexp"
	luaFieldGitHub        = "github"
	luaFieldOwner         = "owner"
	luaFieldRepo          = "repo"
	luaFieldBranch        = "branch"
	luaFieldPrefix        = "prefix"
	luaFieldTokenEnv      = "token_env"
	luaFieldAPIURL        = "api_url"
	luaFieldRawURL        = "raw_url"
	luaFieldApp           = "app"
	luaFieldCommand       = "command"
	luaFieldMode          = "mode"
	luaFieldRestartCode   = "restart_exit_code"
	luaFieldEnv           = "env"
	luaFieldDependencies  = "dependencies"
	luaFieldMinVersion    = "min_version"
	luaFieldPackageMgr    = "package_manager"
	luaFieldQuery         = "query"
	luaFieldInstall       = "install"
	luaFieldVersionRegexp = "version_pattern"
	luaFieldSync          = "sync"
	luaFieldWorkers       = "workers"
	luaFieldTimeout       = "timeout"
	luaFieldRetries       = "retries"
	luaFieldMarker        = "marker"
	luaFieldSelfUpdate    = "self_update"
)

// Defaults and limits.
const (
	DefaultFileName        = "starter.lua"
	DefaultMarkerFile      = "version.json"
	DefaultWorkers         = 4
	MaxWorkers             = 64
	DefaultRetries         = 3
	DefaultTimeout         = 30 * time.Second
	DefaultRestartExitCode = 75
	DefaultGitHubBranch    = "main"
	DefaultGitHubAPI       = "https://api.github.com"
	DefaultGitHubRaw       = "https://raw.githubusercontent.com"
	DefaultTokenEnv        = "GITHUB_TOKEN"

	// MaxConfigSize bounds starter.lua before it reaches the Lua VM.
	MaxConfigSize = 1 << 20
	// ParseTimeout bounds evaluation of starter.lua.
	ParseTimeout = 5 * time.Second
)

// Environment variables consulted by Load.
const (
	EnvDir    = "STARTER_DIR"
	EnvConfig = "STARTER_CONFIG"
)
