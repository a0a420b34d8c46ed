// Package selfupdate replaces the running launcher binary with a newer build
// published in the manifest.
package selfupdate

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/inconshreveable/go-update"
	"golang.org/x/mod/semver"

	"github.com/ZebulonRouseFrantzich/starter/internal/integrity"
	"github.com/ZebulonRouseFrantzich/starter/internal/logging"
	"github.com/ZebulonRouseFrantzich/starter/internal/manifest"
)

// Downloader fetches a URL into a local file. *manifest.Client satisfies it.
type Downloader interface {
	DownloadToFile(ctx context.Context, url, destPath string) error
}

// DefaultBinaryName is the launcher file looked up inside archived builds.
const DefaultBinaryName = "starter"

// Options configures an Updater. Empty GOOS/GOARCH select the running
// platform; an empty Target selects os.Executable().
type Options struct {
	Current    string // running launcher version
	Target     string
	GOOS       string
	GOARCH     string
	BinaryName string // file to take from .tar.gz builds; ".exe" is added on windows
	StagingDir string
	Downloader Downloader
	Logger     logging.Logger
}

// Updater checks for and applies launcher updates.
type Updater struct {
	opts   Options
	logger logging.Logger
}

// New creates a new updater
func New(opts Options) *Updater {
	if opts.GOOS == "" {
		opts.GOOS = runtime.GOOS
	}
	if opts.GOARCH == "" {
		opts.GOARCH = runtime.GOARCH
	}
	if opts.BinaryName == "" {
		opts.BinaryName = DefaultBinaryName
	}
	if opts.GOOS == "windows" && !strings.HasSuffix(opts.BinaryName, ".exe") {
		opts.BinaryName += ".exe"
	}
	return &Updater{opts: opts, logger: logging.OrNop(opts.Logger)}
}

// Check returns the build published for this platform when it is newer
// than the running version. A running version that is not semver (a
// development build) never updates.
func (u *Updater) Check(m *manifest.Manifest) (manifest.LauncherBuild, bool) {
	b, ok := m.LauncherFor(u.opts.GOOS, u.opts.GOARCH)
	if !ok {
		return manifest.LauncherBuild{}, false
	}

	current, published := canonical(u.opts.Current), canonical(b.Version)
	if current == "" || published == "" {
		u.logger.Debug("skipping self-update for non-semver version", "current", u.opts.Current, "published", b.Version)
		return manifest.LauncherBuild{}, false
	}
	if semver.Compare(published, current) <= 0 {
		return manifest.LauncherBuild{}, false
	}
	return b, true
}

// Apply downloads b, verifies it against its manifest hash and replaces the
// target binary. A build published as a .tar.gz is hashed as an archive and
// the launcher binary is taken from it. On failure the previous binary is
// restored.
func (u *Updater) Apply(ctx context.Context, b manifest.LauncherBuild) error {
	target := u.opts.Target
	if target == "" {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("locate launcher binary: %w", err)
		}
		if target, err = filepath.EvalSymlinks(exe); err != nil {
			return fmt.Errorf("resolve launcher binary: %w", err)
		}
	}

	want, err := integrity.ParseHash(b.Hash)
	if err != nil {
		return fmt.Errorf("launcher build hash: %w", err)
	}

	if err := os.MkdirAll(u.opts.StagingDir, 0o755); err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	staged := filepath.Join(u.opts.StagingDir, fmt.Sprintf("launcher-%s-%s", b.OS, b.Arch))
	defer os.Remove(staged)

	if err := u.opts.Downloader.DownloadToFile(ctx, b.URL, staged); err != nil {
		return fmt.Errorf("download launcher %s: %w", b.Version, err)
	}

	got, err := integrity.HashFile(staged, want.Algorithm)
	if err != nil {
		return fmt.Errorf("hash launcher: %w", err)
	}
	if !got.Equal(want) {
		return &integrity.ChecksumError{Path: b.URL, Expected: want.String(), Got: got.String()}
	}

	binary := staged
	archived := isTarGz(b.URL)
	if archived {
		binary = staged + ".bin"
		defer os.Remove(binary)
		if err := extractBinary(staged, binary, u.opts.BinaryName); err != nil {
			return fmt.Errorf("extract launcher %s: %w", b.Version, err)
		}
	}

	f, err := os.Open(binary)
	if err != nil {
		return fmt.Errorf("open staged launcher: %w", err)
	}
	defer f.Close()

	opts := update.Options{TargetPath: target}
	if want.Algorithm == integrity.SHA256 && !archived {
		// go-update re-checks the bytes it writes.
		sum, err := hex.DecodeString(want.Hex)
		if err != nil {
			return fmt.Errorf("decode launcher hash: %w", err)
		}
		opts.Checksum = sum
	}

	if err := update.Apply(f, opts); err != nil {
		if rerr := update.RollbackError(err); rerr != nil {
			return fmt.Errorf("apply launcher update: %w (rollback failed: %v)", err, rerr)
		}
		return fmt.Errorf("apply launcher update: %w", err)
	}

	u.logger.Info("launcher updated", "from", u.opts.Current, "to", b.Version, "path", target)
	return nil
}

func canonical(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return ""
	}
	return semver.Canonical(v)
}
