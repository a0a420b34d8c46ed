// Package platform detects the host OS, architecture and Linux distribution.
//
// The detected facts are exposed to starter.lua as a read-only "platform"
// table, and the self-updater uses them to pick the launcher build that
// matches the running machine.
package platform

import "context"

// Linux distribution family constants.
const (
	FamilyDebian  = "debian"  // Debian, Ubuntu, Linux Mint
	FamilyRHEL    = "rhel"    // RHEL, CentOS, Rocky Linux, AlmaLinux
	FamilyFedora  = "fedora"  // Fedora
	FamilySUSE    = "suse"    // openSUSE, SLES
	FamilyArch    = "arch"    // Arch Linux, Manjaro
	FamilyAlpine  = "alpine"  // Alpine Linux
	FamilyUnknown = "unknown" // Unrecognized distributions
)

// Info contains platform detection information.
type Info struct {
	OS      string // "linux", "darwin", "windows"
	Arch    string // normalized: "amd64", "arm64", "386", "arm"
	ArchRaw string // original GOARCH
	Distro  string // distro ID (Linux only, e.g. "ubuntu")
	Family  string // canonical family (Linux only, e.g. "debian")
	Release string // distro version (Linux only, e.g. "22.04")
}

// Detector detects platform information.
type Detector interface {
	Detect(ctx context.Context) (*Info, error)
}

// Key returns the "os/arch" pair used to match launcher builds.
func (i *Info) Key() string {
	return i.OS + "/" + i.Arch
}

// Matches reports whether a build published for goos/goarch runs here.
// Empty fields act as wildcards.
func (i *Info) Matches(goos, goarch string) bool {
	if goos != "" && goos != i.OS {
		return false
	}
	if goarch == "" {
		return true
	}
	arch, err := normalizeArch(goarch)
	if err != nil {
		return false
	}
	return arch == i.Arch
}

// IsLinux returns true if the platform is Linux.
func (i *Info) IsLinux() bool {
	return i.OS == "linux"
}

// IsMacOS returns true if the platform is macOS.
func (i *Info) IsMacOS() bool {
	return i.OS == "darwin"
}

// IsWindows returns true if the platform is Windows.
func (i *Info) IsWindows() bool {
	return i.OS == "windows"
}
