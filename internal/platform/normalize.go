package platform

import (
	"fmt"
	"strings"
)

var familyMap = map[string]string{
	"debian":    FamilyDebian,
	"ubuntu":    FamilyDebian,
	"linuxmint": FamilyDebian,
	"rhel":      FamilyRHEL,
	"centos":    FamilyRHEL,
	"rocky":     FamilyRHEL,
	"almalinux": FamilyRHEL,
	"fedora":    FamilyFedora,
	"suse":      FamilySUSE,
	"opensuse":  FamilySUSE,
	"arch":      FamilyArch,
	"manjaro":   FamilyArch,
	"alpine":    FamilyAlpine,
}

// normalizeArch maps GOARCH values and common uname spellings to GOARCH names.
func normalizeArch(arch string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(arch)) {
	case "amd64", "x86_64", "x64":
		return "amd64", nil
	case "arm64", "aarch64":
		return "arm64", nil
	case "386", "i386", "i686", "x86":
		return "386", nil
	case "arm", "armv7", "armv7l":
		return "arm", nil
	default:
		return "", fmt.Errorf("unsupported architecture: %s", arch)
	}
}

func normalizeID(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// mapFamily returns the canonical family. gopsutil sometimes leaves the
// family empty, in which case the distro ID is looked up instead.
func mapFamily(family, distro string) string {
	if canonical, ok := familyMap[normalizeID(family)]; ok {
		return canonical
	}
	if canonical, ok := familyMap[normalizeID(distro)]; ok {
		return canonical
	}
	return FamilyUnknown
}
