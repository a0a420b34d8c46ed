package deps

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/mod/semver"
)

var numericPrefix = regexp.MustCompile(`^v?(\d+)(\.\d+)?(\.\d+)?`)

// Canonical converts a package version into a semver string understood by
// golang.org/x/mod/semver. A missing "v" prefix and short versions ("2",
// "2.31") are accepted; versions semver cannot express ("2.31.0.post1",
// "1.2.3.4") are reduced to their leading numeric components.
func Canonical(version string) (string, error) {
	v := strings.TrimSpace(version)
	if v == "" {
		return "", fmt.Errorf("empty version")
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if semver.IsValid(v) {
		return semver.Canonical(v), nil
	}

	m := numericPrefix.FindString(v)
	if m == "" || !semver.IsValid(m) {
		return "", fmt.Errorf("unrecognized version %q", version)
	}
	return semver.Canonical(m), nil
}

// Satisfies reports whether installed meets min. An empty min accepts any
// installed version, including an unknown one.
func Satisfies(installed, min string) (bool, error) {
	if strings.TrimSpace(min) == "" {
		return true, nil
	}
	if strings.TrimSpace(installed) == "" {
		return false, nil
	}

	want, err := Canonical(min)
	if err != nil {
		return false, fmt.Errorf("minimum version: %w", err)
	}
	have, err := Canonical(installed)
	if err != nil {
		return false, fmt.Errorf("installed version: %w", err)
	}
	return semver.Compare(have, want) >= 0, nil
}
