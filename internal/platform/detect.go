package platform

import (
	"context"
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v4/host"
)

// RealDetector implements Detector using runtime facts and gopsutil.
type RealDetector struct{}

// NewDetector creates a new platform detector.
func NewDetector() Detector {
	return &RealDetector{}
}

// Detect returns the platform the launcher is running on.
//
// Distribution details come from gopsutil on Linux. When gopsutil cannot
// read them the distro fields stay empty and detection still succeeds;
// only a cancelled context is treated as a failure.
func (d *RealDetector) Detect(ctx context.Context) (*Info, error) {
	arch, err := normalizeArch(runtime.GOARCH)
	if err != nil {
		return nil, fmt.Errorf("platform detection failed: %w", err)
	}

	info := &Info{
		OS:      runtime.GOOS,
		Arch:    arch,
		ArchRaw: runtime.GOARCH,
	}

	if !info.IsLinux() {
		return info, nil
	}

	distro, family, release, err := host.PlatformInformationWithContext(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("platform detection cancelled: %w", ctx.Err())
		}
		return info, nil
	}

	if distro = normalizeID(distro); distro != "" {
		info.Distro = distro
		info.Family = mapFamily(family, distro)
		info.Release = normalizeID(release)
	}

	return info, nil
}

// StaticDetector returns a fixed Info. Useful for tests and for tooling that
// evaluates a config for another machine.
type StaticDetector struct {
	Info *Info
	Err  error
}

// Detect returns the configured values.
func (s StaticDetector) Detect(ctx context.Context) (*Info, error) {
	return s.Info, s.Err
}
