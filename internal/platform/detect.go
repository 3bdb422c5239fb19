package platform

import (
	"context"
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v4/host"
)

// RealDetector implements Detector using actual platform detection.
type RealDetector struct{}

// NewDetector creates a new platform detector.
func NewDetector() Detector {
	return &RealDetector{}
}

// Detect performs platform detection and returns platform information.
// It uses runtime.GOOS and runtime.GOARCH for OS and architecture,
// and gopsutil for Linux distribution details.
//
// On Linux, if gopsutil fails to detect the distribution, the distro fields
// stay empty and libc defaults to glibc.
func (d *RealDetector) Detect(ctx context.Context) (*Info, error) {
	info := &Info{
		OS:      runtime.GOOS,
		ArchRaw: runtime.GOARCH,
	}

	osName, err := normalizeOS(runtime.GOOS)
	if err != nil {
		return nil, fmt.Errorf("platform detection failed: %w", err)
	}
	info.OS = osName

	arch, err := normalizeArch(runtime.GOARCH)
	if err != nil {
		return nil, fmt.Errorf("platform detection failed: %w", err)
	}
	info.Arch = arch

	if info.OS != "linux" {
		return info, nil
	}

	info.Libc = LibcGNU

	platform, family, version, err := host.PlatformInformationWithContext(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("platform detection cancelled: %w", ctx.Err())
		}
		return info, nil
	}

	platform = normalizePlatform(platform)
	family = mapFamily(family)
	if family == FamilyUnknown {
		// gopsutil reports alpine as both platform and family on some releases
		family = mapFamily(platform)
	}

	if platform != "" {
		info.Platform = platform
		info.Family = family
		info.Version = normalizePlatform(version)
	}

	info.Libc = libcForFamily(info.Family)

	return info, nil
}

// StaticDetector returns a fixed Info. It is used when the user pins a
// platform on the command line.
type StaticDetector struct {
	Info Info
}

// Detect returns a copy of the pinned platform information.
func (d StaticDetector) Detect(ctx context.Context) (*Info, error) {
	info := d.Info
	return &info, nil
}

func libcForFamily(family string) string {
	if family == FamilyAlpine {
		return LibcMusl
	}
	return LibcGNU
}
