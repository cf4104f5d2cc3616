package version

import (
	"fmt"
	"runtime"
)

// Service is the name reported by /version and the health endpoint.
const Service = "meterdash"

// Build information set via -ldflags "-X .../pkg/version.Version=..."
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains all build-related information
type BuildInfo struct {
	Service   string `json:"service"`
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

// GetVersion returns the release version, or dev-<short commit> for local
// builds.
func GetVersion() string {
	if Version != "dev" {
		return Version
	}
	switch {
	case len(GitCommit) >= 8:
		return "dev-" + GitCommit[:8]
	case GitCommit != "":
		return "dev-" + GitCommit
	default:
		return "dev-unknown"
	}
}

// GetFullVersion returns a detailed version string
func GetFullVersion() string {
	return fmt.Sprintf("%s %s (commit: %s, built: %s, go: %s)",
		Service, GetVersion(), GitCommit, BuildDate, GoVersion)
}

// GetBuildInfo returns all build information
func GetBuildInfo() *BuildInfo {
	return &BuildInfo{
		Service:   Service,
		Version:   GetVersion(),
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: GoVersion,
	}
}
