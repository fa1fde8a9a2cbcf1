// Package version holds build metadata for docdrift.
package version

import "runtime"

// Set at build time:
// go build -ldflags "-X docdrift/internal/version.Version=0.4.1 -X docdrift/internal/version.Commit=$(git rev-parse HEAD)"
var (
	Version   = "0.4.0"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Info returns the version with a short commit suffix when known.
func Info() string {
	if Commit != "unknown" && len(Commit) > 7 {
		return Version + " (" + Commit[:7] + ")"
	}
	return Version
}

// Full returns the multi-line version banner.
func Full() string {
	return "docdrift " + Version + "\n" +
		"commit: " + Commit + "\n" +
		"built:  " + BuildDate + "\n" +
		"go:     " + runtime.Version()
}

// BuildInfo is the machine-readable form of Full.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"buildDate"`
	GoVersion string `json:"goVersion"`
}

// Get returns the current build info.
func Get() BuildInfo {
	return BuildInfo{Version: Version, Commit: Commit, BuildDate: BuildDate, GoVersion: runtime.Version()}
}
