// Package version holds build-time identifying information for the willow
// binary, set via -ldflags at build time.
package version

import (
	"fmt"
	"runtime"
)

var (
	// CommitHash is the git commit hash the binary was built from.
	CommitHash = "dev"
	// BuildTime is when the binary was built.
	BuildTime = "unknown"
	// Version is the semantic version, if tagged.
	Version = "dev"
)

// Info is the structured form of the build identity, suitable for either
// human or JSON output.
type Info struct {
	CommitHash string `json:"commit_hash"`
	BuildTime  string `json:"build_time"`
	Version    string `json:"version"`
	GoVersion  string `json:"go_version"`
	Platform   string `json:"platform"`
}

// Get returns the current version information.
func Get() Info {
	return Info{
		CommitHash: CommitHash,
		BuildTime:  BuildTime,
		Version:    Version,
		GoVersion:  runtime.Version(),
		Platform:   fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// String returns a human-readable version string.
func (i Info) String() string {
	if i.Version != "dev" {
		return fmt.Sprintf("willow %s (commit %s, built %s)", i.Version, i.CommitHash, i.BuildTime)
	}
	return fmt.Sprintf("willow dev (commit %s, built %s)", i.CommitHash, i.BuildTime)
}
