// Package version holds build metadata, set with -ldflags "-X ...".
package version

import (
	"fmt"
	"runtime/debug"
)

var (
	Version   = "v0.0.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func init() {
	fillFromBuildInfo()
}

// fillFromBuildInfo falls back on the VCS stamp Go embeds in binaries built
// from a checkout, for builds that did not pass ldflags.
func fillFromBuildInfo() {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if GitCommit == "unknown" && s.Value != "" {
				GitCommit = s.Value
			}
		case "vcs.time":
			if BuildTime == "unknown" && s.Value != "" {
				BuildTime = s.Value
			}
		}
	}
}

// ShortCommit returns the first 12 characters of GitCommit.
func ShortCommit() string {
	if len(GitCommit) > 12 {
		return GitCommit[:12]
	}
	return GitCommit
}

// Info returns a one-line description for logs and the version command.
func Info() string {
	return fmt.Sprintf("%s (%s) built at %s", Version, ShortCommit(), BuildTime)
}

// Fields returns the build metadata as key/value pairs for slog.
func Fields() []any {
	return []any{"version", Version, "commit", GitCommit, "build_time", BuildTime}
}
