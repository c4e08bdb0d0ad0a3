// Package version carries the build identity stamped into the docsplit
// binary at link time.
package version

import "fmt"

// Overridden by the release build via
// -ldflags "-X github.com/MeKo-Tech/docsplit/internal/version.Version=...".
// The defaults identify a local development build.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info returns the version, commit and build date.
func Info() (ver, commit, date string) {
	return Version, GitCommit, BuildDate
}

// String renders the build identity on one line for logs and the
// status surface.
func String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, GitCommit, BuildDate)
}
