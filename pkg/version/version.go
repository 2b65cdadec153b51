// Package version holds the build version of tarotbot.
// The variables are set at build time via ldflags.
package version

import "fmt"

// Build information. Example:
// go build -ldflags "-X tarotbot/pkg/version.Version=v1.2.3".
//
//nolint:gochecknoglobals // These must be package-level vars for ldflags injection.
var (
	// Version is the semantic version, or "dev" for local builds.
	Version = "dev"

	// Commit is the git commit SHA of the build.
	Commit = "none"

	// Date is the build date in ISO format.
	Date = "unknown"
)

// String formats the build information for --version output.
func String() string {
	return fmt.Sprintf("tarotbot %s (commit %s, built %s)", Version, Commit, Date)
}
