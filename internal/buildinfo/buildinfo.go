// Package buildinfo carries the version stamped in with -ldflags:
//
//	-X hwkern/internal/buildinfo.Version=v0.3.0
//	-X hwkern/internal/buildinfo.Commit=$(git rev-parse --short HEAD)
package buildinfo

import "fmt"

var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Short returns a compact build identifier for the window title and logs.
func Short() string {
	if Version != "" && Version != "dev" {
		return Version
	}
	if Commit != "" && Commit != "unknown" {
		return Commit
	}
	return "dev"
}

// String returns every known field.
func String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, Date)
}
