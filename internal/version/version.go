// Package version holds build metadata injected with -ldflags, e.g.
//
//	go build -ldflags "-X github.com/HerbHall/sleepcast/internal/version.Version=v0.3.0"
package version

import (
	"runtime"
	"strings"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Short returns the version without a leading "v".
func Short() string {
	return strings.TrimPrefix(Version, "v")
}

// Map returns the build metadata as a flat map for JSON responses.
func Map() map[string]string {
	return map[string]string{
		"version":    Short(),
		"git_commit": GitCommit,
		"build_date": BuildDate,
		"go_version": runtime.Version(),
	}
}

// Info is the one-line form printed by `sleepcast version`.
func Info() string {
	commit := GitCommit
	if len(commit) > 7 {
		commit = commit[:7]
	}
	return "sleepcast " + Short() + " (" + commit + ", built " + BuildDate + ", " + runtime.Version() + ")"
}
