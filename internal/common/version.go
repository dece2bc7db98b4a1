package common

import (
	"fmt"
)

// Version information (set via -ldflags during build)
var (
	Version   = "0.1.0"
	Build     = "unknown"
	GitCommit = "unknown"
)

// GetVersion returns the current version string
func GetVersion() string {
	return Version
}

// GetFullVersion returns version with build info
func GetFullVersion() string {
	return fmt.Sprintf("%s (build: %s, commit: %s)", Version, Build, GitCommit)
}

// UserAgent returns the HTTP User-Agent sent to data providers
func UserAgent() string {
	return fmt.Sprintf("deepstock-bot/%s", Version)
}
