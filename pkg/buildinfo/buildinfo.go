// Package buildinfo provides build-time version information.
//
// Variables are set via ldflags during build:
//
//	go build -ldflags "-X main.version=v1.0.0 \
//	    -X main.commit=$(git rev-parse HEAD) \
//	    -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)" ./cmd/mybget
//
// cmd/mybget hands them to this package through cli.SetVersion. Setting
// them here directly works as well:
//
//	-X github.com/matzehuels/mybget/pkg/buildinfo.Version=v1.0.0
package buildinfo

import "fmt"

var (
	// Version is the semantic version (e.g., "v1.2.3").
	Version = "dev"

	// Commit is the git commit SHA.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

// String returns the formatted build information.
func String() string {
	return fmt.Sprintf("version: %s\ncommit: %s\nbuilt: %s", Version, Commit, Date)
}

// Template returns the version template string for cobra.
func Template() string {
	return fmt.Sprintf("{{.Name}} version %s\ncommit: %s\nbuilt: %s\n", Version, Commit, Date)
}

// UserAgent is the default User-Agent sent to registries and mirrors.
func UserAgent() string {
	return "mybget/" + Version
}
