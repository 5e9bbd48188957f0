package contracts

import (
	"fmt"
	"runtime"
)

// Version is the release of the estimates service and CLI
const Version = "1.0.0"

// APIVersion prefixes the HTTP routes; ExportLayout versions the column
// layout of CSV and XLSX exports
const (
	APIVersion   = "v1"
	ExportLayout = "v1"
)

// Set with -ldflags "-X github.com/sharongu/zipline/pkg/contracts.GitCommit=..."
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Build describes the running binary. It is served by GET /api/v1/version
// and logged by the CLI.
type Build struct {
	Version      string `json:"version"`
	BuildTime    string `json:"build_time"`
	GitCommit    string `json:"git_commit"`
	GoVersion    string `json:"go_version"`
	Platform     string `json:"platform"`
	APIVersion   string `json:"api_version"`
	ExportLayout string `json:"export_layout"`
}

// CurrentBuild returns the Build of this binary
func CurrentBuild() Build {
	return Build{
		Version:      Version,
		BuildTime:    BuildTime,
		GitCommit:    GitCommit,
		GoVersion:    runtime.Version(),
		Platform:     runtime.GOOS + "/" + runtime.GOARCH,
		APIVersion:   APIVersion,
		ExportLayout: ExportLayout,
	}
}

// String renders b as "estimates v1.0.0 (abc123, go1.23.0 linux/amd64)"
func (b Build) String() string {
	return fmt.Sprintf("estimates v%s (%s, %s %s)", b.Version, b.GitCommit, b.GoVersion, b.Platform)
}
