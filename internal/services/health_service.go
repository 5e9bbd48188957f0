package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/sharongu/zipline/internal/infrastructure"
	"github.com/sharongu/zipline/pkg/contracts"
)

// Health states
const (
	StatusOK       = "ok"
	StatusReady    = "ready"
	StatusNotReady = "not_ready"
	StatusAlive    = "alive"
)

// DataStatusProvider reports the state of the loaded event table
type DataStatusProvider interface {
	Status(ctx context.Context) DataStatus
}

// HealthService answers the health, readiness and liveness checks of the
// estimates server. It is ready once an event table is installed and the
// data directory can be read.
type HealthService struct {
	build   contracts.Build
	dataDir string
	data    DataStatusProvider
	started time.Time
}

// HealthStatus is the body of every /healthz response
type HealthStatus struct {
	Status    string                       `json:"status"`
	Timestamp time.Time                    `json:"timestamp"`
	Version   string                       `json:"version"`
	Runtime   *infrastructure.RuntimeStats `json:"runtime,omitempty"`
	Checks    map[string]Check             `json:"checks,omitempty"`
}

// Check is the outcome of one readiness check
type Check struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// VersionInfo is the build of the server and how long it has been up
type VersionInfo struct {
	contracts.Build
	StartTime     time.Time `json:"start_time"`
	UptimeSeconds float64   `json:"uptime_seconds"`
}

// NewHealthService creates a HealthService. data may be nil, in which case
// the server never reports ready.
func NewHealthService(build contracts.Build, dataDir string, data DataStatusProvider, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("health checks configured",
		slog.String("build", build.String()),
		slog.String("data_dir", dataDir))
	return &HealthService{build: build, dataDir: dataDir, data: data, started: time.Now()}
}

func (hs *HealthService) status(state string) HealthStatus {
	return HealthStatus{Status: state, Timestamp: time.Now(), Version: hs.build.Version}
}

// HealthCheck reports that the process is serving
func (hs *HealthService) HealthCheck(ctx context.Context) HealthStatus {
	return hs.status(StatusOK)
}

// ReadinessCheck runs the events and data_dir checks; any failing check
// makes the whole status not_ready
func (hs *HealthService) ReadinessCheck(ctx context.Context) HealthStatus {
	st := hs.status(StatusReady)
	st.Checks = map[string]Check{
		"events":   hs.checkEvents(ctx),
		"data_dir": hs.checkDataDir(),
	}
	for _, c := range st.Checks {
		if c.Status != StatusReady {
			st.Status = StatusNotReady
		}
	}
	return st
}

// LivenessCheck reports the process alive with its runtime statistics
func (hs *HealthService) LivenessCheck(ctx context.Context) HealthStatus {
	st := hs.status(StatusAlive)
	stats := infrastructure.CollectRuntimeStats(hs.started)
	st.Runtime = &stats
	return st
}

// Version returns the build and uptime
func (hs *HealthService) Version() VersionInfo {
	return VersionInfo{
		Build:         hs.build,
		StartTime:     hs.started.UTC(),
		UptimeSeconds: time.Since(hs.started).Seconds(),
	}
}

func (hs *HealthService) checkEvents(ctx context.Context) Check {
	if hs.data == nil {
		return Check{Status: StatusNotReady, Message: "estimates service not initialized"}
	}
	st := hs.data.Status(ctx)
	if !st.Loaded {
		return Check{Status: StatusNotReady, Message: "no event table loaded"}
	}
	return Check{Status: StatusReady, Message: fmt.Sprintf("%d events for %d assets", st.Kept, st.Assets)}
}

func (hs *HealthService) checkDataDir() Check {
	info, err := os.Stat(hs.dataDir)
	switch {
	case err != nil:
		return Check{Status: StatusNotReady, Message: fmt.Sprintf("data directory unavailable: %v", err)}
	case !info.IsDir():
		return Check{Status: StatusNotReady, Message: hs.dataDir + " is not a directory"}
	}
	return Check{Status: StatusReady}
}
