package services

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sharongu/zipline/internal/shared/testutil"
	"github.com/sharongu/zipline/pkg/contracts"
)

func testBuild(version string) contracts.Build {
	b := contracts.CurrentBuild()
	b.Version = version
	return b
}

type MockDataStatus struct {
	mock.Mock
}

func (m *MockDataStatus) Status(ctx context.Context) DataStatus {
	args := m.Called(ctx)
	return args.Get(0).(DataStatus)
}

func TestHealthService_HealthCheck(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	hs := NewHealthService(testBuild("1.2.3"), t.TempDir(), nil, logger)

	status := hs.HealthCheck(context.Background())
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, "1.2.3", status.Version)
	assert.False(t, status.Timestamp.IsZero())
}

func TestHealthService_ReadinessCheck(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		data       func() DataStatusProvider
		dataDir    func(t *testing.T) string
		wantStatus string
		wantEvents string
		wantDir    string
	}{
		{
			name: "loaded",
			data: func() DataStatusProvider {
				m := &MockDataStatus{}
				m.On("Status", mock.Anything).Return(DataStatus{Loaded: true, Kept: 10, Assets: 2})
				return m
			},
			dataDir:    func(t *testing.T) string { return t.TempDir() },
			wantStatus: "ready",
			wantEvents: "ready",
			wantDir:    "ready",
		},
		{
			name: "no table yet",
			data: func() DataStatusProvider {
				m := &MockDataStatus{}
				m.On("Status", mock.Anything).Return(DataStatus{})
				return m
			},
			dataDir:    func(t *testing.T) string { return t.TempDir() },
			wantStatus: "not_ready",
			wantEvents: "not_ready",
			wantDir:    "ready",
		},
		{
			name:       "no estimates service",
			data:       func() DataStatusProvider { return nil },
			dataDir:    func(t *testing.T) string { return t.TempDir() },
			wantStatus: "not_ready",
			wantEvents: "not_ready",
			wantDir:    "ready",
		},
		{
			name: "missing data dir",
			data: func() DataStatusProvider {
				m := &MockDataStatus{}
				m.On("Status", mock.Anything).Return(DataStatus{Loaded: true})
				return m
			},
			dataDir:    func(t *testing.T) string { return filepath.Join(t.TempDir(), "missing") },
			wantStatus: "not_ready",
			wantEvents: "ready",
			wantDir:    "not_ready",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hs := NewHealthService(testBuild("1.0.0"), tt.dataDir(t), tt.data(), nil)
			status := hs.ReadinessCheck(ctx)

			assert.Equal(t, tt.wantStatus, status.Status)
			require.Contains(t, status.Checks, "events")
			assert.Equal(t, tt.wantEvents, status.Checks["events"].Status)
			assert.Equal(t, tt.wantDir, status.Checks["data_dir"].Status)
		})
	}
}

func TestHealthService_ReadinessMessage(t *testing.T) {
	m := &MockDataStatus{}
	m.On("Status", mock.Anything).Return(DataStatus{Loaded: true, Kept: 10, Assets: 2})
	hs := NewHealthService(testBuild("1.0.0"), t.TempDir(), m, nil)

	status := hs.ReadinessCheck(context.Background())
	assert.Equal(t, "10 events for 2 assets", status.Checks["events"].Message)
	m.AssertExpectations(t)
}

func TestHealthService_LivenessAndVersion(t *testing.T) {
	build := testBuild("1.0.0")
	build.BuildTime = "2026-01-01T00:00:00Z"
	hs := NewHealthService(build, t.TempDir(), nil, nil)

	live := hs.LivenessCheck(context.Background())
	assert.Equal(t, "alive", live.Status)
	require.NotNil(t, live.Runtime)
	assert.Greater(t, live.Runtime.Goroutines, 0)
	assert.GreaterOrEqual(t, live.Runtime.UptimeSeconds, 0.0)

	v := hs.Version()
	assert.Equal(t, "1.0.0", v.Version)
	assert.Equal(t, "2026-01-01T00:00:00Z", v.BuildTime)
	assert.NotEmpty(t, v.GoVersion)
	assert.GreaterOrEqual(t, v.UptimeSeconds, 0.0)
}

func TestHealthService_EstimatesServiceSatisfiesProvider(t *testing.T) {
	var _ DataStatusProvider = (*EstimatesService)(nil)
}
