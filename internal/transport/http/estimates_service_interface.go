package http

import (
	"context"

	"github.com/sharongu/zipline/internal/estimates"
	"github.com/sharongu/zipline/internal/services"
)

// EstimatesServiceInterface defines the estimates operations the handlers use
type EstimatesServiceInterface interface {
	DefaultSelector() estimates.Selector
	Fields(ctx context.Context) ([]string, error)
	Assets(ctx context.Context) ([]string, error)
	Status(ctx context.Context) services.DataStatus
	Reload(ctx context.Context) error
	Load(ctx context.Context, q services.LoadQuery) (*services.LoadResult, error)
	Export(ctx context.Context, result *services.LoadResult, format, filename string) (string, error)
	RecordStreamExport(ctx context.Context, format string, err error)
}
