package http

import (
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/sharongu/zipline/internal/adjusted"
	apierrors "github.com/sharongu/zipline/internal/errors"
	"github.com/sharongu/zipline/internal/estimates"
	"github.com/sharongu/zipline/internal/exporter"
	"github.com/sharongu/zipline/internal/middleware"
	"github.com/sharongu/zipline/internal/services"
	api "github.com/sharongu/zipline/pkg/contracts/api/v1"
)

// EstimatesHandler serves point-in-time estimate loads
type EstimatesHandler struct {
	service      EstimatesServiceInterface
	validator    *middleware.ValidationMiddleware
	query        *middleware.QueryParamValidator
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewEstimatesHandler creates a new estimates handler
func NewEstimatesHandler(service EstimatesServiceInterface, validator *middleware.ValidationMiddleware, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *EstimatesHandler {
	return &EstimatesHandler{
		service:      service,
		validator:    validator,
		query:        middleware.NewQueryParamValidator(errorHandler),
		logger:       logger.With(slog.String("component", "estimates_handler")),
		errorHandler: errorHandler,
	}
}

// Routes returns the estimates routes
func (h *EstimatesHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/fields", h.GetFields)
	r.Get("/assets", h.GetAssets)
	r.Get("/status", h.GetStatus)
	r.Post("/reload", h.Reload)
	r.With(middleware.ContentTypeValidator("application/json")).Post("/load", h.Load)

	return r
}

// GetFields handles GET /api/v1/estimates/fields
func (h *EstimatesHandler) GetFields(w http.ResponseWriter, r *http.Request) {
	fields, err := h.service.Fields(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, api.FieldsResponse{
		Fields:          fields,
		DefaultSelector: h.service.DefaultSelector().String(),
	})
}

// GetAssets handles GET /api/v1/estimates/assets
func (h *EstimatesHandler) GetAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := h.service.Assets(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, api.AssetsResponse{Assets: assets, Count: len(assets)})
}

// GetStatus handles GET /api/v1/estimates/status
func (h *EstimatesHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.Status(r.Context()))
}

// Reload handles POST /api/v1/estimates/reload
func (h *EstimatesHandler) Reload(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Reload(r.Context()); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	st := h.service.Status(r.Context())
	render.JSON(w, r, api.ReloadResponse{
		Rows:     st.Rows,
		Kept:     st.Kept,
		Dropped:  st.Dropped,
		LoadedAt: st.LoadedAt,
	})
}

// Load handles POST /api/v1/estimates/load. ?format=csv or ?format=xlsx
// streams the result as a download instead of JSON.
func (h *EstimatesHandler) Load(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	format, ok := h.query.ValidateEnum(w, r, "format", []string{"json", exporter.FormatCSV, exporter.FormatXLSX}, "json")
	if !ok {
		return
	}

	var req api.LoadRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	q, err := toLoadQuery(req)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.logger.InfoContext(ctx, "loading estimates",
		slog.String("request_id", middleware.GetRequestID(ctx)),
		slog.Int("columns", len(q.Columns)),
		slog.Int("dates", len(q.Dates)),
		slog.Int("assets", len(q.Assets)),
		slog.String("format", format))

	result, err := h.service.Load(ctx, q)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	var exportPath string
	if req.Export != "" {
		if exportPath, err = h.service.Export(ctx, result, req.Export, ""); err != nil {
			h.errorHandler.HandleError(w, r, err)
			return
		}
	}

	if format != "json" {
		h.stream(w, r, result, format)
		return
	}

	resp, err := toLoadResponse(result, req.AsOf)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	resp.ExportPath = exportPath
	render.JSON(w, r, resp)
}

func (h *EstimatesHandler) stream(w http.ResponseWriter, r *http.Request, result *services.LoadResult, format string) {
	filename := fmt.Sprintf("estimates_%s.%s", result.Selector, format)
	w.Header().Set("Content-Type", exporter.ContentType(format))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)

	err := exporter.Write(w, result.Dataset, format)
	h.service.RecordStreamExport(r.Context(), format, err)
	if err != nil {
		// headers are already sent
		h.logger.ErrorContext(r.Context(), "failed to stream export",
			slog.String("format", format),
			slog.String("error", err.Error()))
	}
}

func toLoadQuery(req api.LoadRequest) (services.LoadQuery, error) {
	var q services.LoadQuery

	if req.Selector != "" {
		sel, err := estimates.ParseSelector(req.Selector)
		if err != nil {
			return q, apierrors.ErrValidation("selector", err.Error())
		}
		q.Selector = sel
	}

	q.Columns = make([]estimates.Column, len(req.Columns))
	for i, c := range req.Columns {
		dtype, err := adjusted.ParseDType(c.DType)
		if err != nil {
			return q, apierrors.ErrValidation(fmt.Sprintf("columns[%d].dtype", i), err.Error())
		}
		q.Columns[i] = estimates.Column{Name: c.Name, NumQuarters: c.NumQuarters, DType: dtype}
	}

	q.Dates = make([]time.Time, len(req.Dates))
	for i, d := range req.Dates {
		t, err := parseDate(d)
		if err != nil {
			return q, apierrors.ErrValidation(fmt.Sprintf("dates[%d]", i), err.Error())
		}
		q.Dates[i] = t
	}

	q.Assets = req.Assets
	if req.Mask != nil {
		q.Mask = adjusted.Mask(req.Mask)
	}
	return q, nil
}

func toLoadResponse(result *services.LoadResult, asOf string) (*api.LoadResponse, error) {
	resp := &api.LoadResponse{
		Selector:   result.Selector.String(),
		Dates:      make([]string, len(result.Dates)),
		Assets:     result.Assets,
		AsOf:       asOf,
		DurationMS: float64(result.Duration.Microseconds()) / 1000,
	}
	for i, d := range result.Dates {
		resp.Dates[i] = formatDate(d)
	}

	end := -1
	if asOf != "" {
		t, err := parseDate(asOf)
		if err != nil {
			return nil, apierrors.ErrValidation("as_of", err.Error())
		}
		// last date on or before as_of
		end = sort.Search(len(result.Dates), func(i int) bool { return result.Dates[i].After(t) }) - 1
		if end < 0 {
			return nil, apierrors.ErrValidation("as_of", "as_of is before the first date")
		}
	}

	for _, c := range result.Columns() {
		arr := result.Arrays[c]
		out := api.ArrayResponse{Name: c.Name, NumQuarters: c.NumQuarters, DType: c.DType.String()}

		if end >= 0 {
			view, err := arr.AsOf(end)
			if err != nil {
				return nil, err
			}
			out.View = matrixCells(view)
			resp.Arrays = append(resp.Arrays, out)
			continue
		}

		out.Baseline = matrixCells(arr.Baseline())
		for _, key := range arr.AdjustmentRows() {
			for _, ow := range arr.Adjustments(key) {
				out.Adjustments = append(out.Adjustments, api.AdjustmentResponse{
					Row:           key,
					EffectiveDate: formatDate(result.Dates[key]),
					Asset:         result.Assets[ow.Column],
					FirstRow:      ow.FirstRow,
					LastRow:       ow.LastRow,
					Values:        valueCells(c.DType, ow.Values),
				})
			}
		}
		resp.Arrays = append(resp.Arrays, out)
	}
	return resp, nil
}

// parseDate accepts YYYY-MM-DD and RFC 3339, normalized to UTC
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is not a YYYY-MM-DD date or RFC 3339 timestamp", s)
	}
	return t.UTC(), nil
}

func formatDate(t time.Time) string {
	if t.Equal(t.Truncate(24 * time.Hour)) {
		return t.Format(time.DateOnly)
	}
	return t.Format(time.RFC3339Nano)
}

func matrixCells(m *adjusted.Matrix) [][]interface{} {
	out := make([][]interface{}, m.Rows)
	for row := range out {
		cells := make([]interface{}, m.Cols)
		for col := range cells {
			switch {
			case m.IsMissing(row, col):
			case m.DType == adjusted.Datetime:
				t, _ := m.Time(row, col)
				cells[col] = formatDate(t)
			default:
				cells[col] = m.Float(row, col)
			}
		}
		out[row] = cells
	}
	return out
}

func valueCells(dtype adjusted.DType, v adjusted.Values) []interface{} {
	out := make([]interface{}, v.Len())
	for i := range out {
		if dtype == adjusted.Datetime {
			if t, ok := adjusted.ToTime(v.Times[i]); ok {
				out[i] = formatDate(t)
			}
			continue
		}
		if f := v.Floats[i]; !math.IsNaN(f) {
			out[i] = f
		}
	}
	return out
}
