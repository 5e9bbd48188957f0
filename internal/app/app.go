package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"golang.org/x/sync/errgroup"

	"github.com/sharongu/zipline/internal/config"
	apierrors "github.com/sharongu/zipline/internal/errors"
	"github.com/sharongu/zipline/internal/infrastructure"
	customMiddleware "github.com/sharongu/zipline/internal/middleware"
	"github.com/sharongu/zipline/internal/services"
	handlers "github.com/sharongu/zipline/internal/transport/http"
	"github.com/sharongu/zipline/pkg/contracts"
)

// Application is the estimates server: its configuration, telemetry,
// services and the router serving them
type Application struct {
	Config        *config.Config
	Paths         *config.Paths
	Router        *chi.Mux
	Server        *http.Server
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
	Metrics       *infrastructure.EstimatesMetrics
	Estimates     *services.EstimatesService
	Health        *services.HealthService

	errorHandler *apierrors.ErrorHandler
}

// NewApplication loads the configuration and logger, then calls New
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}
	return New(cfg, logger)
}

// New wires telemetry, services, router and server from cfg. No events are
// read until LoadEvents.
func New(cfg *config.Config, logger *slog.Logger) (*Application, error) {
	if logger == nil {
		logger = slog.Default()
	}

	paths, err := cfg.ResolvePaths()
	if err != nil {
		return nil, fmt.Errorf("resolve paths: %w", err)
	}
	if err := paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("create directories: %w", err)
	}
	paths.LogPathResolution(logger)

	providers, err := infrastructure.InitializeOTel(infrastructure.OTelConfigFrom(cfg.Telemetry), logger)
	if err != nil {
		return nil, fmt.Errorf("initialize telemetry: %w", err)
	}
	metrics, err := infrastructure.CreateEstimatesMetrics(providers.Meter)
	if err != nil {
		return nil, fmt.Errorf("create estimates metrics: %w", err)
	}
	if err := infrastructure.RegisterRuntimeMetrics(providers.Meter, time.Now()); err != nil {
		return nil, fmt.Errorf("register runtime metrics: %w", err)
	}

	estimatesService, err := services.NewEstimatesService(cfg, paths, providers, metrics, logger)
	if err != nil {
		return nil, fmt.Errorf("create estimates service: %w", err)
	}

	a := &Application{
		Config:        cfg,
		Paths:         paths,
		Logger:        logger,
		OTelProviders: providers,
		Metrics:       metrics,
		Estimates:     estimatesService,
		Health:        services.NewHealthService(contracts.CurrentBuild(), paths.DataDir, estimatesService, logger),
		errorHandler:  apierrors.NewErrorHandler(logger, cfg.Logging.Development),
	}
	a.Router = a.routes()
	a.Server = &http.Server{
		Addr:           net.JoinHostPort("", strconv.Itoa(cfg.Server.Port)),
		Handler:        a.Router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	logger.Info("estimates server configured",
		slog.String("name", config.AppName),
		slog.String("version", contracts.Version),
		slog.String("selector", cfg.Data.Selector),
		slog.Int("events_files", len(cfg.Data.EventsFiles)))
	return a, nil
}

// routes builds the router. Every request gets an id, a span, an access log
// line and panic recovery; the estimates routes add rate limiting, the load
// deadline, body validation and failed query logging.
func (a *Application) routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(
		customMiddleware.RequestID,
		middleware.RealIP,
		customMiddleware.NewOTelMiddleware(a.OTelProviders, a.Metrics).Handler,
		customMiddleware.StructuredLogger(a.Logger),
		customMiddleware.Recoverer(a.errorHandler),
		customMiddleware.SecurityHeaders,
	)
	r.NotFound(a.errorHandler.NotFound)
	r.MethodNotAllowed(a.errorHandler.MethodNotAllowed)

	health := handlers.NewHealthHandler(a.Health, a.Logger)
	r.Mount(config.HealthEndpoint, health.Routes())

	var scrape http.Handler
	if a.Config.Telemetry.Enabled && a.Config.Telemetry.MetricsEnabled {
		scrape = a.OTelProviders.PrometheusHTTP
	}
	metrics := handlers.NewMetricsHandler(scrape)
	r.Get(config.MetricsEndpoint, metrics.GetMetrics)

	r.Route(config.APIBasePath, func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		if rl := a.Config.Security.RateLimit; rl.Enabled {
			r.Use(customMiddleware.NewRateLimiter(rl.RPS, rl.Burst, a.errorHandler, a.Logger).Handler)
		}

		r.With(customMiddleware.Timeout(a.Config.Server.ReadTimeout)).Get("/version", health.Version)
		r.With(customMiddleware.Timeout(a.Config.Server.ReadTimeout)).Get("/runtime", metrics.GetRuntime)

		validation := customMiddleware.NewValidationMiddleware(a.Logger, a.errorHandler, a.Config.Security.MaxBodyBytes)
		r.With(
			customMiddleware.Timeout(a.Config.Server.LoadTimeout),
			validation.ValidateRequest,
			apierrors.NewErrorMiddleware(a.errorHandler, a.Logger).Handler,
		).Mount("/estimates", handlers.NewEstimatesHandler(a.Estimates, validation, a.Logger, a.errorHandler).Routes())
	})
	return r
}

// LoadEvents reads the configured events files. With none configured the
// service stays unloaded, and not ready, until a reload.
func (a *Application) LoadEvents(ctx context.Context) error {
	if len(a.Config.Data.EventsFiles) == 0 {
		a.Logger.WarnContext(ctx, "no events files configured; waiting for a reload")
		return nil
	}
	return a.Estimates.Reload(ctx)
}

// Run loads the events and serves until SIGINT, SIGTERM or a server
// failure, then shuts down. A failed initial load is logged and the server
// keeps running, not ready.
func (a *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.LoadEvents(ctx); err != nil {
		a.Logger.WarnContext(ctx, "initial event load failed", slog.String("error", err.Error()))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Logger.InfoContext(gctx, "serving estimates", slog.String("addr", a.Server.Addr))
		if err := a.Server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return a.Stop(context.Background())
	})
	return g.Wait()
}

// Stop drains in-flight requests within the shutdown timeout, then flushes
// telemetry and closes the log file
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "shutting down estimates server")

	ctx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	err := a.Server.Shutdown(ctx)
	if a.OTelProviders != nil {
		if terr := a.OTelProviders.Shutdown(ctx); terr != nil {
			a.Logger.ErrorContext(ctx, "telemetry shutdown failed", slog.String("error", terr.Error()))
		}
	}
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return infrastructure.CloseLogFile()
}
