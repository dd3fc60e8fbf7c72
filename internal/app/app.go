package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"convertercli/internal/config"
	"convertercli/internal/infrastructure"
	"convertercli/internal/license"
	custommiddleware "convertercli/internal/middleware"
	"convertercli/internal/services"
	transporthttp "convertercli/internal/transport/http"
)

// Application holds the wired components and the HTTP server.
type Application struct {
	config   *config.Config
	logger   *slog.Logger
	otel     *infrastructure.OTelProviders
	manager  *license.Manager
	services *ServiceContainer
	router   chi.Router
	server   *http.Server
}

// ServiceContainer holds the service layer instances.
type ServiceContainer struct {
	License services.LicenseService
}

// NewApplication creates a fully wired application.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	otelProviders, err := infrastructure.InitializeOTel(nil, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize observability: %w", err)
	}

	app := &Application{
		config: cfg,
		logger: logger,
		otel:   otelProviders,
	}

	if err := app.initializeServices(); err != nil {
		return nil, err
	}

	app.setupRouter()
	app.createServer()

	return app, nil
}

// initializeServices constructs the license gate and service layer.
func (a *Application) initializeServices() error {
	manager, err := license.NewManager(a.config.License, a.config.GetLicenseFile(), a.logger)
	if err != nil {
		return fmt.Errorf("failed to create license manager: %w", err)
	}

	metrics, err := license.NewLicenseMetrics(a.otel.Meter)
	if err != nil {
		return fmt.Errorf("failed to create license metrics: %w", err)
	}
	manager.SetMetrics(metrics)

	a.manager = manager
	a.services = &ServiceContainer{
		License: services.NewLicenseService(manager, a.logger),
	}

	return nil
}

// setupRouter builds the chi router with the middleware chain.
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	r.Use(custommiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(custommiddleware.StructuredLogger(a.logger))
	r.Use(custommiddleware.Recoverer(a.logger))

	r.Get("/healthz", transporthttp.HealthHandler)

	if a.otel.PrometheusHTTP != nil {
		r.Handle("/metrics", a.otel.PrometheusHTTP)
	}

	var activationLimiter *custommiddleware.RateLimiter
	if a.config.Security.RateLimit.Enabled {
		activationLimiter = custommiddleware.NewRateLimiter(
			a.config.Security.RateLimit.RPS,
			a.config.Security.RateLimit.Burst,
			a.logger,
		)
	}

	licenseHandler := transporthttp.NewLicenseHandler(a.services.License, a.logger)
	r.Route("/api", func(r chi.Router) {
		r.Mount("/license", licenseHandler.Routes(activationLimiter))
	})

	a.router = r
}

// createServer builds the HTTP server from configuration.
func (a *Application) createServer() {
	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.config.Server.Port),
		Handler:      a.router,
		ReadTimeout:  a.config.Server.ReadTimeout,
		WriteTimeout: a.config.Server.WriteTimeout,
		IdleTimeout:  a.config.Server.IdleTimeout,
	}
}

// Run evaluates the license once, starts the server and blocks until
// shutdown. The startup evaluation result is logged but never prevents
// the server from starting: the GUI needs the API up to show the denial
// reason and accept a new key.
func (a *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	status := a.manager.Evaluate(infrastructure.ContextWithTraceID(ctx))
	a.logger.Info("startup license evaluation complete",
		slog.String("state", status.State.String()),
		slog.String("reason", status.Reason),
		slog.Bool("allowed", status.Allowed()),
		slog.String("machine_code", status.MachineCode),
	)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server starting",
			slog.String("addr", a.server.Addr),
		)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	return a.Stop()
}

// Stop gracefully shuts the application down.
func (a *Application) Stop() error {
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown: %w", err))
	}

	if err := a.otel.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("observability shutdown: %w", err))
	}

	if err := infrastructure.CloseLogFile(); err != nil {
		errs = append(errs, fmt.Errorf("log file close: %w", err))
	}

	return errors.Join(errs...)
}

// Router exposes the router for tests.
func (a *Application) Router() chi.Router {
	return a.router
}
