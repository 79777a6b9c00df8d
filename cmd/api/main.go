package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghodss/yaml"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/riandyrn/otelchi"
	"golang.org/x/sync/errgroup"

	imgport "github.com/onkernel/imgport"
	mw "github.com/onkernel/imgport/lib/middleware"
)

func main() {
	if err := run(); err != nil {
		slog.Error("application terminated", "error", err)
		os.Exit(1)
	}
}

func run() error {
	app, cleanup, err := initializeApp()
	if err != nil {
		return fmt.Errorf("initialize application: %w", err)
	}
	defer cleanup()

	cfg := app.Config
	logger := app.Logger
	slog.SetDefault(logger)

	// Setup context with signal handling
	ctx, stop := signal.NotifyContext(app.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.EngineManager.Ping(ctx); err != nil {
		// The service still starts; /health reports the engine state.
		logger.Warn("docker engine not reachable at startup", "error", err)
	}

	doc, err := mw.LoadSpec(ctx, imgport.OpenAPIYAML, cfg.APIPrefix)
	if err != nil {
		return fmt.Errorf("load openapi document: %w", err)
	}

	httpMetrics := mw.NoopHTTPMetrics()
	if cfg.OtelEnabled {
		m, err := mw.NewHTTPMetrics(app.Otel.Meter)
		if err != nil {
			return fmt.Errorf("create http metrics: %w", err)
		}
		httpMetrics = m.Middleware
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(otelchi.Middleware(cfg.OtelServiceName,
		otelchi.WithChiRoutes(r),
		otelchi.WithTracerProvider(app.Otel.TracerProvider),
	))
	r.Use(httpMetrics)
	r.Use(mw.AccessLogger(logger))
	r.Use(mw.InjectLogger(logger))

	// Serve OpenAPI spec
	r.Get("/spec.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/vnd.oai.openapi")
		w.Write(imgport.OpenAPIYAML)
	})

	r.Get("/spec.json", func(w http.ResponseWriter, r *http.Request) {
		jsonData, err := yaml.YAMLToJSON(imgport.OpenAPIYAML)
		if err != nil {
			http.Error(w, "Failed to convert YAML to JSON", http.StatusInternalServerError)
			logger.ErrorContext(r.Context(), "Failed to convert YAML to JSON", "error", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(jsonData)
	})

	r.Get("/health", app.ApiService.Health)

	r.Route(cfg.APIPrefix, func(r chi.Router) {
		r.Use(mw.VerifyJWT(cfg.JwtSecret))
		r.Mount("/docker", app.ApiService.Routes(mw.ValidateRequests(doc)))
	})

	// Exports can stream for a long time, so only the header read is bounded.
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Error group for coordinated shutdown
	grp, gctx := errgroup.WithContext(ctx)

	// Run the server
	grp.Go(func() error {
		logger.Info("starting imgport API server", "port", cfg.Port, "prefix", cfg.APIPrefix)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			return err
		}
		return nil
	})

	// Shutdown handler
	grp.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown http server", "error", err)
			return err
		}

		logger.Info("http server shutdown complete")
		return nil
	})

	return grp.Wait()
}
