package providers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/docker/docker/client"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"

	"github.com/onkernel/imgport/cmd/api/config"
	"github.com/onkernel/imgport/lib/engine"
	"github.com/onkernel/imgport/lib/hub"
	"github.com/onkernel/imgport/lib/logger"
	"github.com/onkernel/imgport/lib/otel"
)

// ProvideContext provides a base context
func ProvideContext() context.Context {
	return context.Background()
}

// ProvideConfig provides the application configuration
func ProvideConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ProvideOtel initializes telemetry export
func ProvideOtel(ctx context.Context, cfg *config.Config) (*otel.Provider, func(), error) {
	p, err := otel.Init(ctx, otel.Config{
		Enabled:     cfg.OtelEnabled,
		Endpoint:    cfg.OtelEndpoint,
		ServiceName: cfg.OtelServiceName,
		Insecure:    cfg.OtelInsecure,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init otel: %w", err)
	}
	cleanup := func() {
		if err := p.Shutdown(context.Background()); err != nil {
			slog.Error("failed to shutdown otel", "error", err)
		}
	}
	return p, cleanup, nil
}

// ProvideMeter provides the service meter
func ProvideMeter(p *otel.Provider) metric.Meter {
	return p.Meter
}

// ProvideLogger provides the structured logger, teeing records to OTel
// when it is enabled
func ProvideLogger(cfg *config.Config, p *otel.Provider) *slog.Logger {
	return logger.NewSubsystemLogger(logger.SubsystemAPI, logger.Config{
		Level: logger.ParseLevel(cfg.LogLevel),
	}, p.LogHandler)
}

// ProvideDockerClient provides the shared docker engine client
func ProvideDockerClient(cfg *config.Config) (*client.Client, func(), error) {
	cli, err := engine.NewClient(cfg.DockerHost)
	if err != nil {
		return nil, nil, err
	}
	return cli, func() { _ = cli.Close() }, nil
}

// ProvideEngineManager provides the engine manager
func ProvideEngineManager(cli *client.Client, cfg *config.Config, meter metric.Meter) (engine.Manager, error) {
	return engine.NewManager(cli, engine.Options{
		PullTimeout:        cfg.PullTimeout,
		MaxConcurrentPulls: cfg.MaxConcurrentPulls,
	}, meter)
}

// ProvideHubClient provides the registry client. Outbound requests are
// traced.
func ProvideHubClient(cfg *config.Config) (*hub.Client, error) {
	return hub.NewClient(hub.Options{
		RegistryHost: cfg.RegistryHost,
		Insecure:     cfg.RegistryInsecure,
		HubURL:       cfg.HubURL,
		Platform:     cfg.RegistryPlatform,
		Timeout:      cfg.RegistryTimeout,
		Transport:    otelhttp.NewTransport(http.DefaultTransport),
	})
}
