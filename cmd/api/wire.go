//go:build wireinject

package main

import (
	"context"
	"log/slog"

	"github.com/google/wire"

	"github.com/onkernel/imgport/cmd/api/api"
	"github.com/onkernel/imgport/cmd/api/config"
	"github.com/onkernel/imgport/lib/engine"
	"github.com/onkernel/imgport/lib/hub"
	"github.com/onkernel/imgport/lib/otel"
	"github.com/onkernel/imgport/lib/providers"
)

// application struct to hold initialized components
type application struct {
	Ctx           context.Context
	Logger        *slog.Logger
	Config        *config.Config
	Otel          *otel.Provider
	EngineManager engine.Manager
	ApiService    *api.ApiService
}

// initializeApp is the injector function
func initializeApp() (*application, func(), error) {
	panic(wire.Build(
		providers.ProvideContext,
		providers.ProvideConfig,
		providers.ProvideOtel,
		providers.ProvideMeter,
		providers.ProvideLogger,
		providers.ProvideDockerClient,
		providers.ProvideEngineManager,
		providers.ProvideHubClient,
		wire.Bind(new(api.Registry), new(*hub.Client)),
		api.New,
		wire.Struct(new(application), "*"),
	))
}
