package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/metric"

	"github.com/onkernel/imgport/cmd/api/config"
	"github.com/onkernel/imgport/lib/engine"
	"github.com/onkernel/imgport/lib/hub"
	"github.com/onkernel/imgport/lib/images"
	"github.com/onkernel/imgport/lib/otel"
)

// Registry is the part of the registry client the handlers use.
type Registry interface {
	GetRemoteInfo(ctx context.Context, ref images.Ref) (*hub.RemoteInfo, error)
	Search(ctx context.Context, query string, limit int) ([]hub.SearchResult, error)
}

var _ Registry = (*hub.Client)(nil)

// ApiService serves the /docker routes.
type ApiService struct {
	Config        *config.Config
	Engine        engine.Manager
	Registry      Registry
	MaxExportSize int64
	Metrics       *otel.APIMetrics
}

// New creates a new ApiService
func New(cfg *config.Config, engineManager engine.Manager, registry Registry, meter metric.Meter) (*ApiService, error) {
	maxSize, err := cfg.MaxExportSizeBytes()
	if err != nil {
		return nil, err
	}
	metrics, err := otel.NewAPIMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("create api metrics: %w", err)
	}
	return &ApiService{
		Config:        cfg,
		Engine:        engineManager,
		Registry:      registry,
		MaxExportSize: maxSize,
		Metrics:       metrics,
	}, nil
}

// Routes returns the handler for everything under {prefix}/docker. validate,
// when non-nil, checks JSON request bodies against the API document before
// they reach a handler.
func (s *ApiService) Routes(validate func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		if validate != nil {
			r.Use(validate)
		}
		r.Post("/export", s.ExportImage)
		r.Post("/size", s.GetImageSize)
		r.Post("/check", s.CheckImage)
		r.Post("/search", s.SearchImages)
	})
	// Websocket upgrades carry no body to validate.
	r.Get("/pull", s.PullImage)
	return r
}
