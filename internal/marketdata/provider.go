package marketdata

import (
	"context"

	"github.com/rs/zerolog"

	"stock-data-ingest/internal/model"
)

// FetchRequest carries everything an adapter needs to build a request.
// ExchangeCode and Segment are only consulted by providers keyed on
// composite symbols.
type FetchRequest struct {
	Symbol       string
	ExchangeCode string
	Segment      string
	Interval     model.Interval
}

// Provider adapts one third-party API to the canonical response shape.
type Provider interface {
	Name() string
	// Supports reports whether this provider can serve the data source. The
	// match is a loose, case-insensitive substring inspection of endpoint,
	// provider type and name, tolerant of operator misconfiguration.
	Supports(ds model.DataSource) bool
	Fetch(ctx context.Context, ds model.DataSource, req FetchRequest) (Response, error)
}

// Registry holds providers in registration order. The first provider whose
// Supports matches a data source wins; registration order is the tie-break.
type Registry struct {
	providers []Provider
	logger    zerolog.Logger
}

// NewRegistry constructs a registry over an explicit ordered provider list.
func NewRegistry(logger zerolog.Logger, providers ...Provider) *Registry {
	return &Registry{
		providers: providers,
		logger:    logger.With().Str("component", "provider_registry").Logger(),
	}
}

// Find returns the first registered provider supporting the data source.
func (r *Registry) Find(ds model.DataSource) (Provider, bool) {
	for _, p := range r.providers {
		if p.Supports(ds) {
			return p, true
		}
	}
	return nil, false
}

// Names lists registered provider names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for _, p := range r.providers {
		names = append(names, p.Name())
	}
	return names
}

// Fetch selects the provider for the data source and delegates to it.
func (r *Registry) Fetch(ctx context.Context, ds model.DataSource, req FetchRequest) (Response, error) {
	provider, ok := r.Find(ds)
	if !ok {
		return Response{}, Errorf(CodeProviderUnsupported,
			"no provider found for data source %q; check provider_type or api_endpoint", ds.Name)
	}

	r.logger.Info().
		Str("provider", provider.Name()).
		Str("data_source", ds.Name).
		Str("symbol", req.Symbol).
		Str("interval", string(req.Interval)).
		Msg("dispatching fetch")

	return provider.Fetch(ctx, ds, req)
}
