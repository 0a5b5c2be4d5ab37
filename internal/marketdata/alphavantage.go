package marketdata

import (
	"context"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"stock-data-ingest/internal/model"
)

const alphaVantageBaseURL = "https://www.alphavantage.co/query"

// AlphaVantage is the date-series style adapter: query-keyed requests
// (symbol + function + resolution) against the Alpha Vantage TIME_SERIES
// endpoints. Requires an API key on the data source.
type AlphaVantage struct {
	client *client
	logger zerolog.Logger
}

// NewAlphaVantage constructs the Alpha Vantage adapter.
func NewAlphaVantage(logger zerolog.Logger) *AlphaVantage {
	l := logger.With().Str("component", "alphavantage_provider").Logger()
	return &AlphaVantage{client: newClient(l), logger: l}
}

func (p *AlphaVantage) Name() string { return "Alpha Vantage" }

func (p *AlphaVantage) Supports(ds model.DataSource) bool {
	endpoint := strings.ToLower(ds.APIEndpoint)
	providerType := strings.ToLower(ds.ProviderType)
	name := strings.ToLower(ds.Name)
	return strings.Contains(endpoint, "alphavantage") ||
		strings.Contains(providerType, "alpha") ||
		strings.Contains(providerType, "vantage") ||
		strings.Contains(name, "alpha vantage")
}

type alphaVantagePayload struct {
	Daily map[string]RawCandle `json:"Time Series (Daily)"`
	Min1  map[string]RawCandle `json:"Time Series (1min)"`
	Min5  map[string]RawCandle `json:"Time Series (5min)"`
	Min15 map[string]RawCandle `json:"Time Series (15min)"`
	Min60 map[string]RawCandle `json:"Time Series (60min)"`

	ErrorMessage string `json:"Error Message"`
	Note         string `json:"Note"`
	Information  string `json:"Information"`
}

// Fetch builds the query URL and retrieves the time series. A non-empty
// error, note or information field in a 200 body is a fatal provider error
// (rate-limit notes arrive this way) and is never retried.
func (p *AlphaVantage) Fetch(ctx context.Context, ds model.DataSource, req FetchRequest) (Response, error) {
	if strings.TrimSpace(ds.APIKey) == "" {
		return Response{}, Errorf(CodeCredentialMissing,
			"Alpha Vantage requires api_key on the data source; set data_sources.api_key for %q", ds.Name)
	}

	endpoint := p.buildURL(ds, req)
	p.logger.Info().Str("symbol", req.Symbol).Str("interval", string(req.Interval)).Msg("fetching OHLC data from Alpha Vantage")

	var payload alphaVantagePayload
	if err := p.client.getJSON(ctx, endpoint, ds.Timeout(), nil, &payload); err != nil {
		return Response{}, err
	}

	if msg := strings.TrimSpace(payload.ErrorMessage); msg != "" {
		return Response{}, Errorf(CodeProviderPayload, "Alpha Vantage error: %s", msg)
	}
	if msg := strings.TrimSpace(payload.Note); msg != "" {
		return Response{}, Errorf(CodeProviderPayload, "Alpha Vantage note (e.g. rate limit): %s", msg)
	}
	if msg := strings.TrimSpace(payload.Information); msg != "" {
		return Response{}, Errorf(CodeProviderPayload, "Alpha Vantage information: %s", msg)
	}

	return Response{
		Daily: payload.Daily,
		Min1:  payload.Min1,
		Min5:  payload.Min5,
		Min15: payload.Min15,
		Min60: payload.Min60,
	}, nil
}

func (p *AlphaVantage) buildURL(ds model.DataSource, req FetchRequest) string {
	base := strings.TrimSpace(ds.APIEndpoint)
	if base == "" {
		base = alphaVantageBaseURL
	}

	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("apikey", ds.APIKey)
	params.Set("outputsize", "compact")
	if req.Interval.Intraday() {
		params.Set("function", "TIME_SERIES_INTRADAY")
		params.Set("interval", alphaVantageInterval(req.Interval))
	} else {
		params.Set("function", "TIME_SERIES_DAILY")
	}
	return appendQuery(base, params.Encode())
}

func alphaVantageInterval(interval model.Interval) string {
	switch interval {
	case model.Interval1m:
		return "1min"
	case model.Interval5m:
		return "5min"
	case model.Interval15m:
		return "15min"
	case model.Interval30m:
		return "30min"
	default:
		return "60min"
	}
}

var _ Provider = (*AlphaVantage)(nil)
