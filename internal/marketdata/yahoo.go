package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"stock-data-ingest/internal/model"
)

const yahooBaseURL = "https://query1.finance.yahoo.com/v8/finance/chart"

// Yahoo is the chart-style adapter: path-based requests against the Yahoo
// Finance v8 chart endpoint (/{symbol}?interval=&range=1mo).
type Yahoo struct {
	client *client
	logger zerolog.Logger
}

// NewYahoo constructs the Yahoo Finance adapter.
func NewYahoo(logger zerolog.Logger) *Yahoo {
	l := logger.With().Str("component", "yahoo_provider").Logger()
	return &Yahoo{client: newClient(l), logger: l}
}

func (p *Yahoo) Name() string { return "Yahoo Finance" }

func (p *Yahoo) Supports(ds model.DataSource) bool {
	endpoint := strings.ToLower(ds.APIEndpoint)
	providerType := strings.ToLower(ds.ProviderType)
	name := strings.ToLower(ds.Name)
	return strings.Contains(endpoint, "yahoo") ||
		strings.Contains(endpoint, "finance.yahoo.com") ||
		strings.Contains(providerType, "yahoo") ||
		strings.Contains(name, "yahoo")
}

type yahooChartPayload struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []json.Number `json:"open"`
					High   []json.Number `json:"high"`
					Low    []json.Number `json:"low"`
					Close  []json.Number `json:"close"`
					Volume []json.Number `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Fetch retrieves and flattens the chart payload into the canonical series.
func (p *Yahoo) Fetch(ctx context.Context, ds model.DataSource, req FetchRequest) (Response, error) {
	endpoint := p.buildURL(ds, req)
	p.logger.Info().Str("symbol", req.Symbol).Str("interval", string(req.Interval)).Msg("fetching OHLC data from Yahoo Finance")

	var payload yahooChartPayload
	if err := p.client.getJSON(ctx, endpoint, ds.Timeout(), nil, &payload); err != nil {
		return Response{}, err
	}

	if payload.Chart.Error != nil {
		return Response{}, Errorf(CodeProviderPayload, "Yahoo Finance error: %s - %s",
			payload.Chart.Error.Code, payload.Chart.Error.Description)
	}
	if len(payload.Chart.Result) == 0 {
		return Response{}, Errorf(CodeProviderPayload, "Yahoo Finance returned no chart result for %s", req.Symbol)
	}

	result := payload.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return Response{}, Errorf(CodeProviderPayload, "Yahoo Finance returned no quote series for %s", req.Symbol)
	}
	quote := result.Indicators.Quote[0]

	series := make(map[string]RawCandle, len(result.Timestamp))
	for i, epoch := range result.Timestamp {
		ts := time.Unix(epoch, 0).UTC()
		var key string
		if req.Interval.Intraday() {
			key = ts.Format(time.RFC3339)
		} else {
			key = FormatCandleKey(ts)
		}
		series[key] = RawCandle{
			OpenNum:   numberAt(quote.Open, i),
			HighNum:   numberAt(quote.High, i),
			LowNum:    numberAt(quote.Low, i),
			CloseNum:  numberAt(quote.Close, i),
			VolumeNum: numberAt(quote.Volume, i),
		}
	}

	resp := Response{}
	switch req.Interval {
	case model.Interval1m:
		resp.Min1 = series
	case model.Interval5m:
		resp.Min5 = series
	case model.Interval15m:
		resp.Min15 = series
	case model.Interval1h:
		resp.Min60 = series
	default:
		resp.Daily = series
	}
	return resp, nil
}

func numberAt(values []json.Number, i int) json.Number {
	if i < 0 || i >= len(values) {
		return ""
	}
	return values[i]
}

// buildURL renders {base}/{symbol}?interval={code}&range=1mo.
func (p *Yahoo) buildURL(ds model.DataSource, req FetchRequest) string {
	base := strings.TrimRight(strings.TrimSpace(ds.APIEndpoint), "/")
	if base == "" {
		base = yahooBaseURL
	}
	return fmt.Sprintf("%s/%s?interval=%s&range=1mo", base, req.Symbol, yahooInterval(req.Interval))
}

// yahooInterval maps the canonical interval to Yahoo's short-code vocabulary.
func yahooInterval(interval model.Interval) string {
	switch interval {
	case model.Interval1m:
		return "1m"
	case model.Interval5m:
		return "5m"
	case model.Interval15m:
		return "15m"
	case model.Interval30m:
		return "30m"
	case model.Interval1h:
		return "1h"
	case model.Interval4h:
		return "4h"
	case model.Interval1w:
		return "1wk"
	case model.Interval1mo:
		return "1mo"
	default:
		return "1d"
	}
}

var _ Provider = (*Yahoo)(nil)
