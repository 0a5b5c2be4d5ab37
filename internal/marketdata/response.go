package marketdata

import (
	"encoding/json"

	"stock-data-ingest/internal/model"
)

// RawCandle is one provider row before normalization. Providers disagree on
// whether numeric fields arrive as strings or as typed numbers; both forms
// are kept and the typed form wins when present.
type RawCandle struct {
	Open   string `json:"1. open"`
	High   string `json:"2. high"`
	Low    string `json:"3. low"`
	Close  string `json:"4. close"`
	Volume string `json:"5. volume"`

	OpenNum   json.Number `json:"open"`
	HighNum   json.Number `json:"high"`
	LowNum    json.Number `json:"low"`
	CloseNum  json.Number `json:"close"`
	VolumeNum json.Number `json:"volume"`
}

// Response is the canonical provider payload: per-resolution candle maps
// keyed by the provider's timestamp literal.
type Response struct {
	Daily map[string]RawCandle
	Min1  map[string]RawCandle
	Min5  map[string]RawCandle
	Min15 map[string]RawCandle
	Min60 map[string]RawCandle
}

// SeriesFor selects the sub-series matching the interval. Daily, weekly,
// monthly and the 30m/4h aliases resolve to whichever daily series the
// provider supplied; intraday resolutions fall back to daily when the exact
// series is absent.
func (r Response) SeriesFor(interval model.Interval) map[string]RawCandle {
	var series map[string]RawCandle
	switch interval {
	case model.Interval1m:
		series = r.Min1
	case model.Interval5m:
		series = r.Min5
	case model.Interval15m:
		series = r.Min15
	case model.Interval1h:
		series = r.Min60
	}
	if series == nil {
		series = r.Daily
	}
	return series
}
