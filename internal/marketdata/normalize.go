package marketdata

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stock-data-ingest/internal/model"
)

// Candle is a fully normalized OHLCV row.
type Candle struct {
	Timestamp time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    int64
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006-01-02 15:04:05",
}

// ParseTimestamp converts a provider timestamp literal to a UTC instant.
// Layouts are attempted in order: full instant, date-only anchored at UTC
// midnight, then a space-separated datetime interpreted as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	trimmed := strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, trimmed, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, Errorf(CodeRecordParse, "unparsable timestamp %q", s)
}

// Normalize flattens the interval-appropriate sub-series into sorted candles.
// Malformed rows are skipped with a warning; a row only survives if its
// timestamp parses. Unparsable numeric fields degrade to zero, not to a
// batch failure.
func Normalize(resp Response, interval model.Interval, logger zerolog.Logger) []Candle {
	series := resp.SeriesFor(interval)
	if len(series) == 0 {
		return nil
	}

	candles := make([]Candle, 0, len(series))
	for key, raw := range series {
		ts, err := ParseTimestamp(key)
		if err != nil {
			logger.Warn().Str("timestamp", key).Msg("skipping row with unparsable timestamp")
			continue
		}
		candles = append(candles, Candle{
			Timestamp: ts,
			Open:      parsePrice(raw.Open, raw.OpenNum.String(), "open", key, logger),
			High:      parsePrice(raw.High, raw.HighNum.String(), "high", key, logger),
			Low:       parsePrice(raw.Low, raw.LowNum.String(), "low", key, logger),
			Close:     parsePrice(raw.Close, raw.CloseNum.String(), "close", key, logger),
			Volume:    parseVolume(raw.Volume, raw.VolumeNum.String()),
		})
	}

	sort.Slice(candles, func(i, j int) bool {
		return candles[i].Timestamp.Before(candles[j].Timestamp)
	})
	return candles
}

// parsePrice prefers the typed numeric form; the string form only applies
// when the typed field is absent.
func parsePrice(str, num, field, key string, logger zerolog.Logger) decimal.Decimal {
	value := strings.TrimSpace(num)
	if value == "" {
		value = strings.TrimSpace(str)
	}
	if value == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		logger.Warn().Str("timestamp", key).Str("field", field).Str("value", value).
			Msg("unparsable price field, defaulting to zero")
		return decimal.Zero
	}
	return d
}

func parseVolume(str, num string) int64 {
	value := strings.TrimSpace(num)
	if value == "" {
		value = strings.TrimSpace(str)
	}
	if value == "" {
		return 0
	}
	v, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		// some providers ship fractional volume
		if f, ferr := strconv.ParseFloat(value, 64); ferr == nil {
			return int64(f)
		}
		return 0
	}
	return v
}

// FormatCandleKey renders a timestamp the way daily series key their rows.
func FormatCandleKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
