package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Interval is the candle resolution of a price record.
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval1h  Interval = "1h"
	Interval4h  Interval = "4h"
	Interval1d  Interval = "1d"
	Interval1w  Interval = "1w"
	Interval1mo Interval = "1mo"
)

// Intervals lists all supported resolutions.
var Intervals = []Interval{
	Interval1m, Interval5m, Interval15m, Interval30m,
	Interval1h, Interval4h, Interval1d, Interval1w, Interval1mo,
}

// ParseInterval validates a user-supplied interval string.
func ParseInterval(s string) (Interval, error) {
	for _, iv := range Intervals {
		if string(iv) == s {
			return iv, nil
		}
	}
	return "", fmt.Errorf("unknown interval %q", s)
}

// Intraday reports whether the interval is finer than one day.
func (i Interval) Intraday() bool {
	switch i {
	case Interval1m, Interval5m, Interval15m, Interval30m, Interval1h, Interval4h:
		return true
	}
	return false
}

// DataSource is an operator-managed third-party provider configuration.
// Read-only to the pipeline.
type DataSource struct {
	ID                 int64
	Name               string
	ProviderType       string
	APIEndpoint        string
	APIKey             string
	RateLimitPerMinute int
	RateLimitPerDay    int
	TimeoutSeconds     int
	IsActive           bool
	Priority           int
	Description        string
}

// Timeout returns the per-request timeout, defaulting to 30s.
func (ds DataSource) Timeout() time.Duration {
	if ds.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(ds.TimeoutSeconds) * time.Second
}

// Exchange is static reference data for a trading venue.
type Exchange struct {
	ID           int64
	Code         string
	Name         string
	Country      string
	Currency     string
	TradingOpen  string
	TradingClose string
	IsActive     bool
}

// Instrument is a tradable symbol on an exchange.
type Instrument struct {
	ID         int64
	Symbol     string
	Name       string
	ExchangeID int64
	Segment    string
	IsActive   bool
}

// PriceRecord is one OHLCV candle. (InstrumentID, Timestamp, Interval) is
// unique; the storage layer enforces it.
type PriceRecord struct {
	ID           int64
	InstrumentID int64
	DataSourceID int64
	Timestamp    time.Time
	Interval     Interval
	Open         decimal.Decimal
	High         decimal.Decimal
	Low          decimal.Decimal
	Close        decimal.Decimal
	Volume       int64
	CreatedAt    time.Time
}

// JobStatus enumerates ingestion job states. Pending and Cancelled are
// reserved; the orchestrator only produces Running, Completed and Failed.
type JobStatus string

const (
	JobPending   JobStatus = "PENDING"
	JobRunning   JobStatus = "RUNNING"
	JobCompleted JobStatus = "COMPLETED"
	JobFailed    JobStatus = "FAILED"
	JobCancelled JobStatus = "CANCELLED"
)

// Job type tags.
const (
	JobTypeFetchOHLC       = "FETCH_OHLC"
	JobTypeSyncInstruments = "SYNC_INSTRUMENTS"
)

// IngestionJob is the audit record of one fetch attempt. Created once,
// mutated exactly once at fetch end, never deleted.
type IngestionJob struct {
	ID             uuid.UUID
	DataSourceID   int64
	InstrumentID   int64
	JobType        string
	Status         JobStatus
	StartedAt      time.Time
	CompletedAt    *time.Time
	RecordsFetched int
	RecordsSaved   int
	ErrorMessage   string
	RetryCount     int
	Interval       Interval
	RangeStart     *time.Time
	RangeEnd       *time.Time
}

// InstrumentRow is a transient reference-data row produced by the instrument
// sync feed. It is consumed to create an Instrument or discarded.
type InstrumentRow struct {
	Exchange      string
	TradingSymbol string
	Name          string
	Segment       string
	Series        string
}
