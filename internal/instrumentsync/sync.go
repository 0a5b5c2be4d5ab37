// Package instrumentsync ingests the reference-data feed and maintains the
// instrument universe idempotently.
package instrumentsync

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"stock-data-ingest/internal/model"
)

const (
	segmentCash = "CASH"
	seriesEQ    = "EQ"
)

// Store is the persistence surface the sync pipeline needs.
type Store interface {
	GetExchangeByCode(ctx context.Context, code string) (model.Exchange, bool, error)
	InstrumentExists(ctx context.Context, symbol string, exchangeID int64) (bool, error)
	CreateInstrument(ctx context.Context, inst model.Instrument) (model.Instrument, error)
}

// Options parameterise the syncer.
type Options struct {
	FeedURL          string
	AllowedExchanges []string
	Timeout          time.Duration
}

// Result counts one sync pass.
type Result struct {
	Created int
	Skipped int
}

// Syncer fetches the instrument CSV, filters it to the supported universe
// (cash-equity rows on allowed exchanges) and upserts instruments.
type Syncer struct {
	opts    Options
	store   Store
	client  *http.Client
	logger  zerolog.Logger
	allowed map[string]bool
}

// New constructs a Syncer.
func New(opts Options, store Store, logger zerolog.Logger) *Syncer {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	allowed := make(map[string]bool, len(opts.AllowedExchanges))
	for _, code := range opts.AllowedExchanges {
		allowed[strings.ToUpper(strings.TrimSpace(code))] = true
	}

	return &Syncer{
		opts:    opts,
		store:   store,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With().Str("component", "instrument_sync").Logger(),
		allowed: allowed,
	}
}

// Sync fetches the feed and applies it. An empty or malformed feed is a
// zero-result, not an error.
func (s *Syncer) Sync(ctx context.Context) (Result, error) {
	s.logger.Info().Str("url", s.opts.FeedURL).Msg("starting instrument sync")

	body, err := s.fetchFeed(ctx)
	if err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(body) == "" {
		s.logger.Warn().Msg("empty response from instrument feed")
		return Result{}, nil
	}

	return s.Apply(ctx, ParseRows(body))
}

// Apply filters and upserts parsed rows. Existing (symbol, exchange) pairs
// are silently skipped; unknown exchange codes are skipped and counted.
func (s *Syncer) Apply(ctx context.Context, rows []model.InstrumentRow) (Result, error) {
	var result Result

	for _, row := range rows {
		if !s.eligible(row) {
			continue
		}

		exchange, found, err := s.store.GetExchangeByCode(ctx, strings.ToUpper(row.Exchange))
		if err != nil {
			return result, fmt.Errorf("resolve exchange %s: %w", row.Exchange, err)
		}
		if !found {
			s.logger.Debug().Str("exchange", row.Exchange).Str("symbol", row.TradingSymbol).
				Msg("exchange not found, skipping")
			result.Skipped++
			continue
		}

		exists, err := s.store.InstrumentExists(ctx, row.TradingSymbol, exchange.ID)
		if err != nil {
			return result, fmt.Errorf("check instrument %s: %w", row.TradingSymbol, err)
		}
		if exists {
			continue
		}

		if _, err := s.store.CreateInstrument(ctx, model.Instrument{
			Symbol:     row.TradingSymbol,
			Name:       row.Name,
			ExchangeID: exchange.ID,
			Segment:    segmentCash,
			IsActive:   true,
		}); err != nil {
			return result, fmt.Errorf("create instrument %s: %w", row.TradingSymbol, err)
		}
		result.Created++
	}

	s.logger.Info().Int("created", result.Created).Int("skipped", result.Skipped).
		Msg("instrument sync complete")
	return result, nil
}

// eligible applies the universe filter: CASH segment, EQ series, allowed
// exchange, non-blank symbol and name.
func (s *Syncer) eligible(row model.InstrumentRow) bool {
	if !strings.EqualFold(row.Segment, segmentCash) || !strings.EqualFold(row.Series, seriesEQ) {
		return false
	}
	if !s.allowed[strings.ToUpper(row.Exchange)] {
		return false
	}
	if row.TradingSymbol == "" || row.Name == "" {
		return false
	}
	return true
}

func (s *Syncer) fetchFeed(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.opts.FeedURL, nil)
	if err != nil {
		return "", fmt.Errorf("create feed request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch instrument feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("instrument feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read instrument feed: %w", err)
	}
	return string(body), nil
}
