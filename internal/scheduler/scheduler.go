// Package scheduler drives the periodic ingestion loops: a fixed-interval
// market-data tick over the active instrument universe and a cron-driven
// instrument sync.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"stock-data-ingest/internal/model"
)

// Fetcher is the single orchestrator operation the scheduler drives.
type Fetcher interface {
	FetchAndSave(ctx context.Context, instrumentID, dataSourceID int64, interval model.Interval) ([]model.PriceRecord, error)
}

// Universe supplies the active data source and instrument set per tick.
type Universe interface {
	FirstActiveDataSource(ctx context.Context) (model.DataSource, bool, error)
	ListActiveInstruments(ctx context.Context) ([]model.Instrument, error)
}

// Options tune scheduler behaviour.
type Options struct {
	Interval      time.Duration
	InitialDelay  time.Duration
	Throttle      time.Duration
	FetchInterval model.Interval
}

// Scheduler walks the active instruments sequentially each tick, throttling
// between instruments to respect third-party rate limits. One instrument's
// failure never aborts the tick.
type Scheduler struct {
	opts     Options
	universe Universe
	fetcher  Fetcher
	logger   zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, universe Universe, fetcher Fetcher, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	if opts.FetchInterval == "" {
		opts.FetchInterval = model.Interval1d
	}
	return &Scheduler{
		opts:     opts,
		universe: universe,
		fetcher:  fetcher,
		logger:   logger.With().Str("component", "scheduler").Logger(),
	}
}

// Run blocks, executing Tick on every interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.opts.InitialDelay > 0 {
		if err := sleepCtx(ctx, s.opts.InitialDelay); err != nil {
			return err
		}
	}

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		s.logger.Info().Msg("executing scheduled market data tick")
		if err := s.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error().Err(err).Msg("tick execution failed")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick performs one pass over the active instruments against the preferred
// active data source. Exposed so tests can drive it without real time.
func (s *Scheduler) Tick(ctx context.Context) error {
	dataSource, ok, err := s.universe.FirstActiveDataSource(ctx)
	if err != nil {
		return err
	}
	if !ok {
		s.logger.Info().Msg("no active data source configured; skipping tick")
		return nil
	}

	instruments, err := s.universe.ListActiveInstruments(ctx)
	if err != nil {
		return err
	}
	if len(instruments) == 0 {
		s.logger.Info().Msg("no active instruments to fetch; skipping tick")
		return nil
	}

	for i, instrument := range instruments {
		if _, err := s.fetcher.FetchAndSave(ctx, instrument.ID, dataSource.ID, s.opts.FetchInterval); err != nil {
			s.logger.Error().Err(err).
				Str("symbol", instrument.Symbol).
				Str("data_source", dataSource.Name).
				Msg("fetch failed for instrument")
		}

		// throttle between instruments; cancellation here aborts the
		// remainder of the tick cleanly
		if i < len(instruments)-1 && s.opts.Throttle > 0 {
			if err := sleepCtx(ctx, s.opts.Throttle); err != nil {
				s.logger.Warn().Msg("tick interrupted during throttle sleep")
				return err
			}
		}
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
