package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"stock-data-ingest/internal/config"
	"stock-data-ingest/internal/ingest"
	"stock-data-ingest/internal/instrumentsync"
	"stock-data-ingest/internal/marketdata"
	"stock-data-ingest/internal/model"
	"stock-data-ingest/internal/notify"
	"stock-data-ingest/internal/scheduler"
	"stock-data-ingest/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, errors.New("database.dsn is required")
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	return store, store.Close, nil
}

// newRegistry builds the provider registry in its fixed registration order;
// the order is the tie-break when two providers claim one data source.
func (a *App) newRegistry() *marketdata.Registry {
	tokens := marketdata.NewTokenManager(marketdata.TokenManagerOptions{
		APIKey:    a.Config.Groww.APIKey,
		APISecret: a.Config.Groww.APISecret,
		TokenURL:  a.Config.Groww.TokenURL,
	}, a.Logger)

	return marketdata.NewRegistry(a.Logger,
		marketdata.NewAlphaVantage(a.Logger),
		marketdata.NewYahoo(a.Logger),
		marketdata.NewGroww(tokens, a.Logger),
	)
}

func (a *App) newOrchestrator(store *storage.Store, publisher notify.Publisher) *ingest.Orchestrator {
	return ingest.New(store, a.newRegistry(), publisher, a.Config.Notify.Channel, a.Logger)
}

func (a *App) newSyncer(store *storage.Store) *instrumentsync.Syncer {
	return instrumentsync.New(instrumentsync.Options{
		FeedURL:          a.Config.Sync.FeedURL,
		AllowedExchanges: a.Config.Sync.AllowedExchanges,
		Timeout:          a.Config.Sync.RequestTimeout,
	}, store, a.Logger)
}

// Run executes the long-running ingestion service: the market-data scheduler
// plus the instrument-sync cron.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	publisher := notify.NewPGPublisher(store.Pool(), a.Logger)
	orchestrator := a.newOrchestrator(store, publisher)
	defer orchestrator.Drain()

	syncer := a.newSyncer(store)

	if a.Config.Sync.OnStartup {
		if _, err := a.trackedSync(ctx, store, syncer); err != nil {
			a.Logger.Error().Err(err).Msg("startup instrument sync failed")
		}
	}

	var syncCron *scheduler.SyncCron
	if a.Config.Sync.Cron != "" {
		syncCron, err = scheduler.NewSyncCron(a.Config.Sync.Cron, func(cronCtx context.Context) error {
			_, syncErr := a.trackedSync(cronCtx, store, syncer)
			return syncErr
		}, a.Logger)
		if err != nil {
			return err
		}
		syncCron.Start()
		defer syncCron.Stop()
	}

	group, groupCtx := errgroup.WithContext(ctx)
	loops := 0

	if a.Config.Scheduler.Enabled {
		sched := scheduler.New(scheduler.Options{
			Interval:      a.Config.Scheduler.Interval,
			InitialDelay:  a.Config.Scheduler.InitialDelay,
			Throttle:      a.Config.Scheduler.Throttle,
			FetchInterval: a.Config.FetchInterval(),
		}, store, orchestrator, a.Logger)
		group.Go(func() error {
			return sched.Run(groupCtx)
		})
		loops++
	} else {
		a.Logger.Info().Msg("market data scheduler disabled")
	}

	if a.Config.Scheduler.Live.Enabled {
		live := scheduler.New(scheduler.Options{
			Interval:      a.Config.Scheduler.Live.Interval,
			InitialDelay:  a.Config.Scheduler.InitialDelay,
			Throttle:      a.Config.Scheduler.Throttle,
			FetchInterval: model.Interval1d,
		}, liveUniverse{store: store, providerType: a.Config.Scheduler.Live.ProviderType},
			orchestrator, a.Logger.With().Str("loop", "live").Logger())
		group.Go(func() error {
			return live.Run(groupCtx)
		})
		loops++
	}

	if loops == 0 {
		a.Logger.Info().Msg("no schedulers enabled; waiting for shutdown signal")
		<-ctx.Done()
		return nil
	}

	a.Logger.Info().Msg("starting ingestion service")
	err = group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("ingestion service stopped")
	return nil
}

type liveStore interface {
	FirstActiveDataSourceByType(ctx context.Context, providerType string) (model.DataSource, bool, error)
	ListActiveInstruments(ctx context.Context) ([]model.Instrument, error)
}

// liveUniverse narrows the scheduler's data-source pick to one provider
// family so the snapshot loop never hits historical-series providers.
type liveUniverse struct {
	store        liveStore
	providerType string
}

func (u liveUniverse) FirstActiveDataSource(ctx context.Context) (model.DataSource, bool, error) {
	return u.store.FirstActiveDataSourceByType(ctx, u.providerType)
}

func (u liveUniverse) ListActiveInstruments(ctx context.Context) ([]model.Instrument, error) {
	return u.store.ListActiveInstruments(ctx)
}

// FetchOptions hold parameters for a manual one-shot fetch.
type FetchOptions struct {
	InstrumentID int64
	Symbol       string
	DataSourceID int64
	Interval     string
}

// SyncResult mirrors instrumentsync.Result for CLI reporting.
type SyncResult = instrumentsync.Result

// JobsOptions configure the jobs command.
type JobsOptions struct {
	Limit int
}

// ExportOptions hold parameters for exporting stored candles.
type ExportOptions struct {
	InstrumentID int64
	Interval     string
	From         *time.Time
	To           *time.Time
	CSVPath      string
	PNGPath      string
	MaxPoints    int
}
