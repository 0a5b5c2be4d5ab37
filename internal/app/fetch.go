package app

import (
	"context"
	"errors"
	"fmt"

	"stock-data-ingest/internal/model"
	"stock-data-ingest/internal/notify"
)

// Fetch performs one manual fetch-and-save for an instrument.
func (a *App) Fetch(ctx context.Context, opts FetchOptions) error {
	interval, err := model.ParseInterval(opts.Interval)
	if err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	instrumentID := opts.InstrumentID
	if instrumentID == 0 {
		if opts.Symbol == "" {
			return errors.New("either --instrument-id or --symbol is required")
		}
		instrument, found, err := store.FindInstrumentBySymbol(ctx, opts.Symbol)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("instrument not found with symbol %q", opts.Symbol)
		}
		instrumentID = instrument.ID
	}

	dataSourceID := opts.DataSourceID
	if dataSourceID == 0 {
		dataSource, found, err := store.FirstActiveDataSource(ctx)
		if err != nil {
			return err
		}
		if !found {
			return errors.New("no active data source configured")
		}
		dataSourceID = dataSource.ID
	}

	orchestrator := a.newOrchestrator(store, notify.NewPGPublisher(store.Pool(), a.Logger))
	defer orchestrator.Drain()

	saved, err := orchestrator.FetchAndSave(ctx, instrumentID, dataSourceID, interval)
	if err != nil {
		return err
	}

	a.Logger.Info().Int("records_saved", len(saved)).Msg("manual fetch complete")
	return nil
}
