// Package ingest composes the fetch pipeline: job tracking, provider
// dispatch, normalization, dedup, persistence and notification.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"stock-data-ingest/internal/marketdata"
	"stock-data-ingest/internal/model"
	"stock-data-ingest/internal/notify"
	"stock-data-ingest/internal/storage"
)

// maxErrorMessageLength bounds the error text stored on a failed job.
const maxErrorMessageLength = 2000

// Store is the persistence surface the orchestrator needs.
type Store interface {
	storage.ReferenceStore
	storage.PriceStore
	storage.JobStore
}

// Orchestrator drives one fetch attempt end to end. Every invocation that
// gets as far as opening a job closes it with exactly one terminal status.
type Orchestrator struct {
	store     Store
	registry  *marketdata.Registry
	publisher notify.Publisher
	logger    zerolog.Logger
	topic     string

	notifyWG sync.WaitGroup
}

// New constructs the orchestrator. publisher may be nil to disable
// notifications.
func New(store Store, registry *marketdata.Registry, publisher notify.Publisher, topic string, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		store:     store,
		registry:  registry,
		publisher: publisher,
		topic:     topic,
		logger:    logger.With().Str("component", "orchestrator").Logger(),
	}
}

// FetchAndSave loads the instrument and data source, opens an ingestion job,
// fetches and normalizes the provider series, persists records that pass the
// dedup check and closes the job. Saved records are returned and broadcast.
func (o *Orchestrator) FetchAndSave(ctx context.Context, instrumentID, dataSourceID int64, interval model.Interval) ([]model.PriceRecord, error) {
	o.logger.Info().
		Int64("instrument_id", instrumentID).
		Int64("data_source_id", dataSourceID).
		Str("interval", string(interval)).
		Msg("fetching OHLC data")

	instrument, err := o.store.GetInstrument(ctx, instrumentID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, marketdata.Errorf(marketdata.CodeNotFound, "instrument not found with id %d", instrumentID)
		}
		return nil, marketdata.Wrap(marketdata.CodeInternal, err, "load instrument %d", instrumentID)
	}

	dataSource, err := o.store.GetDataSource(ctx, dataSourceID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, marketdata.Errorf(marketdata.CodeNotFound, "data source not found with id %d", dataSourceID)
		}
		return nil, marketdata.Wrap(marketdata.CodeInternal, err, "load data source %d", dataSourceID)
	}

	if !dataSource.IsActive {
		return nil, marketdata.Errorf(marketdata.CodeInactiveDataSource, "data source is not active: %s", dataSource.Name)
	}

	exchange, err := o.store.GetExchange(ctx, instrument.ExchangeID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, marketdata.Wrap(marketdata.CodeInternal, err, "load exchange %d", instrument.ExchangeID)
	}

	job := model.IngestionJob{
		ID:           uuid.New(),
		DataSourceID: dataSource.ID,
		InstrumentID: instrument.ID,
		JobType:      model.JobTypeFetchOHLC,
		Status:       model.JobRunning,
		StartedAt:    time.Now().UTC(),
		Interval:     interval,
	}
	if err := o.store.CreateJob(ctx, job); err != nil {
		return nil, marketdata.Wrap(marketdata.CodeInternal, err, "create ingestion job")
	}

	saved, err := o.executeFetch(ctx, job, instrument, dataSource, exchange, interval)
	if err != nil {
		o.failJob(ctx, job.ID, err)
		return nil, err
	}

	if len(saved) > 0 {
		o.publishSaved(instrument.ID, saved)
	}
	return saved, nil
}

// executeFetch runs the fetch/normalize/persist phase; the caller owns the
// terminal job write on failure.
func (o *Orchestrator) executeFetch(ctx context.Context, job model.IngestionJob, instrument model.Instrument, dataSource model.DataSource, exchange model.Exchange, interval model.Interval) ([]model.PriceRecord, error) {
	req := marketdata.FetchRequest{
		Symbol:       instrument.Symbol,
		ExchangeCode: exchange.Code,
		Segment:      instrument.Segment,
		Interval:     interval,
	}

	resp, err := o.registry.Fetch(ctx, dataSource, req)
	if err != nil {
		return nil, err
	}

	candles := marketdata.Normalize(resp, interval, o.logger)
	fetched := len(candles)

	fresh := make([]model.PriceRecord, 0, fetched)
	for _, c := range candles {
		exists, err := o.store.ExistsPrice(ctx, instrument.ID, c.Timestamp, interval)
		if err != nil {
			return nil, marketdata.Wrap(marketdata.CodeInternal, err, "dedup check")
		}
		if exists {
			continue
		}
		fresh = append(fresh, model.PriceRecord{
			InstrumentID: instrument.ID,
			DataSourceID: dataSource.ID,
			Timestamp:    c.Timestamp,
			Interval:     interval,
			Open:         c.Open,
			High:         c.High,
			Low:          c.Low,
			Close:        c.Close,
			Volume:       c.Volume,
		})
	}

	// the batch insert can drop rows on the unique-index backstop when a
	// concurrent writer lands between the exists-check and the insert; the
	// store reports exactly the rows that landed
	inserted, err := o.store.SavePricesAndCompleteJob(ctx, job.ID, fetched, fresh)
	if err != nil {
		return nil, marketdata.Wrap(marketdata.CodeInternal, err, "persist price batch")
	}

	o.logger.Info().
		Str("job_id", job.ID.String()).
		Int("records_fetched", fetched).
		Int("records_saved", len(inserted)).
		Msg("fetch completed")

	return inserted, nil
}

// failJob records the terminal FAILED state. It runs even when the caller's
// context is already cancelled so the audit trail stays consistent.
func (o *Orchestrator) failJob(ctx context.Context, jobID uuid.UUID, cause error) {
	msg := cause.Error()
	if len(msg) > maxErrorMessageLength {
		msg = msg[:maxErrorMessageLength]
	}

	failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := o.store.FailJob(failCtx, jobID, msg); err != nil {
		o.logger.Error().Err(err).Str("job_id", jobID.String()).Msg("failed to record job failure")
	}
}

// publishSaved broadcasts saved records: one message on the global topic and
// one per instrument topic. Fire-and-continue; failures are logged only.
func (o *Orchestrator) publishSaved(instrumentID int64, records []model.PriceRecord) {
	if o.publisher == nil || o.topic == "" {
		return
	}

	o.notifyWG.Add(1)
	go func() {
		defer o.notifyWG.Done()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := o.publisher.Publish(ctx, o.topic, records); err != nil {
			o.logger.Error().Err(err).Str("topic", o.topic).Msg("failed to publish price updates")
		}

		instrumentTopic := fmt.Sprintf("%s.%d", o.topic, instrumentID)
		if err := o.publisher.Publish(ctx, instrumentTopic, records); err != nil {
			o.logger.Error().Err(err).Str("topic", instrumentTopic).Msg("failed to publish instrument price updates")
		}
	}()
}

// Drain waits for in-flight notifications; used on shutdown and in tests.
func (o *Orchestrator) Drain() {
	o.notifyWG.Wait()
}
