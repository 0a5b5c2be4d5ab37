package app

import (
	"context"
	"time"

	"github.com/google/uuid"

	"stock-data-ingest/internal/instrumentsync"
	"stock-data-ingest/internal/model"
	"stock-data-ingest/internal/storage"
)

// Sync runs one manual instrument sync pass.
func (a *App) Sync(ctx context.Context) (SyncResult, error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return SyncResult{}, err
	}
	defer closeStore()

	return a.trackedSync(ctx, store, a.newSyncer(store))
}

// trackedSync wraps a sync pass in a SYNC_INSTRUMENTS ingestion job so the
// audit trail covers reference-data runs too.
func (a *App) trackedSync(ctx context.Context, store *storage.Store, syncer *instrumentsync.Syncer) (SyncResult, error) {
	job := model.IngestionJob{
		ID:        uuid.New(),
		JobType:   model.JobTypeSyncInstruments,
		Status:    model.JobRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := store.CreateJob(ctx, job); err != nil {
		return SyncResult{}, err
	}

	result, err := syncer.Sync(ctx)
	if err != nil {
		msg := err.Error()
		if len(msg) > 2000 {
			msg = msg[:2000]
		}
		if failErr := store.FailJob(ctx, job.ID, msg); failErr != nil {
			a.Logger.Error().Err(failErr).Msg("failed to record sync job failure")
		}
		return SyncResult{}, err
	}

	if err := store.CompleteJob(ctx, job.ID, result.Created+result.Skipped, result.Created); err != nil {
		a.Logger.Error().Err(err).Msg("failed to record sync job completion")
	}
	return result, nil
}
