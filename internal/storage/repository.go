package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"stock-data-ingest/internal/model"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrNotFound indicates a lookup by id or key matched no row.
	ErrNotFound = errors.New("storage: not found")
)

const (
	getDataSourceSQL = `SELECT id, name, provider_type, api_endpoint, api_key,
        rate_limit_per_minute, rate_limit_per_day, timeout_seconds, is_active, priority, description
    FROM data_sources WHERE id = $1;`

	firstActiveDataSourceSQL = `SELECT id, name, provider_type, api_endpoint, api_key,
        rate_limit_per_minute, rate_limit_per_day, timeout_seconds, is_active, priority, description
    FROM data_sources
    WHERE is_active
    ORDER BY priority ASC, id ASC
    LIMIT 1;`

	firstActiveDataSourceByTypeSQL = `SELECT id, name, provider_type, api_endpoint, api_key,
        rate_limit_per_minute, rate_limit_per_day, timeout_seconds, is_active, priority, description
    FROM data_sources
    WHERE is_active AND provider_type ILIKE '%' || $1 || '%'
    ORDER BY priority ASC, id ASC
    LIMIT 1;`

	getInstrumentSQL = `SELECT id, symbol, name, exchange_id, segment, is_active
    FROM stocks WHERE id = $1;`

	findInstrumentBySymbolSQL = `SELECT id, symbol, name, exchange_id, segment, is_active
    FROM stocks WHERE symbol = $1 ORDER BY id ASC LIMIT 1;`

	listActiveInstrumentsSQL = `SELECT id, symbol, name, exchange_id, segment, is_active
    FROM stocks WHERE is_active ORDER BY id ASC;`

	instrumentExistsSQL = `SELECT EXISTS (
        SELECT 1 FROM stocks WHERE symbol = $1 AND exchange_id = $2
    );`

	createInstrumentSQL = `INSERT INTO stocks (symbol, name, exchange_id, segment, is_active)
    VALUES ($1, $2, $3, $4, $5)
    RETURNING id;`

	getExchangeSQL = `SELECT id, code, name, country, currency, trading_open, trading_close, is_active
    FROM exchanges WHERE id = $1;`

	getExchangeByCodeSQL = `SELECT id, code, name, country, currency, trading_open, trading_close, is_active
    FROM exchanges WHERE UPPER(code) = UPPER($1);`

	existsPriceSQL = `SELECT EXISTS (
        SELECT 1 FROM stock_prices WHERE stock_id = $1 AND ts = $2 AND interval_type = $3
    );`

	insertPriceSQL = `INSERT INTO stock_prices (
        stock_id, data_source_id, ts, interval_type, open, high, low, close, volume
    ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
    ON CONFLICT (stock_id, ts, interval_type) DO NOTHING;`

	listPricesBetweenSQL = `SELECT id, stock_id, data_source_id, ts, interval_type,
        open, high, low, close, volume, created_at
    FROM stock_prices
    WHERE stock_id = $1 AND interval_type = $2 AND ts >= $3 AND ts < $4
    ORDER BY ts;`

	createJobSQL = `INSERT INTO data_ingestion_jobs (
        id, data_source_id, stock_id, job_type, status, started_at,
        records_fetched, records_saved, error_message, retry_count, interval_type,
        date_range_start, date_range_end
    ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13);`

	completeJobSQL = `UPDATE data_ingestion_jobs
    SET status = $2, completed_at = $3, records_fetched = $4, records_saved = $5
    WHERE id = $1;`

	failJobSQL = `UPDATE data_ingestion_jobs
    SET status = $2, completed_at = $3, error_message = $4
    WHERE id = $1;`

	listRecentJobsSQL = `SELECT id, data_source_id, stock_id, job_type, status, started_at,
        completed_at, records_fetched, records_saved, error_message, retry_count, interval_type,
        date_range_start, date_range_end
    FROM data_ingestion_jobs
    ORDER BY started_at DESC
    LIMIT $1;`
)

// ReferenceStore exposes read access to operator-curated reference data and
// idempotent instrument creation for the sync pipeline.
type ReferenceStore interface {
	GetDataSource(ctx context.Context, id int64) (model.DataSource, error)
	FirstActiveDataSource(ctx context.Context) (model.DataSource, bool, error)
	FirstActiveDataSourceByType(ctx context.Context, providerType string) (model.DataSource, bool, error)
	GetInstrument(ctx context.Context, id int64) (model.Instrument, error)
	FindInstrumentBySymbol(ctx context.Context, symbol string) (model.Instrument, bool, error)
	ListActiveInstruments(ctx context.Context) ([]model.Instrument, error)
	InstrumentExists(ctx context.Context, symbol string, exchangeID int64) (bool, error)
	CreateInstrument(ctx context.Context, inst model.Instrument) (model.Instrument, error)
	GetExchange(ctx context.Context, id int64) (model.Exchange, error)
	GetExchangeByCode(ctx context.Context, code string) (model.Exchange, bool, error)
}

// PriceStore exposes the dedup existence check and price reads.
type PriceStore interface {
	ExistsPrice(ctx context.Context, instrumentID int64, ts time.Time, interval model.Interval) (bool, error)
	ListPricesBetween(ctx context.Context, instrumentID int64, interval model.Interval, from, to time.Time) ([]model.PriceRecord, error)
}

// JobStore manages the ingestion job audit trail. SavePricesAndCompleteJob
// couples the batch price insert and the terminal COMPLETED update in one
// transaction so no partial silent success state exists.
type JobStore interface {
	CreateJob(ctx context.Context, job model.IngestionJob) error
	SavePricesAndCompleteJob(ctx context.Context, jobID uuid.UUID, fetched int, prices []model.PriceRecord) (inserted []model.PriceRecord, err error)
	CompleteJob(ctx context.Context, jobID uuid.UUID, fetched, saved int) error
	FailJob(ctx context.Context, jobID uuid.UUID, errorMessage string) error
	ListRecentJobs(ctx context.Context, limit int) ([]model.IngestionJob, error)
}

// Store aggregates access to all pipeline entities.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool exposes the underlying pgx pool for collaborators that share the
// connection (e.g. the NOTIFY publisher).
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// GetDataSource loads one data source by id.
func (s *Store) GetDataSource(ctx context.Context, id int64) (model.DataSource, error) {
	pool, err := s.getPool()
	if err != nil {
		return model.DataSource{}, err
	}
	ds, err := scanDataSource(pool.QueryRow(ctx, getDataSourceSQL, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.DataSource{}, ErrNotFound
	}
	return ds, err
}

// FirstActiveDataSource returns the preferred active data source, ordered by
// priority then id so the scheduler's pick is deterministic.
func (s *Store) FirstActiveDataSource(ctx context.Context) (model.DataSource, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return model.DataSource{}, false, err
	}
	ds, err := scanDataSource(pool.QueryRow(ctx, firstActiveDataSourceSQL))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.DataSource{}, false, nil
	}
	if err != nil {
		return model.DataSource{}, false, err
	}
	return ds, true, nil
}

// FirstActiveDataSourceByType returns the preferred active data source whose
// provider type matches, for loops pinned to one provider family.
func (s *Store) FirstActiveDataSourceByType(ctx context.Context, providerType string) (model.DataSource, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return model.DataSource{}, false, err
	}
	ds, err := scanDataSource(pool.QueryRow(ctx, firstActiveDataSourceByTypeSQL, providerType))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.DataSource{}, false, nil
	}
	if err != nil {
		return model.DataSource{}, false, err
	}
	return ds, true, nil
}

// GetInstrument loads one instrument by id.
func (s *Store) GetInstrument(ctx context.Context, id int64) (model.Instrument, error) {
	pool, err := s.getPool()
	if err != nil {
		return model.Instrument{}, err
	}
	inst, err := scanInstrument(pool.QueryRow(ctx, getInstrumentSQL, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Instrument{}, ErrNotFound
	}
	return inst, err
}

// FindInstrumentBySymbol returns the first instrument with the symbol.
func (s *Store) FindInstrumentBySymbol(ctx context.Context, symbol string) (model.Instrument, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return model.Instrument{}, false, err
	}
	inst, err := scanInstrument(pool.QueryRow(ctx, findInstrumentBySymbolSQL, symbol))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Instrument{}, false, nil
	}
	if err != nil {
		return model.Instrument{}, false, err
	}
	return inst, true, nil
}

// ListActiveInstruments lists the active instrument universe.
func (s *Store) ListActiveInstruments(ctx context.Context) ([]model.Instrument, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, queryErr := pool.Query(ctx, listActiveInstrumentsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list active instruments: %w", queryErr)
	}
	defer rows.Close()

	instruments := make([]model.Instrument, 0)
	for rows.Next() {
		inst, scanErr := scanInstrument(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		instruments = append(instruments, inst)
	}
	return instruments, rows.Err()
}

// InstrumentExists checks the (symbol, exchange) idempotency key.
func (s *Store) InstrumentExists(ctx context.Context, symbol string, exchangeID int64) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}
	var exists bool
	if scanErr := pool.QueryRow(ctx, instrumentExistsSQL, symbol, exchangeID).Scan(&exists); scanErr != nil {
		return false, fmt.Errorf("instrument exists: %w", scanErr)
	}
	return exists, nil
}

// CreateInstrument inserts a new instrument and returns it with its id.
func (s *Store) CreateInstrument(ctx context.Context, inst model.Instrument) (model.Instrument, error) {
	pool, err := s.getPool()
	if err != nil {
		return model.Instrument{}, err
	}
	if scanErr := pool.QueryRow(ctx, createInstrumentSQL,
		inst.Symbol, inst.Name, inst.ExchangeID, inst.Segment, inst.IsActive,
	).Scan(&inst.ID); scanErr != nil {
		return model.Instrument{}, fmt.Errorf("create instrument: %w", scanErr)
	}
	return inst, nil
}

// GetExchange loads one exchange by id.
func (s *Store) GetExchange(ctx context.Context, id int64) (model.Exchange, error) {
	pool, err := s.getPool()
	if err != nil {
		return model.Exchange{}, err
	}
	ex, err := scanExchange(pool.QueryRow(ctx, getExchangeSQL, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Exchange{}, ErrNotFound
	}
	return ex, err
}

// GetExchangeByCode resolves an exchange by its code, case-insensitively.
func (s *Store) GetExchangeByCode(ctx context.Context, code string) (model.Exchange, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return model.Exchange{}, false, err
	}
	ex, err := scanExchange(pool.QueryRow(ctx, getExchangeByCodeSQL, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Exchange{}, false, nil
	}
	if err != nil {
		return model.Exchange{}, false, err
	}
	return ex, true, nil
}

// ExistsPrice checks the dedup key (instrument, timestamp, interval).
func (s *Store) ExistsPrice(ctx context.Context, instrumentID int64, ts time.Time, interval model.Interval) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}
	var exists bool
	if scanErr := pool.QueryRow(ctx, existsPriceSQL, instrumentID, ts, string(interval)).Scan(&exists); scanErr != nil {
		return false, fmt.Errorf("exists price: %w", scanErr)
	}
	return exists, nil
}

// ListPricesBetween lists candles in a window, ascending by timestamp.
func (s *Store) ListPricesBetween(ctx context.Context, instrumentID int64, interval model.Interval, from, to time.Time) ([]model.PriceRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, queryErr := pool.Query(ctx, listPricesBetweenSQL, instrumentID, string(interval), from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list prices between: %w", queryErr)
	}
	defer rows.Close()

	records := make([]model.PriceRecord, 0)
	for rows.Next() {
		rec, scanErr := scanPriceRecord(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CreateJob persists a freshly opened ingestion job.
func (s *Store) CreateJob(ctx context.Context, job model.IngestionJob) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, createJobSQL,
		job.ID,
		nullID(job.DataSourceID),
		nullID(job.InstrumentID),
		job.JobType,
		string(job.Status),
		job.StartedAt,
		job.RecordsFetched,
		job.RecordsSaved,
		nullString(job.ErrorMessage),
		job.RetryCount,
		nullString(string(job.Interval)),
		job.RangeStart,
		job.RangeEnd,
	); execErr != nil {
		return fmt.Errorf("create job: %w", execErr)
	}
	return nil
}

// SavePricesAndCompleteJob inserts the new price batch and marks the job
// COMPLETED in one transaction. Conflicting rows (already present under the
// dedup key) are skipped by the unique-index backstop; the returned slice
// holds exactly the rows that landed, in input order.
func (s *Store) SavePricesAndCompleteJob(ctx context.Context, jobID uuid.UUID, fetched int, prices []model.PriceRecord) ([]model.PriceRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin price batch: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, rec := range prices {
		batch.Queue(insertPriceSQL,
			rec.InstrumentID,
			nullID(rec.DataSourceID),
			rec.Timestamp,
			string(rec.Interval),
			rec.Open.String(),
			rec.High.String(),
			rec.Low.String(),
			rec.Close.String(),
			rec.Volume,
		)
	}

	inserted := make([]model.PriceRecord, 0, len(prices))
	if batch.Len() > 0 {
		results := tx.SendBatch(ctx, batch)
		for i := range prices {
			tag, execErr := results.Exec()
			if execErr != nil {
				results.Close()
				return nil, fmt.Errorf("insert price: %w", execErr)
			}
			if tag.RowsAffected() > 0 {
				inserted = append(inserted, prices[i])
			}
		}
		if closeErr := results.Close(); closeErr != nil {
			return nil, fmt.Errorf("close price batch: %w", closeErr)
		}
	}

	if _, execErr := tx.Exec(ctx, completeJobSQL,
		jobID, string(model.JobCompleted), time.Now().UTC(), fetched, len(inserted),
	); execErr != nil {
		return nil, fmt.Errorf("complete job: %w", execErr)
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		return nil, fmt.Errorf("commit price batch: %w", commitErr)
	}
	return inserted, nil
}

// CompleteJob marks a job COMPLETED without an accompanying price batch.
func (s *Store) CompleteJob(ctx context.Context, jobID uuid.UUID, fetched, saved int) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, completeJobSQL,
		jobID, string(model.JobCompleted), time.Now().UTC(), fetched, saved,
	); execErr != nil {
		return fmt.Errorf("complete job: %w", execErr)
	}
	return nil
}

// FailJob marks a job FAILED with the (already truncated) error message.
func (s *Store) FailJob(ctx context.Context, jobID uuid.UUID, errorMessage string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, failJobSQL,
		jobID, string(model.JobFailed), time.Now().UTC(), errorMessage,
	); execErr != nil {
		return fmt.Errorf("fail job: %w", execErr)
	}
	return nil
}

// ListRecentJobs lists the most recent jobs, newest first.
func (s *Store) ListRecentJobs(ctx context.Context, limit int) ([]model.IngestionJob, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, queryErr := pool.Query(ctx, listRecentJobsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent jobs: %w", queryErr)
	}
	defer rows.Close()

	jobs := make([]model.IngestionJob, 0, limit)
	for rows.Next() {
		job, scanErr := scanJob(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDataSource(row rowScanner) (model.DataSource, error) {
	var (
		ds          model.DataSource
		apiKey      sql.NullString
		perMinute   sql.NullInt32
		perDay      sql.NullInt32
		timeoutSecs sql.NullInt32
		priority    sql.NullInt32
		description sql.NullString
	)
	if err := row.Scan(
		&ds.ID, &ds.Name, &ds.ProviderType, &ds.APIEndpoint, &apiKey,
		&perMinute, &perDay, &timeoutSecs, &ds.IsActive, &priority, &description,
	); err != nil {
		return model.DataSource{}, err
	}
	ds.APIKey = apiKey.String
	ds.RateLimitPerMinute = int(perMinute.Int32)
	ds.RateLimitPerDay = int(perDay.Int32)
	ds.TimeoutSeconds = int(timeoutSecs.Int32)
	ds.Priority = int(priority.Int32)
	ds.Description = description.String
	return ds, nil
}

func scanInstrument(row rowScanner) (model.Instrument, error) {
	var inst model.Instrument
	if err := row.Scan(&inst.ID, &inst.Symbol, &inst.Name, &inst.ExchangeID, &inst.Segment, &inst.IsActive); err != nil {
		return model.Instrument{}, err
	}
	return inst, nil
}

func scanExchange(row rowScanner) (model.Exchange, error) {
	var (
		ex           model.Exchange
		country      sql.NullString
		currency     sql.NullString
		tradingOpen  sql.NullString
		tradingClose sql.NullString
	)
	if err := row.Scan(&ex.ID, &ex.Code, &ex.Name, &country, &currency, &tradingOpen, &tradingClose, &ex.IsActive); err != nil {
		return model.Exchange{}, err
	}
	ex.Country = country.String
	ex.Currency = currency.String
	ex.TradingOpen = tradingOpen.String
	ex.TradingClose = tradingClose.String
	return ex, nil
}

func scanPriceRecord(row rowScanner) (model.PriceRecord, error) {
	var (
		rec        model.PriceRecord
		sourceID   sql.NullInt64
		interval   string
		openStr    string
		highStr    string
		lowStr     string
		closeStr   string
	)
	if err := row.Scan(
		&rec.ID, &rec.InstrumentID, &sourceID, &rec.Timestamp, &interval,
		&openStr, &highStr, &lowStr, &closeStr, &rec.Volume, &rec.CreatedAt,
	); err != nil {
		return model.PriceRecord{}, err
	}
	rec.DataSourceID = sourceID.Int64
	rec.Interval = model.Interval(interval)

	var convErr error
	if rec.Open, convErr = decimal.NewFromString(openStr); convErr != nil {
		return model.PriceRecord{}, fmt.Errorf("parse open: %w", convErr)
	}
	if rec.High, convErr = decimal.NewFromString(highStr); convErr != nil {
		return model.PriceRecord{}, fmt.Errorf("parse high: %w", convErr)
	}
	if rec.Low, convErr = decimal.NewFromString(lowStr); convErr != nil {
		return model.PriceRecord{}, fmt.Errorf("parse low: %w", convErr)
	}
	if rec.Close, convErr = decimal.NewFromString(closeStr); convErr != nil {
		return model.PriceRecord{}, fmt.Errorf("parse close: %w", convErr)
	}
	return rec, nil
}

func scanJob(row rowScanner) (model.IngestionJob, error) {
	var (
		job      model.IngestionJob
		sourceID sql.NullInt64
		stockID  sql.NullInt64
		status   string
		errMsg   sql.NullString
		interval sql.NullString
	)
	if err := row.Scan(
		&job.ID, &sourceID, &stockID, &job.JobType, &status, &job.StartedAt,
		&job.CompletedAt, &job.RecordsFetched, &job.RecordsSaved, &errMsg,
		&job.RetryCount, &interval, &job.RangeStart, &job.RangeEnd,
	); err != nil {
		return model.IngestionJob{}, err
	}
	job.DataSourceID = sourceID.Int64
	job.InstrumentID = stockID.Int64
	job.Status = model.JobStatus(status)
	job.ErrorMessage = errMsg.String
	job.Interval = model.Interval(interval.String)
	return job, nil
}

func nullID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
