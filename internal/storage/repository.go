package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertPredictionSQL = `INSERT INTO predictions (
        symbol,
        predicted_price,
        source,
        model_kind,
        created_at
    ) VALUES (
        $1,$2,$3,$4,$5
    )
    RETURNING id;`

	listRecentPredictionsSQL = `SELECT
        id,
        symbol,
        predicted_price::text,
        source,
        model_kind,
        created_at
    FROM predictions
    ORDER BY created_at DESC, id DESC
    LIMIT $1;`

	countPredictionsSQL = `SELECT COUNT(*) FROM predictions;`

	deletePredictionsBeforeSQL = `DELETE FROM predictions WHERE created_at < $1;`

	insertTrainingRunSQL = `INSERT INTO training_runs (
        started_at,
        finished_at,
        kind,
        window_size,
        symbols,
        skipped_symbols,
        examples,
        train_size,
        test_size,
        rmse,
        mae,
        artifact_path,
        status,
        error
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
    )
    RETURNING id;`

	listTrainingRunsSQL = `SELECT
        id,
        started_at,
        finished_at,
        kind,
        window_size,
        symbols,
        skipped_symbols,
        examples,
        train_size,
        test_size,
        rmse::text,
        mae::text,
        artifact_path,
        status,
        error
    FROM training_runs
    ORDER BY started_at DESC, id DESC
    LIMIT $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// PredictionStore defines operations for the prediction journal.
type PredictionStore interface {
	InsertPrediction(ctx context.Context, rec PredictionRecord) (int64, error)
	ListRecentPredictions(ctx context.Context, limit int) ([]PredictionRecord, error)
	CountPredictions(ctx context.Context) (int64, error)
	DeletePredictionsBefore(ctx context.Context, olderThan time.Time) (int64, error)
}

// TrainingRunStore defines operations for training history.
type TrainingRunStore interface {
	InsertTrainingRun(ctx context.Context, run TrainingRun) (int64, error)
	ListTrainingRuns(ctx context.Context, limit int) ([]TrainingRun, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to the prediction journal and training history.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ PredictionStore  = (*Store)(nil)
	_ TrainingRunStore = (*Store)(nil)
	_ AdvisoryLocker   = (*Store)(nil)
)

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// the session lock is dropped with the connection if this fails
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertPrediction appends a served prediction to the journal.
func (s *Store) InsertPrediction(ctx context.Context, rec PredictionRecord) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var id int64
	if scanErr := pool.QueryRow(ctx, insertPredictionSQL,
		rec.Symbol,
		rec.PredictedPrice.String(),
		rec.Source,
		rec.ModelKind,
		createdAt,
	).Scan(&id); scanErr != nil {
		return 0, fmt.Errorf("insert prediction: %w", scanErr)
	}
	return id, nil
}

// ListRecentPredictions lists the most recent journal entries, newest first.
func (s *Store) ListRecentPredictions(ctx context.Context, limit int) ([]PredictionRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentPredictionsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent predictions: %w", queryErr)
	}
	defer rows.Close()

	records := make([]PredictionRecord, 0, limit)
	for rows.Next() {
		rec, scanErr := scanPrediction(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// CountPredictions counts journal entries.
func (s *Store) CountPredictions(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countPredictionsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count predictions: %w", scanErr)
	}
	return count, nil
}

// DeletePredictionsBefore prunes journal entries older than the cutoff.
func (s *Store) DeletePredictionsBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	tag, execErr := pool.Exec(ctx, deletePredictionsBeforeSQL, olderThan)
	if execErr != nil {
		return 0, fmt.Errorf("delete predictions before: %w", execErr)
	}
	return tag.RowsAffected(), nil
}

// InsertTrainingRun records a finished training run.
func (s *Store) InsertTrainingRun(ctx context.Context, run TrainingRun) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	var id int64
	if scanErr := pool.QueryRow(ctx, insertTrainingRunSQL,
		run.StartedAt,
		run.FinishedAt,
		run.Kind,
		run.WindowSize,
		run.Symbols,
		run.SkippedSymbols,
		run.Examples,
		run.TrainSize,
		run.TestSize,
		nullableDecimal(run.RMSE),
		nullableDecimal(run.MAE),
		run.ArtifactPath,
		run.Status,
		run.Error,
	).Scan(&id); scanErr != nil {
		return 0, fmt.Errorf("insert training run: %w", scanErr)
	}
	return id, nil
}

// ListTrainingRuns lists the most recent training runs.
func (s *Store) ListTrainingRuns(ctx context.Context, limit int) ([]TrainingRun, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listTrainingRunsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list training runs: %w", queryErr)
	}
	defer rows.Close()

	runs := make([]TrainingRun, 0, limit)
	for rows.Next() {
		run, scanErr := scanTrainingRun(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		runs = append(runs, run)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return runs, nil
}

func scanPrediction(rows pgx.Rows) (PredictionRecord, error) {
	var (
		rec      PredictionRecord
		priceStr string
	)
	if err := rows.Scan(
		&rec.ID,
		&rec.Symbol,
		&priceStr,
		&rec.Source,
		&rec.ModelKind,
		&rec.CreatedAt,
	); err != nil {
		return PredictionRecord{}, err
	}
	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return PredictionRecord{}, fmt.Errorf("parse predicted price: %w", err)
	}
	rec.PredictedPrice = price
	return rec, nil
}

func scanTrainingRun(rows pgx.Rows) (TrainingRun, error) {
	var (
		run     TrainingRun
		rmseStr *string
		maeStr  *string
	)
	if err := rows.Scan(
		&run.ID,
		&run.StartedAt,
		&run.FinishedAt,
		&run.Kind,
		&run.WindowSize,
		&run.Symbols,
		&run.SkippedSymbols,
		&run.Examples,
		&run.TrainSize,
		&run.TestSize,
		&rmseStr,
		&maeStr,
		&run.ArtifactPath,
		&run.Status,
		&run.Error,
	); err != nil {
		return TrainingRun{}, err
	}

	var err error
	if run.RMSE, err = parseNullableDecimal(rmseStr); err != nil {
		return TrainingRun{}, fmt.Errorf("parse rmse: %w", err)
	}
	if run.MAE, err = parseNullableDecimal(maeStr); err != nil {
		return TrainingRun{}, fmt.Errorf("parse mae: %w", err)
	}
	return run, nil
}

func nullableDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func parseNullableDecimal(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
