package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joseph-ayodele/polygon-locator/constants"
	"github.com/joseph-ayodele/polygon-locator/internal/common"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS locate_run (
    id UUID PRIMARY KEY,
    document TEXT NOT NULL,
    content_hash TEXT NOT NULL DEFAULT '',
    provider TEXT NOT NULL,
    status TEXT NOT NULL,
    threshold DOUBLE PRECISION NOT NULL,
    total_fields INTEGER NOT NULL DEFAULT 0,
    fields_with_polygons INTEGER NOT NULL DEFAULT 0,
    error_message TEXT NOT NULL DEFAULT '',
    result JSONB,
    started_at TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_locate_run_started ON locate_run(started_at);`

type postgresRunRepo struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// OpenPostgres creates a pgx pool from cfg, pings it and ensures the schema.
func OpenPostgres(ctx context.Context, cfg common.StoreConfig, logger *slog.Logger) (RunRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("connecting to database", "driver", common.DriverPostgres)
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Error("failed to parse database dsn", "error", err)
		return nil, err
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "polygon-locator"

	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 3 * time.Second
	}
	dctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(dctx, pc)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, err
	}
	if err := HealthCheck(dctx, pool, dialTimeout, logger); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info("successfully connected to database")
	return &postgresRunRepo{pool: pool, log: logger}, nil
}

// HealthCheck pings the pool to catch DSN issues early.
func HealthCheck(ctx context.Context, pool *pgxpool.Pool, timeout time.Duration, logger *slog.Logger) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	logger.Debug("pinging database")
	if err := pool.Ping(ctx); err != nil {
		return err
	}
	logger.Debug("database ping successful")
	return nil
}

func (r *postgresRunRepo) Start(ctx context.Context, document, contentHash, provider string, threshold float64) (*Run, error) {
	run := &Run{
		ID:          uuid.New(),
		Document:    document,
		ContentHash: contentHash,
		Provider:    provider,
		Status:      constants.RunStatusRunning,
		Threshold:   threshold,
		StartedAt:   time.Now().UTC(),
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO locate_run(id, document, content_hash, provider, status, threshold, started_at)
        VALUES($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, run.Document, run.ContentHash, run.Provider, string(run.Status), run.Threshold, run.StartedAt)
	if err != nil {
		r.log.Error("locate_run start failed", "document", document, "err", err)
		return nil, common.NewAppError(common.CodeStore, "start run", errors.Join(common.ErrDatabase, err))
	}
	r.log.Info("locate_run started", "run_id", run.ID, "document", document, "provider", provider)
	return run, nil
}

func (r *postgresRunRepo) Finish(ctx context.Context, id uuid.UUID, s RunSummary) error {
	var result any
	if len(s.Result) > 0 {
		result = string(s.Result)
	}
	tag, err := r.pool.Exec(ctx, `UPDATE locate_run
        SET status=$1, total_fields=$2, fields_with_polygons=$3, result=$4::jsonb, finished_at=$5
        WHERE id=$6`,
		string(constants.RunStatusSucceeded), s.TotalFields, s.FieldsWithPolygons, result, time.Now().UTC(), id)
	if err := affected(tag.RowsAffected(), err, id); err != nil {
		r.log.Error("locate_run finish(SUCCEEDED) failed", "run_id", id, "err", err)
		return err
	}
	r.log.Info("locate_run finished (SUCCEEDED)", "run_id", id, "total_fields", s.TotalFields, "with_polygons", s.FieldsWithPolygons)
	return nil
}

func (r *postgresRunRepo) Fail(ctx context.Context, id uuid.UUID, message string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE locate_run SET status=$1, error_message=$2, finished_at=$3 WHERE id=$4`,
		string(constants.RunStatusFailed), message, time.Now().UTC(), id)
	if err := affected(tag.RowsAffected(), err, id); err != nil {
		r.log.Error("locate_run finish(FAILED) failed", "run_id", id, "err", err)
		return err
	}
	r.log.Warn("locate_run finished (FAILED)", "run_id", id, "error", message)
	return nil
}

func affected(n int64, err error, id uuid.UUID) error {
	if err != nil {
		return common.NewAppError(common.CodeStore, "update run", errors.Join(common.ErrDatabase, err))
	}
	if n == 0 {
		return common.NewAppError(common.CodeStore, "run "+id.String(), common.ErrNotFound)
	}
	return nil
}

const postgresSelect = `SELECT id, document, content_hash, provider, status, threshold, total_fields,
    fields_with_polygons, error_message, result::text, started_at, finished_at FROM locate_run`

func (r *postgresRunRepo) GetByID(ctx context.Context, id uuid.UUID) (*Run, error) {
	run, err := scanPostgresRun(r.pool.QueryRow(ctx, postgresSelect+` WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.NewAppError(common.CodeStore, "run "+id.String(), common.ErrNotFound)
	}
	if err != nil {
		return nil, common.NewAppError(common.CodeStore, "get run", errors.Join(common.ErrDatabase, err))
	}
	return run, nil
}

func (r *postgresRunRepo) ListRecent(ctx context.Context, limit int) ([]Run, error) {
	rows, err := r.pool.Query(ctx, postgresSelect+` ORDER BY started_at DESC LIMIT $1`, listLimit(limit))
	if err != nil {
		return nil, common.NewAppError(common.CodeStore, "list runs", errors.Join(common.ErrDatabase, err))
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		run, err := scanPostgresRun(rows)
		if err != nil {
			return nil, common.NewAppError(common.CodeStore, "scan run", errors.Join(common.ErrDatabase, err))
		}
		out = append(out, *run)
	}
	return out, rows.Err()
}

func (r *postgresRunRepo) Close() error {
	r.log.Info("closing database connections")
	r.pool.Close()
	return nil
}

func scanPostgresRun(row pgx.Row) (*Run, error) {
	var (
		run    Run
		status string
		result *string
	)
	if err := row.Scan(&run.ID, &run.Document, &run.ContentHash, &run.Provider, &status, &run.Threshold,
		&run.TotalFields, &run.FieldsWithPolygons, &run.ErrorMessage, &result, &run.StartedAt, &run.FinishedAt); err != nil {
		return nil, err
	}
	run.Status = constants.RunStatus(status)
	if result != nil {
		run.Result = []byte(*result)
	}
	return &run, nil
}
