package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure Go sqlite driver

	"github.com/joseph-ayodele/polygon-locator/constants"
	"github.com/joseph-ayodele/polygon-locator/internal/common"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS locate_run (
    id TEXT PRIMARY KEY,
    document TEXT NOT NULL,
    content_hash TEXT NOT NULL DEFAULT '',
    provider TEXT NOT NULL,
    status TEXT NOT NULL,
    threshold REAL NOT NULL,
    total_fields INTEGER NOT NULL DEFAULT 0,
    fields_with_polygons INTEGER NOT NULL DEFAULT 0,
    error_message TEXT NOT NULL DEFAULT '',
    result BLOB,
    started_at DATETIME NOT NULL,
    finished_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_locate_run_started ON locate_run(started_at);`

type sqliteRunRepo struct {
	db  *sql.DB
	log *slog.Logger
}

// OpenSQLite opens or creates the run database at path and applies WAL pragmas.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (RunRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	if !strings.Contains(dsn, "_pragma=busy_timeout") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=busy_timeout(5000)"
	}
	logger.Info("opening run store", "driver", common.DriverSQLite, "path", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	for _, p := range []string{"PRAGMA journal_mode=WAL;", "PRAGMA synchronous=NORMAL;"} {
		if _, err := db.ExecContext(ctx, p); err != nil {
			logger.Warn("sqlite pragma failed", "pragma", p, "err", err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &sqliteRunRepo{db: db, log: logger}, nil
}

func (r *sqliteRunRepo) Start(ctx context.Context, document, contentHash, provider string, threshold float64) (*Run, error) {
	run := &Run{
		ID:          uuid.New(),
		Document:    document,
		ContentHash: contentHash,
		Provider:    provider,
		Status:      constants.RunStatusRunning,
		Threshold:   threshold,
		StartedAt:   time.Now().UTC(),
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO locate_run(id, document, content_hash, provider, status, threshold, started_at)
        VALUES(?, ?, ?, ?, ?, ?, ?)`,
		run.ID.String(), run.Document, run.ContentHash, run.Provider, string(run.Status), run.Threshold, run.StartedAt)
	if err != nil {
		r.log.Error("locate_run start failed", "document", document, "err", err)
		return nil, common.NewAppError(common.CodeStore, "start run", errors.Join(common.ErrDatabase, err))
	}
	r.log.Info("locate_run started", "run_id", run.ID, "document", document, "provider", provider)
	return run, nil
}

func (r *sqliteRunRepo) Finish(ctx context.Context, id uuid.UUID, s RunSummary) error {
	res, err := r.db.ExecContext(ctx, `UPDATE locate_run
        SET status=?, total_fields=?, fields_with_polygons=?, result=?, finished_at=?
        WHERE id=?`,
		string(constants.RunStatusSucceeded), s.TotalFields, s.FieldsWithPolygons, s.Result, time.Now().UTC(), id.String())
	if err := r.affected(res, err, id); err != nil {
		r.log.Error("locate_run finish(SUCCEEDED) failed", "run_id", id, "err", err)
		return err
	}
	r.log.Info("locate_run finished (SUCCEEDED)", "run_id", id, "total_fields", s.TotalFields, "with_polygons", s.FieldsWithPolygons)
	return nil
}

func (r *sqliteRunRepo) Fail(ctx context.Context, id uuid.UUID, message string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE locate_run SET status=?, error_message=?, finished_at=? WHERE id=?`,
		string(constants.RunStatusFailed), message, time.Now().UTC(), id.String())
	if err := r.affected(res, err, id); err != nil {
		r.log.Error("locate_run finish(FAILED) failed", "run_id", id, "err", err)
		return err
	}
	r.log.Warn("locate_run finished (FAILED)", "run_id", id, "error", message)
	return nil
}

func (r *sqliteRunRepo) affected(res sql.Result, err error, id uuid.UUID) error {
	if err != nil {
		return common.NewAppError(common.CodeStore, "update run", errors.Join(common.ErrDatabase, err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.NewAppError(common.CodeStore, "run "+id.String(), common.ErrNotFound)
	}
	return nil
}

const sqliteSelect = `SELECT id, document, content_hash, provider, status, threshold, total_fields,
    fields_with_polygons, error_message, result, started_at, finished_at FROM locate_run`

func (r *sqliteRunRepo) GetByID(ctx context.Context, id uuid.UUID) (*Run, error) {
	row := r.db.QueryRowContext(ctx, sqliteSelect+` WHERE id=?`, id.String())
	run, err := scanSQLiteRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NewAppError(common.CodeStore, "run "+id.String(), common.ErrNotFound)
	}
	if err != nil {
		return nil, common.NewAppError(common.CodeStore, "get run", errors.Join(common.ErrDatabase, err))
	}
	return run, nil
}

func (r *sqliteRunRepo) ListRecent(ctx context.Context, limit int) ([]Run, error) {
	rows, err := r.db.QueryContext(ctx, sqliteSelect+` ORDER BY rowid DESC LIMIT ?`, listLimit(limit))
	if err != nil {
		return nil, common.NewAppError(common.CodeStore, "list runs", errors.Join(common.ErrDatabase, err))
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		run, err := scanSQLiteRun(rows)
		if err != nil {
			return nil, common.NewAppError(common.CodeStore, "scan run", errors.Join(common.ErrDatabase, err))
		}
		out = append(out, *run)
	}
	return out, rows.Err()
}

func (r *sqliteRunRepo) Close() error { return r.db.Close() }

type scanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRun(s scanner) (*Run, error) {
	var (
		run      Run
		id       string
		status   string
		finished sql.NullTime
	)
	if err := s.Scan(&id, &run.Document, &run.ContentHash, &run.Provider, &status, &run.Threshold,
		&run.TotalFields, &run.FieldsWithPolygons, &run.ErrorMessage, &run.Result, &run.StartedAt, &finished); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse run id %q: %w", id, err)
	}
	run.ID = parsed
	run.Status = constants.RunStatus(status)
	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
	return &run, nil
}
