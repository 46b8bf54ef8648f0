package builder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore persists build records to Postgres.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(conn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", conn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	db.SetMaxIdleConns(5)
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(time.Hour)

	s := &PostgresStore{db: db}
	if err := s.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema() error {
	schema := `
CREATE SEQUENCE IF NOT EXISTS build_generation_seq;
CREATE TABLE IF NOT EXISTS build_records (
    project_id TEXT PRIMARY KEY,
    generation BIGINT NOT NULL,
    status TEXT NOT NULL,
    progress INTEGER NOT NULL DEFAULT 0,
    log TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);
`
	_, err := s.db.Exec(schema)
	return err
}

func (s *PostgresStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Create(ctx context.Context, projectID string) (Record, error) {
	var gen int64
	if err := s.db.QueryRowContext(ctx, `SELECT nextval('build_generation_seq')`).Scan(&gen); err != nil {
		return Record{}, fmt.Errorf("next generation: %w", err)
	}

	rec := newRecord(projectID, uint64(gen), time.Now().UTC())
	query := `INSERT INTO build_records (project_id, generation, status, progress, log, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (project_id) DO UPDATE SET
    generation = EXCLUDED.generation,
    status = EXCLUDED.status,
    progress = EXCLUDED.progress,
    log = EXCLUDED.log,
    created_at = EXCLUDED.created_at,
    updated_at = EXCLUDED.updated_at`
	_, err := s.db.ExecContext(ctx, query,
		rec.ProjectID,
		int64(rec.Generation),
		rec.Status,
		rec.Progress,
		rec.Log,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

const selectRecord = `SELECT project_id, generation, status, progress, log, created_at, updated_at FROM build_records WHERE project_id=$1`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	var gen int64
	err := row.Scan(&rec.ProjectID, &gen, &rec.Status, &rec.Progress, &rec.Log, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	rec.Generation = uint64(gen)
	return rec, nil
}

func (s *PostgresStore) Get(ctx context.Context, projectID string) (Record, error) {
	return scanRecord(s.db.QueryRowContext(ctx, selectRecord, projectID))
}

func (s *PostgresStore) Apply(ctx context.Context, projectID string, t Transition) (Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, fmt.Errorf("begin transition tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	rec, err := scanRecord(tx.QueryRowContext(ctx, selectRecord+` FOR UPDATE`, projectID))
	if err != nil {
		return Record{}, err
	}
	current := rec
	if err := rec.apply(t, time.Now().UTC()); err != nil {
		return current, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE build_records SET status=$1, progress=$2, log=$3, updated_at=$4 WHERE project_id=$5`,
		rec.Status, rec.Progress, rec.Log, rec.UpdatedAt, projectID)
	if err != nil {
		return current, err
	}
	if err := tx.Commit(); err != nil {
		return current, fmt.Errorf("commit transition: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) Delete(ctx context.Context, projectID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM build_records WHERE project_id=$1`, projectID)
	return err
}
