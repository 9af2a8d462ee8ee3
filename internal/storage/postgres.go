package storage

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"kernel-sentinel/internal/config"
)

// DB wraps a PostgreSQL connection pool for execution history.
type DB struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS executions (
	seq          BIGINT PRIMARY KEY,
	preview      TEXT NOT NULL DEFAULT '',
	duration_ms  BIGINT NOT NULL,
	success      BOOLEAN NOT NULL,
	error_kind   TEXT NOT NULL DEFAULT '',
	warned       BOOLEAN NOT NULL DEFAULT FALSE,
	interrupted  BOOLEAN NOT NULL DEFAULT FALSE,
	created_at   TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL
)`

// New creates a new database connection pool and ensures the schema exists.
func New(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing database DSN: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxOpenConns) // #nosec G115 -- validated small config value
	}
	if cfg.MaxIdleConns > 0 {
		poolCfg.MinConns = int32(cfg.MaxIdleConns) // #nosec G115
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}

	log.Info().Msg("connected to PostgreSQL")
	return &DB{pool: pool}, nil
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.pool.Close()
}

// Healthy checks database connectivity.
func (db *DB) Healthy(ctx context.Context) bool {
	return db.pool.Ping(ctx) == nil
}

// InsertExecution stores one completed execution.
func (db *DB) InsertExecution(ctx context.Context, exec *Execution) error {
	query := `
		INSERT INTO executions (seq, preview, duration_ms, success, error_kind,
			warned, interrupted, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (seq) DO NOTHING`

	_, err := db.pool.Exec(ctx, query,
		exec.Seq, truncateForDB(exec.Preview, 200), exec.DurationMS,
		exec.Success, exec.ErrorKind, exec.Warned, exec.Interrupted,
		exec.CreatedAt, exec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting execution %d: %w", exec.Seq, err)
	}
	return nil
}

// GetExecution retrieves a single execution by sequence number.
func (db *DB) GetExecution(ctx context.Context, seq uint64) (*Execution, error) {
	query := `
		SELECT seq, preview, duration_ms, success, error_kind,
			warned, interrupted, created_at, completed_at
		FROM executions WHERE seq = $1`

	var exec Execution
	err := db.pool.QueryRow(ctx, query, seq).Scan(
		&exec.Seq, &exec.Preview, &exec.DurationMS, &exec.Success, &exec.ErrorKind,
		&exec.Warned, &exec.Interrupted, &exec.CreatedAt, &exec.CompletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("querying execution %d: %w", seq, err)
	}
	return &exec, nil
}

// ListExecutions queries history with optional filters, newest first.
func (db *DB) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]Execution, error) {
	query := `
		SELECT seq, preview, duration_ms, success, error_kind,
			warned, interrupted, created_at, completed_at
		FROM executions
		WHERE ($1 = ''
		   OR ($1 = 'success' AND success)
		   OR ($1 = 'error' AND NOT success))
		ORDER BY seq DESC
		LIMIT $2 OFFSET $3`

	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	rows, err := db.pool.Query(ctx, query, filter.Outcome, limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("querying executions: %w", err)
	}
	defer rows.Close()

	var results []Execution
	for rows.Next() {
		var exec Execution
		if err := rows.Scan(
			&exec.Seq, &exec.Preview, &exec.DurationMS, &exec.Success, &exec.ErrorKind,
			&exec.Warned, &exec.Interrupted, &exec.CreatedAt, &exec.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning execution row: %w", err)
		}
		results = append(results, exec)
	}

	return results, rows.Err()
}

// truncateForDB bounds a string to maxLen bytes, backing off to a rune
// boundary so the stored value stays valid UTF-8.
func truncateForDB(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
