package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS transcriptions (
    id               TEXT PRIMARY KEY,
    filename         TEXT NOT NULL,
    digest           TEXT NOT NULL,
    model            TEXT NOT NULL,
    transcription    TEXT NOT NULL,
    duration_seconds DOUBLE PRECISION NOT NULL,
    size_bytes       BIGINT NOT NULL,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_transcriptions_digest ON transcriptions(digest, model);
CREATE INDEX IF NOT EXISTS idx_transcriptions_created ON transcriptions(created_at);
`

// PostgresStore keeps history in PostgreSQL through a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn, verifies the connection and applies the schema.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresStore wraps an existing pool. The schema must already exist.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Close closes the pool.
func (r *PostgresStore) Close() error {
	r.pool.Close()
	return nil
}

// Save inserts rec and reads back the stored creation time.
func (r *PostgresStore) Save(ctx context.Context, rec *Record) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO transcriptions (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`
	row := r.pool.QueryRow(ctx, query,
		rec.ID, rec.Filename, rec.Digest, rec.Model,
		rec.Transcription, rec.DurationSeconds, rec.SizeBytes, rec.CreatedAt)
	if err := row.Scan(&rec.CreatedAt); err != nil {
		return fmt.Errorf("store: insert transcription: %w", err)
	}
	return nil
}

// Get fetches a record by id.
func (r *PostgresStore) Get(ctx context.Context, id string) (*Record, error) {
	query := `SELECT ` + recordColumns + ` FROM transcriptions WHERE id = $1`
	return scanPostgresRecord(r.pool.QueryRow(ctx, query, id))
}

// FindByDigest returns the newest record with the same content digest and model.
func (r *PostgresStore) FindByDigest(ctx context.Context, digest, model string) (*Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM transcriptions
		WHERE digest = $1 AND model = $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	return scanPostgresRecord(r.pool.QueryRow(ctx, query, digest, model))
}

// List returns up to limit records, newest first.
func (r *PostgresStore) List(ctx context.Context, limit int) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM transcriptions ORDER BY created_at DESC LIMIT $1`
	rows, err := r.pool.Query(ctx, query, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("store: list transcriptions: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanPostgresRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate transcriptions: %w", err)
	}
	return out, nil
}

func scanPostgresRecord(row pgx.Row) (*Record, error) {
	var rec Record
	err := row.Scan(
		&rec.ID,
		&rec.Filename,
		&rec.Digest,
		&rec.Model,
		&rec.Transcription,
		&rec.DurationSeconds,
		&rec.SizeBytes,
		&rec.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan transcription: %w", err)
	}
	return &rec, nil
}
