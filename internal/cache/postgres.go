package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresBackend stores blobs in the cache_blobs table of the metadata
// database.
type PostgresBackend struct {
	db pgConn
}

func NewPostgresBackend(db pgConn) *PostgresBackend {
	return &PostgresBackend{db: db}
}

func (b *PostgresBackend) Get(ctx context.Context, name string) ([]byte, error) {
	var data []byte
	err := b.db.QueryRow(ctx, `SELECT data FROM cache_blobs WHERE name = $1`, name).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache blob: %w", err)
	}
	return data, nil
}

func (b *PostgresBackend) Put(ctx context.Context, name string, data []byte) error {
	_, err := b.db.Exec(ctx, `
INSERT INTO cache_blobs (name, data, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (name) DO UPDATE
SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`, name, data)
	if err != nil {
		return fmt.Errorf("failed to write cache blob: %w", err)
	}
	return nil
}

func (b *PostgresBackend) Delete(ctx context.Context, name string) error {
	if _, err := b.db.Exec(ctx, `DELETE FROM cache_blobs WHERE name = $1`, name); err != nil {
		return fmt.Errorf("failed to delete cache blob: %w", err)
	}
	return nil
}

func (b *PostgresBackend) DeletePrefix(ctx context.Context, prefix string) error {
	if _, err := b.db.Exec(ctx, `DELETE FROM cache_blobs WHERE starts_with(name, $1)`, prefix); err != nil {
		return fmt.Errorf("failed to delete cache blobs: %w", err)
	}
	return nil
}
