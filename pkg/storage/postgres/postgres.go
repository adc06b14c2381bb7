package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/time7/tagsync/pkg/storage"
)

// DBTX is the subset of *pgxpool.Pool the repository uses.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository implements storage.Registry on Postgres.
type Repository struct {
	pool DBTX
}

// NewRepository wraps an existing pool. Call EnsureSchema before using it.
func NewRepository(pool DBTX) *Repository {
	return &Repository{pool: pool}
}

// EnsureSchema creates the registry tables if they are missing.
func EnsureSchema(ctx context.Context, pool DBTX) error {
	ddl := `
CREATE TABLE IF NOT EXISTS product_info (
  tid TEXT PRIMARY KEY,
  epc TEXT NOT NULL UNIQUE,
  description TEXT NOT NULL DEFAULT '',
  origin TEXT NOT NULL DEFAULT '',
  produced_on DATE
);
CREATE TABLE IF NOT EXISTS product_photo (
  identifier TEXT NOT NULL,
  photo_url TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS product_photo_identifier_created_idx
  ON product_photo (identifier, created_at DESC);
CREATE TABLE IF NOT EXISTS scan_log (
  tid TEXT PRIMARY KEY,
  seen_at TIMESTAMPTZ NOT NULL,
  auth BOOLEAN NOT NULL,
  info TEXT
);`
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ERROR creating registry tables: %w", err)
	}
	return nil
}

// RegisteredIDs returns every distinct tag identifier in canonical case.
func (r *Repository) RegisteredIDs(ctx context.Context) ([]string, error) {
	const query = `SELECT DISTINCT upper(tid) FROM product_info`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, &storage.Error{Op: "registered ids", Err: err}
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, &storage.Error{Op: "registered ids", Err: err}
	}
	return ids, nil
}

// FindProduct performs an exact match on tid or epc.
func (r *Repository) FindProduct(ctx context.Context, field storage.Field, value string) (storage.ProductRecord, error) {
	var query string
	switch field {
	case storage.FieldTID:
		query = `SELECT tid, epc, description, origin, produced_on FROM product_info WHERE tid = $1 LIMIT 1`
	case storage.FieldEPC:
		query = `SELECT tid, epc, description, origin, produced_on FROM product_info WHERE epc = $1 LIMIT 1`
	default:
		return storage.ProductRecord{}, &storage.Error{Op: "find product", Err: fmt.Errorf("unsupported field %q", field)}
	}

	var (
		p          storage.ProductRecord
		producedOn pgtype.Date
	)
	err := r.pool.QueryRow(ctx, query, value).Scan(&p.TID, &p.EPC, &p.Description, &p.Origin, &producedOn)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ProductRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.ProductRecord{}, &storage.Error{Op: "find product", Err: err}
	}
	if producedOn.Valid {
		p.ProducedOn = producedOn.Time
	}
	return p, nil
}

// LatestPhoto returns the newest photo row for identifier.
func (r *Repository) LatestPhoto(ctx context.Context, identifier string) (storage.PhotoReference, error) {
	const query = `
SELECT photo_url, created_at FROM product_photo
WHERE identifier = $1
ORDER BY created_at DESC
LIMIT 1`

	var ph storage.PhotoReference
	err := r.pool.QueryRow(ctx, query, identifier).Scan(&ph.PhotoURL, &ph.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.PhotoReference{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.PhotoReference{}, &storage.Error{Op: "latest photo", Err: err}
	}
	return ph, nil
}

// UpsertProduct registers a product, replacing the row for the same tid.
func (r *Repository) UpsertProduct(ctx context.Context, p storage.ProductRecord) error {
	const query = `
INSERT INTO product_info (tid, epc, description, origin, produced_on)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (tid)
DO UPDATE SET
  epc = EXCLUDED.epc,
  description = EXCLUDED.description,
  origin = EXCLUDED.origin,
  produced_on = EXCLUDED.produced_on;
`
	_, err := r.pool.Exec(ctx, query, p.TID, p.EPC, p.Description, p.Origin, date(p.ProducedOn))
	if err != nil {
		return &storage.Error{Op: "upsert product", Err: err}
	}
	return nil
}

// UpdateProduct edits the descriptive fields of an existing product.
func (r *Repository) UpdateProduct(ctx context.Context, p storage.ProductRecord) error {
	const query = `
UPDATE product_info
SET description = $2, origin = $3, produced_on = $4
WHERE tid = $1`

	tag, err := r.pool.Exec(ctx, query, p.TID, p.Description, p.Origin, date(p.ProducedOn))
	if err != nil {
		return &storage.Error{Op: "update product", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// AddPhoto appends a photo row. Photos are never updated in place.
func (r *Repository) AddPhoto(ctx context.Context, identifier string, photo storage.PhotoReference) error {
	const query = `INSERT INTO product_photo (identifier, photo_url, created_at) VALUES ($1, $2, $3)`

	created := photo.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	if _, err := r.pool.Exec(ctx, query, identifier, photo.PhotoURL, created.UTC()); err != nil {
		return &storage.Error{Op: "add photo", Err: err}
	}
	return nil
}

// RecentScans lists the scan log newest first.
func (r *Repository) RecentScans(ctx context.Context, limit int) ([]storage.ScanLogEntry, error) {
	const query = `SELECT tid, seen_at, auth, info FROM scan_log ORDER BY seen_at DESC LIMIT $1`

	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, &storage.Error{Op: "recent scans", Err: err}
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (storage.ScanLogEntry, error) {
		var (
			e    storage.ScanLogEntry
			info pgtype.Text
		)
		if err := row.Scan(&e.TID, &e.SeenAt, &e.Auth, &info); err != nil {
			return storage.ScanLogEntry{}, err
		}
		if info.Valid {
			e.Info = &info.String
		}
		return e, nil
	})
	if err != nil {
		return nil, &storage.Error{Op: "recent scans", Err: err}
	}
	return entries, nil
}

// date maps the zero time to SQL NULL.
func date(t time.Time) pgtype.Date {
	return pgtype.Date{Time: t, Valid: !t.IsZero()}
}

// NewDB opens a pgx pool with tuned defaults.
func NewDB(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}
	// The client issues a handful of point lookups; keep the pool small.
	cfg.MaxConns = 4
	cfg.MinConns = 1
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return pool, nil
}
