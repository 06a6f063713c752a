package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Content is one ingestion event: the caller-supplied source identity plus
// the root composition the raw bytes reduced to.
type Content struct {
	Hash            string
	SourceID        string
	CompositionHash string
	Mode            string
	SizeBytes       int64
	MIME            string
	Encoding        string
	CreatedAt       time.Time
}

// PutContent inserts a content row if absent. Re-ingesting identical bytes
// is an idempotent hit on the same hash.
func (d *DB) PutContent(ctx context.Context, c Content) (bool, error) {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	res, err := d.db.ExecContext(ctx, `
		INSERT INTO contents (hash, source_id, composition_hash, mode, size_bytes, mime, encoding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO NOTHING
	`, c.Hash, c.SourceID, c.CompositionHash, c.Mode, c.SizeBytes,
		nullableStringValue(c.MIME), nullableStringValue(c.Encoding), c.CreatedAt.Unix())
	if err != nil {
		return false, fmt.Errorf("inserting content %s: %w", c.Hash, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// GetContent returns a content row by hash, or (nil, nil) as a typed miss.
func (d *DB) GetContent(ctx context.Context, hash string) (*Content, error) {
	var c Content
	var mime, encoding sql.NullString
	var created int64
	err := d.db.QueryRowContext(ctx, `
		SELECT hash, source_id, composition_hash, mode, size_bytes, mime, encoding, created_at
		FROM contents WHERE hash = ?
	`, hash).Scan(&c.Hash, &c.SourceID, &c.CompositionHash, &c.Mode,
		&c.SizeBytes, &mime, &encoding, &created)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	c.MIME = mime.String
	c.Encoding = encoding.String
	c.CreatedAt = time.Unix(created, 0)
	return &c, nil
}

// DeleteContent removes a content row. The caller invalidates the
// content's evidence first so ratings roll back correctly.
func (d *DB) DeleteContent(ctx context.Context, hash string) error {
	_, err := d.db.ExecContext(ctx, "DELETE FROM contents WHERE hash = ?", hash)
	return err
}

// CountContents returns the number of ingested content rows.
func (d *DB) CountContents(ctx context.Context) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM contents").Scan(&count)
	return count, err
}
