package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/noemadb/noema/internal/graph"
	"github.com/noemadb/noema/internal/relation"
	"github.com/noemadb/noema/internal/spatialkey"
)

// GetRelation returns the stored relation for a hash, or (nil, nil) as a
// typed miss.
func (d *DB) GetRelation(ctx context.Context, hash string) (*relation.Relation, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT hash, x0, x1, x2, x3, key_hi, key_lo
		FROM relations WHERE hash = ?
	`, hash)

	var rel relation.Relation
	var hi, lo int64
	err := row.Scan(&rel.Hash,
		&rel.Position[0], &rel.Position[1], &rel.Position[2], &rel.Position[3],
		&hi, &lo)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	rel.Key = spatialkey.Key{Hi: uint64(hi), Lo: uint64(lo)}

	rows, err := d.db.QueryContext(ctx, `
		SELECT composition_hash, occurrences
		FROM relation_entries
		WHERE relation_hash = ?
		ORDER BY ordinal
	`, hash)
	if err != nil {
		return nil, fmt.Errorf("loading relation entries for %s: %w", hash, err)
	}
	defer rows.Close()

	for rows.Next() {
		var compHash string
		var count int
		if err := rows.Scan(&compHash, &count); err != nil {
			return nil, err
		}
		rel.Entries = append(rel.Entries, graph.Entry{
			Child: graph.CompositionChild(compHash),
			Count: count,
		})
	}
	return &rel, rows.Err()
}

// PutRelation inserts a relation row and its sequence if absent. Reports
// whether this call created the row; a losing concurrent writer degrades to
// created == false, same as compositions.
func (d *DB) PutRelation(ctx context.Context, r *relation.Relation) (bool, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning relation insert: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO relations (hash, x0, x1, x2, x3, key_hi, key_lo, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO NOTHING
	`, r.Hash,
		r.Position[0], r.Position[1], r.Position[2], r.Position[3],
		int64(r.Key.Hi), int64(r.Key.Lo), time.Now().Unix())
	if err != nil {
		return false, fmt.Errorf("inserting relation %s: %w", r.Hash, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	for i, e := range r.Entries {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO relation_entries (relation_hash, ordinal, composition_hash, occurrences)
			VALUES (?, ?, ?, ?)
		`, r.Hash, i, e.Child.Hash, e.Count); err != nil {
			return false, fmt.Errorf("inserting relation entry %d of %s: %w", i, r.Hash, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing relation %s: %w", r.Hash, err)
	}
	return true, nil
}

// DeleteRelation removes a relation, its sequence, and its rating row.
// Evidence rows stay: they are append-only provenance.
func (d *DB) DeleteRelation(ctx context.Context, hash string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, q := range []string{
		"DELETE FROM relation_entries WHERE relation_hash = ?",
		"DELETE FROM relation_ratings WHERE relation_hash = ?",
		"DELETE FROM relations WHERE hash = ?",
	} {
		if _, err := tx.ExecContext(ctx, q, hash); err != nil {
			return fmt.Errorf("deleting relation %s: %w", hash, err)
		}
	}
	return tx.Commit()
}

// RelationCompositions returns the distinct composition hashes a relation's
// sequence references, used for garbage collection after relation removal.
func (d *DB) RelationCompositions(ctx context.Context, hash string) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT DISTINCT composition_hash FROM relation_entries WHERE relation_hash = ?
	`, hash)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}

// ListRelationPositions streams every relation's id, position, and key for
// spatial index rebuilds.
func (d *DB) ListRelationPositions(ctx context.Context) ([]Positioned, error) {
	return d.listPositions(ctx, "relations")
}

// CountRelations returns the number of stored relations.
func (d *DB) CountRelations(ctx context.Context) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM relations").Scan(&count)
	return count, err
}

// GetRating returns the stored aggregate and its version for a relation.
// A relation with no rating row reports a zero rating at version 0.
// Implements relation.RatingStore.
func (d *DB) GetRating(ctx context.Context, relationHash string) (relation.Rating, int64, error) {
	var r relation.Rating
	var version int64
	err := d.db.QueryRowContext(ctx, `
		SELECT rating, observations, version
		FROM relation_ratings WHERE relation_hash = ?
	`, relationHash).Scan(&r.Value, &r.Observations, &version)
	if err != nil {
		if err == sql.ErrNoRows {
			return relation.Rating{}, 0, nil
		}
		return relation.Rating{}, 0, err
	}
	return r, version, nil
}

// CompareAndSetRating writes the aggregate only if the stored version still
// matches, reporting false on a conflict so the engine retries. Version 0
// means "no row yet" and maps to a conflict-free insert.
// Implements relation.RatingStore.
func (d *DB) CompareAndSetRating(ctx context.Context, relationHash string, version int64, r relation.Rating) (bool, error) {
	if version == 0 {
		res, err := d.db.ExecContext(ctx, `
			INSERT INTO relation_ratings (relation_hash, rating, observations, version)
			VALUES (?, ?, ?, 1)
			ON CONFLICT(relation_hash) DO NOTHING
		`, relationHash, r.Value, r.Observations)
		if err != nil {
			return false, err
		}
		n, err := res.RowsAffected()
		return n > 0, err
	}

	res, err := d.db.ExecContext(ctx, `
		UPDATE relation_ratings
		SET rating = ?, observations = ?, version = version + 1
		WHERE relation_hash = ? AND version = ?
	`, r.Value, r.Observations, relationHash, version)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// AppendEvidence writes one provenance record and returns its id.
func (d *DB) AppendEvidence(ctx context.Context, ev relation.Evidence) (string, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO relation_evidence
			(id, relation_hash, content_hash, rating, weight, valid, created_at)
		VALUES (?, ?, ?, ?, ?, 1, ?)
	`, ev.ID, ev.RelationHash, ev.ContentHash, ev.Rating, ev.Weight, ev.CreatedAt.Unix())
	if err != nil {
		return "", fmt.Errorf("appending evidence: %w", err)
	}
	return ev.ID, nil
}

// GetEvidence returns an evidence record by id, or (nil, nil) as a typed miss.
func (d *DB) GetEvidence(ctx context.Context, id string) (*relation.Evidence, error) {
	var ev relation.Evidence
	var valid int
	var created int64
	var invalidated sql.NullInt64
	err := d.db.QueryRowContext(ctx, `
		SELECT id, relation_hash, content_hash, rating, weight, valid, created_at, invalidated_at
		FROM relation_evidence WHERE id = ?
	`, id).Scan(&ev.ID, &ev.RelationHash, &ev.ContentHash,
		&ev.Rating, &ev.Weight, &valid, &created, &invalidated)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	ev.Valid = valid != 0
	ev.CreatedAt = time.Unix(created, 0)
	if invalidated.Valid {
		t := time.Unix(invalidated.Int64, 0)
		ev.InvalidatedAt = &t
	}
	return &ev, nil
}

// MarkEvidenceInvalid flips an evidence record's valid flag.
func (d *DB) MarkEvidenceInvalid(ctx context.Context, id string) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE relation_evidence SET valid = 0, invalidated_at = ? WHERE id = ?
	`, time.Now().Unix(), id)
	return err
}

// ListEvidenceByContent returns all evidence rows a content contributed,
// used for content-level surgical deletion.
func (d *DB) ListEvidenceByContent(ctx context.Context, contentHash string) ([]relation.Evidence, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, relation_hash, content_hash, rating, weight, valid, created_at, invalidated_at
		FROM relation_evidence WHERE content_hash = ?
	`, contentHash)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []relation.Evidence
	for rows.Next() {
		var ev relation.Evidence
		var valid int
		var created int64
		var invalidated sql.NullInt64
		if err := rows.Scan(&ev.ID, &ev.RelationHash, &ev.ContentHash,
			&ev.Rating, &ev.Weight, &valid, &created, &invalidated); err != nil {
			return nil, err
		}
		ev.Valid = valid != 0
		ev.CreatedAt = time.Unix(created, 0)
		if invalidated.Valid {
			t := time.Unix(invalidated.Int64, 0)
			ev.InvalidatedAt = &t
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
