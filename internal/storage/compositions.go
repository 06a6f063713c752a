package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/noemadb/noema/internal/geometry"
	"github.com/noemadb/noema/internal/graph"
	"github.com/noemadb/noema/internal/spatialkey"
)

// Child kind column values.
const (
	childKindAtom        = "atom"
	childKindComposition = "composition"
)

// GetComposition returns the stored composition for a hash, or (nil, nil)
// as a typed miss. Implements graph.Store.
func (d *DB) GetComposition(ctx context.Context, hash string) (*graph.Composition, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT hash, mode, x0, x1, x2, x3, key_hi, key_lo
		FROM compositions WHERE hash = ?
	`, hash)

	comp, err := scanComposition(row)
	if err != nil || comp == nil {
		return comp, err
	}

	entries, err := d.compositionEntries(ctx, hash)
	if err != nil {
		return nil, err
	}
	comp.Entries = entries
	return comp, nil
}

func scanComposition(s scanner) (*graph.Composition, error) {
	var comp graph.Composition
	var mode string
	var hi, lo int64
	err := s.Scan(&comp.Hash, &mode,
		&comp.Position[0], &comp.Position[1], &comp.Position[2], &comp.Position[3],
		&hi, &lo)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	m, err := graph.ParseMode(mode)
	if err != nil {
		return nil, fmt.Errorf("composition %s: %w", comp.Hash, err)
	}
	comp.Mode = m
	comp.Key = spatialkey.Key{Hi: uint64(hi), Lo: uint64(lo)}
	return &comp, nil
}

func (d *DB) compositionEntries(ctx context.Context, hash string) ([]graph.Entry, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT child_kind, child_code_point, child_hash, occurrences
		FROM composition_entries
		WHERE composition_hash = ?
		ORDER BY ordinal
	`, hash)
	if err != nil {
		return nil, fmt.Errorf("loading entries for %s: %w", hash, err)
	}
	defer rows.Close()

	var entries []graph.Entry
	for rows.Next() {
		var kind string
		var cp sql.NullInt64
		var childHash sql.NullString
		var count int
		if err := rows.Scan(&kind, &cp, &childHash, &count); err != nil {
			return nil, err
		}
		var child graph.ChildRef
		switch kind {
		case childKindAtom:
			child = graph.AtomChild(rune(cp.Int64))
		case childKindComposition:
			child = graph.CompositionChild(childHash.String)
		default:
			return nil, fmt.Errorf("composition %s: unknown child kind %q", hash, kind)
		}
		entries = append(entries, graph.Entry{Child: child, Count: count})
	}
	return entries, rows.Err()
}

// PutComposition inserts a composition row and its sequence if absent.
// Reports whether this call created the row: ON CONFLICT DO NOTHING means a
// losing concurrent writer sees created == false and no error, degrading to
// a dedup hit. Implements graph.Store.
func (d *DB) PutComposition(ctx context.Context, c *graph.Composition) (bool, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning composition insert: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO compositions (hash, mode, x0, x1, x2, x3, key_hi, key_lo, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO NOTHING
	`, c.Hash, c.Mode.String(),
		c.Position[0], c.Position[1], c.Position[2], c.Position[3],
		int64(c.Key.Hi), int64(c.Key.Lo), time.Now().Unix())
	if err != nil {
		return false, fmt.Errorf("inserting composition %s: %w", c.Hash, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil // lost the create race; row already present
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO composition_entries
			(composition_hash, ordinal, child_kind, child_code_point, child_hash, occurrences)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return false, fmt.Errorf("preparing entry insert: %w", err)
	}
	defer stmt.Close()

	for i, e := range c.Entries {
		var cp sql.NullInt64
		var childHash sql.NullString
		kind := childKindComposition
		if e.Child.Kind == graph.KindAtom {
			kind = childKindAtom
			cp = sql.NullInt64{Int64: int64(e.Child.CodePoint), Valid: true}
		} else {
			childHash = nullableStringValue(e.Child.Hash)
		}
		if _, err := stmt.ExecContext(ctx, c.Hash, i, kind, cp, childHash, e.Count); err != nil {
			return false, fmt.Errorf("inserting entry %d of %s: %w", i, c.Hash, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing composition %s: %w", c.Hash, err)
	}
	return true, nil
}

// ListCompositionPositions streams every composition's id, position, and
// key, used to rebuild the in-memory spatial index at startup.
func (d *DB) ListCompositionPositions(ctx context.Context) ([]Positioned, error) {
	return d.listPositions(ctx, "compositions")
}

// Positioned is a minimal (id, physicality) projection of a stored row.
type Positioned struct {
	ID       string
	Position geometry.Vec4
	Key      spatialkey.Key
}

func (d *DB) listPositions(ctx context.Context, table string) ([]Positioned, error) {
	rows, err := d.db.QueryContext(ctx,
		"SELECT hash, x0, x1, x2, x3, key_hi, key_lo FROM "+table)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", table, err)
	}
	defer rows.Close()

	var out []Positioned
	for rows.Next() {
		var p Positioned
		var hi, lo int64
		if err := rows.Scan(&p.ID,
			&p.Position[0], &p.Position[1], &p.Position[2], &p.Position[3],
			&hi, &lo); err != nil {
			return nil, err
		}
		p.Key = spatialkey.Key{Hi: uint64(hi), Lo: uint64(lo)}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CountCompositions returns the number of stored compositions.
func (d *DB) CountCompositions(ctx context.Context) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM compositions").Scan(&count)
	return count, err
}

// compositionReferenced reports whether anything still points at the
// composition: a relation sequence, a parent composition, or a content row.
func (d *DB) compositionReferenced(ctx context.Context, hash string) (bool, error) {
	var n int
	err := d.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM relation_entries WHERE composition_hash = ?) +
			(SELECT COUNT(*) FROM composition_entries WHERE child_hash = ?) +
			(SELECT COUNT(*) FROM contents WHERE composition_hash = ?)
	`, hash, hash, hash).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteCompositionIfOrphaned removes a composition that nothing references
// anymore. Reports whether a row was deleted.
func (d *DB) DeleteCompositionIfOrphaned(ctx context.Context, hash string) (bool, error) {
	referenced, err := d.compositionReferenced(ctx, hash)
	if err != nil {
		return false, fmt.Errorf("checking references of %s: %w", hash, err)
	}
	if referenced {
		return false, nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM composition_entries WHERE composition_hash = ?", hash); err != nil {
		return false, fmt.Errorf("deleting entries of %s: %w", hash, err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM compositions WHERE hash = ?", hash)
	if err != nil {
		return false, fmt.Errorf("deleting composition %s: %w", hash, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, tx.Commit()
}
