package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/noemadb/noema/internal/atom"
	"github.com/noemadb/noema/internal/geometry"
	"github.com/noemadb/noema/internal/spatialkey"
)

const seedVersionKey = "seed_version"

// InsertAtoms writes a batch of seeded atoms in one transaction.
// Implements atom.Writer.
func (d *DB) InsertAtoms(ctx context.Context, atoms []atom.Atom) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning atom batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO atoms (code_point, x0, x1, x2, x3, key_hi, key_lo)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing atom insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range atoms {
		_, err := stmt.ExecContext(ctx,
			int64(a.CodePoint),
			a.Position[0], a.Position[1], a.Position[2], a.Position[3],
			int64(a.Key.Hi), int64(a.Key.Lo),
		)
		if err != nil {
			return fmt.Errorf("inserting atom %U: %w", a.CodePoint, err)
		}
	}

	return tx.Commit()
}

// SetSeedVersion records the data version of a completed seeding pass.
func (d *DB) SetSeedVersion(ctx context.Context, version int) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, seedVersionKey, strconv.Itoa(version))
	return err
}

// SeedVersion returns the recorded seed version, or 0 if never seeded.
func (d *DB) SeedVersion(ctx context.Context) (int, error) {
	var value string
	err := d.db.QueryRowContext(ctx,
		"SELECT value FROM meta WHERE key = ?", seedVersionKey).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, err
	}
	return strconv.Atoi(value)
}

// LoadAtoms reads the entire seeded atom table.
func (d *DB) LoadAtoms(ctx context.Context) ([]atom.Atom, error) {
	rows, err := d.db.QueryContext(ctx,
		"SELECT code_point, x0, x1, x2, x3, key_hi, key_lo FROM atoms")
	if err != nil {
		return nil, fmt.Errorf("loading atoms: %w", err)
	}
	defer rows.Close()

	var atoms []atom.Atom
	for rows.Next() {
		var cp, hi, lo int64
		var p geometry.Vec4
		if err := rows.Scan(&cp, &p[0], &p[1], &p[2], &p[3], &hi, &lo); err != nil {
			return nil, err
		}
		atoms = append(atoms, atom.Atom{
			CodePoint: rune(cp),
			Position:  p,
			Key:       spatialkey.Key{Hi: uint64(hi), Lo: uint64(lo)},
		})
	}
	return atoms, rows.Err()
}

// CountAtoms returns the number of seeded atoms.
func (d *DB) CountAtoms(ctx context.Context) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM atoms").Scan(&count)
	return count, err
}
