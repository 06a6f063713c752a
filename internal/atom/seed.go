package atom

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/noemadb/noema/internal/spatialkey"
)

// SeedBatchSize is the number of atoms written per storage batch. Large
// enough to amortize transaction overhead over the ~1.1M-row seeding pass,
// small enough to keep batches responsive to cancellation.
const SeedBatchSize = 8192

// Writer is the storage sink for the seeding pass.
type Writer interface {
	// InsertAtoms writes a batch of seeded atoms. The seeder never writes
	// the same code point twice.
	InsertAtoms(ctx context.Context, atoms []Atom) error
	// SetSeedVersion records the data version after a completed pass.
	SetSeedVersion(ctx context.Context, version int) error
	// SeedVersion returns the recorded version, or 0 if never seeded.
	SeedVersion(ctx context.Context) (int, error)
}

// Seeder performs the one-time batch build of the atom table.
// Single-writer and non-reentrant: it refuses to run against a store that
// already carries a seed version.
type Seeder struct {
	writer  Writer
	encoder *spatialkey.Encoder
}

// NewSeeder returns a seeder writing through the given storage sink.
func NewSeeder(w Writer, enc *spatialkey.Encoder) *Seeder {
	return &Seeder{writer: w, encoder: enc}
}

// SeedStats summarizes a completed seeding pass.
type SeedStats struct {
	Atoms   int `json:"atoms"`
	Batches int `json:"batches"`
	Version int `json:"version"`
}

// Run seeds every valid Unicode scalar value (surrogates excluded).
// Returns ErrAlreadySeeded if a prior pass completed; a version upgrade
// requires wiping the store first.
func (s *Seeder) Run(ctx context.Context) (SeedStats, error) {
	return s.RunRange(ctx, 0, utf8.MaxRune)
}

// RunRange seeds the code points in [lo, hi]. Exists so tests and partial
// deployments can seed a subset; production seeding uses Run.
func (s *Seeder) RunRange(ctx context.Context, lo, hi rune) (SeedStats, error) {
	if lo < 0 || hi > utf8.MaxRune || lo > hi {
		return SeedStats{}, ErrInvalidRune
	}

	prev, err := s.writer.SeedVersion(ctx)
	if err != nil {
		return SeedStats{}, fmt.Errorf("checking seed version: %w", err)
	}
	if prev != 0 {
		return SeedStats{}, ErrAlreadySeeded
	}

	stats := SeedStats{Version: DataVersion}
	batch := make([]Atom, 0, SeedBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.writer.InsertAtoms(ctx, batch); err != nil {
			return fmt.Errorf("writing atom batch: %w", err)
		}
		stats.Atoms += len(batch)
		stats.Batches++
		batch = batch[:0]
		return nil
	}

	for r := lo; r <= hi; r++ {
		// Surrogate halves are not scalar values and get no atom.
		if r >= 0xD800 && r <= 0xDFFF {
			continue
		}
		a, err := New(r, s.encoder)
		if err != nil {
			return stats, err
		}
		batch = append(batch, a)
		if len(batch) == SeedBatchSize {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			if err := flush(); err != nil {
				return stats, err
			}
		}
	}
	if err := flush(); err != nil {
		return stats, err
	}

	if err := s.writer.SetSeedVersion(ctx, DataVersion); err != nil {
		return stats, fmt.Errorf("recording seed version: %w", err)
	}
	return stats, nil
}
