package graph

import (
	"context"
	"fmt"

	"github.com/noemadb/noema/internal/atom"
	"github.com/noemadb/noema/internal/geometry"
	"github.com/noemadb/noema/internal/spatialkey"
)

// Mode is the storage policy for a composition sequence.
type Mode int

const (
	// Dense sequences store every child with no gaps and must support
	// byte-exact reconstruction of the original stream.
	Dense Mode = iota
	// Sparse sequences store only the fragments that contribute relations;
	// reconstruction is not guaranteed.
	Sparse
)

// String returns the mode name used in storage and CLI output.
func (m Mode) String() string {
	if m == Sparse {
		return "sparse"
	}
	return "dense"
}

// ParseMode converts a storage/CLI mode name back to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "dense":
		return Dense, nil
	case "sparse":
		return Sparse, nil
	}
	return Dense, fmt.Errorf("unknown mode %q", s)
}

// Composition is a content-addressed ordered sequence of atoms and prior
// compositions. Immutable after creation.
type Composition struct {
	Hash     string
	Entries  []Entry
	Position geometry.Vec4
	Key      spatialkey.Key
	Mode     Mode
}

// Store is the persistence boundary the builder deduplicates against.
type Store interface {
	// GetComposition returns the stored row for a hash, or (nil, nil) as a
	// typed miss when no such row exists.
	GetComposition(ctx context.Context, hash string) (*Composition, error)
	// PutComposition inserts a row if absent. Reports whether this call
	// created the row; a losing concurrent writer sees created == false.
	PutComposition(ctx context.Context, c *Composition) (created bool, err error)
}

// Builder turns ordered child streams into deduplicated compositions.
type Builder struct {
	atoms   *atom.Store
	store   Store
	encoder *spatialkey.Encoder
}

// NewBuilder returns a builder resolving atoms from the given store and
// deduplicating compositions through the given persistence boundary.
func NewBuilder(atoms *atom.Store, store Store, enc *spatialkey.Encoder) *Builder {
	return &Builder{atoms: atoms, store: store, encoder: enc}
}

// childPosition resolves a child's geometric position, verifying existence.
func (b *Builder) childPosition(ctx context.Context, c ChildRef) (geometry.Vec4, error) {
	switch c.Kind {
	case KindAtom:
		a, ok := b.atoms.Lookup(c.CodePoint)
		if !ok {
			return geometry.Vec4{}, fmt.Errorf("%w: atom %U", ErrChildNotFound, c.CodePoint)
		}
		return a.Position, nil
	case KindComposition:
		comp, err := b.store.GetComposition(ctx, c.Hash)
		if err != nil {
			return geometry.Vec4{}, fmt.Errorf("resolving child %s: %w", c.Hash, err)
		}
		if comp == nil {
			return geometry.Vec4{}, fmt.Errorf("%w: composition %s", ErrChildNotFound, c.Hash)
		}
		return comp.Position, nil
	}
	return geometry.Vec4{}, fmt.Errorf("%w: unknown child kind %d", ErrChildNotFound, c.Kind)
}

// Result reports the outcome of a build: the resolved composition and
// whether this call created it (dedup miss) or found it (dedup hit).
type Result struct {
	Composition *Composition
	Created     bool
}

// Build compresses, hashes, and deduplicates an ordered child stream.
//
// On a dedup hit the stored row is returned unchanged after an entry-level
// integrity check: equal hashes over distinct sequences abort with
// ErrHashCollision rather than silently merging. Creation is idempotent
// under concurrency: a losing writer degrades to returning the winner's
// row with Created == false.
func (b *Builder) Build(ctx context.Context, children []ChildRef, mode Mode) (Result, error) {
	entries, err := Compress(children)
	if err != nil {
		return Result{}, err
	}
	return b.BuildEntries(ctx, entries, mode)
}

// BuildEntries is Build for a pre-compressed sequence. Sparse extraction
// paths that never materialize the expanded stream enter here.
func (b *Builder) BuildEntries(ctx context.Context, entries []Entry, mode Mode) (Result, error) {
	if len(entries) == 0 {
		return Result{}, ErrEmptySequence
	}

	// Resolve every child position first: nothing persists unless the whole
	// sequence validates. Occurrence counts weight the centroid the same
	// way the expanded stream would.
	points := make([]geometry.Vec4, 0, len(entries))
	for _, e := range entries {
		if e.Count < 1 {
			return Result{}, ErrBadCount
		}
		p, err := b.childPosition(ctx, e.Child)
		if err != nil {
			return Result{}, err
		}
		for i := 0; i < e.Count; i++ {
			points = append(points, p)
		}
	}
	position, err := geometry.Centroid(points)
	if err != nil {
		return Result{}, fmt.Errorf("composition centroid: %w", err)
	}

	comp := &Composition{
		Hash:     HashComposition(entries),
		Entries:  entries,
		Position: position,
		Key:      b.encoder.Encode(geometry.Cube(position)),
		Mode:     mode,
	}

	existing, err := b.store.GetComposition(ctx, comp.Hash)
	if err != nil {
		return Result{}, fmt.Errorf("dedup lookup: %w", err)
	}
	if existing != nil {
		if !EntriesEqual(existing.Entries, entries) {
			return Result{}, fmt.Errorf("%w: %s", ErrHashCollision, comp.Hash)
		}
		return Result{Composition: existing, Created: false}, nil
	}

	created, err := b.store.PutComposition(ctx, comp)
	if err != nil {
		return Result{}, fmt.Errorf("storing composition: %w", err)
	}
	if !created {
		// Lost a create race; re-read the winning row and verify it.
		winner, err := b.store.GetComposition(ctx, comp.Hash)
		if err != nil || winner == nil {
			return Result{}, fmt.Errorf("re-reading composition after lost race: %w", err)
		}
		if !EntriesEqual(winner.Entries, entries) {
			return Result{}, fmt.Errorf("%w: %s", ErrHashCollision, comp.Hash)
		}
		return Result{Composition: winner, Created: false}, nil
	}
	return Result{Composition: comp, Created: true}, nil
}
