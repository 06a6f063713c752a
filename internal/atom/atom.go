// Package atom defines the immutable code-point table: every Unicode code
// point maps to exactly one atom with a fixed position on S³ and a spatial
// key. Atoms are created only by the seeding pass and never change.
package atom

import (
	"errors"
	"unicode/utf8"

	"github.com/noemadb/noema/internal/geometry"
	"github.com/noemadb/noema/internal/spatialkey"
)

// DataVersion identifies the seeding algorithm generation. Bumping it
// invalidates every seeded atom and all downstream compositions and
// relations; rebuilding is an explicit operator action, never automatic.
const DataVersion = 1

// Errors returned by atom lookups and seeding.
var (
	ErrNotSeeded     = errors.New("atom store has not been seeded")
	ErrAtomNotFound  = errors.New("code point not in atom store")
	ErrInvalidRune   = errors.New("invalid code point")
	ErrVersionSkew   = errors.New("atom store was seeded with a different data version")
	ErrAlreadySeeded = errors.New("atom store is already seeded")
)

// Atom binds a code point to its physicality. Immutable after seeding.
type Atom struct {
	CodePoint rune
	Position  geometry.Vec4
	Key       spatialkey.Key
}

// New projects a code point to its atom. Pure: category tables, collation
// and the projector are all deterministic, so repeated calls (in any
// process) produce bit-identical positions and keys.
func New(r rune, enc *spatialkey.Encoder) (Atom, error) {
	if r < 0 || r > utf8.MaxRune {
		return Atom{}, ErrInvalidRune
	}
	pos := geometry.Project(KeyFor(r).Rank())
	return Atom{
		CodePoint: r,
		Position:  pos,
		Key:       enc.Encode(geometry.Cube(pos)),
	}, nil
}

// Store is the read-only atom table. The map is built once during load and
// never mutated afterwards, so concurrent readers need no synchronization.
type Store struct {
	version int
	atoms   map[rune]Atom
}

// NewStore wraps pre-seeded atoms in a read-only store.
// Returns ErrVersionSkew if the rows were seeded under a different
// DataVersion.
func NewStore(version int, atoms []Atom) (*Store, error) {
	if version != DataVersion {
		return nil, ErrVersionSkew
	}
	m := make(map[rune]Atom, len(atoms))
	for _, a := range atoms {
		m[a.CodePoint] = a
	}
	return &Store{version: version, atoms: m}, nil
}

// Lookup returns the atom for a code point. Lock-free.
func (s *Store) Lookup(r rune) (Atom, bool) {
	a, ok := s.atoms[r]
	return a, ok
}

// Len returns the number of seeded atoms.
func (s *Store) Len() int {
	return len(s.atoms)
}

// Version returns the data version the store was seeded with.
func (s *Store) Version() int {
	return s.version
}
