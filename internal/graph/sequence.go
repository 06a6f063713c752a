// Package graph builds the content-addressed composition graph: ordered
// child sequences are run-length compressed, hashed, and deduplicated so
// that identical sequences always resolve to the same stored row.
package graph

import "errors"

// Errors returned by sequence construction and deduplication.
var (
	ErrEmptySequence = errors.New("sequence has no children")
	ErrChildNotFound = errors.New("referenced child does not exist")
	ErrHashCollision = errors.New("hash collision: distinct sequences share a hash")
	ErrBadCount      = errors.New("occurrence count must be at least 1")
)

// ChildKind tags the variant held by a ChildRef.
type ChildKind int

const (
	// KindAtom marks a reference to a seeded code point.
	KindAtom ChildKind = iota
	// KindComposition marks a reference to a prior composition. A
	// composition can only reference compositions created before it, which
	// keeps the graph acyclic by construction.
	KindComposition
)

// ChildRef is a tagged reference to an atom or a composition.
type ChildRef struct {
	Kind      ChildKind
	CodePoint rune   // set when Kind == KindAtom
	Hash      string // set when Kind == KindComposition
}

// AtomChild returns a reference to the atom for a code point.
func AtomChild(r rune) ChildRef {
	return ChildRef{Kind: KindAtom, CodePoint: r}
}

// CompositionChild returns a reference to an existing composition.
func CompositionChild(hash string) ChildRef {
	return ChildRef{Kind: KindComposition, Hash: hash}
}

// ID returns the child's content hash. Atom ids are derived from the code
// point; composition ids are the composition's own hash.
func (c ChildRef) ID() string {
	if c.Kind == KindAtom {
		return HashAtom(c.CodePoint)
	}
	return c.Hash
}

// Entry is one run-length-encoded element of a sequence: a child plus the
// number of consecutive repeats it stands for.
type Entry struct {
	Child ChildRef
	Count int
}

// Compress run-length encodes an ordered child stream: consecutive repeats
// of the same child collapse into one entry carrying the repeat length.
// Returns ErrEmptySequence for an empty stream.
func Compress(children []ChildRef) ([]Entry, error) {
	if len(children) == 0 {
		return nil, ErrEmptySequence
	}
	entries := make([]Entry, 0, len(children))
	for _, c := range children {
		if n := len(entries); n > 0 && entries[n-1].Child == c {
			entries[n-1].Count++
			continue
		}
		entries = append(entries, Entry{Child: c, Count: 1})
	}
	return entries, nil
}

// Expand reverses Compress, reproducing the exact original child stream.
// Returns ErrBadCount if any entry carries a non-positive count.
func Expand(entries []Entry) ([]ChildRef, error) {
	if len(entries) == 0 {
		return nil, ErrEmptySequence
	}
	var children []ChildRef
	for _, e := range entries {
		if e.Count < 1 {
			return nil, ErrBadCount
		}
		for i := 0; i < e.Count; i++ {
			children = append(children, e.Child)
		}
	}
	return children, nil
}

// EntriesEqual reports whether two sequences are identical entry for entry.
// Used to detect hash collisions: equal hashes with unequal entries is a
// fatal integrity failure, never a silent merge.
func EntriesEqual(a, b []Entry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
