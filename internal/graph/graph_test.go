package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/noemadb/noema/internal/atom"
	"github.com/noemadb/noema/internal/spatialkey"
)

// memStore is an in-memory composition store for builder tests.
type memStore struct {
	rows map[string]*Composition
	// loseRaces simulates a concurrent winner: PutComposition stores the
	// given row under the hash first, then reports created == false.
	loseRaces bool
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]*Composition)}
}

func (s *memStore) GetComposition(_ context.Context, hash string) (*Composition, error) {
	return s.rows[hash], nil
}

func (s *memStore) PutComposition(_ context.Context, c *Composition) (bool, error) {
	if _, ok := s.rows[c.Hash]; ok {
		return false, nil
	}
	s.rows[c.Hash] = c
	return !s.loseRaces, nil
}

func testBuilder(t *testing.T, lo, hi rune) (*Builder, *memStore) {
	t.Helper()
	enc, err := spatialkey.NewEncoder(spatialkey.DefaultBits)
	if err != nil {
		t.Fatal(err)
	}
	var atoms []atom.Atom
	for r := lo; r <= hi; r++ {
		a, err := atom.New(r, enc)
		if err != nil {
			t.Fatal(err)
		}
		atoms = append(atoms, a)
	}
	store, err := atom.NewStore(atom.DataVersion, atoms)
	if err != nil {
		t.Fatal(err)
	}
	ms := newMemStore()
	return NewBuilder(store, ms, enc), ms
}

func atomChildren(s string) []ChildRef {
	var children []ChildRef
	for _, r := range s {
		children = append(children, AtomChild(r))
	}
	return children
}

func TestCompressExpand_RoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		input string
		runs  int
	}{
		{"no repeats", "abc", 3},
		{"single run", "aaaa", 1},
		{"mixed runs", "aabccc", 3},
		{"single child", "x", 1},
		{"alternating", "ababab", 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			children := atomChildren(tt.input)
			entries, err := Compress(children)
			if err != nil {
				t.Fatalf("Compress failed: %v", err)
			}
			if len(entries) != tt.runs {
				t.Errorf("Compress produced %d entries, want %d", len(entries), tt.runs)
			}

			back, err := Expand(entries)
			if err != nil {
				t.Fatalf("Expand failed: %v", err)
			}
			if len(back) != len(children) {
				t.Fatalf("Expand produced %d children, want %d", len(back), len(children))
			}
			for i := range back {
				if back[i] != children[i] {
					t.Fatalf("round trip mismatch at %d: %v vs %v", i, back[i], children[i])
				}
			}
		})
	}
}

func TestCompress_Empty(t *testing.T) {
	if _, err := Compress(nil); !errors.Is(err, ErrEmptySequence) {
		t.Errorf("expected ErrEmptySequence, got %v", err)
	}
}

func TestExpand_BadCount(t *testing.T) {
	entries := []Entry{{Child: AtomChild('a'), Count: 0}}
	if _, err := Expand(entries); !errors.Is(err, ErrBadCount) {
		t.Errorf("expected ErrBadCount, got %v", err)
	}
}

func TestHash_SequenceIdentity(t *testing.T) {
	t.Run("same sequence same hash", func(t *testing.T) {
		a, _ := Compress(atomChildren("hello"))
		b, _ := Compress(atomChildren("hello"))
		if HashComposition(a) != HashComposition(b) {
			t.Error("identical sequences must hash identically")
		}
	})

	t.Run("order matters", func(t *testing.T) {
		a, _ := Compress(atomChildren("ab"))
		b, _ := Compress(atomChildren("ba"))
		if HashComposition(a) == HashComposition(b) {
			t.Error("reordered sequences must hash differently")
		}
	})

	t.Run("counts matter", func(t *testing.T) {
		a, _ := Compress(atomChildren("aa"))
		b, _ := Compress(atomChildren("aaa"))
		if HashComposition(a) == HashComposition(b) {
			t.Error("different run lengths must hash differently")
		}
	})

	t.Run("domains separate composition and relation hashes", func(t *testing.T) {
		e, _ := Compress(atomChildren("ab"))
		if HashComposition(e) == HashRelation(e) {
			t.Error("composition and relation domains must not collide")
		}
	})

	t.Run("atom hashes distinct per code point", func(t *testing.T) {
		if HashAtom('a') == HashAtom('b') {
			t.Error("distinct code points must hash differently")
		}
	})
}

func TestBuild(t *testing.T) {
	ctx := context.Background()

	t.Run("creates then dedups", func(t *testing.T) {
		b, _ := testBuilder(t, 'a', 'z')

		first, err := b.Build(ctx, atomChildren("hello"), Dense)
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		if !first.Created {
			t.Error("first build should create the row")
		}
		if !first.Composition.Position.IsUnit() {
			t.Errorf("composition position not unit: %v", first.Composition.Position.Norm())
		}

		second, err := b.Build(ctx, atomChildren("hello"), Dense)
		if err != nil {
			t.Fatalf("repeat Build failed: %v", err)
		}
		if second.Created {
			t.Error("repeat build must be a dedup hit")
		}
		if second.Composition.Hash != first.Composition.Hash {
			t.Error("dedup hit must resolve to the same row")
		}
	})

	t.Run("empty sequence rejected", func(t *testing.T) {
		b, _ := testBuilder(t, 'a', 'z')
		if _, err := b.Build(ctx, nil, Dense); !errors.Is(err, ErrEmptySequence) {
			t.Errorf("expected ErrEmptySequence, got %v", err)
		}
	})

	t.Run("unknown atom rejected", func(t *testing.T) {
		b, _ := testBuilder(t, 'a', 'z')
		if _, err := b.Build(ctx, atomChildren("héllo"), Dense); !errors.Is(err, ErrChildNotFound) {
			t.Errorf("expected ErrChildNotFound, got %v", err)
		}
	})

	t.Run("unknown composition child rejected", func(t *testing.T) {
		b, _ := testBuilder(t, 'a', 'z')
		children := []ChildRef{CompositionChild("no-such-hash")}
		if _, err := b.Build(ctx, children, Dense); !errors.Is(err, ErrChildNotFound) {
			t.Errorf("expected ErrChildNotFound, got %v", err)
		}
	})

	t.Run("hierarchical nesting", func(t *testing.T) {
		b, _ := testBuilder(t, 'a', 'z')

		word, err := b.Build(ctx, atomChildren("hi"), Dense)
		if err != nil {
			t.Fatalf("building word failed: %v", err)
		}

		phrase, err := b.Build(ctx, []ChildRef{
			CompositionChild(word.Composition.Hash),
			CompositionChild(word.Composition.Hash),
		}, Dense)
		if err != nil {
			t.Fatalf("building phrase failed: %v", err)
		}
		if !phrase.Created {
			t.Error("phrase should be a new row")
		}
		// Two identical children collapse into one RLE entry of count 2.
		if len(phrase.Composition.Entries) != 1 || phrase.Composition.Entries[0].Count != 2 {
			t.Errorf("expected one entry with count 2, got %+v", phrase.Composition.Entries)
		}
	})

	t.Run("lost create race degrades to hit", func(t *testing.T) {
		b, ms := testBuilder(t, 'a', 'z')
		ms.loseRaces = true

		res, err := b.Build(ctx, atomChildren("race"), Dense)
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		if res.Created {
			t.Error("losing writer must report Created == false")
		}
		if res.Composition == nil {
			t.Fatal("losing writer must still resolve the winning row")
		}
	})

	t.Run("collision surfaces as fatal", func(t *testing.T) {
		b, ms := testBuilder(t, 'a', 'z')

		res, err := b.Build(ctx, atomChildren("ab"), Dense)
		if err != nil {
			t.Fatal(err)
		}
		// Corrupt the stored row so the hash no longer matches its entries.
		ms.rows[res.Composition.Hash] = &Composition{
			Hash:    res.Composition.Hash,
			Entries: []Entry{{Child: AtomChild('z'), Count: 1}},
		}

		if _, err := b.Build(ctx, atomChildren("ab"), Dense); !errors.Is(err, ErrHashCollision) {
			t.Errorf("expected ErrHashCollision, got %v", err)
		}
	})
}

func TestParseMode(t *testing.T) {
	for _, m := range []Mode{Dense, Sparse} {
		got, err := ParseMode(m.String())
		if err != nil || got != m {
			t.Errorf("ParseMode(%q) = %v, %v", m.String(), got, err)
		}
	}
	if _, err := ParseMode("bogus"); err == nil {
		t.Error("expected error for unknown mode")
	}
}
