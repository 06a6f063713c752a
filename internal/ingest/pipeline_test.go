package ingest

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/noemadb/noema/internal/atom"
	"github.com/noemadb/noema/internal/frontend"
	"github.com/noemadb/noema/internal/graph"
	"github.com/noemadb/noema/internal/spatial"
	"github.com/noemadb/noema/internal/spatialkey"
	"github.com/noemadb/noema/internal/storage"
)

// openSeededPipeline seeds the Latin-1 range into a fresh database and opens
// a pipeline over it.
func openSeededPipeline(t *testing.T) *Pipeline {
	t.Helper()
	ctx := context.Background()

	db, err := storage.OpenDB(filepath.Join(t.TempDir(), "noema.db"))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	enc, err := spatialkey.NewEncoder(spatialkey.DefaultBits)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	if _, err := atom.NewSeeder(db, enc).RunRange(ctx, 0, 0xFF); err != nil {
		t.Fatalf("seeding: %v", err)
	}

	p, err := Open(ctx, db, spatialkey.DefaultBits, 2)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return p
}

func TestOpenUnseeded(t *testing.T) {
	db, err := storage.OpenDB(filepath.Join(t.TempDir(), "noema.db"))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	defer db.Close()

	if _, err := Open(context.Background(), db, spatialkey.DefaultBits, 2); !errors.Is(err, atom.ErrNotSeeded) {
		t.Errorf("got %v, want ErrNotSeeded", err)
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
		words []bool
	}{
		{
			name:  "two words",
			input: "hello world",
			want:  []string{"hello", " ", "world"},
			words: []bool{true, false, true},
		},
		{
			name:  "repeated word",
			input: "hello hello",
			want:  []string{"hello", " ", "hello"},
			words: []bool{true, false, true},
		},
		{
			name:  "leading and trailing separators",
			input: "  a\n",
			want:  []string{"  ", "a", "\n"},
			words: []bool{false, true, false},
		},
		{
			name:  "digits and marks are word runes",
			input: "a1é!",
			want:  []string{"a1é", "!"},
			words: []bool{true, false},
		},
		{
			name:  "empty",
			input: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens := Tokenize([]rune(tt.input))
			if len(tokens) != len(tt.want) {
				t.Fatalf("got %d tokens, want %d", len(tokens), len(tt.want))
			}
			var rebuilt []rune
			for i, tok := range tokens {
				if string(tok.Runes) != tt.want[i] {
					t.Errorf("token %d = %q, want %q", i, string(tok.Runes), tt.want[i])
				}
				if tok.Word != tt.words[i] {
					t.Errorf("token %d word = %v, want %v", i, tok.Word, tt.words[i])
				}
				rebuilt = append(rebuilt, tok.Runes...)
			}
			if string(rebuilt) != tt.input {
				t.Errorf("tokens do not concatenate back to input")
			}
		})
	}
}

func TestIngestRepeatedWord(t *testing.T) {
	p := openSeededPipeline(t)
	ctx := context.Background()

	// "hello hello" tokenizes to three tokens but only two distinct
	// compositions; the single co-occurrence window collapses to one
	// relation entry with an occurrence count of two.
	stats, err := p.Ingest(ctx, "test.txt", []byte("hello hello"), frontend.Text{}, graph.Dense)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if stats.Deduplicated {
		t.Error("first ingest reported deduplicated")
	}
	if stats.AtomsSeen != len("hello hello") {
		t.Errorf("AtomsSeen = %d, want %d", stats.AtomsSeen, len("hello hello"))
	}
	// "hello", " ", and the root.
	if stats.CompositionsCreated != 3 {
		t.Errorf("CompositionsCreated = %d, want 3", stats.CompositionsCreated)
	}
	// The second "hello" token.
	if stats.CompositionsReused != 1 {
		t.Errorf("CompositionsReused = %d, want 1", stats.CompositionsReused)
	}
	if stats.RelationsCreated != 1 {
		t.Errorf("RelationsCreated = %d, want 1", stats.RelationsCreated)
	}
	if stats.EvidenceAdded != 1 {
		t.Errorf("EvidenceAdded = %d, want 1", stats.EvidenceAdded)
	}

	// The relation's sequence must be one entry with count 2, rated at the
	// initial value with one observation.
	helloEntries, err := graph.Compress([]graph.ChildRef{graph.AtomChild('h'), graph.AtomChild('e'),
		graph.AtomChild('l'), graph.AtomChild('l'), graph.AtomChild('o')})
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	helloRef := graph.CompositionChild(graph.HashComposition(helloEntries))
	relEntries, err := graph.Compress([]graph.ChildRef{helloRef, helloRef})
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if len(relEntries) != 1 || relEntries[0].Count != 2 {
		t.Fatalf("windowed pair should RLE to one entry with count 2, got %v", relEntries)
	}

	rating, _, err := p.db.GetRating(ctx, graph.HashRelation(relEntries))
	if err != nil {
		t.Fatalf("GetRating: %v", err)
	}
	if rating.Value != 1000 || rating.Observations != 1 {
		t.Errorf("rating = %+v, want value 1000 obs 1", rating)
	}
}

func TestIngestIdempotent(t *testing.T) {
	p := openSeededPipeline(t)
	ctx := context.Background()
	data := []byte("alpha beta gamma")

	first, err := p.Ingest(ctx, "a.txt", data, frontend.Text{}, graph.Dense)
	if err != nil {
		t.Fatalf("first Ingest: %v", err)
	}

	second, err := p.Ingest(ctx, "a.txt", data, frontend.Text{}, graph.Dense)
	if err != nil {
		t.Fatalf("second Ingest: %v", err)
	}
	if !second.Deduplicated {
		t.Error("second ingest of identical bytes should be a dedup hit")
	}
	if second.CompositionsCreated != 0 || second.RelationsCreated != 0 || second.EvidenceAdded != 0 {
		t.Errorf("second ingest created rows: %+v", second)
	}
	if second.RootHash != first.RootHash {
		t.Errorf("root hash changed across identical ingests")
	}
	if second.BytesStored != 0 {
		t.Errorf("BytesStored = %d on a dedup hit, want 0", second.BytesStored)
	}
	// "alpha beta gamma" stores every token once; the second space token
	// dedups against the first, so one byte of the input is never stored.
	if first.BytesStored != int64(len(data)-1) {
		t.Errorf("first BytesStored = %d, want %d", first.BytesStored, len(data)-1)
	}
}

func TestIngestEmpty(t *testing.T) {
	p := openSeededPipeline(t)

	_, err := p.Ingest(context.Background(), "empty.txt", nil, frontend.Text{}, graph.Dense)
	if !errors.Is(err, ErrEmptyContent) {
		t.Errorf("got %v, want ErrEmptyContent", err)
	}

	desc := p.LastError()
	if desc == nil {
		t.Fatal("LastError should record the failure")
	}
	if desc.Code != CodeInvalidInput || desc.Op != "ingest" {
		t.Errorf("descriptor = %+v, want invalid_input/ingest", desc)
	}
}

func TestReconstruct(t *testing.T) {
	p := openSeededPipeline(t)
	ctx := context.Background()
	data := []byte("the quick brown fox\njumps over the lazy dog\n")

	stats, err := p.Ingest(ctx, "fox.txt", data, frontend.Text{}, graph.Dense)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	got, err := p.Reconstruct(ctx, stats.ContentHash)
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("reconstruction differs:\ngot  %q\nwant %q", got, data)
	}
}

func TestReconstructSparse(t *testing.T) {
	p := openSeededPipeline(t)
	ctx := context.Background()

	stats, err := p.Ingest(ctx, "s.txt", []byte("only words survive"), frontend.Text{}, graph.Sparse)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if _, err := p.Reconstruct(ctx, stats.ContentHash); !errors.Is(err, ErrReconstruction) {
		t.Errorf("got %v, want ErrReconstruction", err)
	}
}

func TestReconstructUnknown(t *testing.T) {
	p := openSeededPipeline(t)

	_, err := p.Reconstruct(context.Background(), "no-such-hash")
	if !errors.Is(err, ErrContentNotFound) {
		t.Errorf("got %v, want ErrContentNotFound", err)
	}
}

func TestRemoveContent(t *testing.T) {
	p := openSeededPipeline(t)
	ctx := context.Background()

	stats, err := p.Ingest(ctx, "r.txt", []byte("one two three"), frontend.Text{}, graph.Dense)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	removal, err := p.RemoveContent(ctx, stats.ContentHash)
	if err != nil {
		t.Fatalf("RemoveContent: %v", err)
	}

	if removal.EvidenceInvalidated != stats.EvidenceAdded {
		t.Errorf("invalidated %d evidence, want %d", removal.EvidenceInvalidated, stats.EvidenceAdded)
	}
	// Every relation had exactly one evidence item, so all of them go.
	if removal.RelationsRemoved != stats.RelationsCreated {
		t.Errorf("removed %d relations, want %d", removal.RelationsRemoved, stats.RelationsCreated)
	}
	// Nothing references the compositions anymore.
	if removal.CompositionsRemoved != stats.CompositionsCreated {
		t.Errorf("removed %d compositions, want %d", removal.CompositionsRemoved, stats.CompositionsCreated)
	}

	if _, err := p.Reconstruct(ctx, stats.ContentHash); !errors.Is(err, ErrContentNotFound) {
		t.Errorf("content still reconstructable after removal")
	}

	n, err := p.db.CountCompositions(ctx)
	if err != nil {
		t.Fatalf("CountCompositions: %v", err)
	}
	if n != 0 {
		t.Errorf("%d compositions survived removal", n)
	}
}

func TestRemoveContentSharedRows(t *testing.T) {
	p := openSeededPipeline(t)
	ctx := context.Background()

	// Two contents sharing the pair "one two". Removing the first must keep
	// the shared relation alive with the second's evidence.
	first, err := p.Ingest(ctx, "a.txt", []byte("one two"), frontend.Text{}, graph.Dense)
	if err != nil {
		t.Fatalf("Ingest a: %v", err)
	}
	second, err := p.Ingest(ctx, "b.txt", []byte("one two extra"), frontend.Text{}, graph.Dense)
	if err != nil {
		t.Fatalf("Ingest b: %v", err)
	}
	if second.RelationsCreated != 1 {
		t.Fatalf("second ingest should add only the (two, extra) relation, got %d", second.RelationsCreated)
	}

	removal, err := p.RemoveContent(ctx, first.ContentHash)
	if err != nil {
		t.Fatalf("RemoveContent: %v", err)
	}
	if removal.RelationsRemoved != 0 {
		t.Errorf("shared relation removed while second content still vouches for it")
	}

	got, err := p.Reconstruct(ctx, second.ContentHash)
	if err != nil {
		t.Fatalf("Reconstruct survivor: %v", err)
	}
	if string(got) != "one two extra" {
		t.Errorf("survivor reconstruction = %q", got)
	}
}

func TestInvalidateEvidence(t *testing.T) {
	p := openSeededPipeline(t)
	ctx := context.Background()

	stats, err := p.Ingest(ctx, "i.txt", []byte("left right"), frontend.Text{}, graph.Dense)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if stats.EvidenceAdded != 1 {
		t.Fatalf("expected exactly one evidence item, got %d", stats.EvidenceAdded)
	}

	evidence, err := p.db.ListEvidenceByContent(ctx, stats.ContentHash)
	if err != nil || len(evidence) != 1 {
		t.Fatalf("listing evidence: %v (%d rows)", err, len(evidence))
	}

	inv, err := p.InvalidateEvidence(ctx, evidence[0].ID)
	if err != nil {
		t.Fatalf("InvalidateEvidence: %v", err)
	}
	// The only evidence is gone, so the relation goes with it. Its child
	// compositions stay: the content's root still references them.
	if !inv.RelationRemoved {
		t.Error("relation should be removed with its last evidence")
	}
	if inv.CompositionsRemoved != 0 {
		t.Errorf("removed %d compositions still referenced by the content root", inv.CompositionsRemoved)
	}

	// Invalidating again is a no-op.
	inv, err = p.InvalidateEvidence(ctx, evidence[0].ID)
	if err != nil {
		t.Fatalf("second InvalidateEvidence: %v", err)
	}
	if inv.RelationRemoved {
		t.Error("second invalidation should change nothing")
	}

	// Dense reconstruction is unaffected by relation removal.
	got, err := p.Reconstruct(ctx, stats.ContentHash)
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	if string(got) != "left right" {
		t.Errorf("reconstruction = %q", got)
	}

	if _, err := p.InvalidateEvidence(ctx, "no-such-id"); !errors.Is(err, ErrEvidenceNotFound) {
		t.Errorf("got %v, want ErrEvidenceNotFound", err)
	}
}

func TestSpatialQueriesAfterIngest(t *testing.T) {
	p := openSeededPipeline(t)
	ctx := context.Background()

	stats, err := p.Ingest(ctx, "q.txt", []byte("alpha beta"), frontend.Text{}, graph.Dense)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	everything, err := spatial.NewRect(
		[4]float64{-1, -1, -1, -1},
		[4]float64{1, 1, 1, 1},
	)
	if err != nil {
		t.Fatalf("NewRect: %v", err)
	}

	comps := p.RangeCompositions(everything)
	if len(comps) != stats.CompositionsCreated {
		t.Errorf("range found %d compositions, want %d", len(comps), stats.CompositionsCreated)
	}

	rels := p.RangeRelations(everything)
	if len(rels) != stats.RelationsCreated {
		t.Errorf("range found %d relations, want %d", len(rels), stats.RelationsCreated)
	}

	if len(comps) > 0 {
		nearest, err := p.NearestCompositions(comps[0].Position, 1)
		if err != nil {
			t.Fatalf("NearestCompositions: %v", err)
		}
		if len(nearest) != 1 || nearest[0].Entry.ID != comps[0].ID {
			t.Errorf("nearest to an indexed point should be the point itself")
		}
	}
}

func TestIndexRebuildOnOpen(t *testing.T) {
	p := openSeededPipeline(t)
	ctx := context.Background()

	stats, err := p.Ingest(ctx, "p.txt", []byte("persisted across reopen"), frontend.Text{}, graph.Dense)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	reopened, err := Open(ctx, p.db, spatialkey.DefaultBits, 2)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}

	everything, err := spatial.NewRect(
		[4]float64{-1, -1, -1, -1},
		[4]float64{1, 1, 1, 1},
	)
	if err != nil {
		t.Fatalf("NewRect: %v", err)
	}
	if got := len(reopened.RangeCompositions(everything)); got != stats.CompositionsCreated {
		t.Errorf("rebuilt index holds %d compositions, want %d", got, stats.CompositionsCreated)
	}
	if got := len(reopened.RangeRelations(everything)); got != stats.RelationsCreated {
		t.Errorf("rebuilt index holds %d relations, want %d", got, stats.RelationsCreated)
	}
}
