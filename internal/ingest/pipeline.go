// Package ingest runs the full pipeline from raw content to graph rows: a
// frontend decodes bytes to code points, tokens become deduplicated
// compositions, co-occurrence detection proposes relations, and evidence
// updates each relation's rating. The pipeline also serves reconstruction,
// spatial queries, and surgical content deletion.
package ingest

import (
	"bytes"
	"context"
	"fmt"

	"github.com/noemadb/noema/internal/atom"
	"github.com/noemadb/noema/internal/frontend"
	"github.com/noemadb/noema/internal/geometry"
	"github.com/noemadb/noema/internal/graph"
	"github.com/noemadb/noema/internal/relation"
	"github.com/noemadb/noema/internal/spatial"
	"github.com/noemadb/noema/internal/spatialkey"
	"github.com/noemadb/noema/internal/storage"
)

// Pipeline wires the seeded atom table, the composition builder, the rating
// engine, and the in-memory spatial indexes over one repository database.
type Pipeline struct {
	db      *storage.DB
	atoms   *atom.Store
	builder *graph.Builder
	engine  *relation.Engine
	encoder *spatialkey.Encoder

	compIndex *spatial.Tree
	relIndex  *spatial.Tree

	window int
	errs   lastError
}

// Open loads the seeded atom table and rebuilds the spatial indexes from the
// stored rows. Returns atom.ErrNotSeeded when no seeding pass has run.
func Open(ctx context.Context, db *storage.DB, bitDepth, window int) (*Pipeline, error) {
	version, err := db.SeedVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading seed version: %w", err)
	}
	if version == 0 {
		return nil, atom.ErrNotSeeded
	}

	rows, err := db.LoadAtoms(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading atoms: %w", err)
	}
	atoms, err := atom.NewStore(version, rows)
	if err != nil {
		return nil, err
	}

	enc, err := spatialkey.NewEncoder(bitDepth)
	if err != nil {
		return nil, err
	}
	if window < 2 {
		return nil, relation.ErrWindowSize
	}

	p := &Pipeline{
		db:        db,
		atoms:     atoms,
		builder:   graph.NewBuilder(atoms, db, enc),
		engine:    relation.NewEngine(db),
		encoder:   enc,
		compIndex: spatial.NewTree(spatial.DefaultFanout),
		relIndex:  spatial.NewTree(spatial.DefaultFanout),
		window:    window,
	}

	if err := p.rebuildIndexes(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Pipeline) rebuildIndexes(ctx context.Context) error {
	comps, err := p.db.ListCompositionPositions(ctx)
	if err != nil {
		return fmt.Errorf("rebuilding composition index: %w", err)
	}
	for _, c := range comps {
		if err := p.compIndex.Insert(spatial.Entry{ID: c.ID, Position: c.Position, Key: c.Key}); err != nil {
			return fmt.Errorf("indexing composition %s: %w", c.ID, err)
		}
	}

	rels, err := p.db.ListRelationPositions(ctx)
	if err != nil {
		return fmt.Errorf("rebuilding relation index: %w", err)
	}
	for _, r := range rels {
		if err := p.relIndex.Insert(spatial.Entry{ID: r.ID, Position: r.Position, Key: r.Key}); err != nil {
			return fmt.Errorf("indexing relation %s: %w", r.ID, err)
		}
	}
	return nil
}

// Atoms exposes the seeded atom table.
func (p *Pipeline) Atoms() *atom.Store {
	return p.atoms
}

// LastError returns a copy of the most recent failure, or nil when every
// operation so far succeeded.
func (p *Pipeline) LastError() *ErrorDescriptor {
	return p.errs.get()
}

// Stats summarizes one ingestion run. BytesStored counts only the input
// bytes that produced new token compositions, so it shrinks as the store
// deduplicates more of the incoming stream.
type Stats struct {
	ContentHash         string `json:"content_hash"`
	RootHash            string `json:"root_hash"`
	Deduplicated        bool   `json:"deduplicated"`
	AtomsSeen           int    `json:"atoms_seen"`
	CompositionsCreated int    `json:"compositions_created"`
	CompositionsReused  int    `json:"compositions_reused"`
	RelationsCreated    int    `json:"relations_created"`
	EvidenceAdded       int    `json:"evidence_added"`
	BytesIn             int64  `json:"bytes_in"`
	BytesStored         int64  `json:"bytes_stored"`
}

// Ingest runs one piece of content through the pipeline. Re-ingesting bytes
// already stored is a pure dedup hit: no rows change and Deduplicated is set.
func (p *Pipeline) Ingest(ctx context.Context, sourceID string, data []byte, f frontend.Frontend, mode graph.Mode) (Stats, error) {
	stats, err := p.ingest(ctx, sourceID, data, f, mode)
	return stats, p.errs.record("ingest", err)
}

func (p *Pipeline) ingest(ctx context.Context, sourceID string, data []byte, f frontend.Frontend, mode graph.Mode) (Stats, error) {
	stats := Stats{BytesIn: int64(len(data))}

	contentHash := graph.HashContent(data)
	stats.ContentHash = contentHash

	existing, err := p.db.GetContent(ctx, contentHash)
	if err != nil {
		return stats, fmt.Errorf("content lookup: %w", err)
	}
	if existing != nil {
		stats.Deduplicated = true
		stats.RootHash = existing.CompositionHash
		return stats, nil
	}

	runes, err := f.Decode(bytes.NewReader(data))
	if err != nil {
		return stats, fmt.Errorf("decoding content: %w", err)
	}
	if len(runes) == 0 {
		return stats, ErrEmptyContent
	}
	stats.AtomsSeen = len(runes)

	tokens := Tokenize(runes)

	// One composition per token; sparse mode keeps word tokens only.
	var rootChildren []graph.ChildRef
	var wordRefs []graph.ChildRef
	for _, tok := range tokens {
		if mode == graph.Sparse && !tok.Word {
			continue
		}
		children := make([]graph.ChildRef, len(tok.Runes))
		for i, r := range tok.Runes {
			if _, ok := p.atoms.Lookup(r); !ok {
				return stats, fmt.Errorf("%w: %U", atom.ErrAtomNotFound, r)
			}
			children[i] = graph.AtomChild(r)
		}
		res, err := p.builder.Build(ctx, children, mode)
		if err != nil {
			return stats, fmt.Errorf("building token composition: %w", err)
		}
		p.countBuild(&stats, res)
		if res.Created {
			stats.BytesStored += int64(len(string(tok.Runes)))
		}

		ref := graph.CompositionChild(res.Composition.Hash)
		rootChildren = append(rootChildren, ref)
		if tok.Word {
			wordRefs = append(wordRefs, ref)
		}
	}
	if len(rootChildren) == 0 {
		return stats, ErrEmptyContent
	}

	// Root composition over the token stream. A single-token input uses the
	// token composition itself as root rather than wrapping it.
	var rootHash string
	if len(rootChildren) == 1 {
		rootHash = rootChildren[0].Hash
	} else {
		res, err := p.builder.Build(ctx, rootChildren, mode)
		if err != nil {
			return stats, fmt.Errorf("building root composition: %w", err)
		}
		p.countBuild(&stats, res)
		rootHash = res.Composition.Hash
	}
	stats.RootHash = rootHash

	// Co-occurrence relations over the word token stream.
	candidates, err := relation.CoOccurrences(wordRefs, p.window)
	if err != nil {
		return stats, fmt.Errorf("detecting co-occurrences: %w", err)
	}
	for _, cand := range candidates {
		created, err := p.recordEvidence(ctx, cand, contentHash)
		if err != nil {
			return stats, err
		}
		if created {
			stats.RelationsCreated++
		}
		stats.EvidenceAdded++
	}

	created, err := p.db.PutContent(ctx, storage.Content{
		Hash:            contentHash,
		SourceID:        sourceID,
		CompositionHash: rootHash,
		Mode:            mode.String(),
		SizeBytes:       int64(len(data)),
		MIME:            f.MIME(),
		Encoding:        "utf-8",
	})
	if err != nil {
		return stats, fmt.Errorf("recording content: %w", err)
	}
	if !created {
		// Raced with a concurrent ingest of the same bytes; the graph rows
		// are identical either way.
		stats.Deduplicated = true
	}
	return stats, nil
}

func (p *Pipeline) countBuild(stats *Stats, res graph.Result) {
	if res.Created {
		stats.CompositionsCreated++
		p.indexComposition(res.Composition)
	} else {
		stats.CompositionsReused++
	}
}

func (p *Pipeline) indexComposition(c *graph.Composition) {
	// Index failures are not fatal to ingestion; the row is durable and the
	// index rebuilds from storage on next open.
	_ = p.compIndex.Insert(spatial.Entry{ID: c.Hash, Position: c.Position, Key: c.Key})
}

// recordEvidence creates the relation row on first observation, folds the
// candidate's rating into the aggregate, and appends provenance.
func (p *Pipeline) recordEvidence(ctx context.Context, cand relation.Candidate, contentHash string) (bool, error) {
	rel, created, err := p.ensureRelation(ctx, cand.Entries)
	if err != nil {
		return false, err
	}

	if _, err := p.engine.AddEvidence(ctx, rel.Hash, cand.Rating, cand.Weight); err != nil {
		return created, fmt.Errorf("rating relation %s: %w", rel.Hash, err)
	}
	if _, err := p.db.AppendEvidence(ctx, relation.Evidence{
		RelationHash: rel.Hash,
		ContentHash:  contentHash,
		Rating:       cand.Rating,
		Weight:       cand.Weight,
	}); err != nil {
		return created, fmt.Errorf("recording evidence for %s: %w", rel.Hash, err)
	}
	return created, nil
}

// ensureRelation resolves a relation row for a sequence, creating it (with
// its position and key) on first observation.
func (p *Pipeline) ensureRelation(ctx context.Context, entries []graph.Entry) (*relation.Relation, bool, error) {
	hash := graph.HashRelation(entries)

	existing, err := p.db.GetRelation(ctx, hash)
	if err != nil {
		return nil, false, fmt.Errorf("relation lookup: %w", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	position, err := p.relationPosition(ctx, entries)
	if err != nil {
		return nil, false, err
	}
	rel := &relation.Relation{
		Hash:     hash,
		Entries:  entries,
		Position: position,
		Key:      p.encoder.Encode(geometry.Cube(position)),
	}

	created, err := p.db.PutRelation(ctx, rel)
	if err != nil {
		return nil, false, fmt.Errorf("storing relation: %w", err)
	}
	if !created {
		winner, err := p.db.GetRelation(ctx, hash)
		if err != nil || winner == nil {
			return nil, false, fmt.Errorf("re-reading relation after lost race: %w", err)
		}
		return winner, false, nil
	}

	_ = p.relIndex.Insert(spatial.Entry{ID: rel.Hash, Position: rel.Position, Key: rel.Key})
	return rel, true, nil
}

// relationPosition is the occurrence-weighted centroid of the related
// compositions, the same rule composition positions follow.
func (p *Pipeline) relationPosition(ctx context.Context, entries []graph.Entry) (geometry.Vec4, error) {
	var points []geometry.Vec4
	for _, e := range entries {
		comp, err := p.db.GetComposition(ctx, e.Child.Hash)
		if err != nil {
			return geometry.Vec4{}, fmt.Errorf("resolving relation child: %w", err)
		}
		if comp == nil {
			return geometry.Vec4{}, fmt.Errorf("%w: composition %s", graph.ErrChildNotFound, e.Child.Hash)
		}
		for i := 0; i < e.Count; i++ {
			points = append(points, comp.Position)
		}
	}
	return geometry.Centroid(points)
}

// RangeCompositions returns all indexed compositions inside the region.
func (p *Pipeline) RangeCompositions(region spatial.Rect) []spatial.Entry {
	return p.compIndex.Range(region)
}

// RangeRelations returns all indexed relations inside the region.
func (p *Pipeline) RangeRelations(region spatial.Rect) []spatial.Entry {
	return p.relIndex.Range(region)
}

// NearestCompositions returns the k compositions closest to the point.
func (p *Pipeline) NearestCompositions(point geometry.Vec4, k int) ([]spatial.Neighbor, error) {
	neighbors, err := p.compIndex.NearestK(point, k)
	return neighbors, p.errs.record("nearest", err)
}

// NearestRelations returns the k relations closest to the point.
func (p *Pipeline) NearestRelations(point geometry.Vec4, k int) ([]spatial.Neighbor, error) {
	neighbors, err := p.relIndex.NearestK(point, k)
	return neighbors, p.errs.record("nearest", err)
}
