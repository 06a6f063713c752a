package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/noemadb/noema/internal/relation"
)

// RemovalStats summarizes one content deletion.
type RemovalStats struct {
	EvidenceInvalidated int `json:"evidence_invalidated"`
	RelationsRemoved    int `json:"relations_removed"`
	CompositionsRemoved int `json:"compositions_removed"`
}

// InvalidationStats summarizes one evidence invalidation.
type InvalidationStats struct {
	RelationRemoved     bool `json:"relation_removed"`
	CompositionsRemoved int  `json:"compositions_removed"`
}

// InvalidateEvidence reverses one evidence contribution. When the relation
// is left with no valid observations it is removed, and compositions nothing
// references anymore are garbage collected. Invalidating an already-invalid
// record is a no-op.
func (p *Pipeline) InvalidateEvidence(ctx context.Context, evidenceID string) (InvalidationStats, error) {
	stats, err := p.invalidateEvidence(ctx, evidenceID)
	return stats, p.errs.record("invalidate", err)
}

func (p *Pipeline) invalidateEvidence(ctx context.Context, evidenceID string) (InvalidationStats, error) {
	var stats InvalidationStats

	ev, err := p.db.GetEvidence(ctx, evidenceID)
	if err != nil {
		return stats, fmt.Errorf("evidence lookup: %w", err)
	}
	if ev == nil {
		return stats, fmt.Errorf("%w: %s", ErrEvidenceNotFound, evidenceID)
	}
	if !ev.Valid {
		return stats, nil
	}

	_, err = p.engine.RemoveEvidence(ctx, ev.RelationHash, ev.Rating, ev.Weight)
	switch {
	case errors.Is(err, relation.ErrUnderflow):
		children, err := p.db.RelationCompositions(ctx, ev.RelationHash)
		if err != nil {
			return stats, fmt.Errorf("listing relation children: %w", err)
		}
		if err := p.db.DeleteRelation(ctx, ev.RelationHash); err != nil {
			return stats, fmt.Errorf("deleting relation %s: %w", ev.RelationHash, err)
		}
		if err := p.relIndex.Delete(ev.RelationHash); err != nil {
			return stats, fmt.Errorf("unindexing relation %s: %w", ev.RelationHash, err)
		}
		stats.RelationRemoved = true

		candidates := make(map[string]bool, len(children))
		for _, h := range children {
			candidates[h] = true
		}
		removed, err := p.collectOrphans(ctx, candidates)
		if err != nil {
			return stats, err
		}
		stats.CompositionsRemoved = removed
	case err != nil:
		return stats, fmt.Errorf("reverting evidence %s: %w", evidenceID, err)
	}

	if err := p.db.MarkEvidenceInvalid(ctx, evidenceID); err != nil {
		return stats, fmt.Errorf("invalidating evidence %s: %w", evidenceID, err)
	}
	return stats, nil
}

// RemoveContent surgically deletes one piece of content: every evidence row
// it contributed is invalidated and its rating contribution reverted.
// Relations left with no valid evidence are removed, and compositions
// nothing references anymore are garbage collected. Evidence rows survive as
// provenance with their valid flag cleared.
func (p *Pipeline) RemoveContent(ctx context.Context, contentHash string) (RemovalStats, error) {
	stats, err := p.removeContent(ctx, contentHash)
	return stats, p.errs.record("remove", err)
}

func (p *Pipeline) removeContent(ctx context.Context, contentHash string) (RemovalStats, error) {
	var stats RemovalStats

	content, err := p.db.GetContent(ctx, contentHash)
	if err != nil {
		return stats, fmt.Errorf("content lookup: %w", err)
	}
	if content == nil {
		return stats, fmt.Errorf("%w: %s", ErrContentNotFound, contentHash)
	}

	evidence, err := p.db.ListEvidenceByContent(ctx, contentHash)
	if err != nil {
		return stats, fmt.Errorf("listing evidence: %w", err)
	}

	// Compositions that may go orphaned once relations and the content row
	// are gone.
	gcCandidates := map[string]bool{content.CompositionHash: true}

	for _, ev := range evidence {
		if !ev.Valid {
			continue
		}

		_, err := p.engine.RemoveEvidence(ctx, ev.RelationHash, ev.Rating, ev.Weight)
		switch {
		case errors.Is(err, relation.ErrUnderflow):
			// Last valid evidence: the relation goes with it.
			children, err := p.db.RelationCompositions(ctx, ev.RelationHash)
			if err != nil {
				return stats, fmt.Errorf("listing relation children: %w", err)
			}
			for _, h := range children {
				gcCandidates[h] = true
			}
			if err := p.db.DeleteRelation(ctx, ev.RelationHash); err != nil {
				return stats, fmt.Errorf("deleting relation %s: %w", ev.RelationHash, err)
			}
			if err := p.relIndex.Delete(ev.RelationHash); err != nil {
				return stats, fmt.Errorf("unindexing relation %s: %w", ev.RelationHash, err)
			}
			stats.RelationsRemoved++
		case err != nil:
			return stats, fmt.Errorf("reverting evidence %s: %w", ev.ID, err)
		}

		if err := p.db.MarkEvidenceInvalid(ctx, ev.ID); err != nil {
			return stats, fmt.Errorf("invalidating evidence %s: %w", ev.ID, err)
		}
		stats.EvidenceInvalidated++
	}

	if err := p.db.DeleteContent(ctx, contentHash); err != nil {
		return stats, fmt.Errorf("deleting content: %w", err)
	}

	removed, err := p.collectOrphans(ctx, gcCandidates)
	if err != nil {
		return stats, err
	}
	stats.CompositionsRemoved = removed
	return stats, nil
}

// collectOrphans deletes unreferenced compositions, cascading to their
// children: removing a parent may orphan the compositions it referenced.
func (p *Pipeline) collectOrphans(ctx context.Context, candidates map[string]bool) (int, error) {
	removed := 0
	queue := make([]string, 0, len(candidates))
	for h := range candidates {
		queue = append(queue, h)
	}

	for len(queue) > 0 {
		hash := queue[0]
		queue = queue[1:]

		comp, err := p.db.GetComposition(ctx, hash)
		if err != nil {
			return removed, fmt.Errorf("loading composition %s: %w", hash, err)
		}
		if comp == nil {
			continue
		}

		deleted, err := p.db.DeleteCompositionIfOrphaned(ctx, hash)
		if err != nil {
			return removed, fmt.Errorf("collecting composition %s: %w", hash, err)
		}
		if !deleted {
			continue
		}
		removed++

		if err := p.compIndex.Delete(hash); err != nil {
			return removed, fmt.Errorf("unindexing composition %s: %w", hash, err)
		}

		for _, e := range comp.Entries {
			if e.Child.Hash != "" && !candidates[e.Child.Hash] {
				candidates[e.Child.Hash] = true
				queue = append(queue, e.Child.Hash)
			}
		}
	}
	return removed, nil
}
