package ingest

import (
	"context"
	"fmt"

	"github.com/noemadb/noema/internal/embedding"
	"github.com/noemadb/noema/internal/graph"
	"github.com/noemadb/noema/internal/relation"
)

// SimilarityStats summarizes one similarity detection pass.
type SimilarityStats struct {
	Embedded         int `json:"embedded"`
	RelationsCreated int `json:"relations_created"`
	EvidenceAdded    int `json:"evidence_added"`
}

// DetectSimilar embeds the given compositions and creates similarity
// relations over their k-nearest-neighbor graph. The evidence each edge
// carries is attributed to a synthetic content hash derived from the
// embedding model, so a model's contributions can be removed wholesale the
// same way ingested content can.
func (p *Pipeline) DetectSimilar(ctx context.Context, provider embedding.Provider, hashes []string, k int) (SimilarityStats, error) {
	stats, err := p.detectSimilar(ctx, provider, hashes, k)
	return stats, p.errs.record("similar", err)
}

func (p *Pipeline) detectSimilar(ctx context.Context, provider embedding.Provider, hashes []string, k int) (SimilarityStats, error) {
	var stats SimilarityStats

	texts := make([]string, len(hashes))
	for i, h := range hashes {
		runes, err := p.expand(ctx, h)
		if err != nil {
			return stats, fmt.Errorf("expanding %s for embedding: %w", h, err)
		}
		texts[i] = string(runes)
	}

	embedded, err := embedding.EmbedAll(ctx, provider, hashes, texts)
	if err != nil {
		return stats, err
	}
	stats.Embedded = len(embedded)

	candidates, err := relation.Neighbors(embedded, k)
	if err != nil {
		return stats, err
	}

	evidenceHash := graph.HashContent([]byte("similarity/" + provider.ModelName()))
	for _, cand := range candidates {
		created, err := p.recordEvidence(ctx, cand, evidenceHash)
		if err != nil {
			return stats, err
		}
		if created {
			stats.RelationsCreated++
		}
		stats.EvidenceAdded++
	}
	return stats, nil
}
