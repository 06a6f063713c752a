package embedding

import (
	"context"
	"fmt"

	"github.com/noemadb/noema/internal/relation"
)

// Provider generates embeddings from text.
type Provider interface {
	// Embed generates an embedding for the given text.
	Embed(ctx context.Context, text string) (Embedding, error)

	// ModelName returns the name of the embedding model.
	ModelName() string

	// Dimensions returns the expected vector dimensions.
	Dimensions() int
}

// EmbedAll embeds one text per composition hash and packages the results for
// nearest-neighbor relation detection. Hashes and texts run in lockstep.
func EmbedAll(ctx context.Context, p Provider, hashes, texts []string) ([]relation.Embedded, error) {
	if len(hashes) != len(texts) {
		return nil, fmt.Errorf("embedding batch: %d hashes but %d texts", len(hashes), len(texts))
	}

	out := make([]relation.Embedded, 0, len(hashes))
	for i, text := range texts {
		emb, err := p.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedding %s: %w", hashes[i], err)
		}
		out = append(out, relation.Embedded{Hash: hashes[i], Vector: emb.Vector})
	}
	return out, nil
}
