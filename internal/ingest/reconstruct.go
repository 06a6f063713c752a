package ingest

import (
	"context"
	"fmt"

	"github.com/noemadb/noema/internal/graph"
)

// Reconstruct expands a stored content's root composition back to the exact
// original bytes. Only dense content reconstructs; sparse content returns
// ErrReconstruction. The result is verified against the content hash before
// it is returned.
func (p *Pipeline) Reconstruct(ctx context.Context, contentHash string) ([]byte, error) {
	data, err := p.reconstruct(ctx, contentHash)
	return data, p.errs.record("reconstruct", err)
}

func (p *Pipeline) reconstruct(ctx context.Context, contentHash string) ([]byte, error) {
	content, err := p.db.GetContent(ctx, contentHash)
	if err != nil {
		return nil, fmt.Errorf("content lookup: %w", err)
	}
	if content == nil {
		return nil, fmt.Errorf("%w: %s", ErrContentNotFound, contentHash)
	}

	mode, err := graph.ParseMode(content.Mode)
	if err != nil {
		return nil, err
	}
	if mode != graph.Dense {
		return nil, fmt.Errorf("%w: stored sparse", ErrReconstruction)
	}

	runes, err := p.expand(ctx, content.CompositionHash)
	if err != nil {
		return nil, err
	}

	data := []byte(string(runes))
	if graph.HashContent(data) != contentHash {
		return nil, fmt.Errorf("%w: expansion does not match content hash", ErrReconstruction)
	}
	return data, nil
}

// expand recursively flattens a composition to its code point stream.
func (p *Pipeline) expand(ctx context.Context, hash string) ([]rune, error) {
	comp, err := p.db.GetComposition(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("loading composition %s: %w", hash, err)
	}
	if comp == nil {
		return nil, fmt.Errorf("%w: composition %s", graph.ErrChildNotFound, hash)
	}

	children, err := graph.Expand(comp.Entries)
	if err != nil {
		return nil, fmt.Errorf("expanding %s: %w", hash, err)
	}

	var runes []rune
	for _, c := range children {
		if c.Kind == graph.KindAtom {
			runes = append(runes, c.CodePoint)
			continue
		}
		nested, err := p.expand(ctx, c.Hash)
		if err != nil {
			return nil, err
		}
		runes = append(runes, nested...)
	}
	return runes, nil
}
