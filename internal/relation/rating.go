// Package relation detects co-occurring compositions and maintains each
// relation's competence rating as an evidence-weighted running aggregate.
package relation

import (
	"context"
	"errors"
	"fmt"
)

// Rating bounds and defaults. InitialRating is the score a first
// co-occurrence observation carries; similarity-mode detectors derive their
// initial score from neighbor distance and clamp it to [RatingMin, RatingMax].
const (
	InitialRating = 1000.0
	RatingMin     = 0.0
	RatingMax     = 2000.0
)

// Errors returned by rating updates.
var (
	ErrUnderflow     = errors.New("rating underflow: no valid evidence would remain")
	ErrBadWeight     = errors.New("evidence weight must be positive")
	ErrUpdateRetries = errors.New("rating update contention: retries exhausted")
)

// Rating is the aggregate state per relation: the observation-weighted mean
// and the total observation weight. No per-evidence history is needed to
// update it.
type Rating struct {
	Value        float64
	Observations float64
}

// Apply folds a new evidence item into the aggregate as a running weighted
// mean:
//
//	value' = (value·obs + r·w) / (obs + w),  obs' = obs + w
//
// Numerically stable and commutative under arbitrary arrival order.
// A zero-observation rating (the Unrated state) adopts the evidence as-is.
func Apply(current Rating, r, w float64) (Rating, error) {
	if w <= 0 {
		return current, ErrBadWeight
	}
	obs := current.Observations + w
	return Rating{
		Value:        (current.Value*current.Observations + r*w) / obs,
		Observations: obs,
	}, nil
}

// Revert is the inverse of Apply, used for surgical evidence deletion.
// Returns ErrUnderflow when removing the evidence would leave no valid
// observations; the relation itself is then eligible for removal.
func Revert(current Rating, r, w float64) (Rating, error) {
	if w <= 0 {
		return current, ErrBadWeight
	}
	obs := current.Observations - w
	if obs <= 0 {
		return current, ErrUnderflow
	}
	return Rating{
		Value:        (current.Value*current.Observations - r*w) / obs,
		Observations: obs,
	}, nil
}

// clampRating bounds a detector-proposed rating to the valid range.
func clampRating(r float64) float64 {
	if r < RatingMin {
		return RatingMin
	}
	if r > RatingMax {
		return RatingMax
	}
	return r
}

// RatingStore is the persistence boundary for rating state. Reads return a
// version counter; writes succeed only against an unchanged version, which
// serializes concurrent read-modify-write cycles per relation.
type RatingStore interface {
	// GetRating returns the stored aggregate and its version. A relation
	// with no rating row yet reports a zero Rating at version 0.
	GetRating(ctx context.Context, relationHash string) (Rating, int64, error)
	// CompareAndSetRating writes the aggregate if the stored version still
	// matches. Reports false (and no error) on a version conflict.
	CompareAndSetRating(ctx context.Context, relationHash string, version int64, r Rating) (bool, error)
}

// maxUpdateRetries bounds the optimistic retry loop. Contention on one
// relation resolves in one or two rounds in practice; hitting the bound
// means something is starving writers and should surface.
const maxUpdateRetries = 16

// Engine applies evidence to shared rating state without losing updates:
// each change is an optimistic compare-and-swap loop over the store's
// version counter.
type Engine struct {
	store RatingStore
}

// NewEngine returns a rating engine over the given store.
func NewEngine(store RatingStore) *Engine {
	return &Engine{store: store}
}

// AddEvidence folds one evidence item into a relation's aggregate and
// returns the new state.
func (e *Engine) AddEvidence(ctx context.Context, relationHash string, r, w float64) (Rating, error) {
	return e.update(ctx, relationHash, func(cur Rating) (Rating, error) {
		return Apply(cur, r, w)
	})
}

// RemoveEvidence reverses a prior contribution. ErrUnderflow propagates so
// the caller can garbage-collect the orphaned relation.
func (e *Engine) RemoveEvidence(ctx context.Context, relationHash string, r, w float64) (Rating, error) {
	return e.update(ctx, relationHash, func(cur Rating) (Rating, error) {
		return Revert(cur, r, w)
	})
}

func (e *Engine) update(ctx context.Context, relationHash string, f func(Rating) (Rating, error)) (Rating, error) {
	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		cur, version, err := e.store.GetRating(ctx, relationHash)
		if err != nil {
			return Rating{}, fmt.Errorf("reading rating: %w", err)
		}
		next, err := f(cur)
		if err != nil {
			return cur, err
		}
		ok, err := e.store.CompareAndSetRating(ctx, relationHash, version, next)
		if err != nil {
			return Rating{}, fmt.Errorf("writing rating: %w", err)
		}
		if ok {
			return next, nil
		}
	}
	return Rating{}, ErrUpdateRetries
}
