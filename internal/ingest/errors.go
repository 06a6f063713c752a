package ingest

import (
	"context"
	"errors"
	"sync"

	"github.com/noemadb/noema/internal/atom"
	"github.com/noemadb/noema/internal/graph"
	"github.com/noemadb/noema/internal/relation"
)

// Errors returned by pipeline operations.
var (
	ErrContentNotFound  = errors.New("content not found")
	ErrEvidenceNotFound = errors.New("evidence not found")
	ErrReconstruction   = errors.New("content cannot be reconstructed")
	ErrEmptyContent     = errors.New("content decodes to no code points")
)

// Error codes carried by ErrorDescriptor.
const (
	CodeNotSeeded    = "not_seeded"
	CodeInvalidInput = "invalid_input"
	CodeNotFound     = "not_found"
	CodeConflict     = "conflict"
	CodeCanceled     = "canceled"
	CodeInternal     = "internal"
)

// ErrorDescriptor is the last failure in machine-readable form: a stable
// code, the human message, and the operation that failed.
type ErrorDescriptor struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Op      string `json:"op"`
}

// lastError records failures for LastError under its own lock so error
// reporting never contends with pipeline work.
type lastError struct {
	mu   sync.Mutex
	desc *ErrorDescriptor
}

func (l *lastError) record(op string, err error) error {
	if err == nil {
		return nil
	}
	l.mu.Lock()
	l.desc = &ErrorDescriptor{Code: codeFor(err), Message: err.Error(), Op: op}
	l.mu.Unlock()
	return err
}

func (l *lastError) get() *ErrorDescriptor {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.desc == nil {
		return nil
	}
	d := *l.desc
	return &d
}

// codeFor maps an error chain to its stable code.
func codeFor(err error) string {
	switch {
	case errors.Is(err, atom.ErrNotSeeded), errors.Is(err, atom.ErrVersionSkew):
		return CodeNotSeeded
	case errors.Is(err, ErrContentNotFound), errors.Is(err, ErrEvidenceNotFound),
		errors.Is(err, graph.ErrChildNotFound), errors.Is(err, atom.ErrAtomNotFound):
		return CodeNotFound
	case errors.Is(err, graph.ErrHashCollision), errors.Is(err, relation.ErrUpdateRetries):
		return CodeConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeCanceled
	case errors.Is(err, ErrEmptyContent), errors.Is(err, ErrReconstruction),
		errors.Is(err, graph.ErrEmptySequence), errors.Is(err, graph.ErrBadCount),
		errors.Is(err, atom.ErrInvalidRune), errors.Is(err, relation.ErrWindowSize),
		errors.Is(err, relation.ErrBadWeight):
		return CodeInvalidInput
	}
	return CodeInternal
}
