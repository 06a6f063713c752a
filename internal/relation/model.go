package relation

import (
	"time"

	"github.com/noemadb/noema/internal/geometry"
	"github.com/noemadb/noema/internal/graph"
	"github.com/noemadb/noema/internal/spatialkey"
)

// Relation is a content-addressed edge over an ordered composition
// sequence. Created the first time its sequence is observed; later
// observations add evidence, never a duplicate row.
type Relation struct {
	Hash     string
	Entries  []graph.Entry
	Position geometry.Vec4
	Key      spatialkey.Key
}

// Evidence is one append-only provenance record: the contribution a piece
// of content made to a relation's rating. Invalidation flips Valid and
// rolls the contribution back; the row itself is never rewritten otherwise.
type Evidence struct {
	ID            string
	RelationHash  string
	ContentHash   string
	Rating        float64
	Weight        float64
	Valid         bool
	CreatedAt     time.Time
	InvalidatedAt *time.Time
}
