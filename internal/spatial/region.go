// Package spatial implements the balanced access method over geometric
// entries: a height-balanced R-tree keyed by 4D bounding boxes, supporting
// range scans and best-first nearest-neighbor traversal.
package spatial

import (
	"errors"
	"math"

	"github.com/noemadb/noema/internal/geometry"
)

// Errors returned by index operations.
var (
	ErrEntryNotFound     = errors.New("entry not in spatial index")
	ErrDegenerateRegion  = errors.New("degenerate region: zero volume breaks penalty")
	ErrDuplicateID       = errors.New("entry id already indexed at a different position")
	ErrNonPositiveCount  = errors.New("neighbor count must be at least 1")
	ErrPositionNotOnUnit = errors.New("entry position is not a unit vector")
)

// Rect is a 4D axis-aligned bounding box.
type Rect struct {
	Min, Max [4]float64
}

// RectFromPoint returns the degenerate box covering exactly one point.
func RectFromPoint(p geometry.Vec4) Rect {
	return Rect{Min: p, Max: p}
}

// NewRect validates and returns a box. Min must not exceed Max on any axis.
func NewRect(min, max [4]float64) (Rect, error) {
	for i := 0; i < 4; i++ {
		if min[i] > max[i] {
			return Rect{}, errors.New("rect min exceeds max")
		}
	}
	return Rect{Min: min, Max: max}, nil
}

// Union returns the minimal box covering both r and o.
func (r Rect) Union(o Rect) Rect {
	var u Rect
	for i := 0; i < 4; i++ {
		u.Min[i] = math.Min(r.Min[i], o.Min[i])
		u.Max[i] = math.Max(r.Max[i], o.Max[i])
	}
	return u
}

// Volume returns the box's 4D volume. Zero for boxes flat on any axis.
func (r Rect) Volume() float64 {
	v := 1.0
	for i := 0; i < 4; i++ {
		v *= r.Max[i] - r.Min[i]
	}
	return v
}

// margin returns the sum of edge lengths, a spread measure that stays
// meaningful when the volume collapses to zero.
func (r Rect) margin() float64 {
	m := 0.0
	for i := 0; i < 4; i++ {
		m += r.Max[i] - r.Min[i]
	}
	return m
}

// Intersects reports whether two boxes overlap. This is the consistency
// predicate for range queries: it may admit nodes holding no matches, but
// never rejects a node holding one.
func (r Rect) Intersects(o Rect) bool {
	for i := 0; i < 4; i++ {
		if r.Min[i] > o.Max[i] || o.Min[i] > r.Max[i] {
			return false
		}
	}
	return true
}

// ContainsPoint reports whether a point lies inside the closed box.
func (r Rect) ContainsPoint(p geometry.Vec4) bool {
	for i := 0; i < 4; i++ {
		if p[i] < r.Min[i] || p[i] > r.Max[i] {
			return false
		}
	}
	return true
}

// Same reports exact equality of two boxes, used for idempotent
// re-insertion checks.
func (r Rect) Same(o Rect) bool {
	return r.Min == o.Min && r.Max == o.Max
}

// center returns the box midpoint.
func (r Rect) center() geometry.Vec4 {
	var c geometry.Vec4
	for i := 0; i < 4; i++ {
		c[i] = (r.Min[i] + r.Max[i]) / 2
	}
	return c
}

// MinDist returns the Euclidean distance from a point to the nearest face
// of the box, zero inside it. This lower-bounds the distance to any point
// the box covers, which makes it an admissible ordering key for best-first
// nearest-neighbor traversal.
func (r Rect) MinDist(p geometry.Vec4) float64 {
	var sum float64
	for i := 0; i < 4; i++ {
		var d float64
		if p[i] < r.Min[i] {
			d = r.Min[i] - p[i]
		} else if p[i] > r.Max[i] {
			d = p[i] - r.Max[i]
		}
		sum += d * d
	}
	return math.Sqrt(sum)
}

// penalty returns the volume enlargement needed for r to also cover o.
// When both volumes are zero the enlargement carries no signal; that is the
// degenerate-region case and callers fall back to an Euclidean tie-break.
func penalty(r, o Rect) (float64, error) {
	union := r.Union(o)
	if union.Volume() == 0 {
		if union.margin() == 0 {
			// All candidate boxes collapse onto one point.
			return 0, ErrDegenerateRegion
		}
		// Flat boxes: compare by margin growth instead of volume growth.
		return union.margin() - r.margin(), nil
	}
	return union.Volume() - r.Volume(), nil
}
