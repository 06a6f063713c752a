package spatial

import (
	"container/heap"

	"github.com/noemadb/noema/internal/geometry"
)

// Range returns every entry whose position lies inside the region.
// Traversal prunes with Intersects, which never rejects a subtree holding a
// match; the leaf-level containment check filters the false positives.
func (t *Tree) Range(region Rect) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []Entry
	t.rangeAt(t.root, region, &out)
	return out
}

func (t *Tree) rangeAt(n *node, region Rect, out *[]Entry) {
	for _, e := range n.entries {
		if !region.Intersects(e.rect) {
			continue
		}
		if n.leaf {
			if region.ContainsPoint(e.record.Position) {
				*out = append(*out, *e.record)
			}
			continue
		}
		t.rangeAt(e.child, region, out)
	}
}

// Neighbor is one nearest-neighbor result.
type Neighbor struct {
	Entry    Entry
	Distance float64 // Euclidean; callers re-rank geodesically if needed
}

// queueItem is a traversal frontier element: either a node lower-bounded by
// MinDist or a record at its exact distance.
type queueItem struct {
	dist   float64
	node   *node
	record *Entry
}

type distQueue []queueItem

func (q distQueue) Len() int            { return len(q) }
func (q distQueue) Less(i, j int) bool  { return q[i].dist < q[j].dist }
func (q distQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *distQueue) Push(x interface{}) { *q = append(*q, x.(queueItem)) }
func (q *distQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// NearestK returns the k entries closest to the point, nearest first.
// Best-first traversal over a min-heap ordered by MinDist: because MinDist
// never exceeds the true distance to any descendant, a record popped from
// the heap is closer than everything still queued, so the first k popped
// records are exactly the k nearest.
func (t *Tree) NearestK(point geometry.Vec4, k int) ([]Neighbor, error) {
	if k < 1 {
		return nil, ErrNonPositiveCount
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	q := &distQueue{{dist: 0, node: t.root}}
	heap.Init(q)

	out := make([]Neighbor, 0, k)
	for q.Len() > 0 && len(out) < k {
		item := heap.Pop(q).(queueItem)
		if item.record != nil {
			out = append(out, Neighbor{Entry: *item.record, Distance: item.dist})
			continue
		}
		for _, e := range item.node.entries {
			if item.node.leaf {
				heap.Push(q, queueItem{
					dist:   geometry.Euclidean(point, e.record.Position),
					record: e.record,
				})
			} else {
				heap.Push(q, queueItem{dist: e.rect.MinDist(point), node: e.child})
			}
		}
	}
	return out, nil
}
