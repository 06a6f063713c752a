package spatial

import (
	"sync"

	"github.com/noemadb/noema/internal/geometry"
	"github.com/noemadb/noema/internal/spatialkey"
)

// Fanout bounds. MinFill is the classic 40% of fanout; underflowing nodes
// dissolve and their entries reinsert.
const (
	DefaultFanout = 16
)

// Entry is one indexed record: any entity with a geometric position.
type Entry struct {
	ID       string
	Position geometry.Vec4
	Key      spatialkey.Key
}

// nodeEntry is one slot in a node: a child pointer for internal nodes, a
// record for leaves. rect always bounds the slot's contents.
type nodeEntry struct {
	rect   Rect
	child  *node
	record *Entry
}

type node struct {
	leaf    bool
	entries []nodeEntry
}

// rect returns the minimal box covering all of n's entries.
func (n *node) rect() Rect {
	if len(n.entries) == 0 {
		return Rect{}
	}
	r := n.entries[0].rect
	for _, e := range n.entries[1:] {
		r = r.Union(e.rect)
	}
	return r
}

// Tree is a height-balanced R-tree over point entries. A single RWMutex
// guards mutation; queries run under the read lock, so they see every
// insert that completed before they started (eventual visibility of
// concurrent ones, per the access-method contract).
type Tree struct {
	mu      sync.RWMutex
	root    *node
	fanout  int
	minFill int
	size    int
	// positions locates each id's point so deletes need no exhaustive scan
	// and re-inserting an identical entry stays idempotent.
	positions map[string]geometry.Vec4
}

// NewTree returns an empty index with the given node fanout (minimum 4;
// values below that fall back to DefaultFanout).
func NewTree(fanout int) *Tree {
	if fanout < 4 {
		fanout = DefaultFanout
	}
	return &Tree{
		root:      &node{leaf: true},
		fanout:    fanout,
		minFill:   fanout * 2 / 5,
		positions: make(map[string]geometry.Vec4),
	}
}

// Len returns the number of indexed entries.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.size
}

// Insert adds an entry, descending by minimum penalty and splitting
// overflowing nodes. Re-inserting an entry whose id and position both match
// the stored ones is a no-op; the same id at a different position is an
// update (delete then insert).
func (t *Tree) Insert(e Entry) error {
	if !e.Position.IsUnit() {
		return ErrPositionNotOnUnit
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if prev, ok := t.positions[e.ID]; ok {
		if RectFromPoint(prev).Same(RectFromPoint(e.Position)) {
			return nil // idempotent re-insertion
		}
		if err := t.deleteLocked(e.ID, prev); err != nil {
			return err
		}
	}

	t.insertLocked(e)
	return nil
}

func (t *Tree) insertLocked(e Entry) {
	rec := e
	entry := nodeEntry{rect: RectFromPoint(e.Position), record: &rec}

	split := t.insertAt(t.root, entry)
	if split != nil {
		// Root overflowed: grow the tree by one level.
		oldRoot := t.root
		t.root = &node{
			leaf: false,
			entries: []nodeEntry{
				{rect: oldRoot.rect(), child: oldRoot},
				{rect: split.rect(), child: split},
			},
		}
	}
	t.positions[e.ID] = e.Position
	t.size++
}

// insertAt descends to a leaf and inserts. Returns a new sibling when the
// visited node split, nil otherwise; the caller updates its bounding slot.
func (t *Tree) insertAt(n *node, entry nodeEntry) *node {
	if n.leaf {
		n.entries = append(n.entries, entry)
		if len(n.entries) > t.fanout {
			return t.split(n)
		}
		return nil
	}

	idx := t.chooseSubtree(n, entry.rect)
	child := n.entries[idx].child
	sibling := t.insertAt(child, entry)
	n.entries[idx].rect = child.rect()
	if sibling != nil {
		n.entries = append(n.entries, nodeEntry{rect: sibling.rect(), child: sibling})
		if len(n.entries) > t.fanout {
			return t.split(n)
		}
	}
	return nil
}

// chooseSubtree picks the child slot whose region grows least when covering
// the candidate. Ties break by smaller volume; degenerate regions (all
// penalties meaningless) fall back to Euclidean center distance.
func (t *Tree) chooseSubtree(n *node, candidate Rect) int {
	best := 0
	bestPenalty := 0.0
	bestVolume := 0.0
	bestDist := 0.0
	degenerate := true

	for i, e := range n.entries {
		p, err := penalty(e.rect, candidate)
		dist := geometry.Euclidean(e.rect.center(), candidate.center())
		if err != nil {
			// Zero-signal region: only the distance fallback applies.
			if degenerate && (i == 0 || dist < bestDist) {
				best, bestDist = i, dist
			}
			continue
		}
		vol := e.rect.Volume()
		if degenerate || p < bestPenalty ||
			(p == bestPenalty && vol < bestVolume) ||
			(p == bestPenalty && vol == bestVolume && dist < bestDist) {
			best, bestPenalty, bestVolume, bestDist = i, p, vol, dist
			degenerate = false
		}
	}
	return best
}

// split partitions an overflowing node's entries into two groups with the
// quadratic heuristic: seed the groups with the pair wasting the most dead
// volume together, then grow by strongest preference. Every entry lands in
// exactly one group and neither group is empty. Returns the new sibling;
// the receiver keeps group one.
func (t *Tree) split(n *node) *node {
	entries := n.entries

	seedA, seedB := pickSeeds(entries)
	groupA := []nodeEntry{entries[seedA]}
	groupB := []nodeEntry{entries[seedB]}
	rectA := entries[seedA].rect
	rectB := entries[seedB].rect

	rest := make([]nodeEntry, 0, len(entries)-2)
	for i, e := range entries {
		if i != seedA && i != seedB {
			rest = append(rest, e)
		}
	}

	for len(rest) > 0 {
		// If one group must take everything left to reach min fill, hand
		// the remainder over.
		if len(groupA)+len(rest) <= t.minFill {
			for _, e := range rest {
				groupA = append(groupA, e)
				rectA = rectA.Union(e.rect)
			}
			break
		}
		if len(groupB)+len(rest) <= t.minFill {
			for _, e := range rest {
				groupB = append(groupB, e)
				rectB = rectB.Union(e.rect)
			}
			break
		}

		next, toA := pickNext(rest, rectA, rectB, len(groupA), len(groupB))
		e := rest[next]
		rest = append(rest[:next], rest[next+1:]...)
		if toA {
			groupA = append(groupA, e)
			rectA = rectA.Union(e.rect)
		} else {
			groupB = append(groupB, e)
			rectB = rectB.Union(e.rect)
		}
	}

	n.entries = groupA
	return &node{leaf: n.leaf, entries: groupB}
}

// pickSeeds returns the entry pair whose combined box wastes the most dead
// space, the classic quadratic seed choice.
func pickSeeds(entries []nodeEntry) (int, int) {
	seedA, seedB := 0, 1
	worst := -1.0
	for i := 0; i < len(entries); i++ {
		for j := i + 1; j < len(entries); j++ {
			u := entries[i].rect.Union(entries[j].rect)
			waste := u.Volume() - entries[i].rect.Volume() - entries[j].rect.Volume()
			if waste == 0 {
				// Point-heavy nodes: fall back to spread so the seeds are
				// still the farthest-apart pair.
				waste = u.margin()
			}
			if waste > worst {
				worst, seedA, seedB = waste, i, j
			}
		}
	}
	return seedA, seedB
}

// pickNext selects the unassigned entry with the strongest preference for
// one group. Equal preference breaks toward the group with smaller volume,
// then fewer entries, then group one (the documented tie-break rule).
func pickNext(rest []nodeEntry, rectA, rectB Rect, lenA, lenB int) (int, bool) {
	bestIdx := 0
	bestDiff := -1.0
	bestToA := true
	for i, e := range rest {
		growA := rectA.Union(e.rect).Volume() - rectA.Volume()
		growB := rectB.Union(e.rect).Volume() - rectB.Volume()
		diff := growA - growB
		if diff < 0 {
			diff = -diff
		}
		if diff > bestDiff {
			bestDiff = diff
			bestIdx = i
			switch {
			case growA < growB:
				bestToA = true
			case growB < growA:
				bestToA = false
			case rectA.Volume() != rectB.Volume():
				bestToA = rectA.Volume() < rectB.Volume()
			case lenA != lenB:
				bestToA = lenA < lenB
			default:
				bestToA = true
			}
		}
	}
	return bestIdx, bestToA
}

// Delete removes the entry with the given id.
// Returns ErrEntryNotFound for an unknown id.
func (t *Tree) Delete(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	pos, ok := t.positions[id]
	if !ok {
		return ErrEntryNotFound
	}
	return t.deleteLocked(id, pos)
}

func (t *Tree) deleteLocked(id string, pos geometry.Vec4) error {
	var orphans []nodeEntry
	found := t.removeAt(t.root, id, RectFromPoint(pos), &orphans)
	if !found {
		return ErrEntryNotFound
	}
	delete(t.positions, id)
	t.size--

	// Collapse a root with a single internal child.
	for !t.root.leaf && len(t.root.entries) == 1 {
		t.root = t.root.entries[0].child
	}
	if !t.root.leaf && len(t.root.entries) == 0 {
		t.root = &node{leaf: true}
	}

	// Reinsert entries from dissolved nodes.
	for _, o := range orphans {
		if o.record != nil {
			split := t.insertAt(t.root, o)
			if split != nil {
				oldRoot := t.root
				t.root = &node{leaf: false, entries: []nodeEntry{
					{rect: oldRoot.rect(), child: oldRoot},
					{rect: split.rect(), child: split},
				}}
			}
		}
	}
	return nil
}

// removeAt removes the record from the subtree. Nodes falling below the
// minimum fill dissolve; their leaf records queue for reinsertion.
func (t *Tree) removeAt(n *node, id string, target Rect, orphans *[]nodeEntry) bool {
	if n.leaf {
		for i, e := range n.entries {
			if e.record != nil && e.record.ID == id {
				n.entries = append(n.entries[:i], n.entries[i+1:]...)
				return true
			}
		}
		return false
	}

	for i, e := range n.entries {
		if !e.rect.Intersects(target) {
			continue
		}
		if t.removeAt(e.child, id, target, orphans) {
			if len(e.child.entries) < t.minFill && e.child.leaf {
				*orphans = append(*orphans, e.child.entries...)
				n.entries = append(n.entries[:i], n.entries[i+1:]...)
			} else {
				n.entries[i].rect = e.child.rect()
			}
			return true
		}
	}
	return false
}
