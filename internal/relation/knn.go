package relation

import (
	"errors"
	"math"
	"sort"

	"github.com/noemadb/noema/internal/graph"
)

// DefaultNeighbors is the neighbor count for similarity-graph detection.
const DefaultNeighbors = 10

// Errors returned by similarity-graph detection.
var (
	ErrNoEmbeddings      = errors.New("no embeddings to relate")
	ErrNeighborCount     = errors.New("neighbor count must be at least 1")
	ErrDimensionMismatch = errors.New("embedding dimensions differ")
)

// Embedded pairs a composition with its dense vector from an external
// embedding source.
type Embedded struct {
	Hash   string
	Vector []float32
}

// euclidean32 returns the Euclidean distance between two equal-length
// vectors.
func euclidean32(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Neighbors builds a brute-force k-nearest-neighbor graph over the
// embeddings and emits one candidate relation per retained edge. Each
// candidate's sequence is the ordered (source, neighbor) pair, and its
// initial rating is derived from the neighbor's distance normalized by the
// farthest retained neighbor of the same source:
//
//	rating = 1000 + 1000·(1 - normalizedDistance)
//
// clamped to [RatingMin, RatingMax]. The candidate sequences then pass
// through the same dedup path as any composition sequence, so the reverse
// edge of an already-seen pair becomes a distinct relation only if its
// ordered sequence differs.
func Neighbors(items []Embedded, k int) ([]Candidate, error) {
	if k < 1 {
		return nil, ErrNeighborCount
	}
	if len(items) == 0 {
		return nil, ErrNoEmbeddings
	}
	dims := len(items[0].Vector)
	for _, it := range items {
		if len(it.Vector) != dims {
			return nil, ErrDimensionMismatch
		}
	}
	if len(items) < 2 {
		return nil, nil
	}

	type scored struct {
		hash string
		dist float64
	}

	var candidates []Candidate
	for _, src := range items {
		neighbors := make([]scored, 0, len(items)-1)
		for _, other := range items {
			if other.Hash == src.Hash {
				continue
			}
			neighbors = append(neighbors, scored{other.Hash, euclidean32(src.Vector, other.Vector)})
		}
		sort.Slice(neighbors, func(i, j int) bool {
			if neighbors[i].dist != neighbors[j].dist {
				return neighbors[i].dist < neighbors[j].dist
			}
			return neighbors[i].hash < neighbors[j].hash
		})
		if len(neighbors) > k {
			neighbors = neighbors[:k]
		}

		// Normalize against the farthest retained neighbor: the nearest
		// edge rates close to 2000, the farthest close to 1000.
		far := neighbors[len(neighbors)-1].dist
		for _, n := range neighbors {
			norm := 0.0
			if far > 0 {
				norm = n.dist / far
			}
			entries, err := graph.Compress([]graph.ChildRef{
				graph.CompositionChild(src.Hash),
				graph.CompositionChild(n.hash),
			})
			if err != nil {
				return nil, err
			}
			candidates = append(candidates, Candidate{
				Entries: entries,
				Rating:  clampRating(InitialRating + InitialRating*(1-norm)),
				Weight:  1,
			})
		}
	}
	return candidates, nil
}
