package relation

import (
	"errors"

	"github.com/noemadb/noema/internal/graph"
)

// DefaultWindow is the sliding-window width for co-occurrence detection.
// Two is the adjacency case; larger windows relate terms across short gaps.
const DefaultWindow = 2

// ErrWindowSize is returned for windows that cannot co-occur anything.
var ErrWindowSize = errors.New("window size must be at least 2")

// Candidate is a proposed relation: an ordered composition sequence plus
// the initial rating and weight its first evidence carries.
type Candidate struct {
	Entries []graph.Entry
	Rating  float64
	Weight  float64
}

// CoOccurrences slides a window over an ordered composition sequence and
// emits one candidate per window position. The windowed tuple is run-length
// compressed under the same rules as a composition sequence, so a repeated
// token inside a window becomes one entry with a higher occurrence count
// rather than distinct relation rows. Sequences shorter than the window
// produce no candidates; in particular a single token never relates to
// itself.
func CoOccurrences(sequence []graph.ChildRef, window int) ([]Candidate, error) {
	if window < 2 {
		return nil, ErrWindowSize
	}
	if len(sequence) < window {
		return nil, nil
	}

	candidates := make([]Candidate, 0, len(sequence)-window+1)
	for i := 0; i+window <= len(sequence); i++ {
		entries, err := graph.Compress(sequence[i : i+window])
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, Candidate{
			Entries: entries,
			Rating:  InitialRating,
			Weight:  1,
		})
	}
	return candidates, nil
}
