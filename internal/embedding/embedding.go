// Package embedding generates vector embeddings for composition text, used
// to detect semantic similarity relations between stored compositions.
package embedding

// Embedding is a vector embedding of a piece of text.
type Embedding struct {
	Vector []float32
}

// Dimensions returns the dimensionality of the embedding.
func (e Embedding) Dimensions() int {
	return len(e.Vector)
}
