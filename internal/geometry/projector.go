package geometry

import "math"

// Halton bases for the three sample dimensions. Coprime bases keep the
// sequence low-discrepancy across dimensions.
const (
	haltonBaseU = 2
	haltonBaseV = 3
	haltonBaseW = 5
)

// halton returns element i of the van der Corput sequence in the given
// base, in [0, 1). Pure integer/float arithmetic, bit-exact across calls.
func halton(i uint64, base uint64) float64 {
	f := 1.0
	r := 0.0
	for i > 0 {
		f /= float64(base)
		r += f * float64(i%base)
		i /= base
	}
	return r
}

// Project maps an ordering-key rank to a point on S³.
//
// A low-discrepancy 3D sample (u, v, w) is drawn from the Halton sequence at
// the given rank, then lifted to S³ via Hopf coordinates:
//
//	( √(1-u)·sin 2πv, √(1-u)·cos 2πv, √u·sin 2πw, √u·cos 2πw )
//
// The lift is a continuous surjection of the open cube onto S³, so nearby
// ranks land at nearby positions. Deterministic: the same rank always yields
// the identical vector.
func Project(rank uint64) Vec4 {
	// Rank 0 would map every field-zero key to the cube corner; offset by
	// one so u, v, w are never all zero.
	i := rank + 1
	u := halton(i, haltonBaseU)
	v := halton(i, haltonBaseV)
	w := halton(i, haltonBaseW)

	sinV, cosV := math.Sincos(2 * math.Pi * v)
	sinW, cosW := math.Sincos(2 * math.Pi * w)
	a := math.Sqrt(1 - u)
	b := math.Sqrt(u)

	return Vec4{a * sinV, a * cosV, b * sinW, b * cosW}
}
