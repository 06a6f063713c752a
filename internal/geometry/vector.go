// Package geometry provides the S³ embedding primitives: unit vectors in
// R⁴, geodesic and Euclidean distances, and centroids.
package geometry

import (
	"errors"
	"math"
)

// UnitTolerance is the allowed deviation from unit length for a position.
var UnitTolerance = 1e-9

// ErrDegenerateInput is returned when a centroid collapses to the zero
// vector (e.g. antipodal inputs) and cannot be normalized.
var ErrDegenerateInput = errors.New("degenerate input: positions cancel to zero")

// Vec4 is a point in R⁴. Positions on S³ are unit-length Vec4 values.
type Vec4 [4]float64

// Dot returns the dot product of two vectors.
func Dot(a, b Vec4) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2] + a[3]*b[3]
}

// Norm returns the Euclidean length of v.
func (v Vec4) Norm() float64 {
	return math.Sqrt(Dot(v, v))
}

// Normalize returns v scaled to unit length.
// Returns ErrDegenerateInput if v is (near) zero.
func (v Vec4) Normalize() (Vec4, error) {
	n := v.Norm()
	if n < UnitTolerance {
		return Vec4{}, ErrDegenerateInput
	}
	return Vec4{v[0] / n, v[1] / n, v[2] / n, v[3] / n}, nil
}

// IsUnit reports whether v lies on S³ within UnitTolerance.
func (v Vec4) IsUnit() bool {
	return math.Abs(v.Norm()-1) <= UnitTolerance
}

// Geodesic returns the angular distance between two unit vectors, in [0, π].
// The dot product is clamped to [-1, 1] before acos to absorb rounding.
func Geodesic(a, b Vec4) float64 {
	d := Dot(a, b)
	if d > 1 {
		d = 1
	} else if d < -1 {
		d = -1
	}
	return math.Acos(d)
}

// GeodesicApprox returns the angular distance computed from the Euclidean
// chord, 2·asin(chord/2). On unit vectors it agrees with Geodesic within
// UnitTolerance and is numerically better conditioned near zero.
func GeodesicApprox(a, b Vec4) float64 {
	half := Euclidean(a, b) / 2
	if half > 1 {
		half = 1
	}
	return 2 * math.Asin(half)
}

// Euclidean returns the straight-line R⁴ distance between two points.
func Euclidean(a, b Vec4) float64 {
	d := Vec4{a[0] - b[0], a[1] - b[1], a[2] - b[2], a[3] - b[3]}
	return d.Norm()
}

// Centroid returns the normalized mean of the given positions.
// Returns ErrDegenerateInput when the mean cancels to zero, or when the
// input is empty.
func Centroid(points []Vec4) (Vec4, error) {
	if len(points) == 0 {
		return Vec4{}, ErrDegenerateInput
	}
	var sum Vec4
	for _, p := range points {
		sum[0] += p[0]
		sum[1] += p[1]
		sum[2] += p[2]
		sum[3] += p[3]
	}
	inv := 1 / float64(len(points))
	mean := Vec4{sum[0] * inv, sum[1] * inv, sum[2] * inv, sum[3] * inv}
	return mean.Normalize()
}

// Cube maps a unit vector to its image in the [0,1]⁴ hypercube, clamping
// each coordinate to the closed interval.
func Cube(v Vec4) [4]float64 {
	var c [4]float64
	for i, x := range v {
		u := (x + 1) / 2
		if u < 0 {
			u = 0
		} else if u > 1 {
			u = 1
		}
		c[i] = u
	}
	return c
}
