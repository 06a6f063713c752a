// Package spatialkey derives locality-preserving 128-bit keys from
// hypercube coordinates. The mapping is forward-only: keys are compared and
// range-scanned, never decoded back to coordinates.
package spatialkey

import (
	"errors"
	"fmt"
)

// DefaultBits is the default quantization depth per axis. Four axes at 32
// bits fill the full 128-bit key.
const DefaultBits = 32

// ErrBitDepth is returned for a bit depth outside 1..32.
var ErrBitDepth = errors.New("bit depth must be between 1 and 32")

// Key is a 128-bit spatial key. Ordering is big-endian: Hi compares first.
type Key struct {
	Hi uint64
	Lo uint64
}

// Compare returns -1, 0, or 1 as a is less than, equal to, or greater than b.
func Compare(a, b Key) int {
	switch {
	case a.Hi < b.Hi:
		return -1
	case a.Hi > b.Hi:
		return 1
	case a.Lo < b.Lo:
		return -1
	case a.Lo > b.Lo:
		return 1
	}
	return 0
}

// Less reports whether a orders before b.
func Less(a, b Key) bool {
	return Compare(a, b) < 0
}

// String returns the key as 32 hex digits.
func (k Key) String() string {
	return fmt.Sprintf("%016x%016x", k.Hi, k.Lo)
}

// Encoder discretizes [0,1]⁴ coordinates into interleaved keys.
type Encoder struct {
	bits uint
}

// NewEncoder returns an encoder quantizing each axis to the given number of
// bits. Returns ErrBitDepth if bits is outside 1..32.
func NewEncoder(bits int) (*Encoder, error) {
	if bits < 1 || bits > 32 {
		return nil, fmt.Errorf("%w: got %d", ErrBitDepth, bits)
	}
	return &Encoder{bits: uint(bits)}, nil
}

// Bits returns the per-axis quantization depth.
func (e *Encoder) Bits() int {
	return int(e.bits)
}

// quantize maps a coordinate in [0, 1] to an integer cell in [0, 2^bits-1].
// The value 1.0 lands in the top cell rather than overflowing it.
func (e *Encoder) quantize(x float64) uint64 {
	if x <= 0 {
		return 0
	}
	max := uint64(1)<<e.bits - 1
	if x >= 1 {
		return max
	}
	q := uint64(x * float64(uint64(1)<<e.bits))
	if q > max {
		q = max
	}
	return q
}

// Encode interleaves the quantized binary expansions of the four axes into
// one key, most significant bit level first, axis 0 outermost. Points close
// in R⁴ share long key prefixes with high probability, which range scans
// over the key column exploit. Pure function of its input.
func (e *Encoder) Encode(cube [4]float64) Key {
	var q [4]uint64
	for i, x := range cube {
		q[i] = e.quantize(x)
	}

	// Keys are left-aligned: shallower encoders fill the high bits and leave
	// the tail zero, so keys from different depths still order coarsely.
	var hi, lo uint64
	pos := uint(0) // bit position from the most significant end
	for level := int(e.bits) - 1; level >= 0; level-- {
		for axis := 0; axis < 4; axis++ {
			bit := (q[axis] >> uint(level)) & 1
			if pos < 64 {
				hi |= bit << (63 - pos)
			} else {
				lo |= bit << (63 - (pos - 64))
			}
			pos++
		}
	}
	return Key{Hi: hi, Lo: lo}
}
