// Package biometric implements nearest-neighbour identification of a probe
// feature vector against the gallery of active enrollments.
package biometric

import (
	"errors"
	"math"
)

// DefaultThreshold is the acceptance threshold used when none is configured.
const DefaultThreshold = 0.5

// ErrEmptyVector is returned by Validate for zero-length vectors.
var ErrEmptyVector = errors.New("empty vector")

// ErrNonFinite is returned by Validate for vectors containing NaN or Inf.
var ErrNonFinite = errors.New("vector contains non-finite component")

// Vector is a fixed-length face embedding.
type Vector []float32

// Dim returns the dimensionality of the vector.
func (v Vector) Dim() int {
	return len(v)
}

// Validate reports whether the vector can take part in a distance computation.
func (v Vector) Validate() error {
	if len(v) == 0 {
		return ErrEmptyVector
	}
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return ErrNonFinite
		}
	}
	return nil
}

// Clone returns a copy that does not share the backing array.
func (v Vector) Clone() Vector {
	if v == nil {
		return nil
	}
	out := make(Vector, len(v))
	copy(out, v)
	return out
}

// EuclideanDistance computes the L2 distance between two vectors.
// ok is false when the dimensions differ or either vector is empty.
func EuclideanDistance(a, b Vector) (dist float64, ok bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum), true
}
