// Package vecmath provides the numeric routines used by face matching:
// L2 normalization, cosine similarity and Euclidean distance over
// float32 embeddings. All accumulation happens in float64 so that
// classifications near a threshold boundary are deterministic.
package vecmath

import (
	"fmt"
	"math"
)

// DimensionMismatchError is returned when two vectors of different
// lengths are compared. Vectors are never truncated or padded.
type DimensionMismatchError struct {
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: want %d, got %d", e.Want, e.Got)
}

// Norm returns the L2 norm of the vector.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Normalize returns a copy of v divided by its L2 norm.
// A zero-norm vector normalizes to the zero vector; callers must treat
// a zero-norm embedding as carrying no usable signal.
func Normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	norm := Norm(v)
	if norm == 0 {
		return out
	}
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// IsZero reports whether the vector has zero L2 norm.
func IsZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// CosineSimilarity computes the cosine similarity between a and b,
// clamped to [-1, 1]. Zero-norm inputs yield similarity 0.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, &DimensionMismatchError{Want: len(a), Got: len(b)}
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp to [-1, 1] to handle floating point errors.
	if sim > 1 {
		sim = 1
	}
	if sim < -1 {
		sim = -1
	}
	return sim, nil
}

// CosineDistance computes 1 - cosine similarity.
// Returns a value between 0 (identical direction) and 2 (opposite).
func CosineDistance(a, b []float32) (float64, error) {
	sim, err := CosineSimilarity(a, b)
	if err != nil {
		return 0, err
	}
	return 1 - sim, nil
}

// L2Distance computes the Euclidean distance between a and b.
func L2Distance(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, &DimensionMismatchError{Want: len(a), Got: len(b)}
	}

	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum), nil
}
