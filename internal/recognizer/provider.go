// Package recognizer defines the contract with the external face
// recognition service and provides HTTP clients for it. The engine never
// computes embeddings itself; it consumes observations produced here.
package recognizer

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoFace is returned when the provider finds no face in the image.
// This is a normal, expected outcome and distinct from a provider failure.
var ErrNoFace = errors.New("no face detected")

// ProviderError wraps transport or service failures so callers can
// distinguish "no face" from "provider broken".
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("recognition provider %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Detection is the located face in an image. When the image contains
// multiple faces the provider resolves deterministically to the one with
// the largest bounding box area.
type Detection struct {
	BBox       []float64 `json:"bbox"` // [x1, y1, x2, y2] raw pixel coordinates
	Confidence float64   `json:"confidence"`
}

// Observation is the full result of observing one face: the primary
// embedding plus whatever optional extras the provider produced.
// Optional fields are nil when the corresponding step did not run.
type Observation struct {
	Embedding  []float32    `json:"embedding"`
	BBox       []float64    `json:"bbox"`
	Confidence float64      `json:"confidence"`
	Landmarks  [][2]float32 `json:"landmarks,omitempty"` // 106 points, nil if unavailable
	Mesh       [][3]float32 `json:"mesh,omitempty"`      // dense face mesh, nil if unavailable
	Morphable  []float32    `json:"morphable,omitempty"` // 3DMM coefficients, nil if unavailable
}

// Provider is the primary recognition capability: detect a face, locate
// its landmarks and produce a 512-dim embedding. Each call may take
// seconds on a cold model and must honor context cancellation.
type Provider interface {
	Name() string
	Detect(ctx context.Context, image []byte) (*Detection, error)
	Landmarks(ctx context.Context, image []byte, bbox []float64) ([][2]float32, error)
	Embed(ctx context.Context, image []byte, bbox []float64) ([]float32, error)
}

// MeshProvider is an optional capability producing a dense face mesh.
type MeshProvider interface {
	FaceMesh(ctx context.Context, image []byte) ([][3]float32, error)
}

// MorphableProvider is an optional capability producing 3D morphable
// model coefficients.
type MorphableProvider interface {
	Morphable3D(ctx context.Context, image []byte) ([]float32, error)
}

// FastProvider is the secondary, lower-latency recognition path producing
// 128-dim embeddings. Its output lives in the secondary space and must
// never be compared against primary embeddings.
type FastProvider interface {
	ObserveFast(ctx context.Context, image []byte) ([]float32, error)
}
