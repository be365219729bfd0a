// Package enroll sequences the recognition provider calls that turn an
// image into embeddings ready for matching. It owns no matching logic:
// only step ordering, partial-result assembly and warning collection.
package enroll

import (
	"context"
	"fmt"

	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/recognizer"
	"github.com/kozaktomas/face-registry/internal/vecmath"
)

// Result is the assembled outcome of one enrollment run.
type Result struct {
	Observation   recognizer.Observation
	FastEmbedding []float32 // secondary space, nil when the fast path was skipped or failed
	Warnings      []string
}

// Pipeline runs Detect -> Landmark -> Embed -> [FaceMesh?] -> [Morphable3D?]
// against the recognition provider. Bracketed steps are optional: their
// failure is recorded as a warning, never a pipeline failure. Missing
// face or a wrong-dimension embedding aborts with a typed error.
type Pipeline struct {
	handle *recognizer.Handle
	fast   recognizer.FastProvider // optional, nil disables the secondary path
}

// NewPipeline creates a pipeline over the shared provider handle.
// fast may be nil.
func NewPipeline(handle *recognizer.Handle, fast recognizer.FastProvider) *Pipeline {
	return &Pipeline{handle: handle, fast: fast}
}

// Run executes the pipeline for one image.
func (p *Pipeline) Run(ctx context.Context, image []byte) (*Result, error) {
	provider, err := p.handle.Get()
	if err != nil {
		return nil, err
	}

	result := &Result{}

	detection, err := provider.Detect(ctx, image)
	if err != nil {
		return nil, err
	}
	result.Observation.BBox = detection.BBox
	result.Observation.Confidence = detection.Confidence

	landmarks, err := provider.Landmarks(ctx, image, detection.BBox)
	if err != nil {
		// Landmark extraction failing on a detected face is unusual but
		// alignment can proceed from the bbox alone.
		result.Warnings = append(result.Warnings, fmt.Sprintf("landmarks: %v", err))
	} else {
		result.Observation.Landmarks = landmarks
	}

	embedding, err := provider.Embed(ctx, image, detection.BBox)
	if err != nil {
		return nil, err
	}
	if len(embedding) != database.PrimaryDim {
		return nil, &vecmath.DimensionMismatchError{Want: database.PrimaryDim, Got: len(embedding)}
	}
	result.Observation.Embedding = embedding

	if mesh, ok := provider.(recognizer.MeshProvider); ok {
		m, err := mesh.FaceMesh(ctx, image)
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("face mesh: %v", err))
		} else {
			result.Observation.Mesh = m
		}
	}

	if morph, ok := provider.(recognizer.MorphableProvider); ok {
		m, err := morph.Morphable3D(ctx, image)
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("morphable 3d: %v", err))
		} else {
			result.Observation.Morphable = m
		}
	}

	if p.fast != nil {
		fast, err := p.fast.ObserveFast(ctx, image)
		switch {
		case err != nil:
			result.Warnings = append(result.Warnings, fmt.Sprintf("fast recognizer: %v", err))
		case len(fast) != database.SecondaryDim:
			result.Warnings = append(result.Warnings, fmt.Sprintf("fast recognizer: dimension %d, want %d", len(fast), database.SecondaryDim))
		default:
			result.FastEmbedding = fast
		}
	}

	return result, nil
}
