package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/database/mock"
	"github.com/kozaktomas/face-registry/internal/enroll"
	"github.com/kozaktomas/face-registry/internal/facematch"
	"github.com/kozaktomas/face-registry/internal/recognizer"
)

// primaryVec builds a 512-dim embedding from leading components.
func primaryVec(vals ...float32) []float32 {
	v := make([]float32, database.PrimaryDim)
	copy(v, vals)
	return v
}

// fastVec builds a 128-dim embedding from leading components.
func fastVec(vals ...float32) []float32 {
	v := make([]float32, database.SecondaryDim)
	copy(v, vals)
	return v
}

// newTestEngine creates an engine over a fresh mock store.
func newTestEngine() (*facematch.Engine, *mock.Store) {
	store := mock.NewStore()
	engine := facematch.NewEngine(store, nil, facematch.DefaultSpaces())
	return engine, store
}

// fakeProvider is a recognition provider returning canned results.
type fakeProvider struct {
	embedding []float32
	detectErr error
	embedErr  error
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Detect(ctx context.Context, image []byte) (*recognizer.Detection, error) {
	if p.detectErr != nil {
		return nil, p.detectErr
	}
	return &recognizer.Detection{BBox: []float64{10, 10, 90, 110}, Confidence: 0.97}, nil
}

func (p *fakeProvider) Landmarks(ctx context.Context, image []byte, bbox []float64) ([][2]float32, error) {
	return [][2]float32{{30, 40}, {60, 40}, {45, 60}, {35, 80}, {55, 80}}, nil
}

func (p *fakeProvider) Embed(ctx context.Context, image []byte, bbox []float64) ([]float32, error) {
	if p.embedErr != nil {
		return nil, p.embedErr
	}
	return p.embedding, nil
}

// newTestPipeline builds a pipeline over a fake provider, no fast path.
func newTestPipeline(p *fakeProvider) *enroll.Pipeline {
	handle := recognizer.NewHandle(func() (recognizer.Provider, error) {
		return p, nil
	})
	return enroll.NewPipeline(handle, nil)
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
