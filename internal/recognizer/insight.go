package recognizer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultInsightURL     = "http://localhost:18081"
	defaultInsightTimeout = 30 * time.Second
)

// InsightProvider talks to an InsightFace-style recognition service over
// HTTP. The service owns model execution; this client only moves bytes.
type InsightProvider struct {
	baseURL string
	client  *http.Client
}

// NewInsightProvider creates a client for the recognition service.
func NewInsightProvider(baseURL string, timeout time.Duration) *InsightProvider {
	if baseURL == "" {
		baseURL = defaultInsightURL
	}
	if timeout <= 0 {
		timeout = defaultInsightTimeout
	}
	return &InsightProvider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Name identifies the provider in logs and reports.
func (p *InsightProvider) Name() string {
	return "insightface"
}

// detectRequest is the request body shared by all endpoints.
type detectRequest struct {
	Image string    `json:"image"`          // base64 encoded image bytes
	BBox  []float64 `json:"bbox,omitempty"` // optional pre-detected box
}

// detectResponse covers every endpoint; unused fields stay zero.
type detectResponse struct {
	Detected   bool         `json:"detected"`
	BBox       []float64    `json:"bbox,omitempty"`
	Confidence float64      `json:"confidence,omitempty"`
	Landmarks  [][2]float32 `json:"landmarks,omitempty"`
	Embedding  []float32    `json:"embedding,omitempty"`
	Mesh       [][3]float32 `json:"mesh,omitempty"`
	Morphable  []float32    `json:"morphable,omitempty"`
	Error      string       `json:"error,omitempty"`
}

// Detect locates the face in the image. When the image contains several
// faces the service resolves to the largest bounding box and returns
// that one detection.
func (p *InsightProvider) Detect(ctx context.Context, image []byte) (*Detection, error) {
	resp, err := p.post(ctx, "/api/v1/detect", detectRequest{Image: base64.StdEncoding.EncodeToString(image)})
	if err != nil {
		return nil, err
	}
	if !resp.Detected {
		return nil, ErrNoFace
	}
	return &Detection{BBox: resp.BBox, Confidence: resp.Confidence}, nil
}

// Landmarks returns the 106-point landmark set for a detected face.
func (p *InsightProvider) Landmarks(ctx context.Context, image []byte, bbox []float64) ([][2]float32, error) {
	resp, err := p.post(ctx, "/api/v1/landmarks", detectRequest{Image: base64.StdEncoding.EncodeToString(image), BBox: bbox})
	if err != nil {
		return nil, err
	}
	if !resp.Detected {
		return nil, ErrNoFace
	}
	return resp.Landmarks, nil
}

// Embed aligns the detected face and returns its 512-dim embedding.
func (p *InsightProvider) Embed(ctx context.Context, image []byte, bbox []float64) ([]float32, error) {
	resp, err := p.post(ctx, "/api/v1/embed", detectRequest{Image: base64.StdEncoding.EncodeToString(image), BBox: bbox})
	if err != nil {
		return nil, err
	}
	if !resp.Detected {
		return nil, ErrNoFace
	}
	return resp.Embedding, nil
}

// FaceMesh returns a dense face mesh. Optional capability.
func (p *InsightProvider) FaceMesh(ctx context.Context, image []byte) ([][3]float32, error) {
	resp, err := p.post(ctx, "/api/v1/mesh", detectRequest{Image: base64.StdEncoding.EncodeToString(image)})
	if err != nil {
		return nil, err
	}
	if !resp.Detected {
		return nil, ErrNoFace
	}
	return resp.Mesh, nil
}

// Morphable3D returns 3D morphable model coefficients. Optional capability.
func (p *InsightProvider) Morphable3D(ctx context.Context, image []byte) ([]float32, error) {
	resp, err := p.post(ctx, "/api/v1/reconstruct", detectRequest{Image: base64.StdEncoding.EncodeToString(image)})
	if err != nil {
		return nil, err
	}
	if !resp.Detected {
		return nil, ErrNoFace
	}
	return resp.Morphable, nil
}

func (p *InsightProvider) post(ctx context.Context, path string, reqBody detectRequest) (*detectResponse, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &ProviderError{Op: path, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, &ProviderError{Op: path, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := p.client.Do(req)
	if err != nil {
		return nil, &ProviderError{Op: path, Err: err}
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &ProviderError{Op: path, Err: err}
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, &ProviderError{Op: path, Err: fmt.Errorf("status %d: %s", httpResp.StatusCode, strings.TrimSpace(string(body)))}
	}

	var resp detectResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &ProviderError{Op: path, Err: fmt.Errorf("decoding response: %w", err)}
	}
	if resp.Error != "" {
		return nil, &ProviderError{Op: path, Err: fmt.Errorf("service error: %s", resp.Error)}
	}
	return &resp, nil
}
