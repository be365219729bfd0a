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

const defaultFastFaceURL = "http://localhost:18082"

// FastFaceProvider talks to the local low-latency recognizer producing
// 128-dim embeddings for the secondary space.
type FastFaceProvider struct {
	baseURL string
	client  *http.Client
}

// NewFastFaceProvider creates a client for the secondary recognizer.
func NewFastFaceProvider(baseURL string, timeout time.Duration) *FastFaceProvider {
	if baseURL == "" {
		baseURL = defaultFastFaceURL
	}
	if timeout <= 0 {
		timeout = defaultInsightTimeout
	}
	return &FastFaceProvider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type fastRequest struct {
	Image string `json:"image"`
}

type fastResponse struct {
	Detected  bool      `json:"detected"`
	Embedding []float32 `json:"embedding,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// ObserveFast returns the 128-dim secondary-space embedding for the face
// in the image.
func (p *FastFaceProvider) ObserveFast(ctx context.Context, image []byte) ([]float32, error) {
	payload, err := json.Marshal(fastRequest{Image: base64.StdEncoding.EncodeToString(image)})
	if err != nil {
		return nil, &ProviderError{Op: "observe_fast", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/v1/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, &ProviderError{Op: "observe_fast", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := p.client.Do(req)
	if err != nil {
		return nil, &ProviderError{Op: "observe_fast", Err: err}
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &ProviderError{Op: "observe_fast", Err: err}
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, &ProviderError{Op: "observe_fast", Err: fmt.Errorf("status %d: %s", httpResp.StatusCode, strings.TrimSpace(string(body)))}
	}

	var resp fastResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &ProviderError{Op: "observe_fast", Err: fmt.Errorf("decoding response: %w", err)}
	}
	if resp.Error != "" {
		return nil, &ProviderError{Op: "observe_fast", Err: fmt.Errorf("service error: %s", resp.Error)}
	}
	if !resp.Detected {
		return nil, ErrNoFace
	}
	return resp.Embedding, nil
}
