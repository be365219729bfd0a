package recognizer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func insightServer(t *testing.T, handler http.HandlerFunc) *InsightProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewInsightProvider(srv.URL, time.Second)
}

func TestDetect(t *testing.T) {
	p := insightServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/detect" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req detectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if req.Image == "" {
			t.Error("request missing image payload")
		}
		json.NewEncoder(w).Encode(detectResponse{
			Detected:   true,
			BBox:       []float64{10, 20, 110, 140},
			Confidence: 0.97,
		})
	})

	det, err := p.Detect(context.Background(), []byte("fake-image"))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if det.Confidence != 0.97 {
		t.Errorf("Confidence = %v, want 0.97", det.Confidence)
	}
	if len(det.BBox) != 4 || det.BBox[0] != 10 {
		t.Errorf("BBox = %v, want [10 20 110 140]", det.BBox)
	}
}

func TestDetectNoFace(t *testing.T) {
	p := insightServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(detectResponse{Detected: false})
	})

	_, err := p.Detect(context.Background(), []byte("fake-image"))
	if !errors.Is(err, ErrNoFace) {
		t.Errorf("Detect on empty image = %v, want ErrNoFace", err)
	}
}

func TestDetectServiceBroken(t *testing.T) {
	p := insightServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	})

	_, err := p.Detect(context.Background(), []byte("fake-image"))
	if errors.Is(err, ErrNoFace) {
		t.Fatal("service failure must not look like a no-face outcome")
	}
	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Errorf("Detect on broken service = %v, want ProviderError", err)
	}
}

func TestEmbed(t *testing.T) {
	emb := make([]float32, 512)
	emb[0] = 1
	p := insightServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req detectRequest
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.BBox) != 4 {
			t.Errorf("Embed should forward the detection bbox, got %v", req.BBox)
		}
		json.NewEncoder(w).Encode(detectResponse{Detected: true, Embedding: emb})
	})

	got, err := p.Embed(context.Background(), []byte("fake-image"), []float64{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(got) != 512 {
		t.Errorf("embedding length = %d, want 512", len(got))
	}
}

func TestCancelledContext(t *testing.T) {
	p := insightServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		json.NewEncoder(w).Encode(detectResponse{Detected: true})
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := p.Detect(ctx, []byte("fake-image"))
	if err == nil {
		t.Fatal("Detect should fail when the context deadline passes")
	}
	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Errorf("cancelled call = %v, want ProviderError", err)
	}
}

func TestHandleSharesProvider(t *testing.T) {
	calls := 0
	h := NewHandle(func() (Provider, error) {
		calls++
		return NewInsightProvider("http://localhost:0", time.Second), nil
	})

	first, err := h.Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	second, err := h.Get()
	if err != nil {
		t.Fatalf("second Get failed: %v", err)
	}
	if first != second {
		t.Error("Get should return the same shared provider")
	}
	if calls != 1 {
		t.Errorf("factory called %d times, want 1", calls)
	}

	h.Teardown()
	if _, err := h.Get(); err != nil {
		t.Fatalf("Get after Teardown failed: %v", err)
	}
	if calls != 2 {
		t.Errorf("factory called %d times after teardown, want 2", calls)
	}
}

func TestHandleFactoryError(t *testing.T) {
	h := NewHandle(func() (Provider, error) {
		return nil, errors.New("model download failed")
	})
	_, err := h.Get()
	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Errorf("failing factory = %v, want ProviderError", err)
	}
}
