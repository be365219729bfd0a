package recognizer

import (
	"sync"
)

// Handle shares one lazily-constructed provider between callers. The
// provider behind it is built once on first use, shared by reference and
// never reconstructed unless Teardown is called. It replaces the
// process-wide model singleton pattern with an injectable capability.
type Handle struct {
	factory func() (Provider, error)

	mu       sync.Mutex
	provider Provider
}

// NewHandle creates a handle that builds its provider on first Get.
func NewHandle(factory func() (Provider, error)) *Handle {
	return &Handle{factory: factory}
}

// Get returns the shared provider, constructing it if needed.
func (h *Handle) Get() (Provider, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.provider != nil {
		return h.provider, nil
	}
	p, err := h.factory()
	if err != nil {
		return nil, &ProviderError{Op: "init", Err: err}
	}
	h.provider = p
	return p, nil
}

// Teardown drops the shared provider; the next Get rebuilds it.
func (h *Handle) Teardown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.provider = nil
}
