package database

import (
	"os"
	"path/filepath"
	"testing"
)

func testCandidates() []Candidate {
	return []Candidate{
		{Code: "UP-000001", Registry: RegistryUnidentified, Embedding: []float32{1, 0, 0}},
		{Code: "UP-000002", Registry: RegistryUnidentified, Embedding: []float32{0.9, 0.1, 0}},
		{Code: "KI-000001", Registry: RegistryKnown, Embedding: []float32{0, 1, 0}},
		{Code: "UP-000003", Registry: RegistryUnidentified, Embedding: []float32{0, 0, 0}}, // zero-norm, skipped
	}
}

func TestHNSWIndexBuildAndSearch(t *testing.T) {
	idx := NewHNSWIndex()
	if err := idx.Build(testCandidates()); err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	// Zero-norm candidate must not be indexed.
	if got := idx.Count(); got != 3 {
		t.Fatalf("Count() = %d, want 3", got)
	}

	results, err := idx.Search([]float32{1, 0, 0}, 2, "")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Search returned %d results, want 2", len(results))
	}
	if results[0].Code != "UP-000001" {
		t.Errorf("nearest neighbor = %s, want UP-000001", results[0].Code)
	}
	if results[0].Registry != RegistryUnidentified {
		t.Errorf("nearest registry = %s, want %s", results[0].Registry, RegistryUnidentified)
	}
}

func TestHNSWIndexExcludesCode(t *testing.T) {
	idx := NewHNSWIndex()
	if err := idx.Build(testCandidates()); err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	results, err := idx.Search([]float32{1, 0, 0}, 3, "UP-000001")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	for _, c := range results {
		if c.Code == "UP-000001" {
			t.Errorf("excluded code UP-000001 appeared in results")
		}
	}
}

func TestHNSWIndexRemove(t *testing.T) {
	idx := NewHNSWIndex()
	if err := idx.Build(testCandidates()); err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	idx.Remove("UP-000002")

	results, err := idx.Search([]float32{0.9, 0.1, 0}, 3, "")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	for _, c := range results {
		if c.Code == "UP-000002" {
			t.Errorf("removed code UP-000002 appeared in results")
		}
	}
}

func TestHNSWIndexSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.hnsw")

	idx := NewHNSWIndex()
	if err := idx.Build(testCandidates()); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if err := idx.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded := NewHNSWIndex()
	if err := loaded.Load(path); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !loaded.Ready() {
		t.Fatal("loaded index should report Ready")
	}
	if got := loaded.Count(); got != 3 {
		t.Errorf("Count() after load = %d, want 3", got)
	}

	results, err := loaded.Search([]float32{1, 0, 0}, 1, "")
	if err != nil {
		t.Fatalf("Search after load failed: %v", err)
	}
	if len(results) != 1 || results[0].Code != "UP-000001" {
		t.Errorf("nearest after load = %+v, want UP-000001", results)
	}
	if results[0].Registry != RegistryUnidentified {
		t.Errorf("registry tag lost across save/load: %s", results[0].Registry)
	}
}

func TestHNSWIndexLoadMissingFile(t *testing.T) {
	idx := NewHNSWIndex()
	if err := idx.Load(filepath.Join(t.TempDir(), "absent.hnsw")); err != nil {
		t.Fatalf("Load of missing file should be a no-op, got %v", err)
	}
	if idx.Ready() {
		t.Error("index should stay empty after loading a missing file")
	}
}

func TestHNSWIndexSaveEmptyRemovesFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.hnsw")

	idx := NewHNSWIndex()
	if err := idx.Build(testCandidates()); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if err := idx.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	empty := NewHNSWIndex()
	if err := empty.Save(path); err != nil {
		t.Fatalf("Save of empty index failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("stale index file should be removed by an empty save")
	}
	if _, err := os.Stat(path + registrySuffix); !os.IsNotExist(err) {
		t.Error("stale registry file should be removed by an empty save")
	}
}

func TestHNSWIndexEmptyBuild(t *testing.T) {
	idx := NewHNSWIndex()
	if err := idx.Build(nil); err != nil {
		t.Fatalf("Build(nil) failed: %v", err)
	}
	if idx.Ready() {
		t.Error("empty index should not report Ready")
	}
	if _, err := idx.Search([]float32{1, 0, 0}, 1, ""); err == nil {
		t.Error("Search on unbuilt index should fail")
	}
}
