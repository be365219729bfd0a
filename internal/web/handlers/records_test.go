package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/database/mock"
)

func seedRecordsStore() *mock.Store {
	store := mock.NewStore()
	store.AddRecord(database.IdentityRecord{
		Code:      "UP-000001",
		Registry:  database.RegistryUnidentified,
		Embedding: primaryVec(1),
		Status:    database.StatusActive,
	})
	store.AddRecord(database.IdentityRecord{
		Code:      "KI-000001",
		Registry:  database.RegistryKnown,
		Name:      "Jan Novák",
		Embedding: primaryVec(0, 1),
		Status:    database.StatusActive,
	})
	return store
}

func TestRecordsList(t *testing.T) {
	store := seedRecordsStore()
	h := NewRecordsHandler(store, database.NewHNSWIndex())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/records", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	assertStatusCode(t, rec, http.StatusOK)

	var resp struct {
		Records []database.IdentityRecord `json:"records"`
		Count   int                       `json:"count"`
	}
	parseJSONResponse(t, rec, &resp)
	if resp.Count != 2 {
		t.Errorf("expected 2 records, got %d", resp.Count)
	}
}

func TestRecordsList_RegistryFilter(t *testing.T) {
	store := seedRecordsStore()
	h := NewRecordsHandler(store, database.NewHNSWIndex())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/records?registry=known", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	assertStatusCode(t, rec, http.StatusOK)

	var resp struct {
		Records []database.IdentityRecord `json:"records"`
	}
	parseJSONResponse(t, rec, &resp)
	if len(resp.Records) != 1 || resp.Records[0].Code != "KI-000001" {
		t.Errorf("expected only the known record, got %+v", resp.Records)
	}
}

func TestRecordsList_UnknownRegistry(t *testing.T) {
	h := NewRecordsHandler(seedRecordsStore(), database.NewHNSWIndex())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/records?registry=bogus", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	assertStatusCode(t, rec, http.StatusBadRequest)
	assertJSONError(t, rec, "unknown registry")
}

func TestRecordsGet(t *testing.T) {
	h := NewRecordsHandler(seedRecordsStore(), database.NewHNSWIndex())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/records/UP-000001", nil)
	req = requestWithChiParams(req, map[string]string{"code": "UP-000001"})
	rec := httptest.NewRecorder()
	h.Get(rec, req)

	assertStatusCode(t, rec, http.StatusOK)

	var record database.IdentityRecord
	parseJSONResponse(t, rec, &record)
	if record.Code != "UP-000001" {
		t.Errorf("expected UP-000001, got %s", record.Code)
	}
}

func TestRecordsGet_NotFound(t *testing.T) {
	h := NewRecordsHandler(seedRecordsStore(), database.NewHNSWIndex())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/records/UP-999999", nil)
	req = requestWithChiParams(req, map[string]string{"code": "UP-999999"})
	rec := httptest.NewRecorder()
	h.Get(rec, req)

	assertStatusCode(t, rec, http.StatusNotFound)
	assertJSONError(t, rec, "record not found")
}

func TestRecordsFindByName(t *testing.T) {
	h := NewRecordsHandler(seedRecordsStore(), database.NewHNSWIndex())

	// Stripped diacritics and different case still match.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/identities?name=jan-novak", nil)
	rec := httptest.NewRecorder()
	h.FindByName(rec, req)

	assertStatusCode(t, rec, http.StatusOK)

	var resp struct {
		Records []database.IdentityRecord `json:"records"`
	}
	parseJSONResponse(t, rec, &resp)
	if len(resp.Records) != 1 || resp.Records[0].Code != "KI-000001" {
		t.Errorf("expected KI-000001, got %+v", resp.Records)
	}
}

func TestRecordsFindByName_MissingName(t *testing.T) {
	h := NewRecordsHandler(seedRecordsStore(), database.NewHNSWIndex())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/identities", nil)
	rec := httptest.NewRecorder()
	h.FindByName(rec, req)

	assertStatusCode(t, rec, http.StatusBadRequest)
}

func TestRecordsArchive(t *testing.T) {
	store := seedRecordsStore()
	h := NewRecordsHandler(store, database.NewHNSWIndex())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/records/UP-000001/archive", nil)
	req = requestWithChiParams(req, map[string]string{"code": "UP-000001"})
	rec := httptest.NewRecorder()
	h.Archive(rec, req)

	assertStatusCode(t, rec, http.StatusOK)

	got, err := store.GetRecord(req.Context(), "UP-000001")
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if got.Status != database.StatusArchived {
		t.Errorf("expected archived status, got %s", got.Status)
	}
}

func TestRecordsResolve(t *testing.T) {
	store := seedRecordsStore()
	h := NewRecordsHandler(store, database.NewHNSWIndex())

	body := bytes.NewBufferString(`{"into": "KI-000001"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/records/UP-000001/resolve", body)
	req = requestWithChiParams(req, map[string]string{"code": "UP-000001"})
	rec := httptest.NewRecorder()
	h.Resolve(rec, req)

	assertStatusCode(t, rec, http.StatusOK)

	got, err := store.GetRecord(req.Context(), "UP-000001")
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if got.Status != database.StatusResolved {
		t.Errorf("expected resolved status, got %s", got.Status)
	}
	if got.ResolvedInto != "KI-000001" {
		t.Errorf("expected resolved_into KI-000001, got %s", got.ResolvedInto)
	}
}

func TestRecordsResolve_TargetMustBeKnown(t *testing.T) {
	store := seedRecordsStore()
	store.AddRecord(database.IdentityRecord{
		Code:      "UP-000002",
		Registry:  database.RegistryUnidentified,
		Embedding: primaryVec(0, 0, 1),
		Status:    database.StatusActive,
	})
	h := NewRecordsHandler(store, database.NewHNSWIndex())

	body := bytes.NewBufferString(`{"into": "UP-000002"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/records/UP-000001/resolve", body)
	req = requestWithChiParams(req, map[string]string{"code": "UP-000001"})
	rec := httptest.NewRecorder()
	h.Resolve(rec, req)

	assertStatusCode(t, rec, http.StatusBadRequest)
	assertJSONError(t, rec, "target must be a known identity")
}

func TestRecordsDelete(t *testing.T) {
	store := seedRecordsStore()
	h := NewRecordsHandler(store, database.NewHNSWIndex())

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/records/UP-000001", nil)
	req = requestWithChiParams(req, map[string]string{"code": "UP-000001"})
	rec := httptest.NewRecorder()
	h.Delete(rec, req)

	assertStatusCode(t, rec, http.StatusOK)

	if _, err := store.GetRecord(req.Context(), "UP-000001"); err == nil {
		t.Error("expected record to be gone after delete")
	}
}

func TestRecordsMatches(t *testing.T) {
	store := seedRecordsStore()
	store.UpsertEdge(t.Context(), database.MatchEdge{
		SourceCode:     "UP-000001",
		TargetCode:     "KI-000001",
		TargetRegistry: database.RegistryKnown,
		Distance:       0.63,
		Strict:         true,
		Weak:           true,
	})
	h := NewRecordsHandler(store, database.NewHNSWIndex())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/records/UP-000001/matches", nil)
	req = requestWithChiParams(req, map[string]string{"code": "UP-000001"})
	rec := httptest.NewRecorder()
	h.Matches(rec, req)

	assertStatusCode(t, rec, http.StatusOK)

	var resp struct {
		Edges []database.MatchEdge `json:"edges"`
		Count int                  `json:"count"`
	}
	parseJSONResponse(t, rec, &resp)
	if resp.Count != 1 || resp.Edges[0].TargetCode != "KI-000001" {
		t.Errorf("unexpected edges: %+v", resp.Edges)
	}
}

func TestRecordsMatchedBy(t *testing.T) {
	store := seedRecordsStore()
	store.UpsertEdge(t.Context(), database.MatchEdge{
		SourceCode:     "UP-000001",
		TargetCode:     "KI-000001",
		TargetRegistry: database.RegistryKnown,
		Distance:       0.63,
		Weak:           true,
	})
	h := NewRecordsHandler(store, database.NewHNSWIndex())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/records/KI-000001/matched-by", nil)
	req = requestWithChiParams(req, map[string]string{"code": "KI-000001"})
	rec := httptest.NewRecorder()
	h.MatchedBy(rec, req)

	assertStatusCode(t, rec, http.StatusOK)

	var resp struct {
		Edges []database.MatchEdge `json:"edges"`
	}
	parseJSONResponse(t, rec, &resp)
	if len(resp.Edges) != 1 || resp.Edges[0].SourceCode != "UP-000001" {
		t.Errorf("unexpected reverse edges: %+v", resp.Edges)
	}
}

func TestRecordsMatchedBy_NotFound(t *testing.T) {
	h := NewRecordsHandler(seedRecordsStore(), database.NewHNSWIndex())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/records/UP-999999/matched-by", nil)
	req = requestWithChiParams(req, map[string]string{"code": "UP-999999"})
	rec := httptest.NewRecorder()
	h.MatchedBy(rec, req)

	assertStatusCode(t, rec, http.StatusNotFound)
}
