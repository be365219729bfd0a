package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthCheck(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()

	HealthCheck(rec, req)

	assertStatusCode(t, rec, http.StatusOK)

	var resp map[string]string
	parseJSONResponse(t, rec, &resp)
	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got '%s'", resp["status"])
	}
}

func TestRespondError(t *testing.T) {
	rec := httptest.NewRecorder()
	respondError(rec, http.StatusTeapot, "kettle only")

	assertStatusCode(t, rec, http.StatusTeapot)
	assertJSONError(t, rec, "kettle only")

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON content type, got '%s'", ct)
	}
}

func TestSanitizeForLog(t *testing.T) {
	got := sanitizeForLog("UP-000001\r\nfake log line")
	if got != "UP-000001fake log line" {
		t.Errorf("expected newlines stripped, got '%s'", got)
	}
}
