package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestError(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("want status 401, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("want application/json, got %s", ct)
	}
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Code != "UNAUTHORIZED" || resp.Message != "missing bearer token" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestXML(t *testing.T) {
	rec := httptest.NewRecorder()
	XML(rec, http.StatusOK, []byte("<XDPResponseDecryptionKey/>"))

	if rec.Code != http.StatusOK {
		t.Errorf("want status 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/xml; charset=utf-8" {
		t.Errorf("want application/xml, got %s", ct)
	}
	if rec.Body.String() != "<XDPResponseDecryptionKey/>" {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}
