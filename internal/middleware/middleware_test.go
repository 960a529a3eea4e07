package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"xdp-service/internal/domain"
	"xdp-service/internal/protocol"
)

func callerEcho(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := CallerIdentity(r.Context())
		if !ok {
			t.Error("caller missing from context")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(caller.Identity()))
	})
}

func TestAuthenticate(t *testing.T) {
	signer := protocol.NewTokenSigner([]byte("test-secret"), "HOST01")
	token, err := signer.Issue(domain.Principal{SID: "S-1-5-21-200-1102", Name: "dave", Context: "CORP"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	other, err := protocol.NewTokenSigner([]byte("other-secret"), "HOST02").Issue(domain.Principal{SID: "S-1-5-21-200-1102"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{"valid token", "Bearer " + token, http.StatusOK, `CORP\dave`},
		{"missing header", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized, ""},
		{"wrong secret", "Bearer " + other, http.StatusUnauthorized, ""},
		{"garbage", "Bearer not-a-token", http.StatusUnauthorized, ""},
	}

	h := Authenticate(signer)(callerEcho(t))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, protocol.MessagePath, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("want status %d, got %d", tt.wantStatus, rec.Code)
			}
			if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
				t.Errorf("want body %q, got %q", tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestCallerLimiter_Allow(t *testing.T) {
	l := newCallerLimiter(rate.Limit(2), 2, time.Minute)
	if !l.allow("a") {
		t.Fatal("first allow should pass")
	}
	if !l.allow("a") {
		t.Fatal("second allow should pass")
	}
	if l.allow("a") {
		t.Fatal("third allow should be rate limited")
	}
	if !l.allow("b") {
		t.Fatal("other key should have its own bucket")
	}
}

func TestRateLimit_PerCaller(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := RateLimit(1, 1)(next)

	send := func(sid string) int {
		req := httptest.NewRequest(http.MethodPost, protocol.MessagePath, nil)
		req = req.WithContext(protocol.WithCaller(context.Background(), domain.Principal{SID: sid}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send("S-1-5-21-1"); code != http.StatusOK {
		t.Errorf("want 200, got %d", code)
	}
	if code := send("S-1-5-21-1"); code != http.StatusTooManyRequests {
		t.Errorf("want 429, got %d", code)
	}
	if code := send("S-1-5-21-2"); code != http.StatusOK {
		t.Errorf("want 200 for another caller, got %d", code)
	}
}

func TestRateLimit_Disabled(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := RateLimit(0, 0)(next)
	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, protocol.MessagePath, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: want 200, got %d", i, rec.Code)
		}
	}
}
