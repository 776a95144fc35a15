package interceptors

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequestID_GeneratesWhenAbsent(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if seen == "" {
		t.Fatal("expected a generated request ID in context")
	}
	if rr.Header().Get(requestIDHeader) != seen {
		t.Errorf("expected response header to echo %q, got %q", seen, rr.Header().Get(requestIDHeader))
	}
}

func TestRequestID_ReusesIncomingHeader(t *testing.T) {
	h := RequestID()(http.HandlerFunc(okHandler))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "fixed-id")

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Header().Get(requestIDHeader) != "fixed-id" {
		t.Errorf("expected incoming request ID to be preserved, got %q", rr.Header().Get(requestIDHeader))
	}
}
