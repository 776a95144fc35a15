package interceptors

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"slicectl/pkg/logger"
	"slicectl/pkg/ratelimit"
)

func init() {
	logger.Init("error")
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func panicHandler(w http.ResponseWriter, r *http.Request) {
	panic("boom")
}

func TestRecovery_NormalRequest(t *testing.T) {
	h := Recovery()(http.HandlerFunc(okHandler))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
}

func TestRecovery_PanicIsConvertedTo500(t *testing.T) {
	h := Recovery()(http.HandlerFunc(panicHandler))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 after panic, got %d", rr.Code)
	}
}

func TestLogging_PassesThroughStatus(t *testing.T) {
	h := Logging()(http.HandlerFunc(okHandler))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/topology", nil))

	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
}

func TestMetrics_PassesThroughStatus(t *testing.T) {
	h := Metrics()(http.HandlerFunc(okHandler))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/topology", nil))

	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
}

func TestRateLimit_AllowsWhenUnderLimit(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(&ratelimit.Config{
		Requests: 10,
		Window:   0,
	})
	defer limiter.Close()

	h := RateLimit(limiter, nil)(http.HandlerFunc(okHandler))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/tunnels", nil))

	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
}

func TestRateLimit_RejectsOverLimit(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(&ratelimit.Config{
		Requests:  1,
		Window:    0,
		BurstSize: 1,
	})
	defer limiter.Close()

	h := RateLimit(limiter, func(r *http.Request) string { return "fixed-key" })(http.HandlerFunc(okHandler))

	req := httptest.NewRequest(http.MethodPost, "/v1/tunnels", nil)

	rr1 := httptest.NewRecorder()
	h.ServeHTTP(rr1, req)

	rr2 := httptest.NewRecorder()
	h.ServeHTTP(rr2, req)

	if rr2.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429 on second request, got %d", rr2.Code)
	}
	if rr2.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("expected X-RateLimit-Remaining=0, got %s", rr2.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestDefaultHTTPKeyExtractor_PrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.5")
	req.RemoteAddr = "10.0.0.1:1234"

	if got := DefaultHTTPKeyExtractor(req); got != "203.0.113.5" {
		t.Errorf("expected forwarded IP, got %s", got)
	}
}

func TestChain_OrdersOutermostFirst(t *testing.T) {
	var order []string

	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(mark("a"), mark("b"))(http.HandlerFunc(okHandler))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Errorf("expected [a b], got %v", order)
	}
}
