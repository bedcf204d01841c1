package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"campusride/internal/http/middleware"
	"campusride/internal/observability"
)

func newTestRouter(log *zap.Logger, m *observability.Metrics) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Logging(log), middleware.Metrics(m), middleware.Recovery(log))
	r.GET("/rides/:id", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"request_id": middleware.RequestIDFrom(c)})
	})
	r.GET("/boom", func(*gin.Context) { panic("boom") })
	return r
}

func TestRequestIDIsEchoedOrMinted(t *testing.T) {
	r := newTestRouter(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/rides/r1", nil)
	req.Header.Set(middleware.RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get(middleware.RequestIDHeader); got != "abc-123" {
		t.Fatalf("request id = %q", got)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rides/r1", nil))
	if got := w.Header().Get(middleware.RequestIDHeader); len(got) != 36 {
		t.Fatalf("minted request id = %q", got)
	}
}

func TestRecoveryLogsPanic(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r := newTestRouter(zap.New(core), nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	if logs.FilterMessage("panic serving request").Len() != 1 {
		t.Fatalf("panic not logged: %v", logs.All())
	}
	if logs.FilterMessage("http request").Len() != 1 {
		t.Fatalf("request not logged: %v", logs.All())
	}
}

func TestMetricsUseRouteTemplate(t *testing.T) {
	m := observability.New()
	r := newTestRouter(nil, m)
	for _, id := range []string{"a", "b", "c"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/rides/"+id, nil))
	}
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/rides/:id", "200")); got != 3 {
		t.Fatalf("route counter = %v", got)
	}
	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "unmatched", "404")); got != 1 {
		t.Fatalf("unmatched counter = %v", got)
	}
}
