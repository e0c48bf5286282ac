package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_CountsByRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics())
	r.GET("/approvals/:id", func(c *gin.Context) { c.String(http.StatusOK, "x") })

	baseRoute := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/approvals/:id", "200"))
	baseMiss := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "unmatched", "404"))

	for _, id := range []string{"a", "b"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/approvals/"+id, nil))
		if w.Code != http.StatusOK {
			t.Fatalf("GET -> %d", w.Code)
		}
	}
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/scan/123", nil))

	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/approvals/:id", "200")); got != baseRoute+2 {
		t.Fatalf("route counter = %v, want %v", got, baseRoute+2)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "unmatched", "404")); got != baseMiss+1 {
		t.Fatalf("unmatched counter = %v, want %v", got, baseMiss+1)
	}
	if got := testutil.ToFloat64(httpInflight); got != 0 {
		t.Fatalf("inflight = %v", got)
	}
	if n := testutil.CollectAndCount(httpLat); n == 0 {
		t.Fatalf("latency histogram empty")
	}
}
