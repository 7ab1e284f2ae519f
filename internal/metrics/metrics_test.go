package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestGinMiddlewareObservesRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware())
	r.GET("/tables/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	before := testutil.CollectAndCount(HTTPRequestDuration)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tables/42", nil))

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d", w.Code)
	}
	if after := testutil.CollectAndCount(HTTPRequestDuration); after != before+1 {
		t.Errorf("expected a new series for the route template, had %d now %d", before, after)
	}
}

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(StockPostingsTotal.WithLabelValues("in"))
	StockPostingsTotal.WithLabelValues("in").Inc()
	if got := testutil.ToFloat64(StockPostingsTotal.WithLabelValues("in")); got != before+1 {
		t.Errorf("counter = %v, want %v", got, before+1)
	}
}
