package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMiddlewareRecordsRoutePattern(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/api/scans/:id", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/scans/abc", http.NoBody))
	assert.Equal(t, http.StatusTeapot, rr.Code)

	got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/api/scans/:id", "418"))
	assert.GreaterOrEqual(t, got, 1.0)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nowhere", http.NoBody))
	assert.GreaterOrEqual(t, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "unknown", "404")), 1.0)
}

func TestObserveCall(t *testing.T) {
	before := testutil.ToFloat64(ExternalCallsTotal.WithLabelValues("test", "error"))
	ObserveCall("test", time.Now(), errors.New("boom"))
	ObserveCall("test", time.Now(), nil)
	assert.Equal(t, before+1, testutil.ToFloat64(ExternalCallsTotal.WithLabelValues("test", "error")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(ExternalCallsTotal.WithLabelValues("test", "ok")), 1.0)
}
