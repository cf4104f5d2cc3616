package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/frostdev-ops/meterdash/internal/core/metrics"
	"github.com/frostdev-ops/meterdash/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func perform(r http.Handler, method, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequestIDAndRecovery(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.Options{Output: &buf})

	r := gin.New()
	r.Use(RequestIDMiddleware(), ErrorHandlingMiddleware(log.Logger))
	r.GET("/boom", func(c *gin.Context) { panic("divide by zero") })
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(RequestIDKey)) })

	w := perform(r, http.MethodGet, "/ok", http.Header{RequestIDHeader: []string{"abc-123"}})
	assert.Equal(t, "abc-123", w.Body.String())
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))

	w = perform(r, http.MethodGet, "/ok", nil)
	assert.Len(t, w.Header().Get(RequestIDHeader), 36)

	w = perform(r, http.MethodGet, "/boom", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"success":false`)
	assert.Contains(t, buf.String(), "divide by zero")
}

func TestLoggingMiddlewareBatchesSuccess(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.Options{Output: &buf, BatchSize: 50})

	r := gin.New()
	r.Use(LoggingMiddleware(log))
	r.GET("/api/latest", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/api/historical", func(c *gin.Context) { c.Status(http.StatusBadRequest) })

	perform(r, http.MethodGet, "/api/latest", nil)
	assert.Equal(t, 1, log.Pending())
	assert.Empty(t, buf.String())

	perform(r, http.MethodGet, "/api/historical?startDate=x", nil)
	assert.Contains(t, buf.String(), "/api/historical - Status: 400")
	assert.Contains(t, buf.String(), "startDate=x")
}

func TestMetricsMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewPrometheusCollectorWith(reg, &metrics.MetricsConfig{Enabled: true, Prefix: "test"})

	r := gin.New()
	r.Use(MetricsMiddleware(collector))
	r.GET("/api/readings/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	perform(r, http.MethodGet, "/api/readings/1", nil)
	perform(r, http.MethodGet, "/api/readings/2", nil)
	perform(r, http.MethodGet, "/nope", nil)

	count, err := testutil.GatherAndCount(reg, "test_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "one series per route template")
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	r := gin.New()
	r.Use(rl.RateLimitMiddleware())
	r.GET("/api/latest", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/api/latest", nil).Code)
	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/api/latest", nil).Code)
	w := perform(r, http.MethodGet, "/api/latest", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	now = now.Add(1500 * time.Millisecond)
	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/api/latest", nil).Code)

	now = now.Add(10 * time.Minute)
	rl.sweep()
	assert.Empty(t, rl.visitors)
}

func TestCORSMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(CORSMiddleware([]string{"http://localhost:3000"}))
	r.GET("/api/latest", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := perform(r, http.MethodGet, "/api/latest", http.Header{"Origin": []string{"http://localhost:3000"}})
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	w = perform(r, http.MethodGet, "/api/latest", http.Header{"Origin": []string{"http://evil.example"}})
	assert.Equal(t, http.StatusForbidden, w.Code)

	open := gin.New()
	open.Use(CORSMiddleware(nil))
	open.GET("/api/latest", func(c *gin.Context) { c.Status(http.StatusOK) })
	w = perform(open, http.MethodGet, "/api/latest", http.Header{"Origin": []string{"http://anything.example"}})
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
