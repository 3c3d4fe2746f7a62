package mw

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"

	"laundry-status-exporter/internal/status"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestResponseCache(t *testing.T) {
	calls := 0
	rc := NewResponseCache(time.Minute)
	r := gin.New()
	r.Use(rc.Handler())
	r.GET("/ok", func(c *gin.Context) {
		calls++
		c.JSON(http.StatusOK, gin.H{"calls": calls})
	})
	r.GET("/fail", func(c *gin.Context) {
		calls++
		c.JSON(http.StatusInternalServerError, gin.H{"calls": calls})
	})

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	first := get("/ok")
	second := get("/ok")
	assert.Equal(t, http.StatusOK, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, "application/json; charset=utf-8", second.Header().Get("Content-Type"))
	assert.Equal(t, 1, calls)

	get("/fail")
	get("/fail")
	assert.Equal(t, 3, calls, "error responses are not cached")

	assert.Equal(t, 1, rc.Len())
	assert.NoError(t, rc.Report(context.Background(), "89", map[string]status.MachineStatus{}))
	assert.Equal(t, 0, rc.Len())

	fresh := get("/ok")
	assert.Empty(t, fresh.Header().Get("X-Cache"))
	assert.Equal(t, 4, calls, "a report invalidates cached responses")

	query := get("/ok?location=89")
	assert.Empty(t, query.Header().Get("X-Cache"))
	assert.Equal(t, 5, calls, "the query string is part of the key")
}

func TestResponseCache_KeysRequestsWithoutRequestURI(t *testing.T) {
	rc := NewResponseCache(time.Minute)
	r := gin.New()
	r.Use(rc.Handler())
	r.GET("/a", func(c *gin.Context) { c.String(http.StatusOK, "a") })
	r.GET("/b", func(c *gin.Context) { c.String(http.StatusOK, "b") })

	for _, path := range []string{"/a", "/b", "/a", "/b"} {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, path, nil)
		r.ServeHTTP(w, req)
		assert.Equal(t, path[1:], w.Body.String(), path)
	}
	assert.Equal(t, 2, rc.Len())
}

func TestRateLimiter(t *testing.T) {
	r := gin.New()
	r.Use(RateLimiter(rate.Every(time.Hour), 2))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.2:1234"
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code, "other clients have their own bucket")
}

func TestIPRateLimiter_ReusesLimiter(t *testing.T) {
	l := NewIPRateLimiter(rate.Limit(1), 1)
	assert.Same(t, l.GetLimiter("192.0.2.1"), l.GetLimiter("192.0.2.1"))
	assert.NotSame(t, l.GetLimiter("192.0.2.1"), l.GetLimiter("192.0.2.2"))
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	r.ServeHTTP(w, req)
	generated := w.Header().Get(RequestIDHeader)
	assert.Len(t, generated, 36)
	assert.Equal(t, generated, w.Body.String())

	w = httptest.NewRecorder()
	req.Header.Set(RequestIDHeader, "abc-123")
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}
