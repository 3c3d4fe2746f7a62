package mw

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"

	"laundry-status-exporter/internal/status"
)

type cachedResponse struct {
	status  int
	headers http.Header
	body    []byte
}

type recordingWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w recordingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w recordingWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// ResponseCache keeps successful GET responses for at most ttl, and drops all
// of them whenever a poll reports fresh machine statuses.
type ResponseCache struct {
	entries *cache.Cache
	ttl     time.Duration
}

func NewResponseCache(ttl time.Duration) *ResponseCache {
	return &ResponseCache{entries: cache.New(ttl, 2*ttl), ttl: ttl}
}

// Report satisfies the poller's sink interface.
func (rc *ResponseCache) Report(context.Context, string, map[string]status.MachineStatus) error {
	rc.entries.Flush()
	return nil
}

// Len returns the number of cached responses, expired ones included.
func (rc *ResponseCache) Len() int { return rc.entries.ItemCount() }

// Handler serves repeated GETs of the same URI from the cache. Hits carry an
// X-Cache: HIT header. Only 2xx responses are stored.
func (rc *ResponseCache) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := c.Request.Method + " " + c.Request.URL.String()
		if v, found := rc.entries.Get(key); found {
			hit := v.(cachedResponse)
			for k, vals := range hit.headers {
				c.Writer.Header()[k] = vals
			}
			c.Header("X-Cache", "HIT")
			c.Writer.WriteHeader(hit.status)
			_, _ = c.Writer.Write(hit.body)
			c.Abort()
			return
		}

		rw := &recordingWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = rw
		c.Next()

		if code := rw.Status(); code >= http.StatusOK && code < http.StatusMultipleChoices {
			rc.entries.Set(key, cachedResponse{
				status:  code,
				headers: rw.Header().Clone(),
				body:    rw.body.Bytes(),
			}, rc.ttl)
		}
	}
}
