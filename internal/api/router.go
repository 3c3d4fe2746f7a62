package api

import (
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"laundry-status-exporter/config"
	"laundry-status-exporter/internal/mw"
	"laundry-status-exporter/internal/store"
)

// NewRouter serves the Prometheus metrics of gatherer on /metrics. When s is
// not nil it also serves the machine and push subscription API, with machine
// listings cached in responses when that is not nil. Every other path
// redirects to /metrics.
func NewRouter(cfg config.ServerConfig, gatherer prometheus.Gatherer, s store.Store, webpushOptions *webpush.Options, responses *mw.ResponseCache) *gin.Engine {
	r := gin.Default()
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:  cfg.AllowedOrigins,
			AllowMethods:  []string{http.MethodGet, http.MethodPut, http.MethodDelete},
			AllowHeaders:  []string{"Origin", "Content-Type", mw.RequestIDHeader},
			ExposeHeaders: []string{mw.RequestIDHeader, "X-Cache"},
			MaxAge:        12 * time.Hour,
		}))
	}

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	r.NoRoute(func(c *gin.Context) {
		c.Redirect(http.StatusSeeOther, "/metrics")
	})

	if s == nil {
		return r
	}

	handler := NewHandler(s, webpushOptions)
	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	caching := func(c *gin.Context) { c.Next() }
	if responses != nil {
		caching = responses.Handler()
	}

	api := r.Group("/api")
	api.Use(mw.RequestID())
	api.Use(rateLimiter)
	{
		api.GET("/machines", caching, handler.GetMachines)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
