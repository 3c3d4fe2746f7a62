package api

import (
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"

	"laundry-status-exporter/internal/store"
)

// Handler serves the machine listing and the push subscription endpoints
// from the store the poller writes to.
type Handler struct {
	store   store.Store
	webpush *webpush.Options
}

func NewHandler(s store.Store, webpushOptions *webpush.Options) *Handler {
	return &Handler{store: s, webpush: webpushOptions}
}

func (h *Handler) pushEnabled() bool {
	return h.webpush != nil && h.webpush.VAPIDPublicKey != ""
}

// GetVAPIDPublicKey hands browsers the application server key they need to
// create a push subscription, and how long notifications are kept.
func (h *Handler) GetVAPIDPublicKey(c *gin.Context) {
	if !h.pushEnabled() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "vapid keys are not configured"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"public_key":  h.webpush.VAPIDPublicKey,
		"ttl_seconds": h.webpush.TTL,
	})
}
