package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"laundry-status-exporter/internal/model"
)

var errUnknownMachine = errors.New("unknown machine id")

type putSubscriptionRequest struct {
	Endpoint           string  `json:"endpoint" binding:"required"`
	P256DH             string  `json:"p256dh" binding:"required"`
	Auth               string  `json:"auth" binding:"required"`
	SubscribedMachines []int64 `json:"subscribed_machines"`
}

// PutSubscription creates or replaces a subscription and the set of machines
// it follows.
func (h *Handler) PutSubscription(c *gin.Context) {
	var req putSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	subscription := model.PushSubscription{
		Endpoint: req.Endpoint,
		P256DH:   req.P256DH,
		Auth:     req.Auth,
	}
	wanted := uniqueIDs(req.SubscribedMachines)

	err := h.store.DB().WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "endpoint"}},
			DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth", "updated_at"}),
		}).Create(&subscription).Error; err != nil {
			return err
		}

		machines := make([]model.Machine, 0, len(wanted))
		if len(wanted) > 0 {
			if err := tx.Find(&machines, wanted).Error; err != nil {
				return err
			}
			if len(machines) != len(wanted) {
				return errUnknownMachine
			}
		}

		return tx.Model(&subscription).Association("Machines").Replace(&machines)
	})

	if errors.Is(err, errUnknownMachine) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		slog.ErrorContext(c.Request.Context(), "failed to save subscription", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save subscription"})
		return
	}

	c.Status(http.StatusCreated)
}

type deleteSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// DeleteSubscription removes a subscription.
func (h *Handler) DeleteSubscription(c *gin.Context) {
	var req deleteSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	subscription := model.PushSubscription{Endpoint: req.Endpoint}
	if err := h.store.DB().WithContext(c.Request.Context()).Select("Machines").Delete(&subscription).Error; err != nil {
		slog.ErrorContext(c.Request.Context(), "failed to delete subscription", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete subscription"})
		return
	}

	c.Status(http.StatusNoContent)
}

// rawQueryParam returns key's value without URL decoding. Push endpoints are
// compared byte for byte with what the browser registered.
func rawQueryParam(rawQuery, key string) (string, bool) {
	for _, kv := range strings.Split(rawQuery, "&") {
		if v, ok := strings.CutPrefix(kv, key+"="); ok {
			return v, true
		}
	}
	return "", false
}

// GetSubscription returns the machine ids a subscription follows.
func (h *Handler) GetSubscription(c *gin.Context) {
	raw, ok := rawQueryParam(c.Request.URL.RawQuery, "endpoint")
	if !ok || raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "endpoint is required"})
		return
	}

	var subscription model.PushSubscription
	err := h.store.DB().WithContext(c.Request.Context()).Preload("Machines").First(&subscription, "endpoint = ?", raw).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
		return
	}
	if err != nil {
		slog.ErrorContext(c.Request.Context(), "failed to load subscription", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load subscription"})
		return
	}

	machineIDs := make([]int64, len(subscription.Machines))
	for i, machine := range subscription.Machines {
		machineIDs[i] = machine.ID
	}

	c.JSON(http.StatusOK, gin.H{"subscribed_machines": machineIDs})
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
