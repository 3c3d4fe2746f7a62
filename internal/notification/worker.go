package notification

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"laundry-status-exporter/config"
	"laundry-status-exporter/internal/model"
)

const queueSize = 64

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// NewWebPushOptions builds the VAPID options from the push configuration.
func NewWebPushOptions(cfg config.PushConfig) *webpush.Options {
	return &webpush.Options{
		VAPIDPublicKey:  cfg.PublicKey,
		VAPIDPrivateKey: cfg.PrivateKey,
		Subscriber:      cfg.Subject,
		TTL:             cfg.TTL,
	}
}

// WorkerPool sends "machine available" notifications to the subscribers of
// machines that became idle.
type WorkerPool struct {
	size    int
	jobs    chan int64
	db      *gorm.DB
	webpush *webpush.Options
	sender  NotificationSender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan int64, queueSize),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// Start launches the worker goroutines. They stop when ctx is done.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	slog.Debug("notification worker started", "worker", id)
	for {
		select {
		case machineID := <-wp.jobs:
			slog.Debug("notification worker processing machine", "worker", id, "machine_id", machineID)
			wp.sendNotificationsForMachine(ctx, machineID)
		case <-ctx.Done():
			slog.Debug("notification worker shutting down", "worker", id)
			return
		}
	}
}

// Dispatch queues a machine for notification. It never blocks the poller:
// when the queue is full the job is dropped.
func (wp *WorkerPool) Dispatch(machineID int64) {
	select {
	case wp.jobs <- machineID:
	default:
		slog.Warn("notification queue is full, dropping job", "machine_id", machineID)
	}
}

// sendNotificationsForMachine fetches subscriptions and sends notifications for a given machine.
func (wp *WorkerPool) sendNotificationsForMachine(ctx context.Context, machineID int64) {
	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Joins("JOIN subscription_machine_mapping smm ON smm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("smm.machine_id = ?", machineID).
		Find(&subscriptions).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to fetch subscriptions", "machine_id", machineID, "err", err)
		return
	}

	if len(subscriptions) == 0 {
		return
	}

	slog.InfoContext(ctx, "sending notifications", "machine_id", machineID, "subscriptions", len(subscriptions))

	var machine model.Machine
	machineLabel := fmt.Sprintf("%d", machineID)
	if err := wp.db.WithContext(ctx).
		Select("name").
		First(&machine, machineID).Error; err != nil {
		slog.WarnContext(ctx, "failed to fetch machine", "machine_id", machineID, "err", err)
	} else if machine.Name != "" {
		machineLabel = machine.Name
	}

	message := fmt.Sprintf("Machine %s is now available", machineLabel)
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, []byte(message))
	}
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		slog.WarnContext(ctx, "failed to send notification", "endpoint", sub.Endpoint, "err", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		slog.InfoContext(ctx, "subscription expired, deleting", "endpoint", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Select("Machines").Delete(&sub).Error; err != nil {
			slog.ErrorContext(ctx, "failed to delete expired subscription", "endpoint", sub.Endpoint, "err", err)
		}
	}
}
