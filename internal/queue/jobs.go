// Package queue defines the asynq tasks shared by the API and the worker.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/mindstash/internal/model"
	"github.com/dharsanguruparan/mindstash/internal/notify"
)

const (
	// DeliverNotificationTask writes one notification row.
	DeliverNotificationTask = "notification:deliver"
	// CleanupBlobTask deletes a blob orphaned by a failed create compensation.
	CleanupBlobTask = "blob:cleanup"
)

// NotificationPayload carries the full record, id included, so redelivery
// hits the same row.
type NotificationPayload struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	Message           string    `json:"message"`
	RelatedMaterialID *string   `json:"related_material_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// Notification converts the payload back into a record.
func (p NotificationPayload) Notification() *model.Notification {
	return &model.Notification{
		ID:                p.ID,
		UserID:            p.UserID,
		Message:           p.Message,
		RelatedMaterialID: p.RelatedMaterialID,
		CreatedAt:         p.CreatedAt,
	}
}

// CleanupPayload names the orphaned object.
type CleanupPayload struct {
	FileRef    string `json:"file_ref"`
	MaterialID string `json:"material_id"`
}

// EnqueueNotification enqueues a notification write.
func EnqueueNotification(ctx context.Context, client *asynq.Client, n *model.Notification) error {
	data, err := json.Marshal(NotificationPayload{
		ID:                n.ID,
		UserID:            n.UserID,
		Message:           n.Message,
		RelatedMaterialID: n.RelatedMaterialID,
		CreatedAt:         n.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(DeliverNotificationTask, data)
	if _, err := client.EnqueueContext(ctx, task, asynq.MaxRetry(10)); err != nil {
		return fmt.Errorf("enqueue notification task: %w", err)
	}
	return nil
}

// EnqueueCleanup enqueues a delete of an orphaned blob.
func EnqueueCleanup(ctx context.Context, client *asynq.Client, payload CleanupPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(CleanupBlobTask, data)
	if _, err := client.EnqueueContext(ctx, task, asynq.MaxRetry(25)); err != nil {
		return fmt.Errorf("enqueue cleanup task: %w", err)
	}
	return nil
}

// Dispatcher hands notifications to the worker through asynq. If the broker
// rejects a task the write falls back to the datastore directly.
type Dispatcher struct {
	client   *asynq.Client
	fallback notify.Writer
}

// NewDispatcher constructs a Dispatcher. fallback may be nil.
func NewDispatcher(client *asynq.Client, fallback notify.Writer) *Dispatcher {
	return &Dispatcher{client: client, fallback: fallback}
}

func (d *Dispatcher) Notify(ctx context.Context, userID, message string, relatedMaterialID *string) {
	n := notify.New(userID, message, relatedMaterialID)
	err := EnqueueNotification(ctx, d.client, n)
	if err == nil {
		return
	}
	entry := log.WithError(err).WithFields(log.Fields{"user_id": userID, "notification_id": n.ID})
	if d.fallback == nil {
		entry.Warn("notification dropped")
		return
	}
	entry.Warn("enqueue failed, delivering inline")
	if err := notify.Deliver(context.WithoutCancel(ctx), d.fallback, n); err != nil {
		log.WithError(err).WithField("notification_id", n.ID).Warn("notification delivery failed")
	}
}

// CleanupEnqueuer schedules out-of-band deletes of orphaned blobs.
type CleanupEnqueuer struct {
	client *asynq.Client
}

// NewCleanupEnqueuer constructs a CleanupEnqueuer.
func NewCleanupEnqueuer(client *asynq.Client) *CleanupEnqueuer {
	return &CleanupEnqueuer{client: client}
}

// EnqueueOrphan schedules a delete of fileRef.
func (e *CleanupEnqueuer) EnqueueOrphan(ctx context.Context, materialID, fileRef string) error {
	return EnqueueCleanup(ctx, e.client, CleanupPayload{FileRef: fileRef, MaterialID: materialID})
}
