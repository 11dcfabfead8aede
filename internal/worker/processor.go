package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/mindstash/internal/metrics"
	"github.com/dharsanguruparan/mindstash/internal/notify"
	"github.com/dharsanguruparan/mindstash/internal/queue"
)

// BlobDeleter is the slice of the blob store the cleanup task needs.
type BlobDeleter interface {
	Delete(ctx context.Context, key string) error
}

// Processor is plugged into the asynq worker loop.
type Processor struct {
	notifications notify.Writer
	blobs         BlobDeleter
}

// NewProcessor constructs a worker processor.
func NewProcessor(notifications notify.Writer, blobs BlobDeleter) *Processor {
	return &Processor{notifications: notifications, blobs: blobs}
}

// Handler registers the task handlers.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.DeliverNotificationTask, p.handleNotification)
	mux.HandleFunc(queue.CleanupBlobTask, p.handleCleanup)
	return mux
}

func (p *Processor) handleNotification(ctx context.Context, task *asynq.Task) error {
	var payload queue.NotificationPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %w: %w", err, asynq.SkipRetry)
	}
	if err := notify.Deliver(ctx, p.notifications, payload.Notification()); err != nil {
		log.WithError(err).WithField("notification_id", payload.ID).Warn("notification write failed, will retry")
		return err
	}
	return nil
}

func (p *Processor) handleCleanup(ctx context.Context, task *asynq.Task) error {
	var payload queue.CleanupPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %w: %w", err, asynq.SkipRetry)
	}
	fields := log.Fields{"file_ref": payload.FileRef, "material_id": payload.MaterialID}
	err := p.blobs.Delete(ctx, payload.FileRef)
	metrics.BlobOperations.WithLabelValues("cleanup", metrics.Result(err)).Inc()
	if err != nil {
		log.WithError(err).WithFields(fields).Error("orphan cleanup failed, will retry")
		return err
	}
	log.WithFields(fields).Info("orphan blob removed")
	return nil
}
