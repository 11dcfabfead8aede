// Package notify is the Notification Dispatcher. Callers fire and forget:
// Notify has no return value, and a failed delivery is logged and counted but
// never surfaces to the action that triggered it.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/mindstash/internal/access"
	"github.com/dharsanguruparan/mindstash/internal/metrics"
	"github.com/dharsanguruparan/mindstash/internal/model"
)

// Dispatcher delivers a user-facing message.
type Dispatcher interface {
	Notify(ctx context.Context, userID, message string, relatedMaterialID *string)
}

// Writer persists notifications. Inserts must be idempotent on ID so a
// redelivered notification never shows up twice.
type Writer interface {
	InsertNotification(ctx context.Context, n *model.Notification) error
}

// Store is the datastore surface the read path needs.
type Store interface {
	Writer
	ListNotifications(ctx context.Context, userID string) ([]model.Notification, error)
	MarkNotificationsSeen(ctx context.Context, userID string) (int64, error)
}

// New builds an unseen notification with a fresh id. The id is fixed here,
// before any queueing, so every redelivery writes the same row.
func New(userID, message string, relatedMaterialID *string) *model.Notification {
	return &model.Notification{
		ID:                uuid.NewString(),
		UserID:            userID,
		Message:           message,
		RelatedMaterialID: relatedMaterialID,
		CreatedAt:         time.Now().UTC(),
	}
}

// Deliver writes n and records the outcome.
func Deliver(ctx context.Context, w Writer, n *model.Notification) error {
	err := w.InsertNotification(ctx, n)
	metrics.Notifications.WithLabelValues(metrics.Result(err)).Inc()
	return err
}

// Inline writes notifications synchronously on the caller's goroutine.
type Inline struct {
	w Writer
}

// NewInline returns a Dispatcher that writes straight to w.
func NewInline(w Writer) *Inline {
	return &Inline{w: w}
}

func (d *Inline) Notify(ctx context.Context, userID, message string, relatedMaterialID *string) {
	n := New(userID, message, relatedMaterialID)
	if err := Deliver(ctx, d.w, n); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"user_id":         userID,
			"notification_id": n.ID,
		}).Warn("notification delivery failed")
	}
}

// Service is the read side: listing and marking seen.
type Service struct {
	store Store
}

// NewService constructs a Service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// List returns the actor's notifications, newest first.
func (s *Service) List(ctx context.Context, actor access.Actor) ([]model.Notification, error) {
	if err := access.Check(actor, access.Reader); err != nil {
		return nil, err
	}
	return s.store.ListNotifications(ctx, actor.UserID)
}

// MarkSeen flips every unseen notification of the actor. Repeating it is a
// no-op that reports zero.
func (s *Service) MarkSeen(ctx context.Context, actor access.Actor) (int64, error) {
	if err := access.Check(actor, access.Reader); err != nil {
		return 0, err
	}
	return s.store.MarkNotificationsSeen(ctx, actor.UserID)
}
