package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/dharsanguruparan/mindstash/internal/model"
)

// InsertNotification stores n. Redelivery of the same notification id is a
// no-op, which is what makes queued delivery safe to retry.
func (s *Store) InsertNotification(ctx context.Context, n *model.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (id, user_id, message, related_material_id, seen, created_at)
		VALUES ($1,$2,$3,$4,FALSE,$5)
		ON CONFLICT (id) DO NOTHING
	`, n.ID, n.UserID, n.Message, n.RelatedMaterialID, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListNotifications returns a user's notifications, newest first.
func (s *Store) ListNotifications(ctx context.Context, userID string) ([]model.Notification, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, message, related_material_id, seen, created_at
		FROM notifications WHERE user_id=$1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("select notifications: %w", err)
	}
	defer rows.Close()
	out := make([]model.Notification, 0)
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Message, &n.RelatedMaterialID, &n.Seen, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkNotificationsSeen flips seen on every unseen notification of userID.
func (s *Store) MarkNotificationsSeen(ctx context.Context, userID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE notifications SET seen=TRUE WHERE user_id=$1 AND NOT seen`, userID)
	if err != nil {
		return 0, fmt.Errorf("mark notifications seen: %w", err)
	}
	return tag.RowsAffected(), nil
}
