package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/garnizeh/contentcrm/pkg/models"
	"github.com/garnizeh/contentcrm/pkg/repository"
)

// Notifications returns the user's notifications, newest first. A limit of
// zero returns all of them.
func (e *Engine) Notifications(ctx context.Context, userID int64, limit int) ([]models.Notification, error) {
	list, err := e.sink.ListNotifications(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications for user %d: %w", userID, err)
	}
	return list, nil
}

func (e *Engine) UnreadCount(ctx context.Context, userID int64) (int64, error) {
	n, err := e.sink.CountUnread(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("count unread for user %d: %w", userID, err)
	}
	return n, nil
}

// MarkRead flags one notification as read. Notifications owned by someone
// else are reported as missing.
func (e *Engine) MarkRead(ctx context.Context, userID, notificationID int64) error {
	err := e.sink.MarkRead(ctx, userID, notificationID)
	if errors.Is(err, repository.ErrNotFound) {
		return reject(ErrNotFound, "notification %d does not exist", notificationID)
	}
	if err != nil {
		return fmt.Errorf("mark notification %d read: %w", notificationID, err)
	}
	return nil
}

func (e *Engine) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	n, err := e.sink.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all read for user %d: %w", userID, err)
	}
	return n, nil
}
