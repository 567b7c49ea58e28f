package sessiontimer

import (
	"context"
	"errors"
	"time"
)

// ErrPermissionDenied indicates the user has not allowed local notifications.
var ErrPermissionDenied = errors.New("notification permission denied")

// Notification is the content of a scheduled local notification.
type Notification struct {
	Title string
	Body  string
}

// CompletionNotification announces that a focus session has ended.
var CompletionNotification = Notification{
	Title: "Time's up!",
	Body:  "Your focus session has ended.",
}

// Notifier schedules local notifications. Delivery is best-effort.
type Notifier interface {
	Schedule(ctx context.Context, after time.Duration, notification Notification) error
	CancelAll(ctx context.Context) error
}
