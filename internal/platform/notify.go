package platform

import (
	"context"
	"sync"
	"time"

	"fyne.io/fyne/v2"

	"catcafe/internal/core/sessiontimer"
)

// NotificationSender delivers a notification immediately. fyne.App
// satisfies it.
type NotificationSender interface {
	SendNotification(notification *fyne.Notification)
}

// Notifier schedules desktop notifications in-process. Pending
// notifications do not survive a restart; the timer reschedules them when it
// reconciles.
type Notifier struct {
	sender NotificationSender
	// do runs delivery on the UI goroutine.
	do func(func())

	mu      sync.Mutex
	pending map[*time.Timer]struct{}
}

// NewNotifier creates a notifier sending through sender.
func NewNotifier(sender NotificationSender) *Notifier {
	return &Notifier{
		sender:  sender,
		do:      fyne.Do,
		pending: make(map[*time.Timer]struct{}),
	}
}

// Schedule delivers notification after the delay.
func (notifier *Notifier) Schedule(ctx context.Context, after time.Duration, notification sessiontimer.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if after <= 0 {
		notifier.Send(notification)
		return nil
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	var timer *time.Timer
	timer = time.AfterFunc(after, func() {
		notifier.mu.Lock()
		_, live := notifier.pending[timer]
		delete(notifier.pending, timer)
		notifier.mu.Unlock()
		if live {
			notifier.Send(notification)
		}
	})
	notifier.pending[timer] = struct{}{}
	return nil
}

// CancelAll drops every pending notification.
func (notifier *Notifier) CancelAll(ctx context.Context) error {
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	for timer := range notifier.pending {
		timer.Stop()
		delete(notifier.pending, timer)
	}
	return ctx.Err()
}

// Pending returns the number of scheduled notifications.
func (notifier *Notifier) Pending() int {
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	return len(notifier.pending)
}

// Send delivers notification now.
func (notifier *Notifier) Send(notification sessiontimer.Notification) {
	notifier.do(func() {
		notifier.sender.SendNotification(fyne.NewNotification(notification.Title, notification.Body))
	})
}
