// Package shell connects the session timer to the desktop surfaces: the
// timer window, the tray and notifications.
package shell

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"catcafe/internal/core/model"
	"catcafe/internal/core/sessiontimer"
	"catcafe/internal/ui/focus"
	"catcafe/internal/ui/preferences"
)

// AwayNotification tells the user a strict session ended because they left.
var AwayNotification = sessiontimer.Notification{
	Title: "Session stopped",
	Body:  "You left CatCafe for too long, so your focus session ended.",
}

// View is the timer window.
type View interface {
	SetRemaining(remaining time.Duration)
	SetActive(active bool, status string)
	SetLength(length time.Duration)
}

// Tray is the system tray menu.
type Tray interface {
	SetStatus(status string)
	SetActive(active bool)
	SetStrict(strict bool)
}

// Alerts delivers a notification immediately.
type Alerts interface {
	Send(notification sessiontimer.Notification)
}

// Options wires a Controller to its surfaces. Nil surfaces are skipped.
type Options struct {
	View   View
	Tray   Tray
	Alerts Alerts

	// AwayLimit overrides the strict mode tolerance when positive.
	AwayLimit time.Duration
	// Save persists settings.
	Save func(preferences.Settings) error
	// Do runs UI updates and settings writes on the UI goroutine.
	Do     func(func())
	Logger *log.Logger
}

// Controller owns the user settings and reflects timer events in the UI.
type Controller struct {
	timer   *sessiontimer.SessionTimer
	options Options

	mu       sync.Mutex
	settings preferences.Settings

	// resumed is closed once the session left by a previous run is reconciled.
	resumed    chan struct{}
	resumeOnce sync.Once
}

// New creates a controller for timer using the loaded settings.
func New(timer *sessiontimer.SessionTimer, settings preferences.Settings, options Options) *Controller {
	if options.Do == nil {
		options.Do = func(fn func()) { fn() }
	}
	if options.Logger == nil {
		options.Logger = log.Default()
	}
	return &Controller{
		timer:    timer,
		options:  options,
		settings: settings.Normalized(),
		resumed:  make(chan struct{}),
	}
}

// Listener returns the timer listener driving the UI.
func (controller *Controller) Listener() sessiontimer.Listener {
	return func(event sessiontimer.Event) {
		switch event.Type {
		case sessiontimer.EventSessionTimeChange:
			controller.rememberLength(event.Duration)
		case sessiontimer.EventAwayTooLong:
			if controller.Settings().Notifications && controller.options.Alerts != nil {
				controller.options.Alerts.Send(AwayNotification)
			}
		}
		controller.options.Do(func() { controller.render(event) })
	}
}

// Sync renders the current timer state, for use at startup.
func (controller *Controller) Sync() {
	state := controller.timer.State()
	remaining := controller.timer.Remaining()
	length := controller.timer.SessionLength()
	strict := controller.Settings().StrictMode
	controller.options.Do(func() {
		status := StatusText(state, remaining, length)
		if view := controller.options.View; view != nil {
			view.SetLength(length)
			view.SetActive(state.Active(), status)
			if state.Active() {
				view.SetRemaining(remaining)
			}
		}
		if tray := controller.options.Tray; tray != nil {
			tray.SetActive(state.Active())
			tray.SetStrict(strict)
			tray.SetStatus(status)
		}
	})
}

// Resume reconciles the session persisted by a previous run and renders the
// result. Start and GiveUp wait for the first Resume.
func (controller *Controller) Resume(ctx context.Context) {
	controller.timer.OnForeground(ctx)
	controller.Sync()
	controller.resumeOnce.Do(func() { close(controller.resumed) })
}

// Start begins a focus session.
func (controller *Controller) Start(ctx context.Context) {
	if controller.waitResumed(ctx) {
		controller.timer.Start(ctx)
	}
}

// GiveUp abandons the running session.
func (controller *Controller) GiveUp(ctx context.Context) {
	if controller.waitResumed(ctx) {
		controller.timer.Stop(ctx)
	}
}

func (controller *Controller) waitResumed(ctx context.Context) bool {
	select {
	case <-controller.resumed:
		return true
	case <-ctx.Done():
		return false
	}
}

// SetLength changes the length of the next session.
func (controller *Controller) SetLength(length time.Duration) {
	controller.timer.Configure(length)
}

// SetStrict toggles strict mode.
func (controller *Controller) SetStrict(strict bool) {
	controller.mu.Lock()
	settings := controller.settings
	settings.StrictMode = strict
	controller.mu.Unlock()
	controller.ApplySettings(settings)
}

// ApplySettings saves edited preferences and reconfigures the timer. The
// session length is owned by the timer window and is kept.
func (controller *Controller) ApplySettings(settings preferences.Settings) {
	controller.mu.Lock()
	settings.SessionLength = controller.settings.SessionLength
	settings = settings.Normalized()
	controller.settings = settings
	controller.mu.Unlock()

	controller.save(settings)
	controller.timer.UpdateConfig(controller.timerConfig(settings))
	if tray := controller.options.Tray; tray != nil {
		controller.options.Do(func() { tray.SetStrict(settings.StrictMode) })
	}
}

func (controller *Controller) timerConfig(settings preferences.Settings) model.TimerConfig {
	config := settings.TimerConfig()
	if controller.options.AwayLimit > 0 {
		config.AwayLimit = controller.options.AwayLimit
	}
	return config
}

// Settings returns the current settings.
func (controller *Controller) Settings() preferences.Settings {
	controller.mu.Lock()
	defer controller.mu.Unlock()
	return controller.settings
}

// ChimeEnabled reports whether completion should play a sound.
func (controller *Controller) ChimeEnabled() bool {
	return controller.Settings().Chime
}

func (controller *Controller) rememberLength(length time.Duration) {
	controller.mu.Lock()
	if controller.settings.SessionLength == length {
		controller.mu.Unlock()
		return
	}
	controller.settings.SessionLength = length
	settings := controller.settings
	controller.mu.Unlock()
	controller.options.Do(func() { controller.save(settings) })
}

func (controller *Controller) save(settings preferences.Settings) {
	if controller.options.Save == nil {
		return
	}
	if err := controller.options.Save(settings); err != nil {
		controller.options.Logger.Printf("shell: save settings: %v", err)
	}
}

func (controller *Controller) render(event sessiontimer.Event) {
	view, tray := controller.options.View, controller.options.Tray
	length := controller.timer.SessionLength()
	status := StatusText(event.State, event.Remaining, length)

	switch event.Type {
	case sessiontimer.EventProgress:
		if view != nil {
			view.SetRemaining(event.Remaining)
		}
	case sessiontimer.EventStateChange:
		if view != nil {
			view.SetActive(event.Active, status)
			if event.Active {
				view.SetRemaining(event.Remaining)
			}
		}
		if tray != nil {
			tray.SetActive(event.Active)
		}
	case sessiontimer.EventSessionTimeChange:
		if view != nil {
			view.SetLength(event.Duration)
		}
		if event.Active {
			return
		}
		status = StatusText(event.State, event.Duration, event.Duration)
	case sessiontimer.EventComplete, sessiontimer.EventStopped, sessiontimer.EventAwayTooLong:
	default:
		return
	}
	if tray != nil {
		tray.SetStatus(status)
	}
}

// StatusText describes the timer for the tray and window.
func StatusText(state sessiontimer.State, remaining, length time.Duration) string {
	switch state {
	case sessiontimer.StateRunning:
		return fmt.Sprintf("focusing, %s left", focus.FormatClock(remaining))
	case sessiontimer.StateBackgrounded:
		return fmt.Sprintf("away, %s left", focus.FormatClock(remaining))
	case sessiontimer.StateCompleted:
		return "session complete"
	case sessiontimer.StateCancelled:
		return "session stopped"
	default:
		return fmt.Sprintf("ready, %d min", int(length/time.Minute))
	}
}
