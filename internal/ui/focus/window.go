package focus

import (
	"fmt"
	"image/color"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	"catcafe/internal/core/model"
)

// Callbacks defines timer screen action handlers.
type Callbacks struct {
	OnStart        func()
	OnGiveUp       func()
	OnLengthChange func(time.Duration)
}

// Window is the countdown screen: remaining time, a session length slider
// and the Start / Give up button.
type Window struct {
	window      fyne.Window
	callbacks   Callbacks
	timerLabel  *canvas.Text
	statusLabel *widget.Label
	lengthLabel *widget.Label
	slider      *widget.Slider
	action      *widget.Button
	active      bool
	length      time.Duration
}

var accent = color.NRGBA{R: 232, G: 150, B: 66, A: 255}

// New creates the timer window. Widgets must be updated on the UI goroutine.
func New(app fyne.App, length time.Duration, callbacks Callbacks) *Window {
	window := app.NewWindow("CatCafe")
	if app.Icon() != nil {
		window.SetIcon(app.Icon())
	}

	timerLabel := canvas.NewText(FormatClock(length), accent)
	timerLabel.Alignment = fyne.TextAlignCenter
	timerLabel.TextStyle = fyne.TextStyle{Bold: true}
	timerLabel.TextSize = 48

	statusLabel := widget.NewLabelWithStyle("Ready to focus", fyne.TextAlignCenter, fyne.TextStyle{})
	lengthLabel := widget.NewLabel("")

	slider := widget.NewSlider(0, model.MaxSessionLength.Minutes())
	slider.Step = model.SessionStep.Minutes()

	focusWindow := &Window{
		window:      window,
		callbacks:   callbacks,
		timerLabel:  timerLabel,
		statusLabel: statusLabel,
		lengthLabel: lengthLabel,
		slider:      slider,
	}
	focusWindow.action = widget.NewButton("Start", focusWindow.handleAction)
	focusWindow.applyLength(length)
	slider.OnChanged = focusWindow.handleSlide

	window.SetContent(container.NewVBox(
		timerLabel,
		statusLabel,
		container.NewBorder(nil, nil, widget.NewLabel("Length"), lengthLabel, slider),
		focusWindow.action,
	))
	window.Resize(fyne.NewSize(320, 240))
	window.SetCloseIntercept(window.Hide)
	return focusWindow
}

// Show displays the window.
func (focusWindow *Window) Show() {
	focusWindow.window.Show()
	focusWindow.window.RequestFocus()
}

// SetRemaining updates the countdown.
func (focusWindow *Window) SetRemaining(remaining time.Duration) {
	focusWindow.timerLabel.Text = FormatClock(remaining)
	focusWindow.timerLabel.Refresh()
}

// SetActive switches between the idle and running layouts.
func (focusWindow *Window) SetActive(active bool, status string) {
	focusWindow.active = active
	focusWindow.statusLabel.SetText(status)
	if active {
		focusWindow.action.SetText("Give up")
		focusWindow.slider.Disable()
		return
	}
	focusWindow.action.SetText("Start")
	focusWindow.slider.Enable()
	focusWindow.SetRemaining(focusWindow.length)
}

// SetLength reflects a configured session length.
func (focusWindow *Window) SetLength(length time.Duration) {
	focusWindow.applyLength(length)
	if !focusWindow.active {
		focusWindow.SetRemaining(length)
	}
}

// Length returns the length shown on the slider.
func (focusWindow *Window) Length() time.Duration {
	return focusWindow.length
}

func (focusWindow *Window) applyLength(length time.Duration) {
	focusWindow.length = model.QuantizeSession(length)
	focusWindow.slider.Value = focusWindow.length.Minutes()
	focusWindow.slider.Refresh()
	focusWindow.lengthLabel.SetText(fmt.Sprintf("%d min", int(focusWindow.length.Minutes())))
}

func (focusWindow *Window) handleSlide(minutes float64) {
	length := model.QuantizeSession(time.Duration(minutes * float64(time.Minute)))
	if length == focusWindow.length {
		return
	}
	focusWindow.length = length
	focusWindow.lengthLabel.SetText(fmt.Sprintf("%d min", int(length.Minutes())))
	if !focusWindow.active {
		focusWindow.SetRemaining(length)
	}
	if focusWindow.callbacks.OnLengthChange != nil {
		focusWindow.callbacks.OnLengthChange(length)
	}
}

func (focusWindow *Window) handleAction() {
	if focusWindow.active {
		if focusWindow.callbacks.OnGiveUp != nil {
			focusWindow.callbacks.OnGiveUp()
		}
		return
	}
	if focusWindow.callbacks.OnStart != nil {
		focusWindow.callbacks.OnStart()
	}
}

// FormatClock renders a duration as mm:ss, flooring partial seconds.
func FormatClock(remaining time.Duration) string {
	if remaining < 0 {
		remaining = 0
	}
	seconds := int(remaining / time.Second)
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
