package preferences

import (
	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/widget"
)

// Window handles the preferences UI.
type Window struct {
	window        fyne.Window
	settings      Settings
	onSave        func(Settings)
	strict        *widget.Check
	chime         *widget.Check
	notifications *widget.Check
	saveButton    *widget.Button
	cancelButton  *widget.Button
}

// New creates a preferences window.
func New(app fyne.App, settings Settings, onSave func(Settings)) *Window {
	window := app.NewWindow("CatCafe Settings")

	strict := widget.NewCheck("Strict mode (leaving the app ends the session)", nil)
	chime := widget.NewCheck("Play a chime when a session ends", nil)
	notifications := widget.NewCheck("Show a notification when a session ends", nil)

	form := container.NewVBox(
		widget.NewLabelWithStyle("Focus", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		strict,
		widget.NewLabelWithStyle("Alerts", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		chime,
		notifications,
	)

	prefs := &Window{
		window:        window,
		onSave:        onSave,
		strict:        strict,
		chime:         chime,
		notifications: notifications,
	}
	prefs.saveButton = widget.NewButton("Save", prefs.handleSave)
	prefs.cancelButton = widget.NewButton("Cancel", func() {
		prefs.UpdateSettings(prefs.settings)
		window.Hide()
	})
	prefs.UpdateSettings(settings)

	buttons := container.NewHBox(prefs.saveButton, layout.NewSpacer(), prefs.cancelButton)
	window.SetContent(container.NewBorder(nil, buttons, nil, nil, form))
	window.Resize(fyne.NewSize(380, 220))
	window.SetCloseIntercept(window.Hide)

	return prefs
}

// Show displays the preferences window.
func (prefs *Window) Show() {
	prefs.window.Show()
	prefs.window.RequestFocus()
}

// UpdateSettings replaces window values.
func (prefs *Window) UpdateSettings(settings Settings) {
	prefs.settings = settings
	prefs.strict.SetChecked(settings.StrictMode)
	prefs.chime.SetChecked(settings.Chime)
	prefs.notifications.SetChecked(settings.Notifications)
}

// Settings returns the last saved settings.
func (prefs *Window) Settings() Settings {
	return prefs.settings
}

func (prefs *Window) handleSave() {
	settings := prefs.settings
	settings.StrictMode = prefs.strict.Checked
	settings.Chime = prefs.chime.Checked
	settings.Notifications = prefs.notifications.Checked

	prefs.settings = settings
	if prefs.onSave != nil {
		prefs.onSave(settings)
	}
	prefs.window.Hide()
}
