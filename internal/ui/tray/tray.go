package tray

import (
	"fmt"

	"fyne.io/fyne/v2"
)

// MenuHost shows the tray menu. desktop.App satisfies it.
type MenuHost interface {
	SetSystemTrayMenu(menu *fyne.Menu)
}

// Callbacks defines tray action handlers.
type Callbacks struct {
	OnOpen         func()
	OnStart        func()
	OnGiveUp       func()
	OnToggleStrict func(bool)
	OnPreferences  func()
	OnStats        func()
	OnQuit         func()
}

// Manager handles system tray state.
type Manager struct {
	host       MenuHost
	callbacks  Callbacks
	statusItem *fyne.MenuItem
	actionItem *fyne.MenuItem
	strictItem *fyne.MenuItem
	items      []*fyne.MenuItem
	active     bool
}

// New creates a tray manager and installs its menu.
func New(host MenuHost, callbacks Callbacks) *Manager {
	manager := &Manager{
		host:      host,
		callbacks: callbacks,
	}

	manager.statusItem = fyne.NewMenuItem("Status: starting...", nil)
	manager.statusItem.Disabled = true

	manager.actionItem = fyne.NewMenuItem("Start focus session", manager.handleAction)

	manager.strictItem = fyne.NewMenuItem("Strict mode", func() {
		manager.strictItem.Checked = !manager.strictItem.Checked
		if manager.callbacks.OnToggleStrict != nil {
			manager.callbacks.OnToggleStrict(manager.strictItem.Checked)
		}
		manager.refreshMenu()
	})

	manager.items = []*fyne.MenuItem{
		manager.statusItem,
		fyne.NewMenuItem("Open timer", invoke(&manager.callbacks.OnOpen)),
		manager.actionItem,
		manager.strictItem,
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Statistics", invoke(&manager.callbacks.OnStats)),
		fyne.NewMenuItem("Preferences", invoke(&manager.callbacks.OnPreferences)),
		fyne.NewMenuItem("Quit", invoke(&manager.callbacks.OnQuit)),
	}
	manager.refreshMenu()
	return manager
}

func invoke(callback *func()) func() {
	return func() {
		if *callback != nil {
			(*callback)()
		}
	}
}

// SetStatus updates the status label.
func (manager *Manager) SetStatus(status string) {
	manager.statusItem.Label = fmt.Sprintf("Status: %s", status)
	manager.refreshMenu()
}

// SetActive swaps Start and Give up.
func (manager *Manager) SetActive(active bool) {
	manager.active = active
	if active {
		manager.actionItem.Label = "Give up"
	} else {
		manager.actionItem.Label = "Start focus session"
	}
	manager.refreshMenu()
}

// SetStrict reflects the strict mode setting.
func (manager *Manager) SetStrict(strict bool) {
	manager.strictItem.Checked = strict
	manager.refreshMenu()
}

// Menu returns the current tray menu.
func (manager *Manager) Menu() *fyne.Menu {
	return fyne.NewMenu("CatCafe", manager.items...)
}

func (manager *Manager) handleAction() {
	if manager.active {
		if manager.callbacks.OnGiveUp != nil {
			manager.callbacks.OnGiveUp()
		}
		return
	}
	if manager.callbacks.OnStart != nil {
		manager.callbacks.OnStart()
	}
}

func (manager *Manager) refreshMenu() {
	if manager.host != nil {
		manager.host.SetSystemTrayMenu(manager.Menu())
	}
}
