package main

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/driver/desktop"

	"catcafe/internal/config"
	"catcafe/internal/core/ledger"
	"catcafe/internal/core/sessiontimer"
	"catcafe/internal/platform"
	"catcafe/internal/shell"
	"catcafe/internal/storage"
	"catcafe/internal/ui/focus"
	"catcafe/internal/ui/preferences"
	"catcafe/internal/ui/tray"
)

const appName = "CatCafe"

func main() {
	guard, err := platform.AcquireSingleInstance(appName)
	if err != nil {
		log.Printf("single instance: %v", err)
		return
	}
	defer func() {
		_ = guard.Release()
	}()

	configDir, err := storage.ConfigDir(appName)
	if err != nil {
		log.Printf("config dir: %v", err)
		return
	}
	runtimeConfig, err := config.LoadRuntime(configDir)
	if err != nil {
		log.Printf("runtime config: %v", err)
		os.Exit(1)
	}

	settings, err := storage.LoadSettings(appName)
	if err != nil {
		log.Printf("load settings: %v", err)
	}

	fyneApp := app.NewWithID("com.catcafe.app")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openSlotStore(runtimeConfig, fyneApp)
	if err != nil {
		log.Printf("open session store: %v", err)
		os.Exit(1)
	}

	notifier := platform.NewNotifier(fyneApp)
	timerConfig := settings.TimerConfig()
	timerConfig.AwayLimit = runtimeConfig.AwayLimit
	timer := sessiontimer.New(timerConfig, sessiontimer.Config{
		Store:      store,
		Notifier:   notifier,
		Foreground: sessiontimer.NewIntervalDriver(runtimeConfig.TickInterval),
		// Desktop processes are not suspended when unfocused.
		Background: sessiontimer.NewIntervalDriver(runtimeConfig.TickInterval),
	})
	defer timer.Close()

	var history *storage.History
	if runtimeConfig.History {
		history, err = storage.OpenHistory(runtimeConfig.HistoryPath())
		if err != nil {
			log.Printf("open history: %v", err)
		} else {
			defer history.Close()
			recorder := ledger.NewRecorder(history, ledger.Options{
				Duplicate: func(err error) bool { return errors.Is(err, storage.ErrDuplicateSession) },
			})
			defer recorder.Close()
			timer.Listen(recorder.Listener())
		}
	}

	var (
		controller  *shell.Controller
		trayManager *tray.Manager
	)
	timerWindow := focus.New(fyneApp, settings.SessionLength, focus.Callbacks{
		OnStart:        func() { go controller.Start(ctx) },
		OnGiveUp:       func() { go controller.GiveUp(ctx) },
		OnLengthChange: func(length time.Duration) { go controller.SetLength(length) },
	})
	prefsWindow := preferences.New(fyneApp, settings, func(updated preferences.Settings) {
		controller.ApplySettings(updated)
	})

	options := shell.Options{
		View:      timerWindow,
		Alerts:    notifier,
		AwayLimit: runtimeConfig.AwayLimit,
		Save: func(updated preferences.Settings) error {
			return storage.SaveSettings(appName, updated)
		},
		Do: fyne.Do,
	}
	if desktopApp, ok := fyneApp.(desktop.App); ok {
		trayManager = tray.New(desktopApp, tray.Callbacks{
			OnOpen:         timerWindow.Show,
			OnStart:        func() { go controller.Start(ctx) },
			OnGiveUp:       func() { go controller.GiveUp(ctx) },
			OnToggleStrict: func(strict bool) { go controller.SetStrict(strict) },
			OnPreferences: func() {
				prefsWindow.UpdateSettings(controller.Settings())
				prefsWindow.Show()
			},
			OnStats: func() { go showStats(ctx, fyneApp, history) },
			OnQuit:  fyneApp.Quit,
		})
		options.Tray = trayManager
	} else {
		log.Printf("system tray unsupported on this platform")
	}

	controller = shell.New(timer, settings, options)
	timer.Listen(controller.Listener())
	chime := platform.NewChime(nil)
	timer.Listen(chime.Listener(controller.ChimeEnabled))

	idleWatcher := platform.NewIdleWatcher(platform.NewIdleProvider(), timer, runtimeConfig.IdleAfter, time.Second, nil)

	lifecycle := fyneApp.Lifecycle()
	lifecycle.SetOnStarted(func() {
		go func() {
			controller.Resume(ctx)
			idleWatcher.Start(ctx)
		}()
	})
	lifecycle.SetOnEnteredForeground(func() {
		go timer.OnForeground(ctx)
	})
	lifecycle.SetOnExitedForeground(func() {
		go timer.OnBackground(ctx)
	})
	lifecycle.SetOnStopped(func() {
		idleWatcher.Stop()
	})

	timerWindow.Show()
	fyneApp.Run()
}

func openSlotStore(runtimeConfig config.Runtime, fyneApp fyne.App) (sessiontimer.Store, error) {
	if runtimeConfig.SlotBackend == config.SlotFile {
		return storage.OpenFileStore(runtimeConfig.SlotPath())
	}
	return storage.NewPreferencesStore(fyneApp.Preferences()), nil
}

func showStats(ctx context.Context, fyneApp fyne.App, history *storage.History) {
	message := "Session history is turned off."
	if history != nil {
		stats, err := ledger.Summarize(ctx, history, time.Now(), time.Local)
		if err != nil {
			log.Printf("stats: %v", err)
			message = "Statistics are unavailable right now."
		} else {
			message = ledger.Describe(stats)
			if breakdown, err := ledger.Breakdown(ctx, history, time.Now(), time.Local); err != nil {
				log.Printf("focus breakdown: %v", err)
			} else {
				message += "\n\n" + ledger.DescribeBreakdown(breakdown)
			}
		}
	}
	fyne.Do(func() {
		window := fyneApp.NewWindow("CatCafe Statistics")
		window.Resize(fyne.NewSize(340, 420))
		window.Show()
		dialog.ShowInformation("Statistics", message, window)
	})
}
