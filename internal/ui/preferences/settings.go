package preferences

import (
	"time"

	"catcafe/internal/core/model"
)

// Settings defines editable user preferences.
type Settings struct {
	SessionLength time.Duration
	StrictMode    bool
	Chime         bool
	Notifications bool
}

// DefaultSettings returns default settings for CatCafe.
func DefaultSettings() Settings {
	return Settings{
		SessionLength: model.DefaultSessionLength,
		StrictMode:    false,
		Chime:         true,
		Notifications: true,
	}
}

// Normalized returns settings with the session length snapped to the slider grid.
func (settings Settings) Normalized() Settings {
	settings.SessionLength = model.QuantizeSession(settings.SessionLength)
	return settings
}

// TimerConfig converts settings to TimerConfig.
func (settings Settings) TimerConfig() model.TimerConfig {
	config := model.DefaultTimerConfig()
	config.SessionLength = model.QuantizeSession(settings.SessionLength)
	config.StrictMode = settings.StrictMode
	config.Notifications = settings.Notifications
	return config
}
