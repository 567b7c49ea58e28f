package storage

import (
	"context"

	"fyne.io/fyne/v2"
)

// PreferencesStore keeps values in the fyne application preferences,
// which the driver persists across restarts.
type PreferencesStore struct {
	prefs fyne.Preferences
}

// NewPreferencesStore wraps the preferences of a fyne app.
func NewPreferencesStore(prefs fyne.Preferences) *PreferencesStore {
	return &PreferencesStore{prefs: prefs}
}

// Get returns the value stored under key. Empty strings read as missing.
func (store *PreferencesStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	value := store.prefs.StringWithFallback(key, "")
	return value, value != "", nil
}

// Set stores value under key.
func (store *PreferencesStore) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	store.prefs.SetString(key, value)
	return nil
}

// Remove deletes key.
func (store *PreferencesStore) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	store.prefs.RemoveValue(key)
	return nil
}
