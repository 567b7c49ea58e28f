package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"catcafe/internal/ui/preferences"
	"gopkg.in/yaml.v3"
)

const settingsFileName = "settings.yaml"

type yamlSettings struct {
	SessionMinutes *int  `yaml:"session_minutes,omitempty"`
	StrictMode     bool  `yaml:"strict_mode"`
	Chime          *bool `yaml:"chime,omitempty"`
	Notifications  *bool `yaml:"notifications,omitempty"`
}

// LoadSettings reads user preferences from YAML.
// If the config file does not exist, default settings are returned.
func LoadSettings(appName string) (preferences.Settings, error) {
	settings := preferences.DefaultSettings()
	configPath, err := resolveConfigPath(appName)
	if err != nil {
		return settings, err
	}

	rawData, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return settings, nil
		}
		return settings, fmt.Errorf("read settings file: %w", err)
	}

	var fileData yamlSettings
	if err := yaml.Unmarshal(rawData, &fileData); err != nil {
		return settings, fmt.Errorf("parse settings yaml: %w", err)
	}

	applyYamlSettings(&settings, fileData)
	return settings, nil
}

// SaveSettings writes user preferences to YAML.
func SaveSettings(appName string, settings preferences.Settings) error {
	configPath, err := resolveConfigPath(appName)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	settings = settings.Normalized()
	minutes := int(settings.SessionLength / time.Minute)
	fileData := yamlSettings{
		SessionMinutes: &minutes,
		StrictMode:     settings.StrictMode,
		Chime:          &settings.Chime,
		Notifications:  &settings.Notifications,
	}

	serialized, err := yaml.Marshal(fileData)
	if err != nil {
		return fmt.Errorf("marshal settings yaml: %w", err)
	}

	if err := writeFileAtomic(configPath, serialized); err != nil {
		return fmt.Errorf("write settings file: %w", err)
	}

	return nil
}

// ConfigDir returns the per-user directory holding CatCafe's files.
func ConfigDir(appName string) (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(configDir, appName), nil
}

func resolveConfigPath(appName string) (string, error) {
	dir, err := ConfigDir(appName)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, settingsFileName), nil
}

func applyYamlSettings(settings *preferences.Settings, fileData yamlSettings) {
	if fileData.SessionMinutes != nil && *fileData.SessionMinutes >= 0 {
		settings.SessionLength = time.Duration(*fileData.SessionMinutes) * time.Minute
	}
	settings.StrictMode = fileData.StrictMode
	if fileData.Chime != nil {
		settings.Chime = *fileData.Chime
	}
	if fileData.Notifications != nil {
		settings.Notifications = *fileData.Notifications
	}
	*settings = settings.Normalized()
}

// writeFileAtomic replaces path so readers never observe a partial file.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
