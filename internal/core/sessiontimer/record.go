package sessiontimer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// SlotKey is the single storage key holding the active session.
const SlotKey = "activeTimer"

// Store is durable key-value storage that survives process restarts.
type Store interface {
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Record is the persisted form of an active session.
type Record struct {
	StartTimestamp     int64 `yaml:"start_timestamp"`
	DurationSeconds    int   `yaml:"duration_seconds"`
	AwayStartTimestamp int64 `yaml:"away_start_timestamp,omitempty"`
}

var errInvalidRecord = errors.New("invalid session record")

// StartedAt returns the session start time.
func (record Record) StartedAt() time.Time {
	return time.UnixMilli(record.StartTimestamp)
}

// Duration returns the configured session length.
func (record Record) Duration() time.Duration {
	return time.Duration(record.DurationSeconds) * time.Second
}

// Deadline returns the instant the session completes.
func (record Record) Deadline() time.Time {
	return record.StartedAt().Add(record.Duration())
}

// AwaySince returns when the app left the foreground, if recorded.
func (record Record) AwaySince() (time.Time, bool) {
	if record.AwayStartTimestamp <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(record.AwayStartTimestamp), true
}

// RemainingAt returns the whole seconds left at now, never negative.
func (record Record) RemainingAt(now time.Time) time.Duration {
	elapsed := now.Sub(record.StartedAt()) / time.Second
	if elapsed < 0 {
		elapsed = 0
	}
	remaining := time.Duration(record.DurationSeconds)*time.Second - elapsed*time.Second
	if remaining < 0 {
		return 0
	}
	return remaining
}

func encodeRecord(record Record) (string, error) {
	serialized, err := yaml.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("marshal session record: %w", err)
	}
	return string(serialized), nil
}

func decodeRecord(value string) (Record, error) {
	var record Record
	if err := yaml.Unmarshal([]byte(value), &record); err != nil {
		return Record{}, fmt.Errorf("parse session record: %w", err)
	}
	if record.StartTimestamp <= 0 || record.DurationSeconds <= 0 {
		return Record{}, errInvalidRecord
	}
	return record, nil
}

func loadRecord(ctx context.Context, store Store) (Record, bool, error) {
	value, ok, err := store.Get(ctx, SlotKey)
	if err != nil {
		return Record{}, false, fmt.Errorf("read session record: %w", err)
	}
	if !ok || value == "" {
		return Record{}, false, nil
	}
	record, err := decodeRecord(value)
	if err != nil {
		return Record{}, false, err
	}
	return record, true, nil
}

func saveRecord(ctx context.Context, store Store, record Record) error {
	value, err := encodeRecord(record)
	if err != nil {
		return err
	}
	if err := store.Set(ctx, SlotKey, value); err != nil {
		return fmt.Errorf("write session record: %w", err)
	}
	return nil
}
