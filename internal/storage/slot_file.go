package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// FileStore is a durable key-value store kept in a single YAML file.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// OpenFileStore returns a store backed by path, creating its directory.
func OpenFileStore(path string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &FileStore{path: cleanPath}, nil
}

// Get returns the value stored under key.
func (store *FileStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	store.mu.Lock()
	defer store.mu.Unlock()

	values, err := store.readLocked()
	if err != nil {
		return "", false, err
	}
	value, ok := values[key]
	return value, ok, nil
}

// Set stores value under key.
func (store *FileStore) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	store.mu.Lock()
	defer store.mu.Unlock()

	values, err := store.readLocked()
	if err != nil {
		return err
	}
	values[key] = value
	return store.writeLocked(values)
}

// Remove deletes key; removing a missing key is not an error.
func (store *FileStore) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	store.mu.Lock()
	defer store.mu.Unlock()

	values, err := store.readLocked()
	if err != nil {
		return err
	}
	if _, ok := values[key]; !ok {
		return nil
	}
	delete(values, key)
	return store.writeLocked(values)
}

func (store *FileStore) readLocked() (map[string]string, error) {
	values := make(map[string]string)
	rawData, err := os.ReadFile(store.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return values, nil
		}
		return nil, fmt.Errorf("read store file: %w", err)
	}
	if err := yaml.Unmarshal(rawData, &values); err != nil {
		return nil, fmt.Errorf("parse store yaml: %w", err)
	}
	if values == nil {
		values = make(map[string]string)
	}
	return values, nil
}

func (store *FileStore) writeLocked(values map[string]string) error {
	serialized, err := yaml.Marshal(values)
	if err != nil {
		return fmt.Errorf("marshal store yaml: %w", err)
	}
	if err := writeFileAtomic(store.path, serialized); err != nil {
		return fmt.Errorf("write store file: %w", err)
	}
	return nil
}
