package history

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const storeVersion = 1

type storedHistory struct {
	Version int      `yaml:"version"`
	Entries []string `yaml:"entries"`
}

// FileStore persists history entries as a YAML document.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file.
func (s *FileStore) Path() string {
	return s.path
}

// Load returns stored entries, oldest first. A missing file yields no entries.
func (s *FileStore) Load() ([]string, error) {
	// #nosec G304 -- path comes from local configuration.
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read history %s: %w", s.path, err)
	}

	var stored storedHistory
	if err := yaml.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("parse history %s: %w", s.path, err)
	}
	if stored.Version > storeVersion {
		return nil, fmt.Errorf("history %s: unsupported version %d", s.path, stored.Version)
	}
	return stored.Entries, nil
}

// Save replaces the stored entries atomically.
func (s *FileStore) Save(entries []string) error {
	data, err := yaml.Marshal(storedHistory{Version: storeVersion, Entries: entries})
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create history directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".history-*.yaml")
	if err != nil {
		return fmt.Errorf("create history temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close history temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace history %s: %w", s.path, err)
	}
	return nil
}
