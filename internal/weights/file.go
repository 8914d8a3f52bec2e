package weights

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileStore persists weight snapshots as JSON. Saves go through a temp file
// and an atomic rename so readers never see a half-written table.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the persisted snapshot. A missing file yields an empty snapshot,
// not an error.
func (s *FileStore) Load() (*Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return EmptySnapshot(), nil
		}
		return nil, fmt.Errorf("reading weights file: %w", err)
	}

	snap := EmptySnapshot()
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, fmt.Errorf("parsing weights file: %w", err)
	}
	if snap.Senders == nil {
		snap.Senders = make(map[string]float64)
	}
	if snap.Rules == nil {
		snap.Rules = make(map[string]float64)
	}
	return snap, nil
}

// Save writes the snapshot atomically.
func (s *FileStore) Save(snap *Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding weights: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating weights directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".weights-*.json")
	if err != nil {
		return fmt.Errorf("creating temp weights file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing weights: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing weights file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing weights file: %w", err)
	}
	return nil
}
