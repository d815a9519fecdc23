package repository

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// JSONSnapshot persists a value as pretty JSON with atomic replace, so
// a crash mid-write never truncates the previous snapshot.
type JSONSnapshot struct {
	path string
}

func NewJSONSnapshot(path string) *JSONSnapshot {
	return &JSONSnapshot{path: path}
}

func (s *JSONSnapshot) Path() string { return s.path }

func (s *JSONSnapshot) Save(v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("snapshot marshal: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return fmt.Errorf("snapshot tmp: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("snapshot write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("snapshot close: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("snapshot rename: %w", err)
	}
	return nil
}

// Load reads the snapshot into dest; a missing file is not an error
// and leaves dest untouched.
func (s *JSONSnapshot) Load(dest interface{}) error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("snapshot read: %w", err)
	}
	if err := json.Unmarshal(b, dest); err != nil {
		return fmt.Errorf("snapshot parse: %w", err)
	}
	return nil
}
