// state/state.go
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"okx_stop_go/position"
)

// StoreInterface defines the persistence capabilities the engine relies on.
// This interface-oriented design decouples the engine from the file storage
// implementation, facilitating testing.
type StoreInterface interface {
	// Load returns the previously persisted position records, or an empty
	// slice when no state file exists yet.
	Load() ([]position.Position, error)
	// Save replaces the persisted snapshot with the given records.
	Save(records []position.Position) error
}

// trackedState is the top-level structure persisted to the state file.
type trackedState struct {
	Positions []position.Position `json:"positions"`
}

// FileStore is the concrete file implementation of StoreInterface.
// Saves are atomic: write to a temp file, then rename over the target.
type FileStore struct {
	mu       sync.Mutex
	filePath string
}

// NewFileStore creates a file store, ensuring the parent directory exists.
func NewFileStore(filePath string) (*FileStore, error) {
	dir := filepath.Dir(filePath)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}
	return &FileStore{filePath: filePath}, nil
}

func (fs *FileStore) Load() ([]position.Position, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	data, err := os.ReadFile(fs.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var st trackedState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state file: %w", err)
	}
	return st.Positions, nil
}

func (fs *FileStore) Save(records []position.Position) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if records == nil {
		records = []position.Position{}
	}
	data, err := json.MarshalIndent(&trackedState{Positions: records}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state for saving: %w", err)
	}

	tmpFilePath := fs.filePath + ".tmp"
	if err := os.WriteFile(tmpFilePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write to temporary state file: %w", err)
	}
	return os.Rename(tmpFilePath, fs.filePath)
}
