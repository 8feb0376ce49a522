package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"onisai/internal/domain"
	"onisai/internal/repository"
)

// StateStore is a file implementation of repository.StateRepository.
type StateStore struct {
	mu   sync.Mutex
	path string
}

// NewStateStore creates a state store backed by the JSON document at path.
func NewStateStore(path string) *StateStore {
	return &StateStore{path: path}
}

// Get returns the stored state, or the zero state if the file is absent.
func (s *StateStore) Get(ctx context.Context) (domain.ProcessState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var state domain.ProcessState
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return state, nil
	}
	if err != nil {
		return state, fmt.Errorf("failed to read state: %w", err)
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return domain.ProcessState{}, fmt.Errorf("failed to decode state: %w", err)
	}
	return state, nil
}

// Save replaces the stored state.
func (s *StateStore) Save(ctx context.Context, state domain.ProcessState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return writeAtomic(s.path, data)
}

var _ repository.StateRepository = (*StateStore)(nil)
