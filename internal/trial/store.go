package trial

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	engerrors "github.com/RAKSHIT1998/GoFit.Ai---live-Healthy-sub001/internal/errors"
)

// State is the persisted trial record for one user. StartedAt is set at most
// once per logical user; absence means the trial was never started.
type State struct {
	StartedAt *time.Time `json:"started_at,omitempty"`
}

// Store persists trial state per authenticated user.
type Store interface {
	Load(userID string) (*State, error)
	Save(userID string, state *State) error
}

// FileStore persists trial state in per-user files under the data directory.
type FileStore struct {
	baseDataDir string
	mu          sync.RWMutex
}

// NewFileStore creates a file-backed trial store rooted at baseDataDir.
func NewFileStore(baseDataDir string) *FileStore {
	return &FileStore{baseDataDir: baseDataDir}
}

// Load returns the trial state for a user.
// Missing files are treated as "no state yet" and return (nil, nil).
func (s *FileStore) Load(userID string) (*State, error) {
	path, err := s.statePath(userID)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, engerrors.WrapStorageError("trial_load", fmt.Errorf("read trial state for user %q: %w", userID, err))
	}
	if len(data) == 0 {
		return nil, nil
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, engerrors.WrapStorageError("trial_load", fmt.Errorf("decode trial state for user %q: %w", userID, err))
	}

	return &state, nil
}

// Save persists trial state for a user atomically.
func (s *FileStore) Save(userID string, state *State) error {
	if state == nil {
		return errors.New("trial state is required")
	}

	path, err := s.statePath(userID)
	if err != nil {
		return err
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode trial state for user %q: %w", userID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return engerrors.WrapStorageError("trial_save", fmt.Errorf("create trial directory for user %q: %w", userID, err))
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return engerrors.WrapStorageError("trial_save", fmt.Errorf("write temp trial state for user %q: %w", userID, err))
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return engerrors.WrapStorageError("trial_save", fmt.Errorf("commit trial state for user %q: %w", userID, err))
	}

	return nil
}

func (s *FileStore) statePath(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if !isValidUserID(userID) {
		return "", fmt.Errorf("invalid user ID: %s", userID)
	}
	return filepath.Join(s.baseDataDir, "trials", userID+".json"), nil
}

// isValidUserID rejects IDs that could escape the trials directory.
func isValidUserID(userID string) bool {
	if userID == "" || len(userID) > 128 {
		return false
	}
	for _, r := range userID {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '@' || r == '.':
		default:
			return false
		}
	}
	return !strings.Contains(userID, "..")
}
