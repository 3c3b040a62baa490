package prefs

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/joho/godotenv"
)

// Keys persisted across restarts.
const (
	KeyVoiceNavEnabled = "VOICE_NAVIGATION_ENABLED"
)

// Store persists kiosk settings as a dotenv file in the state
// directory. Values survive daemon restarts; a missing file reads as
// all defaults.
type Store struct {
	path string

	mu     sync.Mutex
	values map[string]string
}

func Open(stateDir string) (*Store, error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, err
	}
	s := &Store{path: filepath.Join(stateDir, "prefs.env")}
	values, err := godotenv.Read(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		values = map[string]string{}
	}
	s.values = values
	return s, nil
}

// Get returns the stored value or def when unset.
func (s *Store) Get(key, def string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.values[key]; ok {
		return v
	}
	return def
}

// GetBool reads a boolean flag stored as "1" or "0".
func (s *Store) GetBool(key string, def bool) bool {
	v := s.Get(key, "")
	switch v {
	case "1", "true":
		return true
	case "0", "false":
		return false
	default:
		return def
	}
}

// Set stores and persists one value.
func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return godotenv.Write(s.values, s.path)
}

// SetBool stores a boolean flag.
func (s *Store) SetBool(key string, value bool) error {
	v := "0"
	if value {
		v = "1"
	}
	return s.Set(key, v)
}
