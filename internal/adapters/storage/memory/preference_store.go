package memory

import (
	"context"
	"sync"
)

// PreferenceStore is an in-memory domain.PreferenceStore.
type PreferenceStore struct {
	mu    sync.RWMutex
	prefs map[string]string
}

func NewPreferenceStore() *PreferenceStore {
	return &PreferenceStore{
		prefs: make(map[string]string),
	}
}

func (s *PreferenceStore) GetPreference(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.prefs[key]
	return v, ok, nil
}

func (s *PreferenceStore) SetPreference(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prefs[key] = value
	return nil
}

func (s *PreferenceStore) DeletePreferences(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range keys {
		delete(s.prefs, k)
	}
	return nil
}
