package memory

import (
	"context"
	"sync"

	"github.com/jobsonar/jobsonar/internal/discovery"
)

// ProfileStore is an in-memory discovery.ProfileStore.
type ProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]discovery.Profile
	prefs    map[string]discovery.Preferences
}

// NewProfileStore constructs a ProfileStore.
func NewProfileStore() *ProfileStore {
	return &ProfileStore{
		profiles: make(map[string]discovery.Profile),
		prefs:    make(map[string]discovery.Preferences),
	}
}

// PutProfile stores a user's profile.
func (s *ProfileStore) PutProfile(_ context.Context, userID string, profile discovery.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[userID] = profile
	return nil
}

// PutPreferences stores a user's search preferences.
func (s *ProfileStore) PutPreferences(_ context.Context, userID string, prefs discovery.Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs[userID] = prefs
	return nil
}

// GetProfile fetches a user's profile; absent users get a zero profile so
// scoring degrades to neutral rather than failing a run.
func (s *ProfileStore) GetProfile(_ context.Context, userID string) (discovery.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profiles[userID], nil
}

// GetPreferences fetches a user's preferences, zero value when unset.
func (s *ProfileStore) GetPreferences(_ context.Context, userID string) (discovery.Preferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs[userID], nil
}
