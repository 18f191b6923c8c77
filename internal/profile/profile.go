// Copyright (c) 2025 Ziht Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package profile

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/zihtlabs/zihtchat/internal/kv"
	"github.com/zihtlabs/zihtchat/internal/model"
)

// profilesKey is the logical storage key the profile collection lives under.
const profilesKey = "profiles"

// =============================================================================
// PROFILE TYPE
// =============================================================================

// Profile is a named credential for the upstream completion API.
type Profile struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	APIKey        string    `json:"apiKey"` // base64-encoded at rest
	IsActive      bool      `json:"isActive"`
	CreatedAt     time.Time `json:"createdAt"`
	LastUsed      time.Time `json:"lastUsed"`
	LastUsedModel string    `json:"lastUsedModel,omitempty"`
}

// EncodeKey reversibly encodes an API key for storage.
func EncodeKey(apiKey string) string {
	return base64.StdEncoding.EncodeToString([]byte(apiKey))
}

// DecodeKey reverses EncodeKey.
func DecodeKey(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode api key: %w", err)
	}
	return string(raw), nil
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNotFound indicates the profile id does not exist.
	ErrNotFound = errors.New("profile not found")

	// ErrDuplicateName indicates a profile with that name already exists.
	ErrDuplicateName = errors.New("profile name already exists")

	// ErrNoActiveProfile indicates no profile is currently active.
	ErrNoActiveProfile = errors.New("no active profile")
)

// =============================================================================
// SERVICE
// =============================================================================

// Service owns the profile collection. All operations read the collection
// from durable storage, apply the change, and write the whole collection
// back; the store itself is the source of truth between calls.
type Service struct {
	mu    sync.Mutex
	store kv.Store
}

// NewService creates a profile service over the given store.
func NewService(store kv.Store) *Service {
	return &Service{store: store}
}

// List returns all profiles in storage order.
func (s *Service) List() []Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Active returns the active profile, or ErrNoActiveProfile.
func (s *Service) Active() (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.load() {
		if p.IsActive {
			return p, nil
		}
	}
	return Profile{}, ErrNoActiveProfile
}

// ActiveKey returns the decoded API key of the active profile, or
// ErrNoActiveProfile. A stored key that fails to decode is reported as a
// decode error, not as a missing profile.
func (s *Service) ActiveKey() (string, error) {
	active, err := s.Active()
	if err != nil {
		return "", err
	}
	return DecodeKey(active.APIKey)
}

// Add creates a new profile. The first profile ever added becomes active.
func (s *Service) Add(name, apiKey string) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	profiles := s.load()
	for _, p := range profiles {
		if p.Name == name {
			return Profile{}, fmt.Errorf("%w: %q", ErrDuplicateName, name)
		}
	}

	now := time.Now()
	created := Profile{
		ID:        model.NewID("prof"),
		Name:      name,
		APIKey:    EncodeKey(apiKey),
		IsActive:  len(profiles) == 0,
		CreatedAt: now,
		LastUsed:  now,
	}

	if created.IsActive {
		for i := range profiles {
			profiles[i].IsActive = false
		}
	}

	profiles = append(profiles, created)
	if err := s.save(profiles); err != nil {
		return Profile{}, err
	}
	return created, nil
}

// Activate marks the given profile active and deactivates every other
// profile. lastUsedModel, when non-empty, is recorded on the profile.
func (s *Service) Activate(id, lastUsedModel string) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	profiles := s.load()
	found := -1
	for i, p := range profiles {
		if p.ID == id {
			found = i
			break
		}
	}
	if found < 0 {
		return Profile{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}

	now := time.Now()
	for i := range profiles {
		profiles[i].IsActive = i == found
	}
	profiles[found].LastUsed = now
	if lastUsedModel != "" {
		profiles[found].LastUsedModel = lastUsedModel
	}

	if err := s.save(profiles); err != nil {
		return Profile{}, err
	}
	return profiles[found], nil
}

// Remove deletes a profile. If the removed profile was active, the most
// recently used remaining profile is promoted.
func (s *Service) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	profiles := s.load()
	removedActive := false
	remaining := make([]Profile, 0, len(profiles))
	found := false
	for _, p := range profiles {
		if p.ID == id {
			found = true
			removedActive = p.IsActive
			continue
		}
		remaining = append(remaining, p)
	}
	if !found {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}

	if removedActive && len(remaining) > 0 {
		mostRecent := 0
		for i := range remaining {
			if remaining[i].LastUsed.After(remaining[mostRecent].LastUsed) {
				mostRecent = i
			}
		}
		remaining[mostRecent].IsActive = true
	}

	return s.save(remaining)
}

// =============================================================================
// PERSISTENCE
// =============================================================================

// load reads the profile collection, degrading to empty on absence or
// corruption. Profiles are returned sorted by creation time so listing is
// stable regardless of mutation order.
func (s *Service) load() []Profile {
	data, err := s.store.Get(profilesKey)
	if err != nil {
		if !errors.Is(err, kv.ErrKeyNotFound) {
			log.Printf("profile: storage read failed, using empty collection: %v", err)
		}
		return []Profile{}
	}

	var profiles []Profile
	if err := json.Unmarshal(data, &profiles); err != nil {
		log.Printf("profile: corrupt profile collection, using empty collection: %v", err)
		return []Profile{}
	}

	sort.SliceStable(profiles, func(i, j int) bool {
		return profiles[i].CreatedAt.Before(profiles[j].CreatedAt)
	})
	return profiles
}

// save writes the whole collection back.
func (s *Service) save(profiles []Profile) error {
	data, err := json.Marshal(profiles)
	if err != nil {
		return fmt.Errorf("failed to marshal profiles: %w", err)
	}
	if err := s.store.Set(profilesKey, data); err != nil {
		return fmt.Errorf("failed to persist profiles: %w", err)
	}
	return nil
}
