// Copyright (c) 2025 Ziht Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package kv

import "sync"

// =============================================================================
// STORE INTERFACE
// =============================================================================

// Store is a durable mapping from logical string keys to opaque values.
// Implementations must make Set immediately durable from the caller's
// perspective: when Set returns nil the value survives a process restart.
type Store interface {
	// Get returns the value for key, or ErrKeyNotFound.
	Get(key string) ([]byte, error)

	// Set overwrites the value for key.
	Set(key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(key string) error

	// Close releases backend resources.
	Close() error
}

// ErrKeyNotFound is returned when a key has no value.
// Use errors.Is(err, ErrKeyNotFound) to check for this error.
var ErrKeyNotFound = &KeyError{Message: "key not found"}

// KeyError represents a key-value store error.
type KeyError struct {
	Message string
}

// Error implements the error interface.
func (e *KeyError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing key errors.
func (e *KeyError) Is(target error) bool {
	t, ok := target.(*KeyError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

// =============================================================================
// IN-MEMORY STORE
// =============================================================================

// Memory is a non-durable Store backed by a map. It is the degraded-mode
// fallback when the durable backend is unavailable, and the backend of
// choice for tests.
type Memory struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string][]byte)}
}

// Get returns the value for key, or ErrKeyNotFound.
func (m *Memory) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.values[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Set overwrites the value for key.
func (m *Memory) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	m.values[key] = stored
	return nil
}

// Delete removes key.
func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// Close is a no-op for the in-memory store.
func (m *Memory) Close() error {
	return nil
}
