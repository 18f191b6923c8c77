// Copyright (c) 2025 Ziht Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"encoding/json"
	"errors"
	"log"
	"sync"

	"github.com/zihtlabs/zihtchat/internal/kv"
	"github.com/zihtlabs/zihtchat/internal/model"
)

// =============================================================================
// STORAGE KEYS
// =============================================================================

const (
	currentIDKey = "current_chat_id"
	messagesKey  = "chat_messages"
	historyKey   = "chat_history"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrConversationNotFound is returned when a conversation ID is not in
// the history. Use errors.Is(err, ErrConversationNotFound) to check.
var ErrConversationNotFound = &ConversationError{Message: "conversation not found"}

// ConversationError represents a conversation-related error.
type ConversationError struct {
	Message string
}

// Error implements the error interface.
func (e *ConversationError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing conversation errors.
func (e *ConversationError) Is(target error) bool {
	t, ok := target.(*ConversationError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

// =============================================================================
// CONVERSATION STORE
// =============================================================================

// Store holds the current conversation and the conversation history.
// All methods are safe for concurrent use.
type Store struct {
	mu sync.Mutex
	kv kv.Store

	currentID string
	messages  []model.Message
	history   []model.Conversation

	// degraded is set after the first backend write failure so the
	// failure is logged once instead of on every mutation.
	degraded bool
}

// New creates a Store backed by the given key-value backend and loads
// any persisted state. Missing keys start empty; corrupt values are
// logged and treated as empty rather than failing startup.
func New(backend kv.Store) *Store {
	s := &Store{kv: backend}
	s.loadHistory()
	s.loadCurrent()
	return s
}

// loadHistory restores the conversation history from the backend.
func (s *Store) loadHistory() {
	data, err := s.kv.Get(historyKey)
	if err != nil {
		if !errors.Is(err, kv.ErrKeyNotFound) {
			log.Printf("warning: failed to read conversation history: %v", err)
		}
		s.history = []model.Conversation{}
		return
	}

	var history []model.Conversation
	if err := json.Unmarshal(data, &history); err != nil {
		log.Printf("warning: conversation history is corrupt, starting empty: %v", err)
		s.history = []model.Conversation{}
		return
	}
	s.history = history
}

// loadCurrent restores the current conversation ID and messages.
func (s *Store) loadCurrent() {
	if data, err := s.kv.Get(currentIDKey); err == nil {
		s.currentID = string(data)
	}
	if s.currentID == "" {
		s.currentID = model.NewID("chat")
	}

	data, err := s.kv.Get(messagesKey)
	if err != nil {
		if !errors.Is(err, kv.ErrKeyNotFound) {
			log.Printf("warning: failed to read current messages: %v", err)
		}
		s.messages = []model.Message{}
		return
	}

	var messages []model.Message
	if err := json.Unmarshal(data, &messages); err != nil {
		log.Printf("warning: current messages are corrupt, starting empty: %v", err)
		s.messages = []model.Message{}
		return
	}
	s.messages = messages
}

// =============================================================================
// READ OPERATIONS
// =============================================================================

// CurrentID returns the ID of the conversation being edited.
func (s *Store) CurrentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentID
}

// Messages returns a copy of the current conversation's messages.
func (s *Store) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Current returns the current conversation as a value.
func (s *Store) Current() model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.Conversation{ID: s.currentID, Messages: s.copyMessagesLocked()}
}

// History returns a deep copy of the conversation history, most recent
// first.
func (s *Store) History() []model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Conversation, len(s.history))
	for i := range s.history {
		out[i] = s.history[i].Clone()
	}
	return out
}

// Get returns a conversation from the history by ID. The current
// conversation is returned when the ID matches it, even before it has
// been saved to the history.
func (s *Store) Get(id string) (model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == s.currentID {
		return model.Conversation{ID: s.currentID, Messages: s.copyMessagesLocked()}, nil
	}
	for i := range s.history {
		if s.history[i].ID == id {
			return s.history[i].Clone(), nil
		}
	}
	return model.Conversation{}, ErrConversationNotFound
}

// Search returns history conversations whose messages contain the query
// string, case-insensitive. An empty query returns the full history.
func (s *Store) Search(query string) []model.Conversation {
	all := s.History()
	if query == "" {
		return all
	}

	var results []model.Conversation
	for _, conv := range all {
		if len(model.FilterMessages(conv.Messages, query)) > 0 {
			results = append(results, conv)
		}
	}
	return results
}

// =============================================================================
// MUTATIONS
// =============================================================================

// Append adds a message to the current conversation and persists it.
func (s *Store) Append(msg model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	s.persistMessagesLocked()
}

// ReplaceLast swaps the final message of the current conversation for
// the given one and persists the result. A no-op when the conversation
// is empty.
func (s *Store) ReplaceLast(msg model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return
	}
	s.messages[len(s.messages)-1] = msg
	s.persistMessagesLocked()
}

// SetMessages replaces the current conversation's messages wholesale.
func (s *Store) SetMessages(messages []model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = make([]model.Message, len(messages))
	copy(s.messages, messages)
	s.persistMessagesLocked()
}

// StartNew saves the current conversation into the history (when it has
// any messages) and begins a fresh one. Returns the new conversation ID.
func (s *Store) StartNew() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshotLocked()
	s.currentID = model.NewID("chat")
	s.messages = []model.Message{}
	s.persistAllLocked()
	return s.currentID
}

// Load makes a history conversation the current one. The conversation
// being left is saved to the history first, so switching never loses
// messages. Loading the current conversation is a no-op.
func (s *Store) Load(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == s.currentID {
		return nil
	}

	idx := -1
	for i := range s.history {
		if s.history[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrConversationNotFound
	}

	target := s.history[idx].Clone()
	s.snapshotLocked()
	s.currentID = target.ID
	s.messages = target.Messages
	s.persistAllLocked()
	return nil
}

// Delete removes a conversation from the history. Deleting the current
// conversation additionally discards its messages and starts a fresh
// one with a new ID.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == s.currentID {
		s.removeFromHistoryLocked(id)
		s.currentID = model.NewID("chat")
		s.messages = []model.Message{}
		s.persistAllLocked()
		return nil
	}

	if !s.removeFromHistoryLocked(id) {
		return ErrConversationNotFound
	}
	s.persistHistoryLocked()
	return nil
}

// SaveCurrent snapshots the current conversation into the history
// without switching away from it. Empty conversations are not saved.
func (s *Store) SaveCurrent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshotLocked()
	s.persistHistoryLocked()
}

// =============================================================================
// INTERNAL HELPERS
// =============================================================================

// snapshotLocked upserts the current conversation into the history.
// Conversations with no messages never enter the history.
func (s *Store) snapshotLocked() {
	if len(s.messages) == 0 {
		return
	}

	conv := model.Conversation{ID: s.currentID, Messages: s.copyMessagesLocked()}
	s.removeFromHistoryLocked(conv.ID)
	s.history = append([]model.Conversation{conv}, s.history...)
}

// removeFromHistoryLocked deletes a conversation by ID, reporting
// whether it was present.
func (s *Store) removeFromHistoryLocked(id string) bool {
	for i := range s.history {
		if s.history[i].ID == id {
			s.history = append(s.history[:i], s.history[i+1:]...)
			return true
		}
	}
	return false
}

// copyMessagesLocked returns a fresh slice of the current messages.
func (s *Store) copyMessagesLocked() []model.Message {
	out := make([]model.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// =============================================================================
// PERSISTENCE
// =============================================================================

func (s *Store) persistMessagesLocked() {
	data, err := json.Marshal(s.messages)
	if err != nil {
		s.reportWriteFailure(err)
		return
	}
	if err := s.kv.Set(messagesKey, data); err != nil {
		s.reportWriteFailure(err)
	}
}

func (s *Store) persistHistoryLocked() {
	data, err := json.Marshal(s.history)
	if err != nil {
		s.reportWriteFailure(err)
		return
	}
	if err := s.kv.Set(historyKey, data); err != nil {
		s.reportWriteFailure(err)
	}
}

func (s *Store) persistAllLocked() {
	if err := s.kv.Set(currentIDKey, []byte(s.currentID)); err != nil {
		s.reportWriteFailure(err)
	}
	s.persistMessagesLocked()
	s.persistHistoryLocked()
}

// reportWriteFailure logs the first backend failure and marks the store
// degraded. In-memory state stays authoritative, so callers keep
// working without persistence.
func (s *Store) reportWriteFailure(err error) {
	if s.degraded {
		return
	}
	s.degraded = true
	log.Printf("warning: conversation storage unavailable, continuing in memory: %v", err)
}
