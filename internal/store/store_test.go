// Copyright (c) 2025 Ziht Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"errors"
	"testing"

	"github.com/zihtlabs/zihtchat/internal/kv"
	"github.com/zihtlabs/zihtchat/internal/model"
)

func newTestStore(t *testing.T) (*Store, kv.Store) {
	t.Helper()
	backend := kv.NewMemory()
	return New(backend), backend
}

// =============================================================================
// PERSISTENCE ROUND TRIPS
// =============================================================================

func TestStore_MessagesSurviveReopen(t *testing.T) {
	backend := kv.NewMemory()
	s := New(backend)
	s.Append(model.NewUserMessage("hello"))
	s.Append(model.NewAssistantMessage("m1").WithContent("hi there"))
	id := s.CurrentID()

	reopened := New(backend)
	if reopened.CurrentID() != id {
		t.Errorf("CurrentID = %q, want %q", reopened.CurrentID(), id)
	}
	msgs := reopened.Messages()
	if len(msgs) != 2 {
		t.Fatalf("message count = %d, want 2", len(msgs))
	}
	if msgs[0].Content != "hello" || msgs[1].Content != "hi there" {
		t.Errorf("messages did not round-trip: %+v", msgs)
	}
}

func TestStore_HistorySurvivesReopen(t *testing.T) {
	backend := kv.NewMemory()
	s := New(backend)
	s.Append(model.NewUserMessage("first chat"))
	firstID := s.CurrentID()
	s.StartNew()

	reopened := New(backend)
	history := reopened.History()
	if len(history) != 1 {
		t.Fatalf("history length = %d, want 1", len(history))
	}
	if history[0].ID != firstID {
		t.Errorf("history ID = %q, want %q", history[0].ID, firstID)
	}
	if len(history[0].Messages) != 1 || history[0].Messages[0].Content != "first chat" {
		t.Errorf("history messages did not round-trip: %+v", history[0].Messages)
	}
}

func TestStore_CorruptStateStartsEmpty(t *testing.T) {
	backend := kv.NewMemory()
	backend.Set("chat_history", []byte("{not json"))
	backend.Set("chat_messages", []byte("also not json"))

	s := New(backend)
	if len(s.History()) != 0 {
		t.Errorf("history should start empty on corrupt data")
	}
	if len(s.Messages()) != 0 {
		t.Errorf("messages should start empty on corrupt data")
	}
	if s.CurrentID() == "" {
		t.Error("current ID should be generated")
	}
}

// =============================================================================
// NEW CONVERSATION
// =============================================================================

func TestStore_StartNewSavesCurrent(t *testing.T) {
	s, _ := newTestStore(t)
	s.Append(model.NewUserMessage("keep me"))
	oldID := s.CurrentID()

	newID := s.StartNew()
	if newID == oldID {
		t.Error("StartNew should assign a fresh ID")
	}
	if len(s.Messages()) != 0 {
		t.Error("StartNew should clear current messages")
	}

	history := s.History()
	if len(history) != 1 || history[0].ID != oldID {
		t.Fatalf("old conversation not in history: %+v", history)
	}
}

func TestStore_EmptyConversationNeverEntersHistory(t *testing.T) {
	s, _ := newTestStore(t)

	s.StartNew()
	s.StartNew()
	s.SaveCurrent()

	if got := len(s.History()); got != 0 {
		t.Errorf("history length = %d, want 0", got)
	}
}

func TestStore_SaveCurrentIsIdempotent(t *testing.T) {
	s, _ := newTestStore(t)
	s.Append(model.NewUserMessage("hello"))

	s.SaveCurrent()
	s.SaveCurrent()

	if got := len(s.History()); got != 1 {
		t.Errorf("history length = %d, want 1", got)
	}
}

// =============================================================================
// LOADING AND SWITCHING
// =============================================================================

func TestStore_LoadSwitchesConversation(t *testing.T) {
	s, _ := newTestStore(t)
	s.Append(model.NewUserMessage("first"))
	firstID := s.CurrentID()
	s.StartNew()
	s.Append(model.NewUserMessage("second"))
	secondID := s.CurrentID()

	if err := s.Load(firstID); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if s.CurrentID() != firstID {
		t.Errorf("CurrentID = %q, want %q", s.CurrentID(), firstID)
	}
	msgs := s.Messages()
	if len(msgs) != 1 || msgs[0].Content != "first" {
		t.Errorf("loaded messages = %+v", msgs)
	}

	// Switching away must have saved the second conversation.
	second, err := s.Get(secondID)
	if err != nil {
		t.Fatalf("second conversation lost on switch: %v", err)
	}
	if len(second.Messages) != 1 || second.Messages[0].Content != "second" {
		t.Errorf("second conversation = %+v", second.Messages)
	}
}

func TestStore_LoadUnknownID(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.Load("chat_missing"); !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("err = %v, want ErrConversationNotFound", err)
	}
}

func TestStore_LoadCurrentIsNoop(t *testing.T) {
	s, _ := newTestStore(t)
	s.Append(model.NewUserMessage("hi"))
	if err := s.Load(s.CurrentID()); err != nil {
		t.Fatalf("Load of current ID failed: %v", err)
	}
	if len(s.Messages()) != 1 {
		t.Error("loading the current conversation must not alter messages")
	}
}

func TestStore_GetReturnsCurrentBeforeSave(t *testing.T) {
	s, _ := newTestStore(t)
	s.Append(model.NewUserMessage("unsaved"))

	conv, err := s.Get(s.CurrentID())
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(conv.Messages) != 1 || conv.Messages[0].Content != "unsaved" {
		t.Errorf("conv = %+v", conv)
	}
}

// =============================================================================
// DELETION
// =============================================================================

func TestStore_DeleteFromHistory(t *testing.T) {
	s, _ := newTestStore(t)
	s.Append(model.NewUserMessage("first"))
	firstID := s.CurrentID()
	s.StartNew()

	if err := s.Delete(firstID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if len(s.History()) != 0 {
		t.Error("deleted conversation still in history")
	}
	if _, err := s.Get(firstID); !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("Get after delete = %v, want ErrConversationNotFound", err)
	}
}

func TestStore_DeleteCurrentStartsFresh(t *testing.T) {
	s, _ := newTestStore(t)
	s.Append(model.NewUserMessage("doomed"))
	oldID := s.CurrentID()

	if err := s.Delete(oldID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if s.CurrentID() == oldID {
		t.Error("deleting the current conversation should assign a fresh ID")
	}
	if len(s.Messages()) != 0 {
		t.Error("messages should be cleared")
	}
	if len(s.History()) != 0 {
		t.Error("deleted conversation must not reappear in history")
	}
}

func TestStore_DeleteUnknownID(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.Delete("chat_missing"); !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("err = %v, want ErrConversationNotFound", err)
	}
}

// =============================================================================
// MESSAGE MUTATIONS
// =============================================================================

func TestStore_ReplaceLast(t *testing.T) {
	s, _ := newTestStore(t)
	s.Append(model.NewUserMessage("question"))
	placeholder := model.NewAssistantMessage("m1")
	s.Append(placeholder)

	s.ReplaceLast(placeholder.WithContent("partial"))
	s.ReplaceLast(placeholder.WithContent("partial answer"))

	msgs := s.Messages()
	if len(msgs) != 2 {
		t.Fatalf("message count = %d, want 2", len(msgs))
	}
	if msgs[1].Content != "partial answer" {
		t.Errorf("last content = %q, want %q", msgs[1].Content, "partial answer")
	}
	if msgs[1].ID != placeholder.ID {
		t.Error("ReplaceLast should preserve the message identity")
	}
}

func TestStore_ReplaceLastOnEmpty(t *testing.T) {
	s, _ := newTestStore(t)
	s.ReplaceLast(model.NewUserMessage("nothing to replace"))
	if len(s.Messages()) != 0 {
		t.Error("ReplaceLast on empty conversation must be a no-op")
	}
}

func TestStore_MessagesReturnsCopy(t *testing.T) {
	s, _ := newTestStore(t)
	s.Append(model.NewUserMessage("original"))

	msgs := s.Messages()
	msgs[0].Content = "mutated"

	if s.Messages()[0].Content != "original" {
		t.Error("caller mutation leaked into store state")
	}
}

// =============================================================================
// SEARCH
// =============================================================================

func TestStore_Search(t *testing.T) {
	s, _ := newTestStore(t)
	s.Append(model.NewUserMessage("tell me about Go channels"))
	s.StartNew()
	s.Append(model.NewUserMessage("weather tomorrow"))
	s.StartNew()

	results := s.Search("CHANNELS")
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	if len(s.Search("")) != 2 {
		t.Error("empty query should return full history")
	}
	if len(s.Search("no such text")) != 0 {
		t.Error("unmatched query should return nothing")
	}
}

// =============================================================================
// DEGRADED OPERATION
// =============================================================================

// failingKV rejects every write while still serving reads.
type failingKV struct {
	kv.Store
}

func (f *failingKV) Set(key string, value []byte) error {
	return errors.New("disk full")
}

func TestStore_DegradesToMemoryOnWriteFailure(t *testing.T) {
	s := New(&failingKV{Store: kv.NewMemory()})

	s.Append(model.NewUserMessage("still here"))
	s.Append(model.NewAssistantMessage("m1").WithContent("reply"))
	s.StartNew()

	if len(s.History()) != 1 {
		t.Error("in-memory history should survive backend failure")
	}
	if len(s.Messages()) != 0 {
		t.Error("StartNew should still reset messages")
	}
}
