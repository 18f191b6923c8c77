// Copyright (c) 2025 Ziht Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/zihtlabs/zihtchat/internal/chat"
	"github.com/zihtlabs/zihtchat/internal/config"
	"github.com/zihtlabs/zihtchat/internal/groq"
	"github.com/zihtlabs/zihtchat/internal/kv"
	"github.com/zihtlabs/zihtchat/internal/model"
	"github.com/zihtlabs/zihtchat/internal/profile"
	"github.com/zihtlabs/zihtchat/internal/store"
)

// fakeGroq serves SSE completions and a static model list.
func fakeGroq(t *testing.T, chunks []string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, chunk := range chunks {
			payload, _ := json.Marshal(map[string]any{
				"choices": []map[string]any{
					{"delta": map[string]string{"content": chunk}},
				},
			})
			io.WriteString(w, "data: "+string(payload)+"\n\n")
			flusher.Flush()
		}
		io.WriteString(w, "data: [DONE]\n\n")
	})
	mux.HandleFunc("/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"object":"list","data":[
			{"id":"llama-3.3-70b-versatile","owned_by":"Meta"},
			{"id":"mystery-model","owned_by":""}
		]}`)
	})
	return httptest.NewServer(mux)
}

type fixture struct {
	server   *Server
	store    *store.Store
	profiles *profile.Service
	ts       *httptest.Server
}

func newFixture(t *testing.T, chunks []string) *fixture {
	t.Helper()
	upstream := fakeGroq(t, chunks)
	t.Cleanup(upstream.Close)

	backend := kv.NewMemory()
	st := store.New(backend)
	profiles := profile.NewService(backend)
	client := groq.NewClientWithBaseURL(upstream.URL)
	orch := chat.NewOrchestrator(st, profiles, client)

	cfg := config.Default()
	srv := New(cfg, Deps{
		Store:        st,
		Profiles:     profiles,
		Orchestrator: orch,
		Groq:         client,
		KV:           backend,
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &fixture{server: srv, store: st, profiles: profiles, ts: ts}
}

func (f *fixture) addProfile(t *testing.T) {
	t.Helper()
	if _, err := f.profiles.Add("work", "gsk_test"); err != nil {
		t.Fatalf("add profile: %v", err)
	}
}

func (f *fixture) post(t *testing.T, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(f.ts.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func (f *fixture) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(f.ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func (f *fixture) delete(t *testing.T, path string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(http.MethodDelete, f.ts.URL+path, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE %s: %v", path, err)
	}
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(data)
}

// =============================================================================
// HEALTH
// =============================================================================

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	resp := f.get(t, "/health")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if body := readBody(t, resp); !strings.Contains(body, "ok") {
		t.Errorf("body = %q", body)
	}
}

// =============================================================================
// CHAT PROXY
// =============================================================================

func TestChatProxy_StreamsPlainText(t *testing.T) {
	f := newFixture(t, []string{"Hel", "lo, ", "world"})

	resp := f.post(t, "/api/chat", `{
		"model": "m1",
		"apiKey": "gsk_test",
		"maxTokens": 1024,
		"temperature": 0.7,
		"topP": 1,
		"messages": [{"role":"user","content":"hi"}]
	}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q", ct)
	}
	if body := readBody(t, resp); body != "Hello, world" {
		t.Errorf("body = %q, want %q", body, "Hello, world")
	}
}

func TestChatProxy_MissingKey(t *testing.T) {
	f := newFixture(t, nil)
	resp := f.post(t, "/api/chat", `{"model":"m1","messages":[{"role":"user","content":"hi"}]}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	readBody(t, resp)
}

func TestChatProxy_InvalidRole(t *testing.T) {
	f := newFixture(t, nil)
	resp := f.post(t, "/api/chat", `{"model":"m1","apiKey":"k","messages":[{"role":"tool","content":"x"}]}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	readBody(t, resp)
}

// =============================================================================
// MODELS
// =============================================================================

func TestModels_GroupsByOwner(t *testing.T) {
	f := newFixture(t, nil)

	req, _ := http.NewRequest(http.MethodGet, f.ts.URL+"/api/models", nil)
	req.Header.Set("x-api-key", "gsk_test")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET models: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var list groq.ModelList
	if err := json.Unmarshal([]byte(readBody(t, resp)), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.GroupedByOwner["Meta"]) != 1 {
		t.Errorf("Meta group = %v", list.GroupedByOwner["Meta"])
	}
	if len(list.GroupedByOwner["Unknown"]) != 1 {
		t.Errorf("Unknown group = %v", list.GroupedByOwner["Unknown"])
	}
}

func TestModels_MissingKeyHeader(t *testing.T) {
	f := newFixture(t, nil)
	resp := f.get(t, "/api/models")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	readBody(t, resp)
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

func TestSubmit_StreamsAndPersists(t *testing.T) {
	f := newFixture(t, []string{"Hel", "lo, ", "world"})
	f.addProfile(t)

	resp := f.post(t, "/api/conversations", `{"message":"hi"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body := readBody(t, resp); body != "Hello, world" {
		t.Errorf("body = %q", body)
	}

	msgs := f.store.Messages()
	if len(msgs) != 2 {
		t.Fatalf("stored messages = %d, want 2", len(msgs))
	}
	if msgs[1].Content != "Hello, world" {
		t.Errorf("assistant content = %q", msgs[1].Content)
	}
}

func TestSubmit_NoProfileReturnsInlineError(t *testing.T) {
	f := newFixture(t, []string{"unused"})

	resp := f.post(t, "/api/conversations", `{"message":"hi"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body := readBody(t, resp); body != chat.MissingKeyMessage {
		t.Errorf("body = %q", body)
	}

	msgs := f.store.Messages()
	if len(msgs) != 2 || msgs[1].Content != chat.MissingKeyMessage {
		t.Errorf("stored messages = %+v", msgs)
	}
}

func TestSubmit_BlankMessage(t *testing.T) {
	f := newFixture(t, nil)
	f.addProfile(t)

	resp := f.post(t, "/api/conversations", `{"message":"   "}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	readBody(t, resp)
}

func TestConversationLifecycle(t *testing.T) {
	f := newFixture(t, []string{"reply"})
	f.addProfile(t)

	// Populate one conversation.
	readBody(t, f.post(t, "/api/conversations", `{"message":"first question"}`))
	firstID := f.store.CurrentID()

	// Start a new one.
	resp := f.post(t, "/api/conversations/new", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("new: status = %d", resp.StatusCode)
	}
	var created map[string]string
	json.Unmarshal([]byte(readBody(t, resp)), &created)
	if created["id"] == "" || created["id"] == firstID {
		t.Errorf("new id = %q", created["id"])
	}

	// History lists the first conversation.
	resp = f.get(t, "/api/conversations")
	var history struct {
		CurrentID     string `json:"currentId"`
		Conversations []struct {
			ID           string `json:"id"`
			Preview      string `json:"preview"`
			MessageCount int    `json:"messageCount"`
		} `json:"conversations"`
	}
	json.Unmarshal([]byte(readBody(t, resp)), &history)
	if len(history.Conversations) != 1 {
		t.Fatalf("history = %+v", history)
	}
	if history.Conversations[0].ID != firstID {
		t.Errorf("history id = %q, want %q", history.Conversations[0].ID, firstID)
	}
	if history.Conversations[0].Preview != "first question" {
		t.Errorf("preview = %q", history.Conversations[0].Preview)
	}

	// Load the first conversation back.
	resp = f.get(t, "/api/conversations/" + firstID)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("load: status = %d", resp.StatusCode)
	}
	var conv model.Conversation
	json.Unmarshal([]byte(readBody(t, resp)), &conv)
	if conv.ID != firstID || len(conv.Messages) != 2 {
		t.Errorf("loaded = %+v", conv)
	}
	if f.store.CurrentID() != firstID {
		t.Error("load must adopt the conversation as current")
	}

	// Delete it; a fresh current ID is assigned.
	resp = f.delete(t, "/api/conversations/"+firstID)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete: status = %d", resp.StatusCode)
	}
	var deleted map[string]string
	json.Unmarshal([]byte(readBody(t, resp)), &deleted)
	if deleted["currentId"] == firstID || deleted["currentId"] == "" {
		t.Errorf("currentId = %q", deleted["currentId"])
	}
}

func TestLoadConversation_NotFound(t *testing.T) {
	f := newFixture(t, nil)
	resp := f.get(t, "/api/conversations/chat_missing")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
	readBody(t, resp)
}

func TestHistorySearch(t *testing.T) {
	f := newFixture(t, []string{"reply"})
	f.addProfile(t)

	readBody(t, f.post(t, "/api/conversations", `{"message":"tell me about goroutines"}`))
	readBody(t, f.post(t, "/api/conversations/new", ""))
	readBody(t, f.post(t, "/api/conversations", `{"message":"weather tomorrow"}`))
	readBody(t, f.post(t, "/api/conversations/new", ""))

	resp := f.get(t, "/api/conversations?q=goroutines")
	var history struct {
		Conversations []conversationMeta `json:"conversations"`
	}
	json.Unmarshal([]byte(readBody(t, resp)), &history)
	if len(history.Conversations) != 1 {
		t.Errorf("filtered history = %+v", history.Conversations)
	}
}

// =============================================================================
// EXPORT
// =============================================================================

func TestExport_JSONAttachment(t *testing.T) {
	f := newFixture(t, []string{"the reply"})
	f.addProfile(t)
	readBody(t, f.post(t, "/api/conversations", `{"message":"hi"}`))
	id := f.store.CurrentID()

	resp := f.get(t, "/api/conversations/"+id+"/export")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	cd := resp.Header.Get("Content-Disposition")
	if !strings.Contains(cd, "attachment") || !strings.Contains(cd, "chat-export-") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	var doc struct {
		ID       string          `json:"id"`
		Model    string          `json:"model"`
		Messages []model.Message `json:"messages"`
	}
	if err := json.Unmarshal([]byte(readBody(t, resp)), &doc); err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if doc.ID != id || len(doc.Messages) != 2 {
		t.Errorf("doc = %+v", doc)
	}
}

func TestExport_UnknownConversation(t *testing.T) {
	f := newFixture(t, nil)
	resp := f.get(t, "/api/conversations/chat_missing/export")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
	readBody(t, resp)
}

// =============================================================================
// PROFILES
// =============================================================================

func TestProfileRoutes(t *testing.T) {
	f := newFixture(t, nil)

	// Add.
	resp := f.post(t, "/api/profiles", `{"name":"work","apiKey":"gsk_abc"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add: status = %d", resp.StatusCode)
	}
	var created profile.Profile
	json.Unmarshal([]byte(readBody(t, resp)), &created)
	if !created.IsActive {
		t.Error("first profile should be active")
	}
	if created.APIKey == "gsk_abc" {
		t.Error("API key must not be returned in plaintext")
	}

	// Duplicate name.
	resp = f.post(t, "/api/profiles", `{"name":"work","apiKey":"gsk_other"}`)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate: status = %d, want 409", resp.StatusCode)
	}
	readBody(t, resp)

	// Second profile, then activate it.
	resp = f.post(t, "/api/profiles", `{"name":"personal","apiKey":"gsk_def"}`)
	var second profile.Profile
	json.Unmarshal([]byte(readBody(t, resp)), &second)

	resp = f.post(t, "/api/profiles/"+second.ID+"/activate", `{"model":"m1"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("activate: status = %d", resp.StatusCode)
	}
	readBody(t, resp)

	// List shows exactly one active.
	resp = f.get(t, "/api/profiles")
	var profiles []profile.Profile
	json.Unmarshal([]byte(readBody(t, resp)), &profiles)
	active := 0
	for _, p := range profiles {
		if p.IsActive {
			active++
		}
	}
	if active != 1 {
		t.Errorf("active profiles = %d, want 1", active)
	}

	// Remove.
	resp = f.delete(t, "/api/profiles/" + second.ID)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("remove: status = %d", resp.StatusCode)
	}
	readBody(t, resp)

	// Unknown removal.
	resp = f.delete(t, "/api/profiles/prof_missing")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("remove missing: status = %d, want 404", resp.StatusCode)
	}
	readBody(t, resp)
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

func TestRequestIDHeader(t *testing.T) {
	f := newFixture(t, nil)
	resp := f.get(t, "/health")
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header not set")
	}
	readBody(t, resp)
}
