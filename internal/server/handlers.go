// Copyright (c) 2025 Ziht Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zihtlabs/zihtchat/internal/chat"
	"github.com/zihtlabs/zihtchat/internal/config"
	"github.com/zihtlabs/zihtchat/internal/export"
	"github.com/zihtlabs/zihtchat/internal/groq"
	"github.com/zihtlabs/zihtchat/internal/model"
	"github.com/zihtlabs/zihtchat/internal/profile"
	"github.com/zihtlabs/zihtchat/internal/store"
)

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func respondJSON(w http.ResponseWriter, code int, payload any) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondError(w http.ResponseWriter, code int, message string) {
	respondJSON(w, code, map[string]string{"error": message})
}

// =============================================================================
// HEALTH
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// CHAT PROXY
// =============================================================================

// chatProxyRequest mirrors the browser client's request body.
type chatProxyRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"maxTokens"`
	Temperature float64            `json:"temperature"`
	TopP        float64            `json:"topP"`
	APIKey      string             `json:"apiKey"`
	Messages    []groq.ChatMessage `json:"messages"`
}

// handleChatProxy streams a completion straight through to the caller
// as plain text. It is stateless: nothing touches the conversation
// store. The stateful path is handleSubmit.
func (s *Server) handleChatProxy(w http.ResponseWriter, r *http.Request) {
	var req chatProxyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.APIKey) == "" {
		respondError(w, http.StatusBadRequest, "API key is required")
		return
	}
	if req.Model == "" {
		respondError(w, http.StatusBadRequest, "model is required")
		return
	}
	if len(req.Messages) == 0 {
		respondError(w, http.StatusBadRequest, "messages are required")
		return
	}
	for _, msg := range req.Messages {
		if !model.Role(msg.Role).Valid() {
			respondError(w, http.StatusBadRequest, "invalid message role: "+msg.Role)
			return
		}
	}

	upstream := &groq.ChatRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
	}

	s.streamPlainText(w, r, func(emit func(string)) error {
		return s.deps.Groq.ChatStream(r.Context(), req.APIKey, upstream, emit)
	})
}

// streamPlainText runs fn, forwarding emitted fragments to the client
// as chunked plain text. Errors before the first fragment map to an
// HTTP status; errors after it can only end the stream early.
func (s *Server) streamPlainText(w http.ResponseWriter, r *http.Request, fn func(emit func(string)) error) {
	flusher, _ := w.(http.Flusher)
	headerSent := false

	emit := func(fragment string) {
		if !headerSent {
			headerSent = true
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusOK)
		}
		io.WriteString(w, fragment)
		if flusher != nil {
			flusher.Flush()
		}
	}

	if err := fn(emit); err != nil {
		if headerSent {
			log.Printf("stream ended early: %v id=%s", err, RequestIDFrom(r.Context()))
			return
		}
		respondStreamError(w, err)
		return
	}
	if !headerSent {
		emit("")
	}
}

// respondStreamError maps a pre-stream failure to an HTTP status.
func respondStreamError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrBlankInput):
		respondError(w, http.StatusBadRequest, "message is required")
	case errors.Is(err, chat.ErrGenerationInFlight):
		respondError(w, http.StatusConflict, err.Error())
	case groq.IsAuthFailed(err):
		respondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, groq.ErrMissingKey):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondError(w, http.StatusBadGateway, err.Error())
	}
}

// =============================================================================
// MODELS
// =============================================================================

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	apiKey := r.Header.Get("x-api-key")
	if strings.TrimSpace(apiKey) == "" {
		respondError(w, http.StatusBadRequest, "API key is required")
		return
	}

	list, err := s.deps.Groq.ListModels(r.Context(), apiKey)
	if err != nil {
		if groq.IsAuthFailed(err) {
			respondError(w, http.StatusUnauthorized, err.Error())
			return
		}
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, list)
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

// submitRequest carries one user turn. Generation parameters are
// optional; configured defaults fill the gaps, and supplied values are
// remembered as the session's last-used parameters.
type submitRequest struct {
	Message       string   `json:"message"`
	Model         string   `json:"model,omitempty"`
	Temperature   *float64 `json:"temperature,omitempty"`
	TopP          *float64 `json:"topP,omitempty"`
	MaxTokens     *int     `json:"maxTokens,omitempty"`
	SystemMessage *string  `json:"systemMessage,omitempty"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	gen := s.generationParams(req)
	cfg := chat.Config{
		Model:         gen.Model,
		Temperature:   gen.Temperature,
		TopP:          gen.TopP,
		MaxTokens:     gen.MaxTokens,
		SystemMessage: gen.SystemMessage,
	}

	s.streamPlainText(w, r, func(emit func(string)) error {
		err := s.deps.Orchestrator.Submit(r.Context(), req.Message, cfg, emit)
		switch {
		case errors.Is(err, chat.ErrBlankInput):
			return err
		case errors.Is(err, chat.ErrGenerationInFlight):
			return err
		}
		// Generation failures already surfaced as conversation text.
		return nil
	})
}

// generationParams resolves the effective parameters for a submit:
// persisted last-used values seeded from config defaults, overridden by
// anything the request carries. Supplied values are persisted for the
// next session.
func (s *Server) generationParams(req submitRequest) config.GenerationConfig {
	gen := config.LoadParams(s.deps.KV, s.Config().Generation)

	changed := false
	if req.Model != "" {
		gen.Model = req.Model
	}
	if req.Temperature != nil {
		gen.Temperature = *req.Temperature
		changed = true
	}
	if req.TopP != nil {
		gen.TopP = *req.TopP
		changed = true
	}
	if req.MaxTokens != nil {
		gen.MaxTokens = *req.MaxTokens
		changed = true
	}
	if req.SystemMessage != nil {
		gen.SystemMessage = *req.SystemMessage
		changed = true
	}
	if changed {
		config.SaveParams(s.deps.KV, gen)
	}
	return gen
}

// conversationMeta is the history listing shape.
type conversationMeta struct {
	ID           string `json:"id"`
	Preview      string `json:"preview"`
	MessageCount int    `json:"messageCount"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	conversations := s.deps.Store.Search(query)

	metas := make([]conversationMeta, 0, len(conversations))
	for _, conv := range conversations {
		metas = append(metas, conversationMeta{
			ID:           conv.ID,
			Preview:      conv.Preview(),
			MessageCount: conv.MessageCount(),
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"currentId":     s.deps.Store.CurrentID(),
		"conversations": metas,
	})
}

func (s *Server) handleNewConversation(w http.ResponseWriter, r *http.Request) {
	id := s.deps.Store.StartNew()
	respondJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (s *Server) handleLoadConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")
	if err := s.deps.Store.Load(id); err != nil {
		if errors.Is(err, store.ErrConversationNotFound) {
			respondError(w, http.StatusNotFound, "conversation not found")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	conv, err := s.deps.Store.Get(id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, conv)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")
	if err := s.deps.Store.Delete(id); err != nil {
		if errors.Is(err, store.ErrConversationNotFound) {
			respondError(w, http.StatusNotFound, "conversation not found")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"currentId": s.deps.Store.CurrentID()})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")
	conv, err := s.deps.Store.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "conversation not found")
		return
	}

	var exporter export.Exporter
	switch r.URL.Query().Get("format") {
	case "", "json":
		exporter = export.NewJSONExporter()
	case "markdown":
		exporter = export.NewMarkdownExporter()
	default:
		respondError(w, http.StatusBadRequest, "format must be json or markdown")
		return
	}

	content, err := exporter.Export(conv, s.exportModel(conv))
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	w.Header().Set("Content-Type", exporter.MimeType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+exporter.Filename(time.Now())+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(content)
}

// exportModel picks the model name recorded in an export document: the
// most recent assistant message's model, falling back to the configured
// default.
func (s *Server) exportModel(conv model.Conversation) string {
	for i := len(conv.Messages) - 1; i >= 0; i-- {
		if conv.Messages[i].Model != "" {
			return conv.Messages[i].Model
		}
	}
	return s.Config().Generation.Model
}

// =============================================================================
// PROFILES
// =============================================================================

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.deps.Profiles.List())
}

type addProfileRequest struct {
	Name   string `json:"name"`
	APIKey string `json:"apiKey"`
}

func (s *Server) handleAddProfile(w http.ResponseWriter, r *http.Request) {
	var req addProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		respondError(w, http.StatusBadRequest, "profile name is required")
		return
	}

	p, err := s.deps.Profiles.Add(req.Name, req.APIKey)
	if err != nil {
		switch {
		case errors.Is(err, profile.ErrDuplicateName):
			respondError(w, http.StatusConflict, err.Error())
		default:
			respondError(w, http.StatusBadRequest, err.Error())
		}
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

type activateProfileRequest struct {
	Model string `json:"model,omitempty"`
}

func (s *Server) handleActivateProfile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "profileID")

	var req activateProfileRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	p, err := s.deps.Profiles.Activate(id, req.Model)
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			respondError(w, http.StatusNotFound, "profile not found")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleRemoveProfile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "profileID")
	if err := s.deps.Profiles.Remove(id); err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			respondError(w, http.StatusNotFound, "profile not found")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"removed": true})
}
