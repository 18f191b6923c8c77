// Copyright (c) 2025 Ziht Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/zihtlabs/zihtchat/internal/chat"
	"github.com/zihtlabs/zihtchat/internal/config"
	"github.com/zihtlabs/zihtchat/internal/groq"
	"github.com/zihtlabs/zihtchat/internal/kv"
	"github.com/zihtlabs/zihtchat/internal/profile"
	"github.com/zihtlabs/zihtchat/internal/store"
)

// =============================================================================
// SERVER
// =============================================================================

// Deps holds the collaborators the server routes to.
type Deps struct {
	Store        *store.Store
	Profiles     *profile.Service
	Orchestrator *chat.Orchestrator
	Groq         *groq.Client
	KV           kv.Store
}

// Server is the HTTP front of the chat core.
type Server struct {
	deps   Deps
	router *chi.Mux
	http   *http.Server

	mu  sync.RWMutex
	cfg *config.Config
}

// New creates a server with its routes mounted.
func New(cfg *config.Config, deps Deps) *Server {
	s := &Server{
		deps: deps,
		cfg:  cfg,
	}
	s.router = s.buildRouter(cfg.Server.AllowedOrigins)
	return s
}

// UpdateConfig swaps in a reloaded configuration. Listener settings are
// fixed for the process lifetime; generation defaults and the Groq
// endpoint take effect on the next request.
func (s *Server) UpdateConfig(cfg *config.Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

// Config returns the current configuration snapshot.
func (s *Server) Config() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Handler returns the mounted router, usable with httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts the HTTP listener and blocks until Shutdown or
// failure.
func (s *Server) ListenAndServe() error {
	cfg := s.Config()
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.http.ListenAndServe()
}

// Shutdown gracefully stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// =============================================================================
// ROUTES
// =============================================================================

func (s *Server) buildRouter(allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(requestLogger)
	r.Use(recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "x-api-key"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", s.handleChatProxy)
		r.Get("/models", s.handleModels)

		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", s.handleSubmit)
			r.Get("/", s.handleHistory)
			r.Post("/new", s.handleNewConversation)
			r.Get("/{conversationID}", s.handleLoadConversation)
			r.Delete("/{conversationID}", s.handleDeleteConversation)
			r.Get("/{conversationID}/export", s.handleExport)
		})

		r.Route("/profiles", func(r chi.Router) {
			r.Get("/", s.handleListProfiles)
			r.Post("/", s.handleAddProfile)
			r.Post("/{profileID}/activate", s.handleActivateProfile)
			r.Delete("/{profileID}", s.handleRemoveProfile)
		})
	})

	return r
}
