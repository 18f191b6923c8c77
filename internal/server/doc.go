// Copyright (c) 2025 Ziht Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server exposes the chat core over HTTP for the browser
// client.
//
// Endpoints:
//   - POST   /api/chat                       - stateless streaming proxy to Groq
//   - GET    /api/models                     - model list grouped by owner
//   - POST   /api/conversations              - submit a message to the current conversation
//   - GET    /api/conversations              - history list (optional ?q= filter)
//   - POST   /api/conversations/new          - start a new conversation
//   - GET    /api/conversations/{id}         - load a conversation as current
//   - DELETE /api/conversations/{id}         - delete a conversation
//   - GET    /api/conversations/{id}/export  - download an export document
//   - GET    /api/profiles                   - list profiles
//   - POST   /api/profiles                   - add a profile
//   - POST   /api/profiles/{id}/activate     - activate a profile
//   - DELETE /api/profiles/{id}              - remove a profile
//   - GET    /health                         - health check
//
// Streaming responses are text/plain chunked fragments; everything else
// is JSON.
package server
