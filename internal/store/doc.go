// Copyright (c) 2025 Ziht Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store persists the active conversation and the conversation
// history through a kv.Store backend.
//
// Three logical keys hold all conversational state:
//
//   - current_chat_id: the ID of the conversation being edited
//   - chat_messages:   the messages of the current conversation
//   - chat_history:    every saved conversation, most recent first
//
// The store keeps an authoritative in-memory copy and writes through to
// the backend after every mutation. A failing backend degrades the store
// to memory-only operation: mutations keep succeeding and the failure is
// logged once per incident.
package store
