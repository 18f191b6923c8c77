// Copyright (c) 2025 Ziht Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package groq provides the HTTP client for a Groq-compatible chat
// completion API.
//
// Two operations are exposed: a streaming chat completion (Server-Sent
// Events decoded into plain text fragments, delivered to a callback in
// arrival order) and a model listing grouped by owner. The API key travels
// with each request rather than living on the client, so switching
// credential profiles never requires rebuilding the client.
package groq
