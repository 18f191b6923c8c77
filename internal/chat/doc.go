// Copyright (c) 2025 Ziht Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat orchestrates a streaming completion round trip.
//
// Submit drives the full lifecycle of one user turn: the user message is
// appended and persisted, the prior history is trimmed to the model's
// context budget, the request is streamed from the completion endpoint,
// and every decoded fragment is folded into a placeholder assistant
// message that is persisted as it grows. Failures never escape as a
// broken conversation: the user always ends up with exactly one
// assistant message per turn, carrying either the model's reply or a
// fixed error text.
//
// At most one generation runs per conversation at a time. A second
// Submit against a conversation that is already generating returns
// ErrGenerationInFlight without touching the conversation.
package chat
