// Copyright (c) 2025 Ziht Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// Messages are value types: once a stream finishes a message is never
// mutated again, and while an assistant message is streaming the growing
// content is applied by replacing the last element of the conversation's
// message slice with an updated copy. Conversations own their messages
// outright; the history collection stores conversations by value and the
// "current" conversation is referenced by id only, never by pointer.
package model
