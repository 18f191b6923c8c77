// Copyright (c) 2025 Ziht Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package kv provides the durable key-value substrate that conversation and
// profile state is persisted to.
//
// The store is a flat mapping from fixed logical keys to JSON-serialized
// values. Writes are whole-value overwrites, last-writer-wins; there is no
// partial merge. Three backends are provided: a file-per-key store with
// atomic writes (the default), a single-table SQLite store, and an
// in-memory store used for degraded operation and tests.
package kv
