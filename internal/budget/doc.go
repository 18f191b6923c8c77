// Copyright (c) 2025 Ziht Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package budget estimates token cost of text and trims message sequences
// to fit a token budget.
//
// The estimate is a cheap character-length approximation, not a real
// tokenizer: it only needs to be deterministic, monotonic in text length,
// and roughly in the ballpark of what the upstream model counts. Trimming
// always drops the oldest messages first, since recency is the best
// heuristic available without semantic summarization.
package budget
