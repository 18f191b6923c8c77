// Copyright (c) 2025 Ziht Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package profile manages named credential profiles for the upstream
// completion API.
//
// The Service is an explicit dependency handed to whoever needs a
// credential; there is no package-level profile state. Profiles are
// reloaded from durable storage on every operation, and at most one
// profile is active at any time.
//
// API keys are stored base64-encoded. This is reversible obfuscation
// carried over from the original client, not encryption, and must never be
// treated as a security boundary.
package profile
