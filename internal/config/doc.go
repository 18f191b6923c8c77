// Copyright (c) 2025 Ziht Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for
// zihtchat.
//
// Configuration comes from three layers, later layers winning:
//
//   - Built-in defaults
//   - ~/.zihtchat/config.toml
//   - ZIHTCHAT_* environment variables
//
// The server can watch the config file for edits and reload without a
// restart. Last-used generation parameters are persisted separately
// through the key-value store so they survive restarts independently of
// the config file.
package config
