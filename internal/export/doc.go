// Copyright (c) 2025 Ziht Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export renders conversations into downloadable documents.
//
// The JSON format is the canonical export shape used by the web client:
// a single document holding the conversation ID, the model that
// produced it, the full message sequence, and the export timestamp.
// A Markdown exporter is available for human-readable archives.
package export
