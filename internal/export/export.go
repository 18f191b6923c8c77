// Copyright (c) 2025 Ziht Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/zihtlabs/zihtchat/internal/model"
)

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter renders a conversation into a target format.
type Exporter interface {
	// Export converts a conversation to the target format.
	Export(conv model.Conversation, modelName string) ([]byte, error)

	// Filename returns the suggested download filename for an export
	// performed at the given time.
	Filename(at time.Time) string

	// FileExtension returns the extension for the format (e.g. ".json").
	FileExtension() string

	// MimeType returns the MIME type for the exported format.
	MimeType() string
}

// =============================================================================
// JSON EXPORTER
// =============================================================================

// Document is the canonical JSON export shape.
type Document struct {
	ID         string          `json:"id"`
	Model      string          `json:"model"`
	Messages   []model.Message `json:"messages"`
	ExportDate time.Time       `json:"exportDate"`
}

// JSONExporter exports conversations as a JSON document.
type JSONExporter struct {
	// Now allows tests to pin the export timestamp. Defaults to
	// time.Now.
	Now func() time.Time
}

// NewJSONExporter creates a JSON exporter.
func NewJSONExporter() *JSONExporter {
	return &JSONExporter{Now: time.Now}
}

// Export renders the conversation as a pretty-printed JSON document.
func (e *JSONExporter) Export(conv model.Conversation, modelName string) ([]byte, error) {
	if len(conv.Messages) == 0 {
		return nil, fmt.Errorf("conversation has no messages")
	}

	doc := Document{
		ID:         conv.ID,
		Model:      modelName,
		Messages:   conv.Messages,
		ExportDate: e.now(),
	}
	return json.MarshalIndent(doc, "", "  ")
}

// Filename returns "chat-export-YYYY-MM-DD.json" for the given time.
func (e *JSONExporter) Filename(at time.Time) string {
	return "chat-export-" + at.Format("2006-01-02") + e.FileExtension()
}

// FileExtension returns ".json".
func (e *JSONExporter) FileExtension() string {
	return ".json"
}

// MimeType returns the JSON MIME type.
func (e *JSONExporter) MimeType() string {
	return "application/json"
}

func (e *JSONExporter) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports conversations as a Markdown transcript.
type MarkdownExporter struct {
	Now func() time.Time
}

// NewMarkdownExporter creates a Markdown exporter.
func NewMarkdownExporter() *MarkdownExporter {
	return &MarkdownExporter{Now: time.Now}
}

// Export renders the conversation as a Markdown transcript with a
// small metadata header.
func (e *MarkdownExporter) Export(conv model.Conversation, modelName string) ([]byte, error) {
	if len(conv.Messages) == 0 {
		return nil, fmt.Errorf("conversation has no messages")
	}

	now := time.Now
	if e.Now != nil {
		now = e.Now
	}

	var sb strings.Builder
	sb.WriteString("# " + escapeMarkdown(conv.Preview()) + "\n\n")
	sb.WriteString("- **Model**: " + modelName + "\n")
	sb.WriteString("- **Exported**: " + now().Format(time.RFC3339) + "\n")
	sb.WriteString(fmt.Sprintf("- **Messages**: %d\n\n---\n\n", len(conv.Messages)))

	for _, msg := range conv.Messages {
		sb.WriteString("### " + roleLabel(msg.Role) + " <sub>" + msg.Timestamp.Format("15:04:05") + "</sub>\n\n")
		sb.WriteString(msg.Content)
		sb.WriteString("\n\n")
	}

	return []byte(sb.String()), nil
}

// Filename returns "chat-export-YYYY-MM-DD.md" for the given time.
func (e *MarkdownExporter) Filename(at time.Time) string {
	return "chat-export-" + at.Format("2006-01-02") + e.FileExtension()
}

// FileExtension returns ".md".
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType returns the Markdown MIME type.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown"
}

func roleLabel(r model.Role) string {
	switch r {
	case model.RoleUser:
		return "User"
	case model.RoleAssistant:
		return "Assistant"
	case model.RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// escapeMarkdown neutralizes heading and emphasis characters so a
// conversation preview cannot restructure the document.
func escapeMarkdown(s string) string {
	replacer := strings.NewReplacer(
		"#", "\\#",
		"*", "\\*",
		"_", "\\_",
		"`", "\\`",
		"[", "\\[",
		"]", "\\]",
	)
	return replacer.Replace(s)
}
