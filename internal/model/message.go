// Copyright (c) 2025 Ziht Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// Valid reports whether the role is one of the wire-accepted roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a conversation.
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Role      Role      `json:"role"`
	Timestamp time.Time `json:"timestamp"`

	// Model records which model produced an assistant message.
	Model string `json:"model,omitempty"`
}

// NewMessage creates a new message with a generated ID.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        NewID("msg"),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return NewMessage(RoleUser, content)
}

// NewAssistantMessage creates an empty assistant message tagged with the
// model that will produce it. The content grows while streaming.
func NewAssistantMessage(model string) Message {
	msg := NewMessage(RoleAssistant, "")
	msg.Model = model
	return msg
}

// NewAssistantError creates an assistant message carrying a user-visible
// error string, tagged with the model if one was selected.
func NewAssistantError(content, model string) Message {
	msg := NewMessage(RoleAssistant, content)
	msg.Model = model
	return msg
}

// WithContent returns a copy of the message with replaced content.
// Used to grow a streaming assistant message without mutating the original.
func (m Message) WithContent(content string) Message {
	m.Content = content
	return m
}

// IsEmpty returns true if the message has no content.
func (m Message) IsEmpty() bool {
	return len(m.Content) == 0
}

// Preview returns a truncated preview of the message content.
// Uses rune-based truncation to handle Unicode correctly.
func (m Message) Preview(maxLen int) string {
	runes := []rune(m.Content)
	if len(runes) <= maxLen {
		return m.Content
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// =============================================================================
// ID GENERATION
// =============================================================================

// NewID creates a unique identifier with the given prefix. The id embeds the
// creation timestamp in milliseconds, so ids sort roughly by creation order;
// a random suffix keeps ids created within the same millisecond unique.
func NewID(prefix string) string {
	bytes := make([]byte, 4)
	rand.Read(bytes)
	return prefix + "_" + strconv.FormatInt(time.Now().UnixMilli(), 10) + "_" + hex.EncodeToString(bytes)
}
