// Copyright (c) 2025 Ziht Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "strings"

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds an ordered message sequence under a stable identifier.
// The id is assigned at creation and never changes for the conversation's
// lifetime.
type Conversation struct {
	ID       string    `json:"id"`
	Messages []Message `json:"messages"`
}

// NewConversation creates an empty conversation with a generated ID.
func NewConversation() Conversation {
	return Conversation{
		ID:       NewID("chat"),
		Messages: make([]Message, 0),
	}
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// Append adds a message to the end of the conversation.
func (c *Conversation) Append(msg Message) {
	c.Messages = append(c.Messages, msg)
}

// LastMessage returns the most recent message and true, or a zero Message
// and false if the conversation is empty.
func (c *Conversation) LastMessage() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// ReplaceLast swaps the final message for an updated copy. Used while an
// assistant message is streaming: each decoded chunk produces a new copy
// with longer content. No-op on an empty conversation.
func (c *Conversation) ReplaceLast(msg Message) {
	if len(c.Messages) == 0 {
		return
	}
	c.Messages[len(c.Messages)-1] = msg
}

// MessageCount returns the number of messages.
func (c *Conversation) MessageCount() int {
	return len(c.Messages)
}

// IsEmpty returns true if there are no messages.
func (c *Conversation) IsEmpty() bool {
	return len(c.Messages) == 0
}

// Clone creates a deep copy of the conversation.
func (c *Conversation) Clone() Conversation {
	clone := Conversation{
		ID:       c.ID,
		Messages: make([]Message, len(c.Messages)),
	}
	copy(clone.Messages, c.Messages)
	return clone
}

// =============================================================================
// FILTERING
// =============================================================================

// FilterMessages returns the messages whose content contains the query,
// case-insensitively. An empty or blank query returns the input unchanged.
func FilterMessages(messages []Message, query string) []Message {
	query = strings.TrimSpace(query)
	if query == "" {
		return messages
	}
	query = strings.ToLower(query)

	var filtered []Message
	for _, msg := range messages {
		if strings.Contains(strings.ToLower(msg.Content), query) {
			filtered = append(filtered, msg)
		}
	}
	return filtered
}

// =============================================================================
// PREVIEW
// =============================================================================

// Preview returns a short preview taken from the first user message,
// or a placeholder for conversations without one.
func (c *Conversation) Preview() string {
	for _, msg := range c.Messages {
		if msg.Role == RoleUser && msg.Content != "" {
			line := strings.ReplaceAll(msg.Content, "\n", " ")
			line = strings.ReplaceAll(line, "\r", "")
			return Message{Content: line}.Preview(80)
		}
	}
	return "New conversation"
}
