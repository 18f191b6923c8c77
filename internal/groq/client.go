// Copyright (c) 2025 Ziht Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package groq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents an error from the Groq client.
type ClientError struct {
	Type    ErrorType
	Status  int
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("groq: %s (HTTP %d)", e.Message, e.Status)
	}
	if e.Cause != nil {
		return "groq: " + e.Message + ": " + e.Cause.Error()
	}
	return "groq: " + e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeMissingKey
	ErrTypeAuth
	ErrTypeConnection
	ErrTypeStatus
	ErrTypeDecode
)

// Sentinel errors for easy checking.
var (
	ErrMissingKey = errors.New("api key required")
	ErrAuthFailed = errors.New("authentication failed")
)

// IsAuthFailed reports whether err indicates a rejected API key.
func IsAuthFailed(err error) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == ErrTypeAuth
	}
	return errors.Is(err, ErrAuthFailed)
}

// =============================================================================
// MESSAGE AND REQUEST TYPES
// =============================================================================

// ChatMessage is a single message in the upstream wire format.
type ChatMessage struct {
	Role    string `json:"role"` // "user", "assistant", or "system"
	Content string `json:"content"`
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) ChatMessage {
	return ChatMessage{Role: "user", Content: content}
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) ChatMessage {
	return ChatMessage{Role: "assistant", Content: content}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) ChatMessage {
	return ChatMessage{Role: "system", Content: content}
}

// ChatRequest is a chat completion request.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	TopP        float64       `json:"top_p"`
	MaxTokens   int           `json:"max_completion_tokens,omitempty"`
	Stop        *string       `json:"stop"`
	Stream      bool          `json:"stream"`
}

// apiErrorResponse is the error body returned by the upstream API.
type apiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// =============================================================================
// MODEL TYPES
// =============================================================================

// Model describes one entry from the model listing endpoint.
type Model struct {
	ID            string `json:"id"`
	Object        string `json:"object"`
	Created       int64  `json:"created"`
	OwnedBy       string `json:"owned_by"`
	Active        bool   `json:"active"`
	ContextWindow int    `json:"context_window"`
}

// ModelList is the model listing response, with models additionally
// grouped by owner for the UI's model picker.
type ModelList struct {
	Object         string             `json:"object,omitempty"`
	Data           []Model            `json:"data"`
	GroupedByOwner map[string][]Model `json:"groupedByOwner"`
}

// GroupByOwner buckets models by their owner, with unowned models
// collected under "Unknown".
func GroupByOwner(models []Model) map[string][]Model {
	grouped := make(map[string][]Model)
	for _, m := range models {
		owner := m.OwnedBy
		if owner == "" {
			owner = "Unknown"
		}
		grouped[owner] = append(grouped[owner], m)
	}
	return grouped
}

// =============================================================================
// CLIENT
// =============================================================================

// DefaultBaseURL is the Groq OpenAI-compatible API root.
const DefaultBaseURL = "https://api.groq.com/openai/v1"

// DefaultTimeout bounds non-streaming requests. Streaming requests are
// bounded by the caller's context instead.
const DefaultTimeout = 30 * time.Second

// Client handles communication with a Groq-compatible API.
// It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client

	// streamClient has no client-side timeout; stream lifetime is owned by
	// the request context.
	streamClient *http.Client
}

// NewClient creates a client against the default Groq endpoint.
func NewClient() *Client {
	return NewClientWithBaseURL(DefaultBaseURL)
}

// NewClientWithBaseURL creates a client against a custom endpoint,
// e.g. a local mock or a compatible proxy.
func NewClientWithBaseURL(baseURL string) *Client {
	return &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		httpClient:   &http.Client{Timeout: DefaultTimeout},
		streamClient: &http.Client{},
	}
}

// BaseURL returns the configured endpoint root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// =============================================================================
// MODEL LISTING
// =============================================================================

// ListModels retrieves the available models and groups them by owner.
func (c *Client) ListModels(ctx context.Context, apiKey string) (*ModelList, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, &ClientError{Type: ErrTypeMissingKey, Message: "api key required", Cause: ErrMissingKey}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "model list request failed", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.errorFromResponse(resp)
	}

	var list ModelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, &ClientError{Type: ErrTypeDecode, Message: "failed to decode model list", Cause: err}
	}

	list.GroupedByOwner = GroupByOwner(list.Data)
	return &list, nil
}

// =============================================================================
// ERROR DECODING
// =============================================================================

// errorFromResponse converts a non-2xx response into a ClientError,
// preferring the API's own error message when the body carries one.
func (c *Client) errorFromResponse(resp *http.Response) error {
	errType := ErrTypeStatus
	var cause error
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		errType = ErrTypeAuth
		cause = ErrAuthFailed
	}

	var apiErr apiErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error.Message != "" {
		return &ClientError{Type: errType, Status: resp.StatusCode, Message: apiErr.Error.Message, Cause: cause}
	}
	return &ClientError{Type: errType, Status: resp.StatusCode, Message: "request failed: " + resp.Status, Cause: cause}
}
