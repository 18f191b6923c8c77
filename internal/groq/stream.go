// Copyright (c) 2025 Ziht Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package groq

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

// =============================================================================
// STREAM TYPES
// =============================================================================

// StreamCallback is called for each decoded text fragment, in arrival
// order. The next fragment is not read until the callback returns.
type StreamCallback func(fragment string)

// streamChunk is one SSE data payload from the completions endpoint.
type streamChunk struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Role    string `json:"role,omitempty"`
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// content returns the text carried by the chunk, if any.
func (c *streamChunk) content() string {
	if len(c.Choices) > 0 {
		return c.Choices[0].Delta.Content
	}
	return ""
}

// done reports whether the chunk carries a finish reason.
func (c *streamChunk) done() bool {
	return len(c.Choices) > 0 && c.Choices[0].FinishReason != ""
}

// =============================================================================
// SSE READER
// =============================================================================

// SSEReader parses Server-Sent Events from a byte stream.
type SSEReader struct {
	reader *bufio.Reader
}

// NewSSEReader creates an SSE reader over r.
func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{reader: bufio.NewReader(r)}
}

// ReadData returns the data payload of the next SSE event, joining
// multi-line data fields with newlines. Returns io.EOF when the stream
// ends. Non-data fields (event:, id:, retry:, comments) are skipped.
func (s *SSEReader) ReadData() ([]byte, error) {
	var dataLines [][]byte

	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				if len(dataLines) > 0 {
					return bytes.Join(dataLines, []byte("\n")), nil
				}
				return nil, io.EOF
			}
			return nil, err
		}

		line = bytes.TrimRight(line, "\r\n")

		// Blank line terminates an event.
		if len(line) == 0 {
			if len(dataLines) > 0 {
				return bytes.Join(dataLines, []byte("\n")), nil
			}
			continue
		}

		if bytes.HasPrefix(line, []byte("data:")) {
			dataLines = append(dataLines, bytes.TrimSpace(line[5:]))
		}
	}
}

// =============================================================================
// STREAMING CHAT
// =============================================================================

// ChatStream performs a streaming chat completion. Each decoded fragment
// is handed to the callback synchronously; processing of a fragment
// completes before the next one is read, so fragments can never be
// observed out of order. Returns when the stream ends ([DONE] or EOF),
// the context is cancelled, or an error occurs.
func (c *Client) ChatStream(ctx context.Context, apiKey string, req *ChatRequest, callback StreamCallback) error {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return &ClientError{Type: ErrTypeMissingKey, Message: "api key required", Cause: ErrMissingKey}
	}

	req.Stream = true
	body, err := json.Marshal(req)
	if err != nil {
		return &ClientError{Type: ErrTypeDecode, Message: "failed to marshal request", Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		return &ClientError{Type: ErrTypeConnection, Message: "stream request failed", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.errorFromResponse(resp)
	}

	return processStream(ctx, resp.Body, callback)
}

// processStream decodes the SSE body and forwards text fragments.
// Malformed data payloads are skipped rather than aborting the stream.
func processStream(ctx context.Context, body io.Reader, callback StreamCallback) error {
	reader := NewSSEReader(body)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		data, err := reader.ReadData()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return &ClientError{Type: ErrTypeDecode, Message: "stream read failed", Cause: err}
		}

		if bytes.Equal(data, []byte("[DONE]")) {
			return nil
		}

		var chunk streamChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			continue
		}

		if content := chunk.content(); content != "" {
			callback(content)
		}
		if chunk.done() {
			return nil
		}
	}
}

// =============================================================================
// ACCUMULATION
// =============================================================================

// ChatStreamAccumulate performs a streaming chat but returns the complete
// response text. On error the fragments received so far are returned
// alongside the error.
func (c *Client) ChatStreamAccumulate(ctx context.Context, apiKey string, req *ChatRequest) (string, error) {
	var accumulated strings.Builder
	err := c.ChatStream(ctx, apiKey, req, func(fragment string) {
		accumulated.WriteString(fragment)
	})
	return accumulated.String(), err
}
