// Copyright (c) 2025 Ziht Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/zihtlabs/zihtchat/internal/budget"
	"github.com/zihtlabs/zihtchat/internal/groq"
	"github.com/zihtlabs/zihtchat/internal/model"
	"github.com/zihtlabs/zihtchat/internal/profile"
	"github.com/zihtlabs/zihtchat/internal/store"
)

// =============================================================================
// USER-VISIBLE MESSAGES
// =============================================================================

const (
	// MissingKeyMessage is shown in the conversation when no active
	// profile holds an API key.
	MissingKeyMessage = "Please add and select a profile with a valid Groq API key first."

	// GenerationFailedMessage is shown in the conversation when the
	// request or the stream fails.
	GenerationFailedMessage = "Sorry, there was an error getting a response from the AI. Please try again."
)

// responseReserve keeps budget headroom for the model's reply.
const responseReserve = 100

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrBlankInput is returned when the submitted text is empty or
	// whitespace. Nothing is appended to the conversation.
	ErrBlankInput = errors.New("chat: blank input")

	// ErrGenerationInFlight is returned when the conversation already
	// has a generation running.
	ErrGenerationInFlight = errors.New("chat: generation already in flight")
)

// =============================================================================
// STATES
// =============================================================================

// State describes where a conversation's generation currently is.
type State int

const (
	StateIdle State = iota
	StateRequestSent
	StateStreaming
	StateCompleted
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequestSent:
		return "request_sent"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// =============================================================================
// GENERATION CONFIGURATION
// =============================================================================

// Config carries the per-request generation parameters. It is supplied
// fresh on every Submit and never persisted with a conversation.
type Config struct {
	Model         string
	Temperature   float64
	TopP          float64
	MaxTokens     int
	SystemMessage string
}

// normalize clamps parameters into their valid ranges and fills
// defaults for zero values.
func (c Config) normalize() Config {
	if c.Temperature < 0 {
		c.Temperature = 0
	}
	if c.Temperature > 1 {
		c.Temperature = 1
	}
	if c.TopP <= 0 {
		c.TopP = 1
	}
	if c.TopP > 1 {
		c.TopP = 1
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 1024
	}
	return c
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Completer issues streaming chat completions. *groq.Client satisfies
// it; tests substitute fakes.
type Completer interface {
	ChatStream(ctx context.Context, apiKey string, req *groq.ChatRequest, callback groq.StreamCallback) error
}

// Orchestrator runs one completion round trip at a time per
// conversation, coordinating the store, the profile service, and the
// completion client.
type Orchestrator struct {
	store    *store.Store
	profiles *profile.Service
	client   Completer

	mu     sync.Mutex
	states map[string]State
}

// NewOrchestrator wires an orchestrator to its collaborators.
func NewOrchestrator(st *store.Store, profiles *profile.Service, client Completer) *Orchestrator {
	return &Orchestrator{
		store:    st,
		profiles: profiles,
		client:   client,
		states:   make(map[string]State),
	}
}

// State reports the generation state of a conversation. Conversations
// with no generation history are Idle.
func (o *Orchestrator) State(conversationID string) State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.states[conversationID]
}

// begin installs the reentrancy guard, rejecting a second concurrent
// generation for the same conversation.
func (o *Orchestrator) begin(conversationID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch o.states[conversationID] {
	case StateRequestSent, StateStreaming:
		return ErrGenerationInFlight
	}
	o.states[conversationID] = StateRequestSent
	return nil
}

func (o *Orchestrator) setState(conversationID string, s State) {
	o.mu.Lock()
	o.states[conversationID] = s
	o.mu.Unlock()
}

// Submit runs one user turn against the current conversation.
//
// onFragment, when non-nil, receives every piece of assistant text as
// it is committed to the conversation, including inline error texts.
// Cancelling ctx ends the stream early; content received up to that
// point stays in the conversation as the final assistant message.
func (o *Orchestrator) Submit(ctx context.Context, userText string, cfg Config, onFragment func(string)) error {
	if strings.TrimSpace(userText) == "" {
		return ErrBlankInput
	}
	cfg = cfg.normalize()

	conversationID := o.store.CurrentID()
	if err := o.begin(conversationID); err != nil {
		return err
	}

	o.store.Append(model.NewUserMessage(userText))

	apiKey, err := o.profiles.ActiveKey()
	if err != nil {
		o.appendError(MissingKeyMessage, cfg.Model, onFragment)
		o.finish(conversationID, StateIdle)
		return nil
	}

	req := o.buildRequest(cfg)

	var (
		placeholder model.Message
		started     bool
		content     strings.Builder
	)
	streamErr := o.client.ChatStream(ctx, apiKey, req, func(fragment string) {
		if !started {
			started = true
			o.setState(conversationID, StateStreaming)
			placeholder = model.NewAssistantMessage(cfg.Model)
			o.store.Append(placeholder)
		}
		content.WriteString(fragment)
		o.store.ReplaceLast(placeholder.WithContent(content.String()))
		if onFragment != nil {
			onFragment(fragment)
		}
	})

	if streamErr != nil {
		if ctx.Err() != nil && started {
			// Cancelled mid-stream: the partial reply stands.
			o.finish(conversationID, StateCompleted)
			return streamErr
		}
		if started {
			o.store.ReplaceLast(placeholder.WithContent(GenerationFailedMessage))
			if onFragment != nil {
				onFragment(GenerationFailedMessage)
			}
		} else {
			o.appendError(GenerationFailedMessage, cfg.Model, onFragment)
		}
		o.finish(conversationID, StateFailed)
		return fmt.Errorf("chat: generation failed: %w", streamErr)
	}

	if !started {
		// The stream ended without producing any text. An empty
		// assistant message keeps the user/assistant pairing intact.
		o.store.Append(model.NewAssistantMessage(cfg.Model))
	}
	o.finish(conversationID, StateCompleted)
	return nil
}

// buildRequest assembles the wire message list: the system message,
// the budget-trimmed prior history, then the just-submitted user
// message. The budget subtracts the system message cost and a fixed
// reserve from the model's token allowance.
func (o *Orchestrator) buildRequest(cfg Config) *groq.ChatRequest {
	messages := o.store.Messages()
	userMsg := messages[len(messages)-1]
	prior := messages[:len(messages)-1]

	remaining := cfg.MaxTokens - budget.EstimateCost(cfg.SystemMessage) - responseReserve
	trimmed := budget.TrimToBudget(prior, remaining)

	wire := make([]groq.ChatMessage, 0, len(trimmed)+2)
	wire = append(wire, groq.NewSystemMessage(cfg.SystemMessage))
	for _, msg := range trimmed {
		wire = append(wire, groq.ChatMessage{Role: msg.Role.String(), Content: msg.Content})
	}
	wire = append(wire, groq.NewUserMessage(userMsg.Content))

	return &groq.ChatRequest{
		Model:       cfg.Model,
		Messages:    wire,
		Temperature: cfg.Temperature,
		TopP:        cfg.TopP,
		MaxTokens:   cfg.MaxTokens,
	}
}

// appendError records an inline assistant-role error message.
func (o *Orchestrator) appendError(text, modelName string, onFragment func(string)) {
	o.store.Append(model.NewAssistantError(text, modelName))
	if onFragment != nil {
		onFragment(text)
	}
}

// finish records the terminal state and commits the conversation to the
// history collection now that it has messages.
func (o *Orchestrator) finish(conversationID string, terminal State) {
	o.store.SaveCurrent()
	o.setState(conversationID, terminal)
}
