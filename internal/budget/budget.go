// Copyright (c) 2025 Ziht Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package budget

import "github.com/zihtlabs/zihtchat/internal/model"

// =============================================================================
// COST ESTIMATION
// =============================================================================

// charsPerToken is the approximation used by GPT-family tokenizers:
// roughly four characters per token on average.
const charsPerToken = 4

// MessageOverhead is the fixed per-message cost added for role and framing
// metadata when a message is sent upstream.
const MessageOverhead = 4

// EstimateCost returns the estimated token cost of a piece of text.
// The estimate is ceil(len/4): deterministic, stable for the same input,
// and monotonic in text length.
func EstimateCost(text string) int {
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// MessageCost returns the estimated cost of one message including the
// fixed per-message overhead.
func MessageCost(msg model.Message) int {
	return EstimateCost(msg.Content) + MessageOverhead
}

// =============================================================================
// TRIMMING
// =============================================================================

// TrimToBudget selects the longest suffix of messages whose cumulative
// estimated cost does not exceed budget. Relative order of the retained
// messages is preserved. Messages are never partially included: if even
// the single most recent message exceeds the budget, the result is empty.
func TrimToBudget(messages []model.Message, budget int) []model.Message {
	if len(messages) == 0 || budget <= 0 {
		return []model.Message{}
	}

	total := 0
	start := len(messages)
	for i := len(messages) - 1; i >= 0; i-- {
		cost := MessageCost(messages[i])
		if total+cost > budget {
			break
		}
		total += cost
		start = i
	}

	trimmed := make([]model.Message, len(messages)-start)
	copy(trimmed, messages[start:])
	return trimmed
}
