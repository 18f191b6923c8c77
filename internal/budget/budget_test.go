// Copyright (c) 2025 Ziht Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package budget

import (
	"strings"
	"testing"

	"github.com/zihtlabs/zihtchat/internal/model"
)

// =============================================================================
// COST ESTIMATION TESTS
// =============================================================================

func TestEstimateCost(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"abcdefgh", 2},
		{strings.Repeat("x", 100), 25},
	}

	for _, tt := range tests {
		if got := EstimateCost(tt.text); got != tt.want {
			t.Errorf("EstimateCost(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestEstimateCost_Monotonic(t *testing.T) {
	prev := 0
	for i := 0; i < 64; i++ {
		cost := EstimateCost(strings.Repeat("a", i))
		if cost < prev {
			t.Fatalf("cost decreased at length %d: %d < %d", i, cost, prev)
		}
		prev = cost
	}
}

// =============================================================================
// TRIMMING TESTS
// =============================================================================

func msgOfLen(n int) model.Message {
	return model.NewUserMessage(strings.Repeat("x", n))
}

func totalCost(messages []model.Message) int {
	total := 0
	for _, msg := range messages {
		total += MessageCost(msg)
	}
	return total
}

func TestTrimToBudget_Empty(t *testing.T) {
	if got := TrimToBudget(nil, 100); len(got) != 0 {
		t.Errorf("Trim of nil = %d messages, want 0", len(got))
	}
	if got := TrimToBudget([]model.Message{}, 100); len(got) != 0 {
		t.Errorf("Trim of empty = %d messages, want 0", len(got))
	}
}

func TestTrimToBudget_ZeroOrNegativeBudget(t *testing.T) {
	messages := []model.Message{msgOfLen(4)}

	if got := TrimToBudget(messages, 0); len(got) != 0 {
		t.Errorf("budget 0 should yield empty, got %d messages", len(got))
	}
	if got := TrimToBudget(messages, -5); len(got) != 0 {
		t.Errorf("negative budget should yield empty, got %d messages", len(got))
	}
}

func TestTrimToBudget_AllFit(t *testing.T) {
	messages := []model.Message{msgOfLen(4), msgOfLen(4), msgOfLen(4)}
	// Each message costs 1 + 4 overhead = 5.
	got := TrimToBudget(messages, 15)
	if len(got) != 3 {
		t.Fatalf("got %d messages, want 3", len(got))
	}
	for i := range got {
		if got[i].ID != messages[i].ID {
			t.Errorf("message %d reordered", i)
		}
	}
}

func TestTrimToBudget_DropsOldestFirst(t *testing.T) {
	messages := []model.Message{msgOfLen(4), msgOfLen(4), msgOfLen(4)}
	got := TrimToBudget(messages, 11) // room for two messages at cost 5 each

	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2", len(got))
	}
	if got[0].ID != messages[1].ID || got[1].ID != messages[2].ID {
		t.Error("trim should keep the most recent suffix in order")
	}
}

func TestTrimToBudget_SingleMessageTooLarge(t *testing.T) {
	messages := []model.Message{msgOfLen(4000)} // cost 1004
	got := TrimToBudget(messages, 100)

	if len(got) != 0 {
		t.Errorf("oversized single message should yield empty, got %d", len(got))
	}
	if messages[0].Content != strings.Repeat("x", 4000) {
		t.Error("input message must never be truncated")
	}
}

// TestTrimToBudget_SuffixProperty checks the suffix, order, and budget
// invariants across a sweep of budgets.
func TestTrimToBudget_SuffixProperty(t *testing.T) {
	messages := []model.Message{
		msgOfLen(10), msgOfLen(200), msgOfLen(3), msgOfLen(77), msgOfLen(1),
	}

	for b := 0; b <= totalCost(messages)+10; b++ {
		got := TrimToBudget(messages, b)

		if totalCost(got) > b {
			t.Fatalf("budget %d: total cost %d exceeds budget", b, totalCost(got))
		}

		// Result must be a suffix of the input.
		offset := len(messages) - len(got)
		for i := range got {
			if got[i].ID != messages[offset+i].ID {
				t.Fatalf("budget %d: result is not an ordered suffix", b)
			}
		}

		// Longest suffix: adding one more message must overflow.
		if offset > 0 && len(got) < len(messages) {
			if totalCost(got)+MessageCost(messages[offset-1]) <= b {
				t.Fatalf("budget %d: a longer suffix would still fit", b)
			}
		}
	}
}

func TestTrimToBudget_DoesNotAliasInput(t *testing.T) {
	messages := []model.Message{msgOfLen(4), msgOfLen(4)}
	got := TrimToBudget(messages, 100)

	got[0] = got[0].WithContent("mutated")
	if messages[0].Content == "mutated" {
		t.Error("trimmed slice must not share backing storage with input")
	}
}
