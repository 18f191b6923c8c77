// Copyright (c) 2025 Ziht Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"log"
	"strings"

	"github.com/zihtlabs/zihtchat/internal/kv"
)

// Storage keys for session-level generation state.
const (
	paramsKey        = "generation_params"
	systemMessageKey = "system_message"
)

// storedParams is the wire shape of the persisted slider values.
type storedParams struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"topP"`
	MaxTokens   int     `json:"maxTokens"`
}

// LoadParams returns the generation parameters for a new session: the
// last-used persisted values where present, the configured defaults
// otherwise. Corrupt persisted values are logged and ignored.
func LoadParams(backend kv.Store, defaults GenerationConfig) GenerationConfig {
	out := defaults

	if data, err := backend.Get(paramsKey); err == nil {
		var p storedParams
		if err := json.Unmarshal(data, &p); err != nil {
			log.Printf("warning: persisted generation params are corrupt, using defaults: %v", err)
		} else {
			out.Temperature = p.Temperature
			out.TopP = p.TopP
			out.MaxTokens = p.MaxTokens
		}
	}

	if data, err := backend.Get(systemMessageKey); err == nil {
		if msg := strings.TrimSpace(string(data)); msg != "" {
			out.SystemMessage = msg
		}
	}

	out.clamp()
	return out
}

// SaveParams persists the last-used generation parameters and system
// message. Failures are logged, not returned: losing slider state is
// not worth interrupting a chat.
func SaveParams(backend kv.Store, params GenerationConfig) {
	data, err := json.Marshal(storedParams{
		Temperature: params.Temperature,
		TopP:        params.TopP,
		MaxTokens:   params.MaxTokens,
	})
	if err == nil {
		if err := backend.Set(paramsKey, data); err != nil {
			log.Printf("warning: failed to persist generation params: %v", err)
		}
	}
	if err := backend.Set(systemMessageKey, []byte(params.SystemMessage)); err != nil {
		log.Printf("warning: failed to persist system message: %v", err)
	}
}
