// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm is the text-generation layer behind the simulator's agents.
//
// The simulated user, the critique judge and the scoring judge are all
// thin prompt wrappers over an LLMClient. The chatbot under test may also
// be an LLMClient when the harness is exercised against itself.
package llm

import "context"

// GenerationParams tunes one generation call. Nil fields keep the
// backend's defaults.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// LLMClient defines the standard interface for any LLM backend.
type LLMClient interface {
	// Generate produces a completion for the prompt under the given
	// system persona. An empty system string lets the backend pick its
	// default persona.
	Generate(ctx context.Context, system, prompt string, params GenerationParams) (string, error)
}
