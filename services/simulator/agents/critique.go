// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agents

import (
	"context"
	"fmt"

	"github.com/AleutianAI/AleutianSim/services/llm"
)

const critiqueSystemPrompt = "You are a strict arbiter reviewing a conversation between a user and a chatbot. " +
	"The user decided to end the conversation with the stated judgement. " +
	"Decide whether the judgement is justified by the conversation and explain what the user got right or wrong. " +
	"Be concise and concrete."

const critiquePromptTemplate = "# Judgement:\n%s\n\n# Conversation:\n%s\n\n" +
	"Provide your feedback on the judgement."

// Critique arbitrates disputed stop decisions with an LLM.
type Critique struct {
	client llm.LLMClient
	params llm.GenerationParams
}

// NewCritique builds a critique judge over an LLM backend.
func NewCritique(client llm.LLMClient, params llm.GenerationParams) (*Critique, error) {
	if client == nil {
		return nil, fmt.Errorf("critique requires an LLM client")
	}
	return &Critique{client: client, params: params}, nil
}

// Invoke implements dialog.CritiqueJudge.
func (c *Critique) Invoke(ctx context.Context, judgement, conversation string) (string, error) {
	prompt := fmt.Sprintf(critiquePromptTemplate, judgement, conversation)
	verdict, err := c.client.Generate(ctx, critiqueSystemPrompt, prompt, c.params)
	if err != nil {
		return "", fmt.Errorf("critique generation failed: %w", err)
	}
	return verdict, nil
}
