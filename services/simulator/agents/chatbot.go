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
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/AleutianAI/AleutianSim/services/llm"
)

// chatbotArgSystemPrompt is the ChatbotArgs key carrying an optional
// system prompt for the stand-in chatbot.
const chatbotArgSystemPrompt = "system_prompt"

// LLMChatbot is an LLM stand-in for the chatbot under test.
//
// Description:
//
//	Real targets sit behind their own adapters; this one lets the harness
//	exercise a plain LLM as the chatbot. It returns the provider-style
//	message log the orchestrator expects: the echoed input followed by
//	one assistant message. It never emits tool calls.
type LLMChatbot struct {
	client llm.LLMClient
	params llm.GenerationParams
}

// NewLLMChatbot builds a stand-in chatbot over an LLM backend.
func NewLLMChatbot(client llm.LLMClient, params llm.GenerationParams) (*LLMChatbot, error) {
	if client == nil {
		return nil, fmt.Errorf("llm chatbot requires an LLM client")
	}
	return &LLMChatbot{client: client, params: params}, nil
}

// Invoke implements dialog.ChatbotUnderTest.
func (b *LLMChatbot) Invoke(ctx context.Context, messages []llms.ChatMessage, args map[string]any) ([]llms.ChatMessage, error) {
	system := ""
	if v, ok := args[chatbotArgSystemPrompt].(string); ok {
		system = v
	}

	var sb strings.Builder
	for _, m := range messages {
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		switch m.GetType() {
		case llms.ChatMessageTypeHuman:
			sb.WriteString("User: ")
		case llms.ChatMessageTypeAI:
			sb.WriteString("Assistant: ")
		}
		sb.WriteString(m.GetContent())
	}
	sb.WriteString("\nAssistant:")

	completion, err := b.client.Generate(ctx, system, sb.String(), b.params)
	if err != nil {
		return nil, fmt.Errorf("chatbot generation failed: %w", err)
	}

	// Provider-style log: echoed input, then the new assistant turn.
	log := append([]llms.ChatMessage(nil), messages...)
	log = append(log, llms.AIChatMessage{Content: strings.TrimSpace(completion)})
	return log, nil
}
