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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/AleutianAI/AleutianSim/services/llm"
	"github.com/AleutianAI/AleutianSim/services/simulator/analysis"
	"github.com/AleutianAI/AleutianSim/services/simulator/dialog"
)

// fakeLLM returns a fixed completion and records what it was asked.
type fakeLLM struct {
	completion string
	err        error
	systems    []string
	prompts    []string
}

func (f *fakeLLM) Generate(_ context.Context, system, prompt string, _ llm.GenerationParams) (string, error) {
	f.systems = append(f.systems, system)
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.completion, nil
}

// Compile-time adapter contract checks.
var (
	_ dialog.UserAgent        = (*SimulatedUser)(nil)
	_ dialog.ChatbotUnderTest = (*LLMChatbot)(nil)
	_ dialog.CritiqueJudge    = (*Critique)(nil)
	_ analysis.ScoringAgent   = (*PolicyAnalyzer)(nil)
)

func TestParseUserReply(t *testing.T) {
	tests := []struct {
		name         string
		completion   string
		wantResponse string
		wantThought  *string
	}{
		{
			name:         "thought and response",
			completion:   "Thought:\nthe bot is stalling\nUser Response:\nJust answer me.",
			wantResponse: "Just answer me.",
			wantThought:  strPtr("Thought:\nthe bot is stalling"),
		},
		{
			name:         "no label",
			completion:   "Hello there",
			wantResponse: "Hello there",
			wantThought:  nil,
		},
		{
			name:         "label with empty thought",
			completion:   "User Response:\n###STOP",
			wantResponse: "###STOP",
			wantThought:  nil,
		},
		{
			name:         "splits on last label",
			completion:   "User Response: draft\nUser Response:\nfinal answer",
			wantResponse: "final answer",
			wantThought:  strPtr("User Response: draft"),
		},
		{
			name:         "surrounding whitespace trimmed",
			completion:   "  Thought:\nfine  \nUser Response:\n  ok then  ",
			wantResponse: "ok then",
			wantThought:  strPtr("Thought:\nfine"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := ParseUserReply(tt.completion)
			assert.Equal(t, tt.wantResponse, reply.Response)
			if tt.wantThought == nil {
				assert.Nil(t, reply.Thought)
			} else {
				require.NotNil(t, reply.Thought)
				assert.Equal(t, *tt.wantThought, *reply.Thought)
			}
		})
	}
}

func strPtr(v string) *string { return &v }

func TestSimulatedUserInvoke(t *testing.T) {
	fake := &fakeLLM{completion: "Thought:\nprobe the refund flow\nUser Response:\nI want my money back"}
	user, err := NewSimulatedUser(fake, llm.GenerationParams{})
	require.NoError(t, err)

	reply, err := user.Invoke(context.Background(), []llms.ChatMessage{
		llms.HumanChatMessage{Content: "You are an impatient customer."},
		llms.HumanChatMessage{Content: "# Conversation:\nChatbot: Hello!"},
	})
	require.NoError(t, err)

	assert.Equal(t, "I want my money back", reply.Response)
	require.NotNil(t, reply.Thought)

	// Seed message becomes the system prompt, the rest the user prompt.
	require.Len(t, fake.systems, 1)
	assert.Equal(t, "You are an impatient customer.", fake.systems[0])
	assert.Contains(t, fake.prompts[0], "Chatbot: Hello!")
}

func TestSimulatedUserInvokeNoMessages(t *testing.T) {
	user, err := NewSimulatedUser(&fakeLLM{}, llm.GenerationParams{})
	require.NoError(t, err)

	_, err = user.Invoke(context.Background(), nil)
	assert.Error(t, err)
}

func TestSimulatedUserBackendError(t *testing.T) {
	backendErr := errors.New("rate limited")
	user, err := NewSimulatedUser(&fakeLLM{err: backendErr}, llm.GenerationParams{})
	require.NoError(t, err)

	_, err = user.Invoke(context.Background(), []llms.ChatMessage{
		llms.HumanChatMessage{Content: "seed"},
	})
	assert.ErrorIs(t, err, backendErr)
}

func TestLLMChatbotInvoke(t *testing.T) {
	fake := &fakeLLM{completion: "  I can help with that.  "}
	bot, err := NewLLMChatbot(fake, llm.GenerationParams{})
	require.NoError(t, err)

	input := []llms.ChatMessage{
		llms.AIChatMessage{Content: "Hello!"},
		llms.HumanChatMessage{Content: "I need help"},
	}
	out, err := bot.Invoke(context.Background(), input, map[string]any{
		"system_prompt": "You are a support agent.",
		"thread_id":     "t1",
	})
	require.NoError(t, err)

	// Echoed input plus exactly one trimmed assistant message.
	require.Len(t, out, 3)
	assert.Equal(t, input[0], out[0])
	assert.Equal(t, input[1], out[1])
	assert.Equal(t, llms.ChatMessageTypeAI, out[2].GetType())
	assert.Equal(t, "I can help with that.", out[2].GetContent())

	assert.Equal(t, "You are a support agent.", fake.systems[0])
	assert.Contains(t, fake.prompts[0], "User: I need help")
	assert.Contains(t, fake.prompts[0], "Assistant: Hello!")
}

func TestCritiqueInvoke(t *testing.T) {
	fake := &fakeLLM{completion: "the judgement is premature"}
	critique, err := NewCritique(fake, llm.GenerationParams{})
	require.NoError(t, err)

	verdict, err := critique.Invoke(context.Background(),
		"The chatbot adhered to the policies\n Reason: all good",
		"User: hi\nChatbot: hello")
	require.NoError(t, err)

	assert.Equal(t, "the judgement is premature", verdict)
	assert.Contains(t, fake.prompts[0], "# Judgement:")
	assert.Contains(t, fake.prompts[0], "User: hi\nChatbot: hello")
}

func TestPolicyAnalyzerOutputNormalizes(t *testing.T) {
	fake := &fakeLLM{completion: "```json\n{\"conversation_policies\": [0], \"violated_policies\": null}\n```"}
	analyzer, err := NewPolicyAnalyzer(fake, llm.GenerationParams{})
	require.NoError(t, err)

	raw, err := analyzer.Analyze(context.Background(), analysis.ScoringRequest{
		Policies:     "0) Flow: refund\npolicy: verify identity first",
		Conversation: "User: refund please",
		Judgment:     "###STOP\nall fine",
	})
	require.NoError(t, err)

	outcome, err := analysis.Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, outcome.MatchedPolicies)
	assert.Equal(t, []int{}, outcome.ViolatedPolicies)

	assert.Contains(t, fake.prompts[0], "# Policies:")
	assert.Contains(t, fake.prompts[0], "# Conversation:")
}

func TestConstructorsRequireClient(t *testing.T) {
	params := llm.GenerationParams{}
	_, err := NewSimulatedUser(nil, params)
	assert.Error(t, err)
	_, err = NewLLMChatbot(nil, params)
	assert.Error(t, err)
	_, err = NewCritique(nil, params)
	assert.Error(t, err)
	_, err = NewPolicyAnalyzer(nil, params)
	assert.Error(t, err)
}
