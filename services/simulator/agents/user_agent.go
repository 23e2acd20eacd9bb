// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package agents provides LLM-backed implementations of the dialog
// adapter interfaces: the simulated user, the critique judge, the scoring
// judge, and an LLM stand-in chatbot for exercising the harness against
// itself.
package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/AleutianAI/AleutianSim/services/llm"
	"github.com/AleutianAI/AleutianSim/services/simulator/dialog"
)

// userResponseLabel separates the rationale from the utterance in the
// simulated user's output format.
const userResponseLabel = "User Response:"

// SimulatedUser drives the human side of the conversation with an LLM.
//
// The seed message (index 0 of the invocation) carries the scenario's
// persona and the required output format:
//
//	Thought:
//	<rationale>
//	User Response:
//	<utterance>
//
// A reply without the label is treated as a bare utterance with no
// thought.
type SimulatedUser struct {
	client llm.LLMClient
	params llm.GenerationParams
}

// NewSimulatedUser builds a user agent over an LLM backend.
func NewSimulatedUser(client llm.LLMClient, params llm.GenerationParams) (*SimulatedUser, error) {
	if client == nil {
		return nil, fmt.Errorf("simulated user requires an LLM client")
	}
	return &SimulatedUser{client: client, params: params}, nil
}

// Invoke implements dialog.UserAgent.
func (u *SimulatedUser) Invoke(ctx context.Context, messages []llms.ChatMessage) (*dialog.UserReply, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("simulated user invoked with no messages")
	}

	system := messages[0].GetContent()
	var sb strings.Builder
	for _, m := range messages[1:] {
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(m.GetContent())
	}

	completion, err := u.client.Generate(ctx, system, sb.String(), u.params)
	if err != nil {
		return nil, fmt.Errorf("simulated user generation failed: %w", err)
	}
	return ParseUserReply(completion), nil
}

// ParseUserReply splits a completion into thought and response.
//
// Everything before the last "User Response:" label is the thought;
// everything after it is the utterance. Without the label the whole
// completion is the utterance and the thought is nil.
func ParseUserReply(completion string) *dialog.UserReply {
	if idx := strings.LastIndex(completion, userResponseLabel); idx >= 0 {
		thought := strings.TrimSpace(completion[:idx])
		response := strings.TrimSpace(completion[idx+len(userResponseLabel):])
		reply := &dialog.UserReply{Response: response}
		if thought != "" {
			reply.Thought = &thought
		}
		return reply
	}
	return &dialog.UserReply{Response: strings.TrimSpace(completion)}
}
