// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the shared data model for the simulator:
// dialog state, simulation results, scenario events, and policy catalogs.
//
// Messages use the langchaingo chat message types (llms.ChatMessage and its
// concrete implementations) so that tool-call requests and tool results
// carry their pairing identifiers in the standard shape chatbot adapters
// already produce.
package datatypes

import (
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// Display names used when rendering a transcript with role prefixes.
const (
	roleUser    = "User"
	roleChatbot = "Chatbot"
	roleTool    = "Tool"
	roleSystem  = "System"
)

// roleLabel maps a message type to its transcript prefix.
//
// The transcript is rendered from the chatbot's point of view, so human
// messages are the simulated user and AI messages are the chatbot under
// test.
func roleLabel(t llms.ChatMessageType) string {
	switch t {
	case llms.ChatMessageTypeHuman:
		return roleUser
	case llms.ChatMessageTypeAI:
		return roleChatbot
	case llms.ChatMessageTypeTool:
		return roleTool
	case llms.ChatMessageTypeSystem:
		return roleSystem
	default:
		return string(t)
	}
}

// MessagesToString renders an ordered message sequence as plain text.
//
// Description:
//
//	Each message becomes one block, in order. When withRoles is true every
//	block is prefixed with the speaker label ("User: ...", "Chatbot: ...").
//	Empty messages (for example assistant turns that only carry tool-call
//	requests) are skipped so prompts stay compact.
//
// Inputs:
//   - messages: The ordered sequence to render. May be empty.
//   - withRoles: Whether to prefix each block with the speaker label.
//
// Outputs:
//   - string: The rendered transcript, blocks joined by newlines.
func MessagesToString(messages []llms.ChatMessage, withRoles bool) string {
	var sb strings.Builder
	for _, m := range messages {
		content := strings.TrimSpace(m.GetContent())
		if content == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		if withRoles {
			sb.WriteString(roleLabel(m.GetType()))
			sb.WriteString(": ")
		}
		sb.WriteString(content)
	}
	return sb.String()
}

// LastMessageContent returns the content of the final message, or "" when
// the sequence is empty.
func LastMessageContent(messages []llms.ChatMessage) string {
	if len(messages) == 0 {
		return ""
	}
	return messages[len(messages)-1].GetContent()
}
