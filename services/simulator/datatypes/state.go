// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"maps"

	"github.com/tmc/langchaingo/llms"
)

// DialogState is the mutable state of one in-flight simulated conversation.
//
// Description:
//
//	One DialogState exists per session. Message sequences are append-only
//	and never reorder within a session. A non-empty StopSignal marks the
//	simulated user's terminal decision; a non-empty CritiqueFeedback marks
//	a disputed stop awaiting a retry.
//
// Fields:
//   - UserMessages: Conversation as seen by the simulated user. Index 0 is
//     the seed instruction for the user agent.
//   - ChatbotMessages: Conversation as seen by the chatbot under test.
//     Index 0 is the seed message opening the conversation.
//   - ChatbotArgs: Opaque configuration forwarded to the chatbot adapter
//     on every turn.
//   - ThreadID: Unique session identifier, stable for the session's
//     lifetime. Persistence key for the memory sink.
//   - UserThoughts: Internal rationales emitted by the user agent.
//   - CritiqueFeedback: Verdict text from the critique judge after a
//     disputed stop. Empty means no pending feedback.
//   - StopSignal: Non-empty text is the user agent's terminal decision.
//
// Thread Safety: NOT safe for concurrent use. Each session owns its state
// exclusively; cross-session isolation is the orchestrator's contract.
type DialogState struct {
	UserMessages     []llms.ChatMessage `json:"user_messages"`
	ChatbotMessages  []llms.ChatMessage `json:"chatbot_messages"`
	ChatbotArgs      map[string]any     `json:"chatbot_args,omitempty"`
	ThreadID         string             `json:"thread_id"`
	UserThoughts     []string           `json:"user_thoughts,omitempty"`
	CritiqueFeedback string             `json:"critique_feedback,omitempty"`
	StopSignal       string             `json:"stop_signal,omitempty"`
}

// StateDelta is a partial update produced by one orchestrator node.
//
// List-valued fields append onto the state; scalar fields replace the
// current value only when the pointer is non-nil, so a node can leave a
// scalar untouched by omitting it.
type StateDelta struct {
	UserMessages     []llms.ChatMessage
	ChatbotMessages  []llms.ChatMessage
	UserThoughts     []string
	CritiqueFeedback *string
	StopSignal       *string
}

// Apply merges a node delta into the state.
//
// Merge policy: message and thought sequences append in order, scalar
// fields replace when set. This is the only way node output reaches the
// state, which keeps the append-only invariant on the sequences.
func (s *DialogState) Apply(d StateDelta) {
	s.UserMessages = append(s.UserMessages, d.UserMessages...)
	s.ChatbotMessages = append(s.ChatbotMessages, d.ChatbotMessages...)
	s.UserThoughts = append(s.UserThoughts, d.UserThoughts...)
	if d.CritiqueFeedback != nil {
		s.CritiqueFeedback = *d.CritiqueFeedback
	}
	if d.StopSignal != nil {
		s.StopSignal = *d.StopSignal
	}
}

// Snapshot returns a copy of the state safe to hand to another goroutine.
//
// Message slices are copied; the messages themselves are value types and
// are shared. ChatbotArgs is shallow-copied.
func (s *DialogState) Snapshot() *DialogState {
	if s == nil {
		return nil
	}
	cp := &DialogState{
		UserMessages:     append([]llms.ChatMessage(nil), s.UserMessages...),
		ChatbotMessages:  append([]llms.ChatMessage(nil), s.ChatbotMessages...),
		ThreadID:         s.ThreadID,
		UserThoughts:     append([]string(nil), s.UserThoughts...),
		CritiqueFeedback: s.CritiqueFeedback,
		StopSignal:       s.StopSignal,
	}
	if s.ChatbotArgs != nil {
		cp.ChatbotArgs = maps.Clone(s.ChatbotArgs)
	}
	return cp
}

// LastUserThought returns the most recent thought, or "" if none exist.
func (s *DialogState) LastUserThought() string {
	if len(s.UserThoughts) == 0 {
		return ""
	}
	return s.UserThoughts[len(s.UserThoughts)-1]
}
