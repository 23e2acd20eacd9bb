// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dialog runs one simulated conversation end-to-end.
//
// The Orchestrator is an explicit finite-state machine over the phases
// START, USER, CHATBOT, END_CRITIQUE and END. Each phase issues exactly one
// blocking call to an external adapter and merges the returned partial
// state into the session's DialogState. Many orchestrators run
// concurrently, one per session, with no shared mutable state between
// them.
package dialog

import (
	"context"

	"github.com/AleutianAI/AleutianSim/services/simulator/datatypes"
	"github.com/tmc/langchaingo/llms"
)

// StopMarker is the literal substring that marks the simulated user's
// intent to end the conversation.
const StopMarker = "###STOP"

// StopFailureMarker is the literal substring marking that the user judged
// the chatbot noncompliant at stop time.
const StopFailureMarker = "###STOP FAILURE"

// UserReply is the structured output of one user agent turn.
type UserReply struct {
	// Response is the user's next utterance, or the stop decision when it
	// contains StopMarker.
	Response string `json:"response"`

	// Thought is the user agent's internal rationale for this turn. Nil
	// when the agent emitted none.
	Thought *string `json:"thought"`
}

// UserAgent simulates the human side of the conversation.
//
// Invoke receives the seed instruction plus the rendered conversation so
// far (and, after a disputed stop, the critique feedback block) and
// returns the next utterance with an optional rationale.
type UserAgent interface {
	Invoke(ctx context.Context, messages []llms.ChatMessage) (*UserReply, error)
}

// ChatbotUnderTest is the system being evaluated.
//
// Invoke receives the full chatbot-facing message sequence plus the
// per-session args (including "thread_id") and returns the provider's full
// message log for the turn: the echoed input followed by any assistant
// messages, tool-call requests and tool results, in order.
type ChatbotUnderTest interface {
	Invoke(ctx context.Context, messages []llms.ChatMessage, args map[string]any) ([]llms.ChatMessage, error)
}

// CritiqueJudge arbitrates a disputed stop decision.
//
// Invoke receives the user's judgement and the full transcript and returns
// free-text feedback for the retry.
type CritiqueJudge interface {
	Invoke(ctx context.Context, judgement string, conversation string) (string, error)
}

// MemorySink persists conversation artifacts keyed by thread ID.
//
// Implementations must tolerate concurrent invocation from multiple
// sessions with distinct thread IDs and must preserve call order within a
// single thread ID. Sink failures never abort a session; the orchestrator
// logs and continues.
type MemorySink interface {
	InsertThought(threadID, text string) error
	InsertDialog(threadID, role, text string) error
	InsertTool(threadID, name, argsJSON, output string) error
}

// DecisionEnd is the terminal marker a ContinuationDecider returns to end
// the session after a critique round.
const DecisionEnd = "END"

// ContinuationDecider inspects the post-critique state and decides whether
// the session terminates (DecisionEnd) or the user gets another turn (any
// other return value).
type ContinuationDecider func(state *datatypes.DialogState) string

// MaxCritiqueRounds returns a decider that ends the session after the
// user's stop decision has been disputed n times.
//
// The round counter is per returned decider, so each session needs its own
// instance.
func MaxCritiqueRounds(n int) ContinuationDecider {
	rounds := 0
	return func(_ *datatypes.DialogState) string {
		rounds++
		if rounds >= n {
			return DecisionEnd
		}
		return "continue"
	}
}
