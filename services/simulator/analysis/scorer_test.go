// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analysis

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/AleutianAI/AleutianSim/services/simulator/batch"
	"github.com/AleutianAI/AleutianSim/services/simulator/datatypes"
)

// stubAgent maps conversation text to canned raw output.
type stubAgent struct {
	mu       sync.Mutex
	answers  map[string]any
	err      error
	requests []ScoringRequest
}

func (a *stubAgent) Analyze(_ context.Context, req ScoringRequest) (any, error) {
	a.mu.Lock()
	a.requests = append(a.requests, req)
	a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	if out, ok := a.answers[req.Conversation]; ok {
		return out, nil
	}
	return `{"conversation_policies": [], "violated_policies": []}`, nil
}

func testScenario() *datatypes.Scenario {
	return &datatypes.Scenario{
		Name: "refund-flows",
		Events: []datatypes.Event{
			{
				ID:           1,
				Scenario:     "customer wants a refund",
				UserPrompt:   "act as an angry customer",
				FirstMessage: "Hello! How can I help you?",
				Policies: []datatypes.PolicyCatalogEntry{
					{Flow: "refund", Policy: "verify identity first", Score: 2},
					{Flow: "refund", Policy: "never promise cash refunds", Score: 3},
					{Flow: "refund", Policy: "offer escalation", Score: 1},
				},
			},
		},
	}
}

func finishedState(transcript string) *datatypes.DialogState {
	return &datatypes.DialogState{
		ThreadID: "t1",
		UserMessages: []llms.ChatMessage{
			llms.HumanChatMessage{Content: "seed"},
		},
		ChatbotMessages: []llms.ChatMessage{
			llms.AIChatMessage{Content: "Hello! How can I help you?"},
			llms.HumanChatMessage{Content: transcript},
		},
		UserThoughts: []string{"Thought:\nthe bot complied"},
		StopSignal:   "###STOP",
	}
}

func TestScoreEnrichesResult(t *testing.T) {
	agent := &stubAgent{answers: map[string]any{
		"User: refund please": `{"conversation_policies": [0, 1], "violated_policies": [1]}`,
	}}
	scorer, err := NewScorer(agent, batch.Config{})
	require.NoError(t, err)

	result := &datatypes.SimulationResult{EventID: 1, FinalState: finishedState("refund please")}
	require.NoError(t, scorer.Score(context.Background(), testScenario(), []*datatypes.SimulationResult{result}))

	assert.Equal(t, []int{0, 1}, result.TestedPolicies)
	assert.Equal(t, []int{1}, result.ViolatedPolicies)
	require.NotNil(t, result.TestedChallengeLevel)
	assert.Equal(t, float64(5), *result.TestedChallengeLevel)
	assert.Empty(t, result.Error)
}

func TestScoreRequestContents(t *testing.T) {
	agent := &stubAgent{}
	scorer, err := NewScorer(agent, batch.Config{})
	require.NoError(t, err)

	result := &datatypes.SimulationResult{EventID: 1, FinalState: finishedState("refund please")}
	require.NoError(t, scorer.Score(context.Background(), testScenario(), []*datatypes.SimulationResult{result}))

	require.Len(t, agent.requests, 1)
	req := agent.requests[0]

	// Catalog rendered with 0-based indices.
	assert.Contains(t, req.Policies, "0) Flow: refund\npolicy: verify identity first")
	assert.Contains(t, req.Policies, "2) Flow: refund\npolicy: offer escalation")

	// Transcript excludes the seed message.
	assert.NotContains(t, req.Conversation, "Hello! How can I help you?")
	assert.Contains(t, req.Conversation, "User: refund please")

	// Judgement is the stop text plus the labelled rationale.
	assert.Equal(t, "###STOP\nthe bot complied", req.Judgment)
}

func TestScoreOutOfRangeIndicesIgnored(t *testing.T) {
	agent := &stubAgent{answers: map[string]any{
		"User: refund please": `{"conversation_policies": [0, 7, -1], "violated_policies": []}`,
	}}
	scorer, err := NewScorer(agent, batch.Config{})
	require.NoError(t, err)

	result := &datatypes.SimulationResult{EventID: 1, FinalState: finishedState("refund please")}
	require.NoError(t, scorer.Score(context.Background(), testScenario(), []*datatypes.SimulationResult{result}))

	// Only index 0 is in range; 7 and -1 contribute nothing but stay in
	// the tested list.
	assert.Equal(t, []int{0, 7, -1}, result.TestedPolicies)
	require.NotNil(t, result.TestedChallengeLevel)
	assert.Equal(t, float64(2), *result.TestedChallengeLevel)
}

func TestScoreFailureIsolation(t *testing.T) {
	agent := &stubAgent{answers: map[string]any{
		"User: good":      `{"conversation_policies": [2], "violated_policies": []}`,
		"User: garbled":   "not json at all",
		"User: also fine": `{"conversation_policies": [], "violated_policies": []}`,
	}}
	scorer, err := NewScorer(agent, batch.Config{NumWorkers: 3})
	require.NoError(t, err)

	results := []*datatypes.SimulationResult{
		{EventID: 1, FinalState: finishedState("good")},
		{EventID: 1, FinalState: finishedState("garbled")},
		{EventID: 1, FinalState: finishedState("also fine")},
	}
	require.NoError(t, scorer.Score(context.Background(), testScenario(), results))

	assert.NotNil(t, results[0].TestedChallengeLevel)
	assert.NotNil(t, results[2].TestedChallengeLevel)

	// The unparseable item keeps its error and no score fields.
	assert.Nil(t, results[1].TestedChallengeLevel)
	assert.Contains(t, results[1].Error, ErrUnparseableOutcome.Error())
}

func TestScoreSkipsAbortedAndUnknown(t *testing.T) {
	agent := &stubAgent{}
	scorer, err := NewScorer(agent, batch.Config{})
	require.NoError(t, err)

	aborted := &datatypes.SimulationResult{EventID: 1, Error: "session aborted"}
	unknown := &datatypes.SimulationResult{EventID: 99, FinalState: finishedState("hi")}
	require.NoError(t, scorer.Score(context.Background(), testScenario(), []*datatypes.SimulationResult{aborted, unknown}))

	assert.Empty(t, agent.requests)
	assert.Nil(t, aborted.TestedChallengeLevel)
	assert.Equal(t, "session aborted", aborted.Error)
	assert.Contains(t, unknown.Error, "event 99 not found")
}

func TestScoreAgentError(t *testing.T) {
	agentErr := errors.New("judge offline")
	scorer, err := NewScorer(&stubAgent{err: agentErr}, batch.Config{})
	require.NoError(t, err)

	result := &datatypes.SimulationResult{EventID: 1, FinalState: finishedState("hi")}
	require.NoError(t, scorer.Score(context.Background(), testScenario(), []*datatypes.SimulationResult{result}))

	assert.Contains(t, result.Error, agentErr.Error())
	assert.Nil(t, result.TestedChallengeLevel)
}

func TestScoreNilScenario(t *testing.T) {
	scorer, err := NewScorer(&stubAgent{}, batch.Config{})
	require.NoError(t, err)
	assert.Error(t, scorer.Score(context.Background(), nil, nil))
}

func TestNewScorerRequiresAgent(t *testing.T) {
	_, err := NewScorer(nil, batch.Config{})
	assert.Error(t, err)
}

func TestChallengeLevel(t *testing.T) {
	catalog := []datatypes.PolicyCatalogEntry{
		{Flow: "a", Policy: "p0", Score: 1.5},
		{Flow: "b", Policy: "p1", Score: 2.5},
	}

	assert.Equal(t, float64(0), challengeLevel(catalog, nil))
	assert.Equal(t, 1.5, challengeLevel(catalog, []int{0}))
	assert.Equal(t, float64(4), challengeLevel(catalog, []int{0, 1}))
	assert.Equal(t, 2.5, challengeLevel(catalog, []int{1, 5, -2}))
}
