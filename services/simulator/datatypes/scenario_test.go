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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validScenario() *Scenario {
	return &Scenario{
		Name: "refund-flows",
		Events: []Event{
			{
				ID:           1,
				Scenario:     "customer wants a refund",
				UserPrompt:   "act as an impatient customer",
				FirstMessage: "Hello! How can I help you?",
				Policies: []PolicyCatalogEntry{
					{Flow: "refund", Policy: "verify identity first", Score: 2},
				},
			},
			{
				ID:           2,
				Scenario:     "customer asks for a discount",
				UserPrompt:   "act as a bargain hunter",
				FirstMessage: "Hi there!",
				Policies: []PolicyCatalogEntry{
					{Flow: "sales", Policy: "never exceed 10 percent", Score: 1},
				},
			},
		},
	}
}

func TestScenarioValidate(t *testing.T) {
	assert.NoError(t, validScenario().Validate())
}

func TestScenarioValidateFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Scenario)
	}{
		{"missing name", func(s *Scenario) { s.Name = "" }},
		{"no events", func(s *Scenario) { s.Events = nil }},
		{"zero event id", func(s *Scenario) { s.Events[0].ID = 0 }},
		{"missing scenario text", func(s *Scenario) { s.Events[0].Scenario = "" }},
		{"missing user prompt", func(s *Scenario) { s.Events[0].UserPrompt = "" }},
		{"missing first message", func(s *Scenario) { s.Events[0].FirstMessage = "" }},
		{"no policies", func(s *Scenario) { s.Events[0].Policies = nil }},
		{"policy missing flow", func(s *Scenario) { s.Events[0].Policies[0].Flow = "" }},
		{"negative score", func(s *Scenario) { s.Events[0].Policies[0].Score = -1 }},
		{"duplicate event id", func(s *Scenario) { s.Events[1].ID = 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validScenario()
			tt.mutate(s)
			assert.Error(t, s.Validate())
		})
	}
}

func TestEventByID(t *testing.T) {
	s := validScenario()

	event := s.EventByID(2)
	require.NotNil(t, event)
	assert.Equal(t, "customer asks for a discount", event.Scenario)

	assert.Nil(t, s.EventByID(99))
}

const scenarioYAML = `name: refund-flows
events:
  - id: 1
    scenario: customer wants a refund
    user_prompt: act as an impatient customer
    first_message: "Hello! How can I help you?"
    chatbot_args:
      system_prompt: "You are a support agent."
    policies:
      - flow: refund
        policy: verify identity first
        score: 2
      - flow: refund
        policy: never promise cash refunds
        score: 3.5
`

func TestLoadScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(scenarioYAML), 0600))

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "refund-flows", scenario.Name)
	require.Len(t, scenario.Events, 1)

	event := scenario.Events[0]
	assert.Equal(t, 1, event.ID)
	assert.Equal(t, "You are a support agent.", event.ChatbotArgs["system_prompt"])
	require.Len(t, event.Policies, 2)
	assert.Equal(t, 3.5, event.Policies[1].Score)
}

func TestLoadScenarioErrors(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("\tname: tab-indented"), 0600))
	_, err = LoadScenario(path)
	assert.Error(t, err)

	path = filepath.Join(t.TempDir(), "invalid.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: x\nevents: []\n"), 0600))
	_, err = LoadScenario(path)
	assert.Error(t, err)
}

func TestPoliciesToString(t *testing.T) {
	policies := []PolicyCatalogEntry{
		{Flow: "refund", Policy: "verify identity first", Score: 2},
		{Flow: "sales", Policy: "never exceed 10 percent", Score: 1},
	}

	rendered := PoliciesToString(policies)
	assert.Equal(t,
		"0) Flow: refund\npolicy: verify identity first\n1) Flow: sales\npolicy: never exceed 10 percent",
		rendered)

	assert.Empty(t, PoliciesToString(nil))
}
