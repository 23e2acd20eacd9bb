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
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// scenarioValidate is the validator instance for scenario datatypes.
var scenarioValidate *validator.Validate

func init() {
	scenarioValidate = validator.New()
}

// PolicyCatalogEntry is one behavioral policy the chatbot under test must
// follow. Catalogs are read-only inputs indexed from 0; scoring output
// references entries only by index.
type PolicyCatalogEntry struct {
	Flow   string  `yaml:"flow" json:"flow" validate:"required"`
	Policy string  `yaml:"policy" json:"policy" validate:"required"`
	Score  float64 `yaml:"score" json:"score" validate:"gte=0"`
}

// Event is one scenario to simulate: the seed messages that open the
// conversation plus the policy catalog the transcript is scored against.
type Event struct {
	// ID is the 1-based event identifier referenced by SimulationResult.
	ID int `yaml:"id" json:"id" validate:"required,gt=0"`

	// Scenario is the free-text description of the situation the
	// simulated user acts out.
	Scenario string `yaml:"scenario" json:"scenario" validate:"required"`

	// UserPrompt is the seed instruction for the user agent (index 0 of
	// UserMessages).
	UserPrompt string `yaml:"user_prompt" json:"user_prompt" validate:"required"`

	// FirstMessage is the seed chatbot-facing message that opens the
	// conversation (index 0 of ChatbotMessages).
	FirstMessage string `yaml:"first_message" json:"first_message" validate:"required"`

	// ChatbotArgs is opaque configuration forwarded to the chatbot
	// adapter on every turn.
	ChatbotArgs map[string]any `yaml:"chatbot_args" json:"chatbot_args,omitempty"`

	// Policies is the catalog this event's transcript is scored against.
	Policies []PolicyCatalogEntry `yaml:"policies" json:"policies" validate:"required,min=1,dive"`
}

// Scenario is a full simulation run description loaded from YAML.
type Scenario struct {
	// Name identifies the run in logs and output files.
	Name string `yaml:"name" json:"name" validate:"required"`

	// Events are the independent conversations to simulate.
	Events []Event `yaml:"events" json:"events" validate:"required,min=1,dive"`
}

// Validate checks the scenario against its struct tags and verifies that
// event IDs are unique.
func (s *Scenario) Validate() error {
	if err := scenarioValidate.Struct(s); err != nil {
		return fmt.Errorf("scenario validation failed: %w", err)
	}
	seen := make(map[int]bool, len(s.Events))
	for _, ev := range s.Events {
		if seen[ev.ID] {
			return fmt.Errorf("scenario validation failed: duplicate event id %d", ev.ID)
		}
		seen[ev.ID] = true
	}
	return nil
}

// EventByID returns the event with the given ID, or nil when absent.
func (s *Scenario) EventByID(id int) *Event {
	for i := range s.Events {
		if s.Events[i].ID == id {
			return &s.Events[i]
		}
	}
	return nil
}

// LoadScenario reads and validates a scenario YAML file.
//
// Outputs:
//   - *Scenario: The parsed scenario. Nil on error.
//   - error: Non-nil when the file is unreadable, the YAML is malformed,
//     or validation fails.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file %s: %w", path, err)
	}
	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, fmt.Errorf("failed to parse scenario YAML: %w", err)
	}
	if err := scenario.Validate(); err != nil {
		return nil, err
	}
	return &scenario, nil
}

// PolicyToString renders one catalog entry for inclusion in a prompt.
func PolicyToString(p PolicyCatalogEntry) string {
	return fmt.Sprintf("Flow: %s\npolicy: %s", p.Flow, p.Policy)
}

// PoliciesToString renders a catalog as a numbered list. The numbers are
// the 0-based indices the scoring output refers back to.
func PoliciesToString(policies []PolicyCatalogEntry) string {
	parts := make([]string, 0, len(policies))
	for i, p := range policies {
		parts = append(parts, fmt.Sprintf("%d) %s", i, PolicyToString(p)))
	}
	return strings.Join(parts, "\n")
}
