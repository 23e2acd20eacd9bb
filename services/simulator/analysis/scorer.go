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
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianSim/services/simulator/batch"
	"github.com/AleutianAI/AleutianSim/services/simulator/datatypes"
)

var scorerTracer = otel.Tracer("aleutiansim.analysis")

// ScoringRequest is one transcript prepared for the scoring judge.
type ScoringRequest struct {
	// Policies is the rendered policy catalog of the originating event.
	Policies string

	// Conversation is the transcript, excluding the seed message.
	Conversation string

	// Judgment is the user's stop decision followed by the rationale from
	// their last thought.
	Judgment string

	// Feedback is the last critique verdict, empty when the stop was
	// never disputed.
	Feedback string
}

// ScoringAgent produces raw policy-analysis output for one request. The
// output shape is whatever the judge emits; Normalize canonicalizes it.
type ScoringAgent interface {
	Analyze(ctx context.Context, req ScoringRequest) (any, error)
}

// Scorer enriches completed simulation results with matched and violated
// policy indices and the weighted challenge score.
//
// Thread Safety: Safe for concurrent use; all per-run state lives on the
// stack of Score.
type Scorer struct {
	agent  ScoringAgent
	cfg    batch.Config
	logger *slog.Logger
}

// ScorerOption configures a Scorer.
type ScorerOption func(*Scorer)

// WithScorerLogger overrides the default slog logger.
func WithScorerLogger(logger *slog.Logger) ScorerOption {
	return func(s *Scorer) { s.logger = logger }
}

// NewScorer builds a scorer around a scoring agent and batch bounds.
func NewScorer(agent ScoringAgent, cfg batch.Config, opts ...ScorerOption) (*Scorer, error) {
	if agent == nil {
		return nil, fmt.Errorf("scorer requires a scoring agent")
	}
	s := &Scorer{agent: agent, cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Score runs the policy analysis over all completed results in place.
//
// Description:
//
//	Builds one ScoringRequest per completed result, fans the batch out
//	through the bounded runner, normalizes each raw outcome, computes the
//	challenge level (sum of catalog scores of the matched indices that
//	are in range) and writes the three score fields back onto the result
//	at the record's index. A failed or timed-out item leaves its result
//	unenriched with the error cause captured; siblings are unaffected.
//	Results that never reached a terminal state, or whose event is
//	missing from the scenario, are skipped.
//
// Inputs:
//   - ctx: Bounds the whole batch; per-item timeouts come from the
//     runner config.
//   - scenario: Supplies the policy catalog for each event.
//   - results: The simulation results to enrich. Mutated in place.
//
// Outputs:
//   - error: Non-nil only on invalid arguments. Item failures are
//     captured per result, never returned.
func (s *Scorer) Score(ctx context.Context, scenario *datatypes.Scenario, results []*datatypes.SimulationResult) error {
	if scenario == nil {
		return fmt.Errorf("scorer requires a scenario")
	}

	ctx, span := scorerTracer.Start(ctx, "analysis.Score")
	defer span.End()
	span.SetAttributes(attribute.Int("results", len(results)))

	// Scorable results, with their events, in input order. The batch
	// record index points back into this slice.
	var targets []*datatypes.SimulationResult
	var requests []ScoringRequest
	var catalogs [][]datatypes.PolicyCatalogEntry

	for _, r := range results {
		if !r.Completed() {
			continue
		}
		event := scenario.EventByID(r.EventID)
		if event == nil {
			s.logger.Warn("skipping result with unknown event",
				slog.Int("event_id", r.EventID),
			)
			r.Error = fmt.Sprintf("event %d not found in scenario", r.EventID)
			continue
		}
		targets = append(targets, r)
		catalogs = append(catalogs, event.Policies)
		requests = append(requests, buildScoringRequest(event, r.FinalState))
	}

	records := batch.Run(ctx, s.cfg, requests, func(ctx context.Context, req ScoringRequest) (*PolicyAnalysisOutcome, error) {
		raw, err := s.agent.Analyze(ctx, req)
		if err != nil {
			return nil, err
		}
		return Normalize(raw)
	})

	enriched := 0
	for _, rec := range records {
		target := targets[rec.Index]
		if rec.Err != nil {
			s.logger.Warn("policy analysis failed",
				slog.Int("event_id", target.EventID),
				slog.Any("error", rec.Err),
			)
			target.Error = rec.Err.Error()
			continue
		}
		catalog := catalogs[rec.Index]
		level := challengeLevel(catalog, rec.Result.MatchedPolicies)
		target.TestedPolicies = rec.Result.MatchedPolicies
		target.ViolatedPolicies = rec.Result.ViolatedPolicies
		target.TestedChallengeLevel = &level
		enriched++
	}

	span.SetAttributes(attribute.Int("enriched", enriched))
	s.logger.Info("policy scoring finished",
		slog.Int("scored", len(records)),
		slog.Int("enriched", enriched),
	)
	return nil
}

// buildScoringRequest prepares one transcript for the judge.
func buildScoringRequest(event *datatypes.Event, state *datatypes.DialogState) ScoringRequest {
	reason := state.LastUserThought()
	if idx := strings.LastIndex(reason, "Thought:\n"); idx >= 0 {
		reason = reason[idx+len("Thought:\n"):]
	}
	return ScoringRequest{
		Policies:     datatypes.PoliciesToString(event.Policies),
		Conversation: datatypes.MessagesToString(state.ChatbotMessages[1:], true),
		Judgment:     fmt.Sprintf("%s\n%s", state.StopSignal, reason),
		Feedback:     state.CritiqueFeedback,
	}
}

// challengeLevel sums the catalog scores of the matched indices.
// Out-of-range indices are ignored, never an error.
func challengeLevel(catalog []datatypes.PolicyCatalogEntry, matched []int) float64 {
	var level float64
	for _, idx := range matched {
		if idx >= 0 && idx < len(catalog) {
			level += catalog[idx].Score
		}
	}
	return level
}
