// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package simulator runs whole evaluation scenarios: it fans the
// scenario's events out as independent dialog sessions, collects one
// SimulationResult per event, and enriches the completed results through
// the policy scorer.
package simulator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"

	"github.com/AleutianAI/AleutianSim/services/simulator/analysis"
	"github.com/AleutianAI/AleutianSim/services/simulator/batch"
	"github.com/AleutianAI/AleutianSim/services/simulator/datatypes"
	"github.com/AleutianAI/AleutianSim/services/simulator/dialog"
	"github.com/AleutianAI/AleutianSim/services/simulator/observability"
)

// Config bounds one scenario run.
type Config struct {
	// SessionWorkers caps concurrently running sessions. Values < 1 run
	// sessions one at a time.
	SessionWorkers int

	// SessionTimeout bounds one whole session. Zero means unbounded.
	SessionTimeout time.Duration

	// MaxCritiqueRounds ends a session after this many disputed stops.
	// Values < 1 fall back to 1 (a single critique round).
	MaxCritiqueRounds int

	// ScoreWorkers and ScoreTimeout bound the scoring batch; zero values
	// take the batch package defaults (1 worker, 10 seconds).
	ScoreWorkers int
	ScoreTimeout time.Duration
}

func (c Config) normalize() Config {
	if c.SessionWorkers < 1 {
		c.SessionWorkers = 1
	}
	if c.MaxCritiqueRounds < 1 {
		c.MaxCritiqueRounds = 1
	}
	return c
}

// Engine wires the conversation roles, the scoring judge and the
// optional persistence sink into a runnable scenario driver.
//
// Thread Safety: Safe for concurrent use; each RunScenario call keeps
// its state on its own stack.
type Engine struct {
	cfg      Config
	user     dialog.UserAgent
	chatbot  dialog.ChatbotUnderTest
	critique dialog.CritiqueJudge
	scoring  analysis.ScoringAgent
	memory   dialog.MemorySink
	metrics  *observability.SimulatorMetrics
	logger   *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithMemorySink attaches a persistence sink for conversation artifacts.
func WithMemorySink(sink dialog.MemorySink) EngineOption {
	return func(e *Engine) { e.memory = sink }
}

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *observability.SimulatorMetrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithEngineLogger overrides the default slog logger.
func WithEngineLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine builds an engine from the four required roles.
func NewEngine(cfg Config, user dialog.UserAgent, chatbot dialog.ChatbotUnderTest, critique dialog.CritiqueJudge, scoring analysis.ScoringAgent, opts ...EngineOption) (*Engine, error) {
	if user == nil || chatbot == nil || critique == nil || scoring == nil {
		return nil, fmt.Errorf("engine requires user, chatbot, critique and scoring agents")
	}
	e := &Engine{
		cfg:      cfg.normalize(),
		user:     user,
		chatbot:  chatbot,
		critique: critique,
		scoring:  scoring,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// RunScenario simulates and scores every event of a scenario.
//
// Description:
//
//	Each event becomes one independent session with a fresh thread ID
//	and its own orchestrator state. Sessions run concurrently up to
//	SessionWorkers; an aborted session yields a result carrying the
//	error cause and leaves its siblings running. Completed results are
//	then enriched in one scoring pass.
//
// Outputs:
//   - []*datatypes.SimulationResult: One result per event, in event
//     order, each either enriched or carrying its error cause.
//   - error: Non-nil only on invalid input; per-event failures are
//     captured on their results.
func (e *Engine) RunScenario(ctx context.Context, scenario *datatypes.Scenario) ([]*datatypes.SimulationResult, error) {
	if scenario == nil {
		return nil, fmt.Errorf("engine requires a scenario")
	}

	orchOpts := []dialog.OrchestratorOption{dialog.WithLogger(e.logger)}
	if e.memory != nil {
		orchOpts = append(orchOpts, dialog.WithMemory(e.memory))
	}
	orch, err := dialog.NewOrchestrator(e.user, e.chatbot, e.critique, orchOpts...)
	if err != nil {
		return nil, err
	}

	e.logger.Info("starting scenario run",
		slog.String("scenario", scenario.Name),
		slog.Int("events", len(scenario.Events)),
		slog.Int("session_workers", e.cfg.SessionWorkers),
	)

	sessionCfg := batch.Config{
		NumWorkers: e.cfg.SessionWorkers,
		Timeout:    e.cfg.SessionTimeout,
	}
	if sessionCfg.Timeout == 0 {
		// Sessions are unbounded by default; only scoring items take the
		// 10 second batch default.
		sessionCfg.Timeout = -1
	}

	records := batch.Run(ctx, sessionCfg, scenario.Events, func(ctx context.Context, event datatypes.Event) (*datatypes.DialogState, error) {
		return e.runSession(ctx, orch, event)
	})

	results := make([]*datatypes.SimulationResult, len(scenario.Events))
	for _, rec := range records {
		result := &datatypes.SimulationResult{EventID: scenario.Events[rec.Index].ID}
		if rec.Err != nil {
			result.Error = rec.Err.Error()
			e.logger.Error("session aborted",
				slog.Int("event_id", result.EventID),
				slog.Any("error", rec.Err),
			)
		} else {
			result.FinalState = rec.Result.Snapshot()
		}
		results[rec.Index] = result
	}

	scorer, err := analysis.NewScorer(e.scoring,
		batch.Config{NumWorkers: e.cfg.ScoreWorkers, Timeout: e.cfg.ScoreTimeout},
		analysis.WithScorerLogger(e.logger),
	)
	if err != nil {
		return nil, err
	}
	if err := scorer.Score(ctx, scenario, results); err != nil {
		return nil, err
	}

	if e.metrics != nil {
		for _, r := range results {
			if r.TestedChallengeLevel != nil {
				e.metrics.ScoringItemsTotal.WithLabelValues("enriched").Inc()
			} else {
				e.metrics.ScoringItemsTotal.WithLabelValues("failed").Inc()
			}
		}
	}
	return results, nil
}

// runSession executes one event as an isolated dialog session.
func (e *Engine) runSession(ctx context.Context, orch *dialog.Orchestrator, event datatypes.Event) (*datatypes.DialogState, error) {
	state := newSessionState(event)
	decider := dialog.MaxCritiqueRounds(e.cfg.MaxCritiqueRounds)

	if e.metrics != nil {
		e.metrics.ActiveSessions.Inc()
		defer e.metrics.ActiveSessions.Dec()
	}
	started := time.Now()

	final, err := orch.Run(ctx, state, decider)

	status := "completed"
	if err != nil {
		status = "aborted"
	}
	if e.metrics != nil {
		e.metrics.SessionsTotal.WithLabelValues(status).Inc()
		e.metrics.SessionDurationSeconds.WithLabelValues(status).Observe(time.Since(started).Seconds())
	}
	if err != nil {
		return nil, err
	}
	return final, nil
}

// newSessionState seeds the dialog state for one event.
func newSessionState(event datatypes.Event) *datatypes.DialogState {
	seedInstruction := fmt.Sprintf("%s\n\n# Scenario:\n%s", event.UserPrompt, event.Scenario)
	return &datatypes.DialogState{
		ThreadID: uuid.NewString(),
		UserMessages: []llms.ChatMessage{
			llms.HumanChatMessage{Content: seedInstruction},
		},
		ChatbotMessages: []llms.ChatMessage{
			llms.AIChatMessage{Content: event.FirstMessage},
		},
		ChatbotArgs: event.ChatbotArgs,
	}
}
