// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianSim/pkg/logging"
	"github.com/AleutianAI/AleutianSim/services/llm"
	"github.com/AleutianAI/AleutianSim/services/simulator"
	"github.com/AleutianAI/AleutianSim/services/simulator/agents"
	"github.com/AleutianAI/AleutianSim/services/simulator/datatypes"
	"github.com/AleutianAI/AleutianSim/services/simulator/memory"
	"github.com/AleutianAI/AleutianSim/services/simulator/observability"
)

var (
	runScenarioPath     string
	runOutputPath       string
	runWorkers          int
	runSessionTimeout   time.Duration
	runScoreWorkers     int
	runScoreTimeout     time.Duration
	runMaxCritiqueRound int
	runMemoryPath       string
	runLogLevel         string
	runLogDir           string

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run and score every event of a scenario file",
		Long: `Loads a scenario YAML file, simulates one conversation per event
against the chatbot under test, and writes the scored results as JSON.`,
		RunE: runSimulation,
	}
)

func init() {
	runCmd.Flags().StringVar(&runScenarioPath, "scenario", "", "Path to the scenario YAML file (required)")
	runCmd.Flags().StringVar(&runOutputPath, "output", "", "Path for the JSON results; stdout when empty")
	runCmd.Flags().IntVar(&runWorkers, "workers", 1, "Concurrent simulation sessions")
	runCmd.Flags().DurationVar(&runSessionTimeout, "timeout", 0, "Per-session timeout; 0 disables")
	runCmd.Flags().IntVar(&runScoreWorkers, "score-workers", 1, "Concurrent scoring calls")
	runCmd.Flags().DurationVar(&runScoreTimeout, "score-timeout", 0, "Per-item scoring timeout; 0 keeps the 10s default")
	runCmd.Flags().IntVar(&runMaxCritiqueRound, "max-critique-rounds", 1, "Disputed stop retries before forcing the end")
	runCmd.Flags().StringVar(&runMemoryPath, "memory-path", "", "BadgerDB directory for conversation artifacts; empty disables persistence")
	runCmd.Flags().StringVar(&runLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	runCmd.Flags().StringVar(&runLogDir, "log-dir", "", "Directory for JSON log files; empty disables file logging")
	_ = runCmd.MarkFlagRequired("scenario")

	rootCmd.AddCommand(runCmd)
}

func runSimulation(cmd *cobra.Command, _ []string) error {
	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(runLogLevel),
		LogDir:  runLogDir,
		Service: "simulator",
	})
	defer logger.Close()

	scenario, err := datatypes.LoadScenario(runScenarioPath)
	if err != nil {
		return fmt.Errorf("loading scenario: %w", err)
	}

	client, err := llm.NewOpenAIClient()
	if err != nil {
		return fmt.Errorf("creating LLM client: %w", err)
	}

	engine, sink, err := buildEngine(client, logger)
	if err != nil {
		return err
	}
	if sink != nil {
		defer sink.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results, err := engine.RunScenario(ctx, scenario)
	if err != nil {
		return fmt.Errorf("running scenario: %w", err)
	}

	if err := writeResults(results); err != nil {
		return err
	}

	logger.Info("scenario finished",
		"scenario", scenario.Name,
		"events", len(scenario.Events),
		"output", outputName(),
	)
	return nil
}

// buildEngine wires the LLM-backed roles into a scenario engine.
func buildEngine(client llm.LLMClient, logger *logging.Logger) (*simulator.Engine, *memory.Sink, error) {
	params := llm.GenerationParams{}

	user, err := agents.NewSimulatedUser(client, params)
	if err != nil {
		return nil, nil, err
	}
	chatbot, err := agents.NewLLMChatbot(client, params)
	if err != nil {
		return nil, nil, err
	}
	critique, err := agents.NewCritique(client, params)
	if err != nil {
		return nil, nil, err
	}
	analyzer, err := agents.NewPolicyAnalyzer(client, params)
	if err != nil {
		return nil, nil, err
	}

	opts := []simulator.EngineOption{
		simulator.WithEngineLogger(logger.Slog()),
		simulator.WithMetrics(observability.InitMetrics()),
	}

	var sink *memory.Sink
	if runMemoryPath != "" {
		cfg := memory.DefaultConfig()
		cfg.Path = runMemoryPath
		cfg.Logger = logger.Slog()
		sink, err = memory.Open(cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("opening memory store: %w", err)
		}
		opts = append(opts, simulator.WithMemorySink(sink))
	}

	engine, err := simulator.NewEngine(simulator.Config{
		SessionWorkers:    runWorkers,
		SessionTimeout:    runSessionTimeout,
		MaxCritiqueRounds: runMaxCritiqueRound,
		ScoreWorkers:      runScoreWorkers,
		ScoreTimeout:      runScoreTimeout,
	}, user, chatbot, critique, analyzer, opts...)
	if err != nil {
		if sink != nil {
			_ = sink.Close()
		}
		return nil, nil, err
	}
	return engine, sink, nil
}

func writeResults(results []*datatypes.SimulationResult) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding results: %w", err)
	}
	data = append(data, '\n')

	if runOutputPath == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(runOutputPath, data, 0640); err != nil {
		return fmt.Errorf("writing results: %w", err)
	}
	return nil
}

func outputName() string {
	if runOutputPath == "" {
		return "stdout"
	}
	return runOutputPath
}
