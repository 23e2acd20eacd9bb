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
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianSim/services/simulator/memory"
)

var (
	replayMemoryPath string
	replayJSON       bool

	replayCmd = &cobra.Command{
		Use:   "replay [thread-id]",
		Short: "Print the persisted artifacts of one conversation thread",
		Args:  cobra.ExactArgs(1),
		RunE:  runReplay,
	}
)

func init() {
	replayCmd.Flags().StringVar(&replayMemoryPath, "memory-path", "", "BadgerDB directory written by a previous run (required)")
	replayCmd.Flags().BoolVar(&replayJSON, "json", false, "Emit raw JSON entries instead of a transcript")
	_ = replayCmd.MarkFlagRequired("memory-path")

	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg := memory.DefaultConfig()
	cfg.Path = replayMemoryPath
	sink, err := memory.Open(cfg)
	if err != nil {
		return fmt.Errorf("opening memory store: %w", err)
	}
	defer sink.Close()

	entries, err := sink.ReadThread(args[0])
	if err != nil {
		return fmt.Errorf("reading thread: %w", err)
	}
	if len(entries) == 0 {
		return fmt.Errorf("no entries for thread %q", args[0])
	}

	if replayJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	for _, entry := range entries {
		switch entry.Kind {
		case memory.KindThought:
			fmt.Printf("[thought] %s\n", entry.Text)
		case memory.KindTool:
			fmt.Printf("[tool %s(%s)] %s\n", entry.Name, entry.Args, entry.Text)
		default:
			fmt.Printf("[%s] %s\n", entry.Role, entry.Text)
		}
	}
	return nil
}
