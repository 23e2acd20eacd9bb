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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianSim/services/simulator/datatypes"
)

var validateCmd = &cobra.Command{
	Use:   "validate [scenario file]",
	Short: "Validate a scenario file without running it",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	scenario, err := datatypes.LoadScenario(args[0])
	if err != nil {
		return fmt.Errorf("scenario invalid: %w", err)
	}

	policies := 0
	for _, event := range scenario.Events {
		policies += len(event.Policies)
	}
	fmt.Printf("scenario %q valid: %d events, %d catalog policies\n",
		scenario.Name, len(scenario.Events), policies)
	return nil
}
