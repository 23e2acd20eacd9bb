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

// SimulationResult is the record of one completed (or aborted) session.
//
// Description:
//
//	Created once a session reaches a terminal state. The policy scorer
//	enriches it at most once with TestedPolicies, ViolatedPolicies and
//	TestedChallengeLevel; after that the record is immutable.
//
// Fields:
//   - EventID: 1-based reference to the originating scenario event.
//   - FinalState: Terminal DialogState snapshot. Nil when the session
//     aborted before reaching a terminal state.
//   - TestedChallengeLevel: Sum of catalog scores of the matched policies.
//     Nil until scored.
//   - TestedPolicies: Indices into the event's policy catalog that the
//     conversation exercised.
//   - ViolatedPolicies: Subset of those indices the chatbot violated.
//   - Error: Cause of a session abort or a scoring failure, empty on
//     success. Aborted sessions keep all score fields absent.
type SimulationResult struct {
	EventID              int          `json:"event_id"`
	FinalState           *DialogState `json:"final_state,omitempty"`
	TestedChallengeLevel *float64     `json:"tested_challenge_level,omitempty"`
	TestedPolicies       []int        `json:"tested_policies,omitempty"`
	ViolatedPolicies     []int        `json:"violated_policies,omitempty"`
	Error                string       `json:"error,omitempty"`
}

// Completed reports whether the session produced a terminal state that can
// be scored.
func (r *SimulationResult) Completed() bool {
	return r != nil && r.FinalState != nil
}
