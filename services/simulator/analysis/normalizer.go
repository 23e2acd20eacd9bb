// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analysis scores completed simulation transcripts against their
// policy catalogs.
//
// Scoring judges return loosely structured output: the two fields of
// interest arrive under a handful of synonymous key names and in varying
// shapes. Normalize maps all observed variants onto the canonical
// PolicyAnalysisOutcome before any score is computed.
package analysis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Canonical field names. When a payload carries both the canonical name
// and an alias, the canonical name wins.
const (
	keyMatched  = "conversation_policies"
	keyViolated = "violated_policies"
)

// Alias tables in priority order: the first alias present resolves the
// field and the rest are ignored.
var (
	matchedAliases = []string{
		"tested_policies", "policies_tested", "relevant_policies",
		"policy_indexes", "policy_indices", "policies",
	}
	violatedAliases = []string{
		"failed_policy_number", "failed_policies", "failed_policy",
		"violations", "violated", "policy_violations",
	}
)

// ErrUnparseableOutcome marks judge output that could not be interpreted
// as a policy analysis. The error is item-isolated: the owning record is
// left unenriched and sibling records are unaffected.
var ErrUnparseableOutcome = errors.New("unparseable policy analysis outcome")

// PolicyAnalysisOutcome is the canonical scoring-judge output.
//
// Indices are interpreted against the policy catalog of the scenario the
// transcript came from. Out-of-range indices are not an error; score
// computation ignores them.
type PolicyAnalysisOutcome struct {
	// MatchedPolicies are the catalog indices the conversation exercised.
	MatchedPolicies []int `json:"conversation_policies"`

	// ViolatedPolicies is the subset of indices the chatbot violated.
	ViolatedPolicies []int `json:"violated_policies"`
}

// Normalize maps raw judge output onto the canonical outcome.
//
// Description:
//
//	Accepts an already-canonical outcome (returned unchanged), a decoded
//	JSON object, or JSON text. Alias keys resolve in priority order, the
//	canonical key always wins, unknown keys are dropped, and missing
//	fields default to empty sequences. For the violated field a null
//	normalizes to empty, a single integer to a one-element sequence, and
//	any non-sequence shape to empty.
//
// Inputs:
//   - raw: *PolicyAnalysisOutcome, PolicyAnalysisOutcome, map[string]any,
//     string, []byte or json.RawMessage.
//
// Outputs:
//   - *PolicyAnalysisOutcome: The canonical outcome. Never nil on success.
//   - error: ErrUnparseableOutcome (wrapped) when the payload is not an
//     object and cannot be parsed into one.
func Normalize(raw any) (*PolicyAnalysisOutcome, error) {
	switch v := raw.(type) {
	case nil:
		return nil, fmt.Errorf("%w: nil payload", ErrUnparseableOutcome)
	case *PolicyAnalysisOutcome:
		return &PolicyAnalysisOutcome{
			MatchedPolicies:  emptyIfNil(v.MatchedPolicies),
			ViolatedPolicies: emptyIfNil(v.ViolatedPolicies),
		}, nil
	case PolicyAnalysisOutcome:
		return Normalize(&v)
	case map[string]any:
		return normalizeMap(v), nil
	case string:
		return normalizeText([]byte(v))
	case []byte:
		return normalizeText(v)
	case json.RawMessage:
		return normalizeText(v)
	default:
		return nil, fmt.Errorf("%w: unsupported payload type %T", ErrUnparseableOutcome, raw)
	}
}

// normalizeText parses a JSON object out of raw text. Scoring judges
// sometimes wrap the object in a Markdown code fence; that fence is
// stripped before parsing.
func normalizeText(data []byte) (*PolicyAnalysisOutcome, error) {
	data = stripCodeFence(data)
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseableOutcome, err)
	}
	return normalizeMap(decoded), nil
}

func normalizeMap(data map[string]any) *PolicyAnalysisOutcome {
	return &PolicyAnalysisOutcome{
		MatchedPolicies:  toIndexSlice(resolveField(data, keyMatched, matchedAliases)),
		ViolatedPolicies: toViolatedSlice(resolveField(data, keyViolated, violatedAliases)),
	}
}

// resolveField returns the value for the canonical key, falling back to
// the first matching alias. The boolean result of the lookup is folded
// into the value: an absent field comes back as nil.
func resolveField(data map[string]any, canonical string, aliases []string) any {
	if v, ok := data[canonical]; ok {
		return v
	}
	for _, alias := range aliases {
		if v, ok := data[alias]; ok {
			return v
		}
	}
	return nil
}

// toIndexSlice coerces a sequence of numbers to indices. Any non-sequence
// shape and any non-numeric element is dropped.
func toIndexSlice(v any) []int {
	switch seq := v.(type) {
	case []int:
		return emptyIfNil(seq)
	case []any:
		out := make([]int, 0, len(seq))
		for _, e := range seq {
			if n, ok := toInt(e); ok {
				out = append(out, n)
			}
		}
		return out
	default:
		return []int{}
	}
}

// toViolatedSlice applies the violated-field shape rules: null becomes
// empty, a single integer becomes a one-element sequence, a sequence
// stays as-is, anything else becomes empty.
func toViolatedSlice(v any) []int {
	if v == nil {
		return []int{}
	}
	if n, ok := toInt(v); ok {
		return []int{n}
	}
	return toIndexSlice(v)
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}

func emptyIfNil(s []int) []int {
	if s == nil {
		return []int{}
	}
	return s
}

// stripCodeFence removes a surrounding ```json ... ``` fence if present.
func stripCodeFence(data []byte) []byte {
	trimmed := bytes.TrimSpace(data)
	if !bytes.HasPrefix(trimmed, []byte("```")) {
		return trimmed
	}
	body := trimmed[3:]
	if nl := bytes.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	}
	if end := bytes.LastIndex(body, []byte("```")); end >= 0 {
		body = body[:end]
	}
	return bytes.TrimSpace(body)
}
