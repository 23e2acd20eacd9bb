// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for
// security-critical operations.
//
// This package contains validators for identifiers that are used as
// storage key segments. Using these validators prevents key-space
// collisions and injection through crafted identifiers.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// threadIDPattern matches valid session thread identifiers.
// Allows: letters, digits, hyphens, underscores. Max length: 64.
// Slashes are excluded because thread IDs become key segments in the
// memory sink; a slash would let one thread's prefix shadow another's.
var threadIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_\-]{0,63}$`)

// ValidateThreadID validates a session thread identifier.
//
// Valid thread IDs:
//   - 1-64 characters
//   - Letters, digits, hyphens, underscores
//   - No slashes or whitespace
//
// Returns an error if the thread ID is invalid.
//
// Example:
//
//	if err := validation.ValidateThreadID(threadID); err != nil {
//	    return fmt.Errorf("invalid thread id: %w", err)
//	}
//	// Safe to use as a storage key segment
func ValidateThreadID(threadID string) error {
	if threadID == "" {
		return fmt.Errorf("thread id cannot be empty")
	}

	if !threadIDPattern.MatchString(threadID) {
		return fmt.Errorf("invalid thread id format: %q (must be 1-64 alphanumeric chars, hyphens, or underscores)", threadID)
	}

	return nil
}

// SanitizeThreadID normalizes and validates a thread identifier.
// Returns the trimmed thread ID if valid, or an error if invalid.
func SanitizeThreadID(threadID string) (string, error) {
	normalized := strings.TrimSpace(threadID)
	if err := ValidateThreadID(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
