// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dialog

import (
	"errors"
	"fmt"
)

// DialogPhase represents a phase in the dialog state machine.
//
// Valid phase transitions are enforced by the state machine. Invalid
// transitions return ErrInvalidTransition.
type DialogPhase string

const (
	// PhaseStart is the entry phase before any turn has run.
	PhaseStart DialogPhase = "START"

	// PhaseUser runs one simulated-user turn.
	PhaseUser DialogPhase = "USER"

	// PhaseChatbot runs one chatbot-under-test turn.
	PhaseChatbot DialogPhase = "CHATBOT"

	// PhaseEndCritique arbitrates a disputed stop decision.
	PhaseEndCritique DialogPhase = "END_CRITIQUE"

	// PhaseEnd is the terminal phase.
	PhaseEnd DialogPhase = "END"
)

// String returns the phase as a string (e.g. "USER").
func (p DialogPhase) String() string {
	return string(p)
}

// IsTerminal returns true for the terminal phase END.
func (p DialogPhase) IsTerminal() bool {
	return p == PhaseEnd
}

// ErrInvalidTransition is returned when a phase transition is not allowed
// by the state machine.
var ErrInvalidTransition = errors.New("invalid dialog phase transition")

// StateMachine validates dialog phase transitions.
//
// The transition table is fixed:
//
//	START        -> USER
//	USER         -> CHATBOT | END_CRITIQUE
//	CHATBOT      -> USER
//	END_CRITIQUE -> USER | END
//
// Thread Safety: Safe for concurrent use (the table is immutable after
// construction).
type StateMachine struct {
	transitions map[DialogPhase][]DialogPhase
}

// NewStateMachine creates a state machine with the dialog transition table.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		transitions: map[DialogPhase][]DialogPhase{
			PhaseStart:       {PhaseUser},
			PhaseUser:        {PhaseChatbot, PhaseEndCritique},
			PhaseChatbot:     {PhaseUser},
			PhaseEndCritique: {PhaseUser, PhaseEnd},
			PhaseEnd:         {},
		},
	}
}

// CanTransition reports whether from -> to is a valid transition.
func (sm *StateMachine) CanTransition(from, to DialogPhase) bool {
	for _, next := range sm.transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition validates from -> to and returns ErrInvalidTransition (with
// both phases in the message) when the move is not allowed.
func (sm *StateMachine) Transition(from, to DialogPhase) error {
	if !sm.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// DefaultStateMachine is the shared instance used by orchestrators.
var DefaultStateMachine = NewStateMachine()
