// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package legacy

// State is the classification state of a connection.
type State int8

const (
	// StateStart means no byte has been examined yet.
	StateStart State = iota

	// StateFoundZero means one or more '0' padding bytes were discarded.
	StateFoundZero

	// StateAccumulating means a '<' was seen and bytes are being collected
	// until the translator accepts them.
	StateAccumulating

	// StateDone means classification is over: either a legacy request was
	// emitted or the connection belongs to the standard HTTP parser.
	StateDone
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateFoundZero:
		return "found_leading_zero"
	case StateAccumulating:
		return "accumulating_legacy"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}
