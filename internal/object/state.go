// Package object implements the object store of §3: creation, parameter
// persistence, the two requirement graphs, and the UNDEF/PREPARED/DONE
// state machine every object moves through, grounded on the on-disk
// layout conventions of the teacher's core/types registry adapted from
// an in-memory decorator table to a directory-backed record per object.
package object

import "fmt"

// State is a position in an Object's UNDEF -> PREPARED -> DONE lifecycle.
type State int

const (
	StateUndef State = iota
	StatePrepared
	StateDone
)

func (s State) String() string {
	switch s {
	case StateUndef:
		return "UNDEF"
	case StatePrepared:
		return "PREPARED"
	case StateDone:
		return "DONE"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// canAdvanceTo reports whether the state machine permits the transition
// from s to next. The only legal moves are UNDEF->PREPARED and
// PREPARED->DONE; DONE is terminal (spec.md §3).
func (s State) canAdvanceTo(next State) bool {
	return (s == StateUndef && next == StatePrepared) || (s == StatePrepared && next == StateDone)
}
