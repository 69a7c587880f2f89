package node

import (
	"sync/atomic"
)

// State captures the step of the epoch a node is in.
type State uint32

const (
	// Searching is the initial state. A node without a group, or one that
	// decided to switch, looks for a JOIN_GROUP offer. Others re-advertise
	// their group.
	Searching State = iota
	// Training runs the local trainer and saves its snapshot.
	Training
	// Aggregating merges the snapshots of the group into the live model.
	Aggregating
	// EvaluatingFeedback computes this epoch's feedback value.
	EvaluatingFeedback
	// Evolving decides whether to switch groups and may mutate the feedback
	// threshold.
	Evolving
	// Sleeping waits for the configured duration.
	Sleeping
)

// String ...
func (s State) String() string {
	switch s {
	case Searching:
		return "SEARCHING"
	case Training:
		return "TRAINING"
	case Aggregating:
		return "AGGREGATING"
	case EvaluatingFeedback:
		return "EVALUATING_FEEDBACK"
	case Evolving:
		return "EVOLVING"
	case Sleeping:
		return "SLEEPING"
	default:
		return "Unknown"
	}
}

type state struct {
	state State
}

func (b *state) getState() State {
	stateAddr := (*uint32)(&b.state)
	return State(atomic.LoadUint32(stateAddr))
}

func (b *state) setState(s State) {
	stateAddr := (*uint32)(&b.state)
	atomic.StoreUint32(stateAddr, uint32(s))
}
