package model

import "context"

// Trainer is the local learner of a node. Train mutates the trainer's own
// state; Snapshot captures it.
type Trainer interface {
	Train(ctx context.Context) error
	Snapshot() *Snapshot
	SetSnapshot(s *Snapshot)
}
