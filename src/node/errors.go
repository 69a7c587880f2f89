package node

import "fmt"

// TrainingError wraps a failure of the local trainer. The epoch goes on with
// the previous snapshot.
type TrainingError struct {
	Epoch int
	Err   error
}

func (e *TrainingError) Error() string {
	return fmt.Sprintf("training failed in epoch %d: %v", e.Epoch, e.Err)
}

// Unwrap ...
func (e *TrainingError) Unwrap() error {
	return e.Err
}
