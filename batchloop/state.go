package batchloop

import "fmt"

// State is the step the controller is in, or last attempted.
type State int

const (
	StateIdle State = iota
	StateCheckpoint
	StateBuildRecords
	StateSerialize
	StateEmit
	StateZeroBuffers
	StateRollback
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateIdle:         "Idle",
	StateCheckpoint:   "Checkpoint",
	StateBuildRecords: "BuildRecords",
	StateSerialize:    "Serialize",
	StateEmit:         "Emit",
	StateZeroBuffers:  "ZeroBuffers",
	StateRollback:     "Rollback",
	StateDone:         "Done",
	StateFailed:       "Failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// SetupBatch is the batch index reported for failures before the first
// batch starts, while the scratch buffers are allocated.
const SetupBatch = -1

// BatchError is the first failure of an invocation, annotated with where it
// happened.
type BatchError struct {
	Batch int
	State State
	Err   error
}

func (e *BatchError) Error() string {
	if e.Batch == SetupBatch {
		return fmt.Sprintf("setup: %v", e.Err)
	}
	return fmt.Sprintf("batch %d %s: %v", e.Batch, e.State, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }
