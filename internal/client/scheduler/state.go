package scheduler

import "fmt"

type State uint8

const (
	Enqueued State = iota
	Running
	Retrying
	Succeeded
	Failed
	Cancelled
)

var stateNames = [...]string{"enqueued", "running", "retrying", "succeeded", "failed", "cancelled"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Terminal reports whether no further state follows s.
func (s State) Terminal() bool {
	return s == Succeeded || s == Failed || s == Cancelled
}

type Policy uint8

const (
	// KeepExisting drops the submission when the name is pending or running.
	KeepExisting Policy = iota
	// ReplacePending cancels the known job and runs the new one.
	ReplacePending
)

type Pool string

const (
	PoolDB      Pool = "db"
	PoolNetwork Pool = "network"
)
