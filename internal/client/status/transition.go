package status

import "fmt"

// Event is something that happens to an entity.
type Event uint8

const (
	// Create is a local create.
	Create Event = iota + 1
	// Edit is a local edit.
	Edit
	// Remove is a local delete.
	Remove
	// Receive is a pulled copy of the entity arriving from the server.
	Receive

	PostStarted
	PostSucceeded
	PostFailed

	UpdateStarted
	UpdateSucceeded
	UpdateFailed

	DeleteStarted
	DeleteSucceeded
	DeleteFailed

	// Interrupted reverts an in-flight status left behind by a crash.
	Interrupted
)

var eventNames = map[Event]string{
	Create:          "create",
	Edit:            "edit",
	Remove:          "remove",
	Receive:         "receive",
	PostStarted:     "post_started",
	PostSucceeded:   "post_succeeded",
	PostFailed:      "post_failed",
	UpdateStarted:   "update_started",
	UpdateSucceeded: "update_succeeded",
	UpdateFailed:    "update_failed",
	DeleteStarted:   "delete_started",
	DeleteSucceeded: "delete_succeeded",
	DeleteFailed:    "delete_failed",
	Interrupted:     "interrupted",
}

func (e Event) String() string {
	if n, ok := eventNames[e]; ok {
		return n
	}
	return fmt.Sprintf("Event(%d)", uint8(e))
}

// Step is the outcome of a transition. When Remove is set the local row
// must be deleted and Status is meaningless.
type Step struct {
	Status SendStatus
	Remove bool
}

type edge struct {
	from SendStatus
	on   Event
}

func to(s SendStatus) Step { return Step{Status: s} }

var removed = Step{Status: Unknown, Remove: true}

// table lists every legal transition. Completion events arriving for a
// status other than the in-flight one are stale: a newer local change
// happened while the push was outstanding, and that change is kept.
var table = map[edge]Step{
	{Unknown, Create}:   to(WaitingToSend),
	{Unknown, Receive}:  to(Received),
	{Received, Receive}: to(Received),
	{Saved, Receive}:    to(Received),

	{WaitingToSend, Edit}: to(WaitingToSend),
	{Sent, Edit}:          to(Update),
	{Received, Edit}:      to(Update),
	{Saved, Edit}:         to(Update),
	{Update, Edit}:        to(Update),
	{Updating, Edit}:      to(Update),

	{WaitingToSend, Remove}: removed,
	{Sent, Remove}:          to(Delete),
	{Received, Remove}:      to(Delete),
	{Saved, Remove}:         to(Delete),
	{Update, Remove}:        to(Delete),
	{Updating, Remove}:      to(Delete),
	{Delete, Remove}:        to(Delete),
	{Deleting, Remove}:      to(Deleting),

	{WaitingToSend, PostStarted}: to(Sent),
	{Sent, PostSucceeded}:        to(Received),
	{Update, PostSucceeded}:      to(Update),
	{Delete, PostSucceeded}:      to(Delete),
	{Sent, PostFailed}:           to(WaitingToSend),
	{Update, PostFailed}:         to(WaitingToSend),
	{Delete, PostFailed}:         removed,

	{Update, UpdateStarted}:     to(Updating),
	{Updating, UpdateSucceeded}: to(Saved),
	{Update, UpdateSucceeded}:   to(Update),
	{Delete, UpdateSucceeded}:   to(Delete),
	{Updating, UpdateFailed}:    to(Update),
	{Update, UpdateFailed}:      to(Update),
	{Delete, UpdateFailed}:      to(Delete),

	{Delete, DeleteStarted}:     to(Deleting),
	{Deleting, DeleteSucceeded}: removed,
	{Delete, DeleteSucceeded}:   removed,
	{Deleting, DeleteFailed}:    to(Delete),
	{Delete, DeleteFailed}:      to(Delete),

	{Sent, Interrupted}:     to(WaitingToSend),
	{Updating, Interrupted}: to(Update),
	{Deleting, Interrupted}: to(Delete),
}

// Next returns the step taken when e happens to an entity in status s.
// It has no side effects.
func Next(s SendStatus, e Event) (Step, error) {
	if e == Receive && s.IsPending() {
		return Step{Status: s}, ErrLocalPending
	}
	step, ok := table[edge{s, e}]
	if !ok {
		return Step{Status: s}, fmt.Errorf("%w: %s on %s", ErrIllegalTransition, e, s)
	}
	return step, nil
}
