// Package status defines the send/receive lifecycle of a syncable entity.
//
// The lifecycle is a closed set of SendStatus values driven by a closed set
// of Events. All transitions go through Next, a pure function over a fixed
// table, so every legal (status, event) pair is listed in one place and
// everything else is rejected.
package status

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// SendStatus is the lifecycle tag of an entity. Exactly one holds at a time.
// The numeric values are the ids persisted in the local store.
type SendStatus uint8

const (
	// WaitingToSend is new local content that was never pushed.
	WaitingToSend SendStatus = 0
	// Sent means the first push of the entity is in flight.
	Sent SendStatus = 1
	// Received is the server's authoritative copy.
	Received SendStatus = 2
	// Update is a local edit of a server-known entity waiting to be pushed.
	Update SendStatus = 3
	// Delete is a local delete of a server-known entity waiting to be pushed.
	Delete SendStatus = 4
	// Deleting means the delete push is in flight.
	Deleting SendStatus = 5
	// Updating means the update push is in flight.
	Updating SendStatus = 6
	// Saved is a confirmed local copy after a successful update.
	Saved SendStatus = 7

	// Unknown stands for "no row". It is the state before Create or Receive
	// and is never persisted.
	Unknown SendStatus = 0xff
)

var (
	ErrIllegalTransition = errors.New("illegal status transition")
	// ErrLocalPending is returned when a pull tries to overwrite an entity
	// that still carries an unpushed local change.
	ErrLocalPending  = errors.New("entity has pending local changes")
	ErrUnknownStatus = errors.New("unknown send status")
)

var names = map[SendStatus]string{
	WaitingToSend: "WAITING_TO_SEND",
	Sent:          "SENT",
	Received:      "RECEIVED",
	Update:        "UPDATE",
	Delete:        "DELETE",
	Deleting:      "DELETING",
	Updating:      "UPDATING",
	Saved:         "SAVED",
	Unknown:       "UNKNOWN",
}

func (s SendStatus) String() string {
	if n, ok := names[s]; ok {
		return n
	}
	return "SendStatus(" + strconv.Itoa(int(s)) + ")"
}

// Valid reports whether s may be stored.
func (s SendStatus) Valid() bool {
	return s <= Saved
}

// IsPending reports whether s carries a local change the server has not
// confirmed yet. Pending entities are never overwritten by a pull.
func (s SendStatus) IsPending() bool {
	switch s {
	case WaitingToSend, Sent, Update, Updating, Delete, Deleting:
		return true
	default:
		return false
	}
}

// InFlight reports whether s marks a push that is currently outstanding.
func (s SendStatus) InFlight() bool {
	return s == Sent || s == Updating || s == Deleting
}

// Parse accepts either the status name or its numeric id.
func Parse(s string) (SendStatus, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		st := SendStatus(n)
		if n < 0 || !st.Valid() {
			return Unknown, fmt.Errorf("%w: %d", ErrUnknownStatus, n)
		}
		return st, nil
	}
	for st, name := range names {
		if name == s && st.Valid() {
			return st, nil
		}
	}
	return Unknown, fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}
