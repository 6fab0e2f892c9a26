// Package diff keeps a live keyed structure (map handles) consistent with a
// changing source collection by computing and applying add, replace,
// remove and remove-all operations.
//
// Plan is the pure half: it compares the payloads applied last time with a
// new snapshot. Reconciler is the stateful half: it owns the applied payloads
// and the live handles and marshals every handle change onto an Executor.
package diff

import (
	"fmt"
	"reflect"
)

// Op is one reconciliation operation.
type Op uint8

const (
	OpAdd Op = iota + 1
	OpReplace
	OpRemove
	OpRemoveAll
)

func (o Op) String() string {
	switch o {
	case OpAdd:
		return "add"
	case OpReplace:
		return "replace"
	case OpRemove:
		return "remove"
	case OpRemoveAll:
		return "remove_all"
	default:
		return fmt.Sprintf("Op(%d)", uint8(o))
	}
}

// Change is an operation on one key. Payload is set for add and replace.
type Change[K comparable, P any] struct {
	Op      Op
	Key     K
	Payload P
}

// Source describes how to read a snapshot of items of type T.
type Source[T any, K comparable, P any] struct {
	// Key extracts the stable key of an item.
	Key func(T) K
	// Payload extracts what the live handle is built from.
	Payload func(T) P
	// Active suppresses an item without removing its source record.
	// nil means every item is active.
	Active func(T) bool
	// Equal compares payloads by value. nil means reflect.DeepEqual.
	Equal func(a, b P) bool
}

func (s Source[T, K, P]) equal(a, b P) bool {
	if s.Equal != nil {
		return s.Equal(a, b)
	}
	return reflect.DeepEqual(a, b)
}

// Plan computes the operations that turn applied into items. Removals come
// first, then replacements and additions in snapshot order. When several
// items share a key the last one wins. An empty snapshot tears everything
// down with a single OpRemoveAll.
func Plan[T any, K comparable, P any](applied map[K]P, items []T, src Source[T, K, P]) []Change[K, P] {
	next := make(map[K]P, len(items))
	order := make([]K, 0, len(items))
	for _, it := range items {
		if src.Active != nil && !src.Active(it) {
			continue
		}
		k := src.Key(it)
		if _, seen := next[k]; !seen {
			order = append(order, k)
		}
		next[k] = src.Payload(it)
	}

	if len(next) == 0 {
		if len(applied) == 0 {
			return nil
		}
		return []Change[K, P]{{Op: OpRemoveAll}}
	}

	var changes []Change[K, P]
	for k := range applied {
		if _, ok := next[k]; !ok {
			changes = append(changes, Change[K, P]{Op: OpRemove, Key: k})
		}
	}

	for _, k := range order {
		p := next[k]
		old, ok := applied[k]
		switch {
		case !ok:
			changes = append(changes, Change[K, P]{Op: OpAdd, Key: k, Payload: p})
		case !src.equal(old, p):
			changes = append(changes, Change[K, P]{Op: OpReplace, Key: k, Payload: p})
		}
	}

	return changes
}
