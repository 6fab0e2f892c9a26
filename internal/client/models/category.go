package models

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/fieldsync/internal/client/status"
)

// Category names one kind of syncable data. Each category is pulled under
// its own unique work name.
type Category string

const (
	CategoryCollabroom      Category = "collabroom"
	CategoryCollabroomLayer Category = "collabroom_layer"
	CategoryMarkup          Category = "markup"
	CategoryHazard          Category = "hazard"
	CategoryTrackingLayer   Category = "tracking_layer"
	CategoryTracking        Category = "tracking"
	CategoryChat            Category = "chat"
	CategoryReport          Category = "report"
	CategoryGeneralMessage  Category = "general_message"
)

var categories = []Category{
	CategoryCollabroom,
	CategoryCollabroomLayer,
	CategoryMarkup,
	CategoryHazard,
	CategoryTrackingLayer,
	CategoryTracking,
	CategoryChat,
	CategoryReport,
	CategoryGeneralMessage,
}

// Categories returns every known category in a stable order.
func Categories() []Category {
	return append([]Category(nil), categories...)
}

// ParseCategory accepts a category name in any case.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range categories {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// RoomScoped reports whether entities of the category belong to a
// collaboration room rather than to the incident as a whole.
func (c Category) RoomScoped() bool {
	switch c {
	case CategoryCollabroomLayer, CategoryMarkup, CategoryHazard, CategoryChat:
		return true
	default:
		return false
	}
}

// OpKind is the kind of outbound operation for a single entity.
type OpKind string

const (
	OpPost   OpKind = "post"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

// OpKinds lists the kinds in flush order: deletes first so a room switch
// never resurrects something the user removed, then new content, then edits.
func OpKinds() []OpKind {
	return []OpKind{OpDelete, OpPost, OpUpdate}
}

// Pending is the status an entity carries while waiting for a push of kind k.
func (k OpKind) Pending() status.SendStatus {
	switch k {
	case OpUpdate:
		return status.Update
	case OpDelete:
		return status.Delete
	default:
		return status.WaitingToSend
	}
}

// Events returns the lifecycle events that bracket a push of kind k.
func (k OpKind) Events() (started, succeeded, failed status.Event) {
	switch k {
	case OpUpdate:
		return status.UpdateStarted, status.UpdateSucceeded, status.UpdateFailed
	case OpDelete:
		return status.DeleteStarted, status.DeleteSucceeded, status.DeleteFailed
	default:
		return status.PostStarted, status.PostSucceeded, status.PostFailed
	}
}

// KindFor returns the push an entity in status s is waiting for. ok is false
// when s waits for nothing or the push is already in flight.
func KindFor(s status.SendStatus) (kind OpKind, ok bool) {
	switch s {
	case status.WaitingToSend:
		return OpPost, true
	case status.Update:
		return OpUpdate, true
	case status.Delete:
		return OpDelete, true
	default:
		return "", false
	}
}
