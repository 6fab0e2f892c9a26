// Package models holds the client's syncable data types.
package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/fieldsync/internal/client/status"
)

// Scope is the incident and collaboration room an entity belongs to.
// RoomID 0 means the entity is incident wide.
type Scope struct {
	IncidentID int64
	RoomID     int64
}

func (s Scope) String() string {
	return fmt.Sprintf("%d/%d", s.IncidentID, s.RoomID)
}

// ForCategory narrows s to what category c is stored under: incident wide
// categories drop the room.
func (s Scope) ForCategory(c Category) Scope {
	if !c.RoomScoped() {
		return Scope{IncidentID: s.IncidentID}
	}
	return s
}

// Entity is one syncable record: a map feature, chat message, report,
// tracking point and so on. Payload is opaque to the sync core.
type Entity struct {
	ID         int64
	RemoteID   string
	Category   Category
	Scope      Scope
	Owner      string
	Status     status.SendStatus
	Payload    json.RawMessage
	LastUpdate time.Time
	SeqTime    time.Time
}

// Clone returns a deep copy of e.
func (e *Entity) Clone() *Entity {
	c := *e
	c.Payload = append(json.RawMessage(nil), e.Payload...)
	return &c
}

// PullRequest asks the server for everything in a category and scope that
// changed after Since.
type PullRequest struct {
	Category Category
	Scope    Scope
	Since    time.Time
}

// PullResult is a decoded pull response. Records that failed to decode are
// reported in Invalid and never abort the batch.
// Until is the server's cursor for the next pull; zero when the server did
// not send one.
type PullResult struct {
	Records []Entity
	Deleted []string
	Invalid []error
	Until   time.Time
}
