package models

import (
	"encoding/json"
	"time"
)

// Record is the server copy of one shared entity. SeqTime changes on every
// write, deletes included, so clients can pull incrementally.
type Record struct {
	ID         string
	Category   string
	IncidentID int64
	RoomID     int64
	Owner      string
	Payload    json.RawMessage
	SeqTime    time.Time
	// Deleted marks a tombstone. Tombstones keep their scope so pulls can
	// report them.
	Deleted bool
}

// RecordQuery selects the records of one category and scope changed after
// Since.
type RecordQuery struct {
	Category   string
	IncidentID int64
	RoomID     int64
	Since      time.Time
}
