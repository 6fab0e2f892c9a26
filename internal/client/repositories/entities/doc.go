// Package entities is the SQLite persistence of syncable entities.
//
// Rows are keyed by the local autoincrement id. The server identity lives in
// remote_id and is unique per category once known. Timestamps are stored as
// unix milliseconds; a seq_time of 0 means the server never confirmed the row.
package entities
