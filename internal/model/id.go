package model

import "github.com/oklog/ulid/v2"

// NewID generates a new ULID string for run and attempt identifiers.
// ULIDs sort lexicographically by creation time, which keeps store
// listings in chronological order without an extra column.
func NewID() string {
	return ulid.Make().String()
}
