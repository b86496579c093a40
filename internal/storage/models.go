package storage

import (
	"encoding/json"
	"errors"
	"time"
)

// Bucket names for bbolt database
const (
	UpdatesBucket       = "updates"
	UpdateHistoryBucket = "update_history"
	MetaBucket          = "meta"
)

// Meta keys
const (
	SchemaVersionKey = "schema"
	lastUpdateKey    = "last"
)

// CurrentSchemaVersion is written on open.
const CurrentSchemaVersion = 1

// MaxUpdateHistory bounds the number of update cycles kept.
const MaxUpdateHistory = 50

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// UpdateRecord is the outcome of one update cycle.
type UpdateRecord struct {
	CheckedAt       time.Time `json:"checked_at"`
	CurrentVersion  string    `json:"current_version"`
	LatestVersion   string    `json:"latest_version,omitempty"`
	State           string    `json:"state"`
	ErrorClass      string    `json:"error_class,omitempty"`
	Error           string    `json:"error,omitempty"`
	PendingArtifact string    `json:"pending_artifact,omitempty"`
	Updated         time.Time `json:"updated"`
}

// MarshalBinary implements encoding.BinaryMarshaler
func (r *UpdateRecord) MarshalBinary() ([]byte, error) {
	return json.Marshal(r)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler
func (r *UpdateRecord) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, r)
}
