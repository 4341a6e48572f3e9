package store

import (
	"encoding/json"
	"fmt"
)

// BurnState tracks whether a record is served only once.
type BurnState int

const (
	// Never is a regular file, served until it expires or is deleted.
	Never BurnState = iota
	// Pending is served once, then moves to Consumed.
	Pending
	// Consumed was already delivered. Reads must fail as not found.
	Consumed
)

// Persisted values, kept byte-compatible with existing metadata files.
const (
	burnNever    = "False"
	burnPending  = "True"
	burnConsumed = "Burned"
)

func (b BurnState) String() string {
	switch b {
	case Pending:
		return burnPending
	case Consumed:
		return burnConsumed
	default:
		return burnNever
	}
}

// Consume returns the state following a successful read and whether the
// record must be persisted with it. Only Pending moves.
func (b BurnState) Consume() (BurnState, bool) {
	if b == Pending {
		return Consumed, true
	}
	return b, false
}

func (b BurnState) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

func (b *BurnState) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("burn_after_read: %w", err)
	}
	switch s {
	case burnNever:
		*b = Never
	case burnPending:
		*b = Pending
	case burnConsumed:
		*b = Consumed
	default:
		return fmt.Errorf("burn_after_read: unknown value %q", s)
	}
	return nil
}

// Record is the metadata kept for one stored file.
type Record struct {
	RealName      string    `json:"real_name"`
	StoragePath   string    `json:"storage_path"`
	Timestamp     int64     `json:"timestamp"`
	BurnAfterRead BurnState `json:"burn_after_read"`
}

// Records maps a content hash to its record.
type Records map[string]Record
