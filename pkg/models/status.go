package models

import "time"

// PairStatus represents the progress of a (partition, filter) pair in the pair journal
type PairStatus string

const (
	PairStatusUnset    PairStatus = ""          // Zero value = unset/unknown
	PairStatusPending  PairStatus = "pending"   // Pair walk started but not checkpointed
	PairStatusComplete PairStatus = "complete"  // Pair walked to its last page and checkpointed
	PairStatusFailure  PairStatus = "failure"   // Pair walk aborted
	PairStatusNotFound PairStatus = "not_found" // Pair not in journal
	PairStatusDBError  PairStatus = "db_error"  // Database error occurred
)

// String implements fmt.Stringer for logging
func (s PairStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsValid returns true if the status is a known operational value
func (s PairStatus) IsValid() bool {
	switch s {
	case PairStatusPending, PairStatusComplete, PairStatusFailure:
		return true
	}
	return false
}

// PairEntry stores the outcome of walking one pair in the journal
type PairEntry struct {
	Status      PairStatus `json:"status"`
	Pages       int        `json:"pages"`                  // Listing pages fetched in the last walk
	NewRecords  int        `json:"new_records"`            // Records appended in the last walk
	ErrorType   string     `json:"error_type,omitempty"`   // Error category (on failure)
	StartedAt   time.Time  `json:"started_at"`             // Start of the last walk
	CompletedAt time.Time  `json:"completed_at,omitempty"` // End of the last successful walk
}
