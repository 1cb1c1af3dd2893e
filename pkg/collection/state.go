package collection

import (
	"fmt"

	"github.com/Sriram-PR/catalog-scraper/pkg/models"
	"github.com/Sriram-PR/catalog-scraper/pkg/utils"
)

// State is the in-memory collection: records in insertion order plus their ledger.
// Every record in the list is in the ledger and vice versa.
type State struct {
	records []models.Record
	ledger  *Ledger
}

// NewState creates an empty State
func NewState() *State {
	return &State{ledger: NewLedger()}
}

// Append adds rec to the ledger and the list as one step.
// A reference that is already present is rejected with ErrDuplicateRecord.
func (s *State) Append(rec models.Record) error {
	ref := rec.Reference()
	if ref == "" {
		return fmt.Errorf("%w: record %q has no reference", utils.ErrExtraction, rec.DisplayName())
	}
	if !s.ledger.Insert(ref) {
		return fmt.Errorf("%w: %s", utils.ErrDuplicateRecord, ref)
	}
	s.records = append(s.records, rec)
	return nil
}

// Contains reports whether a record with ref is present
func (s *State) Contains(ref models.ItemReference) bool { return s.ledger.Contains(ref) }

// Ledger returns the dedup ledger backing the state
func (s *State) Ledger() *Ledger { return s.ledger }

// Len returns the number of records
func (s *State) Len() int { return len(s.records) }

// Records returns the records in insertion order. The slice is a copy; the records are shared.
func (s *State) Records() []models.Record {
	out := make([]models.Record, len(s.records))
	copy(out, s.records)
	return out
}
