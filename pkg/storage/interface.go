package storage

import (
	"context"
	"time"

	"github.com/Sriram-PR/catalog-scraper/pkg/models"
)

// PairStore handles per-pair walk progress
type PairStore interface {
	// MarkPairStarted records that a walk of the pair has begun (pending state).
	// Returns true if the pair was not in the journal before.
	MarkPairStarted(key models.PairKey) (bool, error)

	// CheckPairStatus retrieves the status and details of a pair.
	// Returns status (PairStatusComplete, PairStatusFailure, PairStatusPending, PairStatusNotFound, PairStatusDBError),
	// the PairEntry if found and parsed, and any error
	CheckPairStatus(key models.PairKey) (status models.PairStatus, entry *models.PairEntry, err error)

	// UpdatePairStatus replaces the journal entry for a pair
	UpdatePairStatus(key models.PairKey, entry *models.PairEntry) error
}

// StoreAdmin handles listing, lifecycle and administrative operations
type StoreAdmin interface {
	// GetPairCount returns the number of pairs in the journal
	GetPairCount() (int, error)

	// ListPairs returns every journal entry ordered by key
	ListPairs(ctx context.Context) ([]JournalEntry, error)

	// IncompletePairs returns the keys of pairs left pending or failed by earlier runs
	IncompletePairs(ctx context.Context) (keys []models.PairKey, scanErrors int, err error)

	// WriteJournalLog writes one tab-separated line per pair to the specified file path
	WriteJournalLog(filePath string) error

	// RunGC runs periodic garbage collection. Should be run in a goroutine
	RunGC(ctx context.Context, interval time.Duration)

	// Close cleanly closes the database connection
	Close() error
}

// PairJournal combines all store interfaces for components that need full access
type PairJournal interface {
	PairStore
	StoreAdmin
}

// JournalEntry is one pair with its decoded entry
type JournalEntry struct {
	Key   models.PairKey
	Entry models.PairEntry
}
