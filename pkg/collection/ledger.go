package collection

import "github.com/Sriram-PR/catalog-scraper/pkg/models"

// Ledger is the set of item references already collected.
// It has no persistence of its own; it is rebuilt from the records at load.
type Ledger struct {
	refs map[models.ItemReference]struct{}
}

// NewLedger creates an empty Ledger
func NewLedger() *Ledger {
	return &Ledger{refs: make(map[models.ItemReference]struct{})}
}

// Contains reports whether ref has been collected
func (l *Ledger) Contains(ref models.ItemReference) bool {
	_, ok := l.refs[ref]
	return ok
}

// Insert adds ref and reports whether it was new
func (l *Ledger) Insert(ref models.ItemReference) bool {
	if _, ok := l.refs[ref]; ok {
		return false
	}
	l.refs[ref] = struct{}{}
	return true
}

// Len returns the number of references
func (l *Ledger) Len() int { return len(l.refs) }
