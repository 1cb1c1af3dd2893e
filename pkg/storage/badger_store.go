package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/catalog-scraper/pkg/log"
	"github.com/Sriram-PR/catalog-scraper/pkg/models"
	"github.com/Sriram-PR/catalog-scraper/pkg/utils"
)

const (
	pairKeyPrefix = "pair:"        // Prefix for pair keys in DB
	journalDBDir  = "pair_journal" // Subdirectory name within stateDir for Badger DB files
)

// BadgerStore implements the PairJournal interface using BadgerDB
type BadgerStore struct {
	db       *badger.DB
	log      *logrus.Entry
	ctx      context.Context // Parent context
	keyCount atomic.Int64    // Cached key count for O(1) GetPairCount
}

// NewBadgerStore initializes and returns a new BadgerStore. With fresh set the
// existing journal for catalogHost is removed first.
func NewBadgerStore(ctx context.Context, stateDir, catalogHost string, fresh bool, logger *logrus.Entry) (*BadgerStore, error) {
	logger = logger.WithField("component", "journal")
	store := &BadgerStore{
		log: logger,
		ctx: ctx,
	}

	// One journal per catalog host within the base state directory
	dbDirName := utils.SanitizeFilename(catalogHost) + "_" + journalDBDir
	dbPath := filepath.Join(stateDir, dbDirName)

	if fresh {
		logger.Warnf("Fresh run requested. REMOVING existing pair journal: %s", dbPath)
		if err := os.RemoveAll(dbPath); err != nil {
			logger.Errorf("Failed to remove existing pair journal %s: %v", dbPath, err)
		}
	}

	logger.Infof("Opening pair journal at: %s (Fresh: %v)", dbPath, fresh)

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("%w: cannot create state directory %s: %w", utils.ErrFilesystem, dbPath, err)
	}

	badgerLogger := log.NewBadgerLogger(logger)
	opts := badger.DefaultOptions(dbPath).
		WithLogger(badgerLogger).
		WithNumVersionsToKeep(1) // Only the latest entry per pair matters

	var err error
	store.db, err = badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open badger database at %s: %w", utils.ErrDatabase, dbPath, err)
	}

	count, err := store.countKeys()
	if err != nil {
		logger.Warnf("Failed to count existing journal entries: %v", err)
	} else {
		store.keyCount.Store(int64(count))
		if count > 0 {
			logger.Infof("Pair journal holds %d entries from earlier runs", count)
		}
	}

	return store, nil
}

// countKeys performs a one-time full key scan (used only during initialization).
func (s *BadgerStore) countKeys() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte(pairKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

const maxConflictRetries = 10

// dbUpdate wraps db.Update with a retry loop for BadgerDB transaction conflicts.
// Conflicts on overlapping keys resolve in microseconds, so a tight retry loop is sufficient.
func (s *BadgerStore) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := range maxConflictRetries {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrDatabase, maxConflictRetries)
}

func pairDBKey(key models.PairKey) []byte {
	return []byte(pairKeyPrefix + string(key))
}

// MarkPairStarted implements the PairJournal interface
func (s *BadgerStore) MarkPairStarted(key models.PairKey) (bool, error) {
	if s.db == nil {
		return false, fmt.Errorf("%w: pair journal not initialized", utils.ErrDatabase)
	}
	dbKey := pairDBKey(key)
	entryBytes, err := json.Marshal(&models.PairEntry{
		Status:    models.PairStatusPending,
		StartedAt: time.Now(),
	})
	if err != nil {
		return false, fmt.Errorf("%w: failed to marshal PairEntry for key '%s': %w", utils.ErrParsing, string(dbKey), err)
	}

	added := false
	err = s.dbUpdate(func(txn *badger.Txn) error {
		_, errGet := txn.Get(dbKey)
		switch {
		case errors.Is(errGet, badger.ErrKeyNotFound):
			added = true
		case errGet != nil:
			return errGet
		}
		return txn.SetEntry(badger.NewEntry(dbKey, entryBytes))
	})
	if err != nil {
		s.log.WithField("key", string(dbKey)).Errorf("DB Update error in MarkPairStarted: %v", err)
		return false, fmt.Errorf("%w: marking pair key '%s': %w", utils.ErrDatabase, string(dbKey), err)
	}
	if added {
		s.keyCount.Add(1)
	}
	return added, nil
}

// CheckPairStatus implements the PairJournal interface
func (s *BadgerStore) CheckPairStatus(key models.PairKey) (models.PairStatus, *models.PairEntry, error) {
	status := models.PairStatusNotFound
	var entry *models.PairEntry
	dbKey := pairDBKey(key)

	errView := s.db.View(func(txn *badger.Txn) error {
		item, errGet := txn.Get(dbKey)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			return nil
		}
		if errGet != nil {
			return fmt.Errorf("%w: failed getting pair key '%s': %w", utils.ErrDatabase, string(dbKey), errGet)
		}

		return item.Value(func(val []byte) error {
			if len(val) == 0 {
				status = models.PairStatusPending
				return nil
			}
			var decoded models.PairEntry
			if errJSON := json.Unmarshal(val, &decoded); errJSON != nil {
				s.log.Warnf("Failed to unmarshal PairEntry for key '%s': %v. Treating as 'pending'.", string(dbKey), errJSON)
				status = models.PairStatusPending
				return nil
			}
			entry = &decoded
			status = decoded.Status
			return nil
		})
	})

	if errView != nil {
		s.log.Errorf("DB View error in CheckPairStatus for key '%s': %v", string(dbKey), errView)
		return models.PairStatusDBError, nil, errView
	}
	return status, entry, nil
}

// UpdatePairStatus implements the PairJournal interface
func (s *BadgerStore) UpdatePairStatus(key models.PairKey, entry *models.PairEntry) error {
	if s.db == nil {
		return fmt.Errorf("%w: pair journal not initialized", utils.ErrDatabase)
	}
	dbKey := pairDBKey(key)

	entryBytes, errJSON := json.Marshal(entry)
	if errJSON != nil {
		wrappedErr := fmt.Errorf("%w: failed to marshal PairEntry for key '%s': %w", utils.ErrParsing, string(dbKey), errJSON)
		s.log.Error(wrappedErr)
		return wrappedErr
	}

	isNew := false
	err := s.dbUpdate(func(txn *badger.Txn) error {
		_, errGet := txn.Get(dbKey)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			isNew = true
		}
		return txn.SetEntry(badger.NewEntry(dbKey, entryBytes))
	})
	if err != nil {
		s.log.WithField("key", string(dbKey)).Errorf("DB Update error in UpdatePairStatus: %v", err)
		return fmt.Errorf("%w: failed setting pair status for key '%s': %w", utils.ErrDatabase, string(dbKey), err)
	}
	if isNew {
		s.keyCount.Add(1)
	}

	s.log.Debugf("Updated pair '%s' to '%s'", string(key), entry.Status)
	return nil
}

// GetPairCount implements the PairJournal interface.
// Returns the cached key count maintained by atomic increments on writes.
func (s *BadgerStore) GetPairCount() (int, error) {
	return int(s.keyCount.Load()), nil
}

// scanPairs calls fn for every pair key with its raw value, in key order
func (s *BadgerStore) scanPairs(ctx context.Context, fn func(key models.PairKey, val []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(pairKeyPrefix)

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			key := models.PairKey(item.KeyCopy(nil)[len(prefix):])
			val, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("%w: reading value for '%s': %w", utils.ErrDatabase, string(key), err)
			}
			if err := fn(key, val); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListPairs implements the PairJournal interface. Entries that can't be decoded
// are reported as pending.
func (s *BadgerStore) ListPairs(ctx context.Context) ([]JournalEntry, error) {
	var entries []JournalEntry
	err := s.scanPairs(ctx, func(key models.PairKey, val []byte) error {
		je := JournalEntry{Key: key, Entry: models.PairEntry{Status: models.PairStatusPending}}
		if len(val) > 0 {
			if errJSON := json.Unmarshal(val, &je.Entry); errJSON != nil {
				s.log.Warnf("Failed to unmarshal PairEntry for '%s': %v", string(key), errJSON)
				je.Entry = models.PairEntry{Status: models.PairStatusPending}
			}
		}
		entries = append(entries, je)
		return nil
	})
	return entries, err
}

// IncompletePairs implements the PairJournal interface
func (s *BadgerStore) IncompletePairs(ctx context.Context) ([]models.PairKey, int, error) {
	var keys []models.PairKey
	scanErrors := 0
	scanStartTime := time.Now()

	err := s.scanPairs(ctx, func(key models.PairKey, val []byte) error {
		if len(val) == 0 {
			keys = append(keys, key)
			return nil
		}
		var entry models.PairEntry
		if errJSON := json.Unmarshal(val, &entry); errJSON != nil {
			s.log.Errorf("Journal scan: failed unmarshal PairEntry for '%s': %v. Skipping.", string(key), errJSON)
			scanErrors++
			return nil
		}
		if entry.Status == models.PairStatusPending || entry.Status == models.PairStatusFailure {
			keys = append(keys, key)
		}
		return nil
	})

	if err != nil && !utils.IsCancellation(err) {
		s.log.Errorf("Error during journal scan: %v", err)
	}
	s.log.Debugf("Journal scan complete: %d incomplete pairs in %v. Errors: %d.", len(keys), time.Since(scanStartTime), scanErrors)
	return keys, scanErrors, err
}

// WriteJournalLog implements the PairJournal interface
func (s *BadgerStore) WriteJournalLog(filePath string) error {
	file, err := os.Create(filePath)
	if err != nil {
		s.log.Errorf("Failed create journal log '%s': %v", filePath, err)
		return fmt.Errorf("%w: create journal log '%s': %w", utils.ErrFilesystem, filePath, err)
	}
	defer file.Close()

	entries, iterErr := s.ListPairs(s.ctx)

	writer := bufio.NewWriter(file)
	var ioErr error
	for _, je := range entries {
		partitionID, filter := je.Key.Split()
		line := fmt.Sprintf("%s\t%s\t%s\t%d\t%d\t%s\n",
			partitionID, filter, je.Entry.Status, je.Entry.Pages, je.Entry.NewRecords, je.Entry.ErrorType)
		if _, err := writer.WriteString(line); err != nil && ioErr == nil {
			ioErr = err
		}
	}
	if err := writer.Flush(); err != nil && ioErr == nil {
		ioErr = err
	}
	if err := file.Sync(); err != nil && ioErr == nil {
		ioErr = err
	}

	if iterErr != nil {
		return iterErr
	}
	if ioErr != nil {
		return fmt.Errorf("%w: writing journal log '%s': %w", utils.ErrFilesystem, filePath, ioErr)
	}
	s.log.Infof("Wrote %d journal entries to %s", len(entries), filePath)
	return nil
}

// RunGC runs BadgerDB's garbage collection periodically
func (s *BadgerStore) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if s.db == nil || s.db.IsClosed() {
				continue
			}
			var err error
			for {
				// Run GC if log is at least 50% reclaimable space
				if err = s.db.RunValueLogGC(0.5); err != nil {
					break
				}
			}
			if !errors.Is(err, badger.ErrNoRewrite) {
				s.log.Errorf("BadgerDB GC error: %v", err)
			}

		case <-ctx.Done():
			s.log.Debugf("Stopping BadgerDB garbage collection: %v", ctx.Err())
			return
		}
	}
}

// Close implements the PairJournal interface
func (s *BadgerStore) Close() error {
	if s.db != nil && !s.db.IsClosed() {
		if err := s.db.Close(); err != nil {
			s.log.Errorf("Error closing pair journal: %v", err)
			return fmt.Errorf("%w: closing pair journal: %w", utils.ErrDatabase, err)
		}
		s.log.Debug("Pair journal closed.")
	}
	return nil
}
