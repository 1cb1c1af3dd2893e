package collection

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/catalog-scraper/pkg/models"
	"github.com/Sriram-PR/catalog-scraper/pkg/utils"
)

// Store persists the collection: a JSON checkpoint after each productive pair and
// a sorted CSV export at the end of the run
type Store struct {
	checkpointPath string
	exportPath     string
	schema         Schema
	delimiter      rune
	log            *logrus.Entry
}

// NewStore creates a Store
func NewStore(checkpointPath, exportPath string, schema Schema, delimiter rune, log *logrus.Entry) *Store {
	return &Store{
		checkpointPath: checkpointPath,
		exportPath:     exportPath,
		schema:         schema,
		delimiter:      delimiter,
		log:            log.WithField("component", "store"),
	}
}

// CheckpointPath returns the checkpoint file location
func (s *Store) CheckpointPath() string { return s.checkpointPath }

// ExportPath returns the export file location
func (s *Store) ExportPath() string { return s.exportPath }

// Load reads the last checkpoint into a State. A missing or unreadable checkpoint
// yields an empty State. A checkpoint that cannot be decoded is moved aside so the
// next checkpoint does not overwrite it. Repeated references keep their first record.
func (s *Store) Load() *State {
	records, err := s.LoadRecords()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.log.WithField("path", s.checkpointPath).Info("No checkpoint found, starting fresh")
			return NewState()
		}
		entry := s.log.WithError(err).WithField("path", s.checkpointPath)
		if errors.Is(err, utils.ErrParsing) {
			aside := fmt.Sprintf("%s.corrupt-%s", s.checkpointPath, time.Now().Format("20060102T150405"))
			if renameErr := os.Rename(s.checkpointPath, aside); renameErr == nil {
				entry = entry.WithField("moved_to", aside)
			}
		}
		entry.Warn("Can't load checkpoint, starting fresh")
		return NewState()
	}

	state := NewState()
	for i, rec := range records {
		if err := state.Append(rec); err != nil {
			s.log.WithError(err).WithField("index", i).Warn("Dropping checkpoint record")
		}
	}
	s.log.WithFields(logrus.Fields{"path": s.checkpointPath, "records": state.Len()}).Info("Checkpoint loaded")
	return state
}

// LoadRecords reads the checkpoint verbatim, without dedup
func (s *Store) LoadRecords() ([]models.Record, error) {
	f, err := os.Open(s.checkpointPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", utils.ErrFilesystem, err)
	}
	defer f.Close()

	var records []models.Record
	if err := json.NewDecoder(f).Decode(&records); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: checkpoint JSON: %v", utils.ErrParsing, err)
	}
	return records, nil
}

// Checkpoint replaces the checkpoint with the full state. The write is atomic;
// on failure the previous checkpoint is left intact.
func (s *Store) Checkpoint(state *State) error {
	return s.SaveRecords(state.Records())
}

// SaveRecords atomically writes records as the checkpoint
func (s *Store) SaveRecords(records []models.Record) error {
	if records == nil {
		records = []models.Record{}
	}
	err := utils.WriteFileAtomic(s.checkpointPath, 0644, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "    ")
		return enc.Encode(records)
	})
	if err != nil {
		s.log.WithError(err).WithField("path", s.checkpointPath).Error("Checkpoint failed")
		return err
	}
	s.log.WithFields(logrus.Fields{"path": s.checkpointPath, "records": len(records)}).Info("Checkpoint saved")
	return nil
}

// Finalize writes the export: records sorted by (locale, display name), header widened
// with the social network columns. The state is not reordered and the checkpoint is
// not touched.
func (s *Store) Finalize(state *State) error {
	sorted := SortRecords(state.Records())
	header := s.schema.Widen(sorted)

	err := utils.WriteFileAtomic(s.exportPath, 0644, func(w io.Writer) error {
		return WriteCSV(w, s.delimiter, header, sorted)
	})
	if err != nil {
		s.log.WithError(err).WithField("path", s.exportPath).Error("Export failed")
		return err
	}
	s.log.WithFields(logrus.Fields{
		"path":    s.exportPath,
		"records": len(sorted),
		"columns": len(header),
	}).Info("Export written")
	return nil
}
