package collection

import (
	"encoding/csv"
	"io"
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/Sriram-PR/catalog-scraper/pkg/models"
)

// Schema is the fixed export column list and the column social networks are inserted before
type Schema struct {
	Columns []string
	Anchor  string
}

// NewSchema builds a Schema. An anchor missing from columns means social columns go last.
func NewSchema(columns []string, anchor string) Schema {
	cols := make([]string, len(columns))
	copy(cols, columns)
	return Schema{Columns: cols, Anchor: anchor}
}

// Widen returns the export header for records: the fixed columns with every social
// network name spliced in before the anchor, in order of first appearance.
// Within one record names are taken in sorted order. The Schema itself is not modified.
func (s Schema) Widen(records []models.Record) []string {
	fixed := make(map[string]bool, len(s.Columns))
	for _, c := range s.Columns {
		fixed[c] = true
	}

	var social []string
	seen := make(map[string]bool)
	for _, rec := range records {
		for _, name := range rec.SocialNames() {
			if seen[name] || fixed[name] {
				continue
			}
			seen[name] = true
			social = append(social, name)
		}
	}

	at := len(s.Columns)
	for i, c := range s.Columns {
		if c == s.Anchor {
			at = i
			break
		}
	}

	header := make([]string, 0, len(s.Columns)+len(social))
	header = append(header, s.Columns[:at]...)
	header = append(header, social...)
	header = append(header, s.Columns[at:]...)
	return header
}

// Row returns rec's values for header, with "" for anything the record lacks
func Row(rec models.Record, header []string) []string {
	row := make([]string, len(header))
	for i, col := range header {
		row[i], _ = rec.Get(col)
	}
	return row
}

// SortRecords returns a copy of records ordered by (locale, display name) under
// Russian collation. Equal keys keep their collection order.
func SortRecords(records []models.Record) []models.Record {
	sorted := make([]models.Record, len(records))
	copy(sorted, records)

	c := collate.New(language.Russian)
	sort.SliceStable(sorted, func(i, j int) bool {
		if r := c.CompareString(sorted[i].Locale(), sorted[j].Locale()); r != 0 {
			return r < 0
		}
		return c.CompareString(sorted[i].DisplayName(), sorted[j].DisplayName()) < 0
	})
	return sorted
}

// WriteCSV writes header and one row per record. Records end in "\n"; the
// "\r\n" line separator inside fields is kept verbatim within quotes.
func WriteCSV(w io.Writer, delimiter rune, header []string, records []models.Record) error {
	cw := csv.NewWriter(w)
	cw.Comma = delimiter
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, rec := range records {
		if err := cw.Write(Row(rec, header)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
