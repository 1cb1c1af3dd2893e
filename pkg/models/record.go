package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Column names shared by the checkpoint file, the extractor and the export schema
const (
	FieldSlug        = "Берется из URL"
	FieldRegion      = "Регион России"
	FieldCity        = "Город"
	FieldAddress     = "Адрес"
	FieldName        = "Название"
	FieldDescription = "Описание"
	FieldPhone       = "Телефон"
	FieldPhotos      = "Фото"
	FieldURL         = "Полный URL без параметров"
	FieldCategory    = "Категория"
	FieldHours       = "Время работы"

	// FieldSocial holds the nested network -> link object in the checkpoint JSON
	FieldSocial = "Соц. сети"
)

// DefaultColumns is the fixed export schema before social network columns are spliced in
var DefaultColumns = []string{
	FieldSlug,
	FieldRegion,
	FieldCity,
	FieldAddress,
	FieldName,
	FieldDescription,
	FieldPhone,
	FieldPhotos,
	FieldURL,
	FieldCategory,
	FieldHours,
}

// Record is the fully extracted representation of one catalog entry.
// Social is nil for records loaded from a checkpoint that lacks the nested social object.
type Record struct {
	Fields map[string]string
	Social map[string]string
}

// NewRecord creates an empty record with both maps initialized
func NewRecord() Record {
	return Record{
		Fields: make(map[string]string),
		Social: make(map[string]string),
	}
}

// Reference returns the stable key of the record
func (r Record) Reference() ItemReference { return ItemReference(r.Fields[FieldURL]) }

// Locale returns the city label the export is sorted by first
func (r Record) Locale() string { return r.Fields[FieldCity] }

// DisplayName returns the entry name the export is sorted by second
func (r Record) DisplayName() string { return r.Fields[FieldName] }

// Get returns a field or social link by column name
func (r Record) Get(column string) (string, bool) {
	if v, ok := r.Fields[column]; ok {
		return v, true
	}
	v, ok := r.Social[column]
	return v, ok
}

// SocialNames returns the record's social network names, sorted
func (r Record) SocialNames() []string {
	names := make([]string, 0, len(r.Social))
	for name := range r.Social {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MarshalJSON writes the flat checkpoint object: every field plus the nested social object.
// Keys are emitted in the fixed column order first, then any extra fields sorted.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	writePair := func(key string, value interface{}) error {
		k, err := marshalNoEscape(key)
		if err != nil {
			return err
		}
		v, err := marshalNoEscape(value)
		if err != nil {
			return err
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
		return nil
	}

	written := make(map[string]bool, len(r.Fields))
	for _, col := range DefaultColumns {
		if v, ok := r.Fields[col]; ok {
			if err := writePair(col, v); err != nil {
				return nil, err
			}
			written[col] = true
		}
	}
	extra := make([]string, 0)
	for k := range r.Fields {
		if !written[k] && k != FieldSocial {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		if err := writePair(k, r.Fields[k]); err != nil {
			return nil, err
		}
	}

	social := r.Social
	if social == nil {
		social = map[string]string{}
	}
	if err := writePair(FieldSocial, social); err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads the flat checkpoint object. Top-level keys that repeat a
// social network name (older checkpoints stored links twice) are folded into Social.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	r.Fields = make(map[string]string, len(raw))
	r.Social = nil
	if socialRaw, ok := raw[FieldSocial]; ok {
		social := make(map[string]string)
		if string(socialRaw) != "null" {
			if err := json.Unmarshal(socialRaw, &social); err != nil {
				return fmt.Errorf("decoding %q: %w", FieldSocial, err)
			}
		}
		r.Social = social
	}

	for k, v := range raw {
		if k == FieldSocial {
			continue
		}
		if _, dup := r.Social[k]; dup {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			// Non-string values are kept verbatim rather than dropped
			s = string(v)
		}
		r.Fields[k] = s
	}
	return nil
}

// marshalNoEscape encodes v as JSON without HTML escaping and without the trailing newline
func marshalNoEscape(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
