package collection

import (
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/catalog-scraper/pkg/models"
	"github.com/Sriram-PR/catalog-scraper/pkg/utils"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func record(city, name, slug string, social map[string]string) models.Record {
	r := models.NewRecord()
	r.Fields[models.FieldSlug] = slug
	r.Fields[models.FieldCity] = city
	r.Fields[models.FieldRegion] = city
	r.Fields[models.FieldName] = name
	r.Fields[models.FieldURL] = "https://zoon.ru/msk/entertainment/" + slug + "/"
	for k, v := range social {
		r.Social[k] = v
	}
	return r
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	return NewStore(
		filepath.Join(dir, "entertainment.json"),
		filepath.Join(dir, "entertainment.csv"),
		NewSchema(models.DefaultColumns, models.FieldHours),
		',',
		testLogger(),
	)
}

func TestLedger(t *testing.T) {
	l := NewLedger()
	assert.False(t, l.Contains("a"))
	assert.True(t, l.Insert("a"))
	assert.False(t, l.Insert("a"))
	assert.True(t, l.Contains("a"))
	assert.Equal(t, 1, l.Len())
}

func TestState_AppendKeepsLedgerInSync(t *testing.T) {
	s := NewState()
	require.NoError(t, s.Append(record("Москва", "A", "a", nil)))
	require.NoError(t, s.Append(record("Москва", "B", "b", nil)))

	err := s.Append(record("Москва", "A again", "a", nil))
	assert.ErrorIs(t, err, utils.ErrDuplicateRecord)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 2, s.Ledger().Len())
	assert.True(t, s.Contains("https://zoon.ru/msk/entertainment/a/"))

	noRef := models.NewRecord()
	assert.ErrorIs(t, s.Append(noRef), utils.ErrExtraction)
	assert.Equal(t, 2, s.Len())
}

func TestState_RecordsIsACopy(t *testing.T) {
	s := NewState()
	require.NoError(t, s.Append(record("Москва", "A", "a", nil)))
	recs := s.Records()
	recs[0] = record("X", "X", "x", nil)
	assert.Equal(t, "A", s.Records()[0].DisplayName())
}

func TestSchema_Widen(t *testing.T) {
	schema := NewSchema(models.DefaultColumns, models.FieldHours)
	records := []models.Record{
		record("Москва", "1", "r1", map[string]string{"A": "a1"}),
		record("Москва", "2", "r2", map[string]string{"B": "b2"}),
		record("Москва", "3", "r3", map[string]string{"A": "a3", "B": "b3"}),
	}

	header := schema.Widen(records)

	anchor := len(models.DefaultColumns) - 1 // Время работы is last
	want := append(append(append([]string{}, models.DefaultColumns[:anchor]...), "A", "B"), models.FieldHours)
	if diff := cmp.Diff(want, header); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}
	// Schema itself is unchanged
	assert.Equal(t, models.DefaultColumns, schema.Columns)

	rows := [][]string{}
	for _, r := range records {
		row := Row(r, header)
		rows = append(rows, row[anchor:anchor+2])
	}
	wantRows := [][]string{{"a1", ""}, {"", "b2"}, {"a3", "b3"}}
	if diff := cmp.Diff(wantRows, rows); diff != "" {
		t.Errorf("social cells mismatch (-want +got):\n%s", diff)
	}
}

func TestSchema_Widen_MissingAnchorAppends(t *testing.T) {
	schema := NewSchema([]string{"x", "y"}, "absent")
	header := schema.Widen([]models.Record{record("", "", "a", map[string]string{"S": "1"})})
	assert.Equal(t, []string{"x", "y", "S"}, header)
}

func TestSortRecords(t *testing.T) {
	records := []models.Record{
		record("Санкт-Петербург", "Аквапарк", "spb1", nil),
		record("Москва", "Вега", "m1", nil),
		record("Москва", "батут", "m2", nil),
		record("Москва", "Арена", "m3", nil),
		record("Екатеринбург", "Зал", "e1", nil),
	}

	sorted := SortRecords(records)

	var got []string
	for _, r := range sorted {
		got = append(got, r.Locale()+"/"+r.DisplayName())
	}
	want := []string{
		"Екатеринбург/Зал",
		"Москва/Арена",
		"Москва/батут",
		"Москва/Вега",
		"Санкт-Петербург/Аквапарк",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("sort order mismatch (-want +got):\n%s", diff)
	}
	// Input untouched
	assert.Equal(t, "Аквапарк", records[0].DisplayName())
}

func TestStore_CheckpointRoundTrip(t *testing.T) {
	store := newTestStore(t)
	state := NewState()
	rec := record("Москва", "Парк & Co", "park", map[string]string{"ВКонтакте": "https://vk.com/park"})
	rec.Fields[models.FieldDescription] = "Строка 1\r\nСтрока 2"
	require.NoError(t, state.Append(rec))
	require.NoError(t, state.Append(record("Москва", "Квест", "kvest", nil)))

	require.NoError(t, store.Checkpoint(state))

	raw, err := os.ReadFile(store.CheckpointPath())
	require.NoError(t, err)
	text := string(raw)
	assert.True(t, strings.HasPrefix(text, "[\n    {\n        \""), "4-space indentation: %q", text[:20])
	assert.Contains(t, text, "Парк & Co", "no unicode or HTML escaping")
	assert.Contains(t, text, `"Соц. сети": {`)

	loaded := store.Load()
	require.Equal(t, 2, loaded.Len())
	assert.Equal(t, state.Records(), loaded.Records())

	// No temp files left behind
	entries, err := os.ReadDir(filepath.Dir(store.CheckpointPath()))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestStore_LoadMissingStartsEmpty(t *testing.T) {
	state := newTestStore(t).Load()
	assert.Equal(t, 0, state.Len())
}

func TestStore_LoadCorruptMovesAside(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, os.WriteFile(store.CheckpointPath(), []byte(`[{"Название": `), 0644))

	state := store.Load()

	assert.Equal(t, 0, state.Len())
	_, err := os.Stat(store.CheckpointPath())
	assert.True(t, os.IsNotExist(err), "corrupt checkpoint should be moved aside")
	matches, _ := filepath.Glob(store.CheckpointPath() + ".corrupt-*")
	assert.Len(t, matches, 1)
}

func TestStore_LoadKeepsFirstDuplicate(t *testing.T) {
	store := newTestStore(t)
	first := record("Москва", "First", "dup", nil)
	second := record("Москва", "Second", "dup", nil)
	require.NoError(t, store.SaveRecords([]models.Record{first, second}))

	state := store.Load()

	require.Equal(t, 1, state.Len())
	assert.Equal(t, "First", state.Records()[0].DisplayName())
}

func TestStore_LoadEmptyFile(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, os.WriteFile(store.CheckpointPath(), nil, 0644))

	records, err := store.LoadRecords()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestStore_CheckpointFailureKeepsPrevious(t *testing.T) {
	store := newTestStore(t)
	state := NewState()
	require.NoError(t, state.Append(record("Москва", "A", "a", nil)))
	require.NoError(t, store.Checkpoint(state))
	before, err := os.ReadFile(store.CheckpointPath())
	require.NoError(t, err)

	// A regular file can't act as the parent directory
	broken := NewStore(filepath.Join(store.CheckpointPath(), "nested.json"), store.ExportPath(),
		NewSchema(models.DefaultColumns, models.FieldHours), ',', testLogger())
	err = broken.Checkpoint(state)
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrFilesystem)

	after, err := os.ReadFile(store.CheckpointPath())
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestStore_Finalize(t *testing.T) {
	store := newTestStore(t)
	state := NewState()
	spb := record("Санкт-Петербург", "Аквапарк", "spb", map[string]string{"Telegram": "https://t.me/a"})
	msk := record("Москва", "Батут", "msk", map[string]string{"ВКонтакте": "https://vk.com/b"})
	msk.Fields[models.FieldAddress] = "ул. Ленина, 1\r\nМетро: Южная"
	require.NoError(t, state.Append(spb))
	require.NoError(t, state.Append(msk))
	require.NoError(t, store.Checkpoint(state))
	checkpointBefore, _ := os.ReadFile(store.CheckpointPath())

	require.NoError(t, store.Finalize(state))

	raw, err := os.ReadFile(store.ExportPath())
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\"ул. Ленина, 1\r\nМетро: Южная\"", "in-field separator kept inside quotes")
	assert.False(t, strings.HasSuffix(string(raw), "\r\n"), "records end in LF")

	rows, err := csv.NewReader(bytes.NewReader(raw)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	header := rows[0]
	hoursIdx := len(header) - 1
	assert.Equal(t, models.FieldHours, header[hoursIdx])
	// Москва sorts first, so its network is discovered first
	assert.Equal(t, []string{"ВКонтакте", "Telegram"}, header[hoursIdx-2:hoursIdx])

	assert.Equal(t, "Москва", rows[1][2])
	assert.Equal(t, "Санкт-Петербург", rows[2][2])
	assert.Equal(t, []string{"https://vk.com/b", ""}, rows[1][hoursIdx-2:hoursIdx])
	assert.Equal(t, []string{"", "https://t.me/a"}, rows[2][hoursIdx-2:hoursIdx])

	// State order and checkpoint are untouched
	assert.Equal(t, "Аквапарк", state.Records()[0].DisplayName())
	checkpointAfter, _ := os.ReadFile(store.CheckpointPath())
	assert.Equal(t, checkpointBefore, checkpointAfter)
}

func TestStore_FinalizeCustomDelimiter(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(filepath.Join(dir, "c.json"), filepath.Join(dir, "e.csv"),
		NewSchema([]string{models.FieldName, models.FieldCity}, models.FieldHours), ';', testLogger())
	state := NewState()
	require.NoError(t, state.Append(record("Москва", "A;B", "a", nil)))

	require.NoError(t, store.Finalize(state))

	raw, err := os.ReadFile(filepath.Join(dir, "e.csv"))
	require.NoError(t, err)
	assert.Equal(t, "Название;Город\n\"A;B\";Москва\n", string(raw))
}

func TestPrune(t *testing.T) {
	legacy := models.Record{Fields: map[string]string{models.FieldName: "old"}}
	good := record("Москва", "new", "new", nil)

	kept, removed := Prune([]models.Record{legacy, good, legacy})

	require.Len(t, kept, 1)
	assert.Equal(t, "new", kept[0].DisplayName())
	assert.Len(t, removed, 2)
}

func TestRelabel(t *testing.T) {
	recs := []models.Record{
		record("Москва", "A", "a", nil),
		record("Wrong", "B", "b", nil),
	}
	resolve := func(string) models.Partition {
		return models.Partition{ID: "msk", City: "Москва", Region: "Москва"}
	}

	changed := Relabel(recs, resolve)

	assert.Equal(t, 1, changed)
	assert.Equal(t, "Москва", recs[1].Fields[models.FieldCity])
	assert.Equal(t, "Москва", recs[1].Fields[models.FieldRegion])
}
