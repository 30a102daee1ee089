package manifest

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/extrame/xls"
	"github.com/parquet-go/parquet-go"
)

// Loader reads manifests from disk.
type Loader struct {
	path string
}

// NewLoader creates a new manifest loader
func NewLoader(path string) *Loader {
	return &Loader{
		path: path,
	}
}

// Load is shorthand for NewLoader(path).Load().
func Load(path string) ([]Record, error) {
	return NewLoader(path).Load()
}

// Extensions lists the manifest formats Load understands.
func Extensions() []string {
	return []string{".txt", ".csv", ".json", ".xls", ".parquet"}
}

// Load parses the manifest, choosing a parser from the file extension alone,
// and verifies the required columns before returning any record.
func (l *Loader) Load() ([]Record, error) {
	ext := filepath.Ext(l.path)

	var (
		t   *table
		err error
	)
	switch ext {
	case ".txt":
		t, err = l.loadDelimited('\t')
	case ".csv":
		t, err = l.loadDelimited(',')
	case ".json":
		t, err = l.loadJSON()
	case ".xls":
		t, err = l.loadXLS()
	case ".parquet":
		t, err = l.loadParquet()
	default:
		return nil, fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedFormat, ext, strings.Join(Extensions(), ", "))
	}
	if err != nil {
		return nil, err
	}

	records, err := t.records()
	if err != nil {
		return nil, err
	}

	slog.Debug("Loaded manifest", "path", l.path, "format", ext, "columns", t.header, "records", len(records))
	return records, nil
}

// loadDelimited reads tab- or comma-separated text with a header row.
func (l *Loader) loadDelimited(sep rune) (*table, error) {
	file, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.Comma = sep
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return &table{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest header: %w", err)
	}

	t := &table{header: header}
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read manifest row %d: %w", len(t.rows)+1, err)
		}
		t.rows = append(t.rows, row)
	}
	return t, nil
}

// loadJSON accepts either a list of objects or a column-oriented object
// of the form {"column": {"0": value, "1": value}}.
func (l *Loader) loadJSON() (*table, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}

	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return &table{}, nil
	}

	if strings.HasPrefix(trimmed, "[") {
		var objects []map[string]json.RawMessage
		if err := json.Unmarshal(data, &objects); err != nil {
			return nil, fmt.Errorf("failed to parse JSON manifest: %w", err)
		}
		return recordsTable(objects)
	}

	var columns map[string]map[string]json.RawMessage
	if err := json.Unmarshal(data, &columns); err != nil {
		return nil, fmt.Errorf("failed to parse JSON manifest: %w", err)
	}
	return columnsTable(columns)
}

func recordsTable(objects []map[string]json.RawMessage) (*table, error) {
	seen := make(map[string]bool)
	t := &table{}
	for _, obj := range objects {
		for key := range obj {
			if !seen[key] {
				seen[key] = true
				t.header = append(t.header, key)
			}
		}
	}
	sort.Strings(t.header)

	for i, obj := range objects {
		row := make([]string, len(t.header))
		for c, key := range t.header {
			v, err := jsonScalar(obj[key])
			if err != nil {
				return nil, fmt.Errorf("record %d field %s: %w", i+1, key, err)
			}
			row[c] = v
		}
		t.rows = append(t.rows, row)
	}
	return t, nil
}

func columnsTable(columns map[string]map[string]json.RawMessage) (*table, error) {
	t := &table{}
	indexSet := make(map[string]bool)
	for name, values := range columns {
		t.header = append(t.header, name)
		for idx := range values {
			indexSet[idx] = true
		}
	}
	sort.Strings(t.header)

	index := make([]string, 0, len(indexSet))
	for idx := range indexSet {
		index = append(index, idx)
	}
	sortIndex(index)

	for _, idx := range index {
		row := make([]string, len(t.header))
		for c, name := range t.header {
			v, err := jsonScalar(columns[name][idx])
			if err != nil {
				return nil, fmt.Errorf("row %s field %s: %w", idx, name, err)
			}
			row[c] = v
		}
		t.rows = append(t.rows, row)
	}
	return t, nil
}

// sortIndex orders row keys numerically when they are all integers.
func sortIndex(index []string) {
	sort.Slice(index, func(i, j int) bool {
		a, errA := strconv.Atoi(index[i])
		b, errB := strconv.Atoi(index[j])
		if errA == nil && errB == nil {
			return a < b
		}
		return index[i] < index[j]
	})
}

// jsonScalar renders a JSON value as manifest cell text. null and absent are empty.
func jsonScalar(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", err
	}
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(val), nil
	default:
		return "", fmt.Errorf("unexpected JSON value %s", string(raw))
	}
}

// loadXLS reads the first sheet of a legacy Excel workbook; row 0 is the header.
func (l *Loader) loadXLS() (*table, error) {
	wb, closer, err := xls.OpenWithCloser(l.path, "utf-8")
	if closer != nil {
		defer closer.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	if wb == nil {
		return nil, fmt.Errorf("failed to open spreadsheet: no workbook stream in %s", l.path)
	}

	sheet := wb.GetSheet(0)
	if sheet == nil {
		return &table{}, nil
	}

	t := &table{}
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		var cells []string
		if row != nil {
			// LastCol is exclusive when the sheet carries ROW records and
			// inclusive when rows are built from cells alone; reading one
			// extra column covers both, as absent cells read as "".
			cells = make([]string, row.LastCol()+1)
			for c := row.FirstCol(); c <= row.LastCol(); c++ {
				cells[c] = row.Col(c)
			}
		}
		if i == 0 {
			t.header = cells
			continue
		}
		t.rows = append(t.rows, cells)
	}
	return t, nil
}

// loadParquet reads a Parquet manifest. Columns are taken from the file
// schema, so header matching follows the same rules as the text formats.
func (l *Loader) loadParquet() (*table, error) {
	file, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}

	t := &table{}
	for _, path := range pf.Schema().Columns() {
		t.header = append(t.header, strings.Join(path, "."))
	}
	// Required columns are checked before any row is decoded.
	for _, field := range RequiredFields {
		if t.columnIndex(field) < 0 {
			return nil, &MissingFieldError{Field: field}
		}
	}

	reader := parquet.NewReader(pf)
	defer reader.Close()

	rows := make([]parquet.Row, 128)
	for {
		n, err := reader.ReadRows(rows)
		for _, row := range rows[:n] {
			cells := make([]string, len(t.header))
			for _, v := range row {
				if c := v.Column(); c >= 0 && c < len(cells) && !v.IsNull() {
					cells[c] = v.String()
				}
			}
			t.rows = append(t.rows, cells)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read parquet rows: %w", err)
		}
	}
	return t, nil
}
