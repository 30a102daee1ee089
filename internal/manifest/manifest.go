// Package manifest reads the tabular file that lists local specimen images
// to ingest.
package manifest

import (
	"errors"
	"fmt"
	"strings"
)

// Column names recognised in a manifest.
const (
	FieldFileName = "FileName"
	FieldGenus    = "Genus"
	FieldSpecies  = "Species"
	FieldShotType = "ShotType"
)

// RequiredFields must be present as columns in every manifest. ShotType is
// optional; rows without it fall back to the default shot type.
var RequiredFields = []string{FieldFileName, FieldGenus, FieldSpecies}

var (
	// ErrUnsupportedFormat indicates the manifest extension is not one we can parse.
	ErrUnsupportedFormat = errors.New("unsupported manifest format")

	// ErrMissingField indicates a required column is absent from the manifest.
	ErrMissingField = errors.New("missing required field")
)

// MissingFieldError names the required column that was not found.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingField, e.Field)
}

func (e *MissingFieldError) Is(target error) bool {
	return target == ErrMissingField
}

// Record is one manifest row.
type Record struct {
	Row      int // 1-based data row, header excluded
	FileName string
	Genus    string
	Species  string
	ShotType string
}

// Valid reports whether the taxonomic names are present.
func (r Record) Valid() bool {
	return r.Genus != "" && r.Species != ""
}

// table is the format-neutral shape every parser produces.
type table struct {
	header []string
	rows   [][]string
}

// columnIndex finds a column by exact name first, then case-insensitively.
func (t *table) columnIndex(name string) int {
	for i, h := range t.header {
		if h == name {
			return i
		}
	}
	for i, h := range t.header {
		if strings.EqualFold(h, name) {
			return i
		}
	}
	return -1
}

// records validates the header and maps rows to Records, keeping file order.
func (t *table) records() ([]Record, error) {
	for i, h := range t.header {
		t.header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	idx := make(map[string]int, len(RequiredFields)+1)
	for _, field := range RequiredFields {
		i := t.columnIndex(field)
		if i < 0 {
			return nil, &MissingFieldError{Field: field}
		}
		idx[field] = i
	}
	idx[FieldShotType] = t.columnIndex(FieldShotType)

	cell := func(row []string, field string) string {
		i := idx[field]
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	records := make([]Record, 0, len(t.rows))
	for n, row := range t.rows {
		if blank(row) {
			continue
		}
		records = append(records, Record{
			Row:      n + 1,
			FileName: cell(row, FieldFileName),
			Genus:    cell(row, FieldGenus),
			Species:  cell(row, FieldSpecies),
			ShotType: cell(row, FieldShotType),
		})
	}
	return records, nil
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
