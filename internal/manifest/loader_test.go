package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"
)

func writeManifest(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}
	return path
}

func TestNewLoader(t *testing.T) {
	path := "./summary.txt"
	loader := NewLoader(path)

	if loader.path != path {
		t.Errorf("Expected path %s, got %s", path, loader.path)
	}
}

func TestLoadFormats(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name:    "tab delimited",
			file:    "summary.txt",
			content: "FileName\tGenus\tSpecies\tShotType\nant1.jpg\tSolenopsis\tinvicta\tdorsal\nant2.png\tCamponotus\tpennsylvanicus\tlateral\n",
		},
		{
			name:    "csv",
			file:    "summary.csv",
			content: "FileName,Genus,Species,ShotType\nant1.jpg,Solenopsis,invicta,dorsal\n\"ant2.png\",Camponotus,pennsylvanicus,lateral\n",
		},
		{
			name:    "json records",
			file:    "summary.json",
			content: `[{"FileName":"ant1.jpg","Genus":"Solenopsis","Species":"invicta","ShotType":"dorsal"},{"FileName":"ant2.png","Genus":"Camponotus","Species":"pennsylvanicus","ShotType":"lateral"}]`,
		},
		{
			name: "json columns",
			file: "summary.json",
			content: `{"FileName":{"0":"ant1.jpg","1":"ant2.png"},
"Genus":{"0":"Solenopsis","1":"Camponotus"},
"Species":{"0":"invicta","1":"pennsylvanicus"},
"ShotType":{"0":"dorsal","1":"lateral"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := Load(writeManifest(t, tt.file, tt.content))
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if len(records) != 2 {
				t.Fatalf("Expected 2 records, got %d", len(records))
			}

			first := records[0]
			if first.FileName != "ant1.jpg" || first.Genus != "Solenopsis" || first.Species != "invicta" || first.ShotType != "dorsal" {
				t.Errorf("Unexpected first record: %+v", first)
			}
			if first.Row != 1 {
				t.Errorf("Expected row 1, got %d", first.Row)
			}
			if records[1].FileName != "ant2.png" {
				t.Errorf("Expected ant2.png second, got %s", records[1].FileName)
			}
		})
	}
}

func TestLoadJSONColumnsNumericOrder(t *testing.T) {
	content := `{"FileName":{"10":"k.jpg","2":"c.jpg","0":"a.jpg"},
"Genus":{"10":"Lasius","2":"Formica","0":"Atta"},
"Species":{"10":"niger","2":"rufa","0":"cephalotes"}}`

	records, err := Load(writeManifest(t, "summary.json", content))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	want := []string{"a.jpg", "c.jpg", "k.jpg"}
	if len(records) != len(want) {
		t.Fatalf("Expected %d records, got %d", len(want), len(records))
	}
	for i, name := range want {
		if records[i].FileName != name {
			t.Errorf("Record %d: expected %s, got %s", i, name, records[i].FileName)
		}
	}
}

type parquetRow struct {
	FileName string `parquet:"FileName,optional"`
	Genus    string `parquet:"Genus,optional"`
	Species  string `parquet:"Species,optional"`
	ShotType string `parquet:"ShotType,optional"`
}

func TestLoadParquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.parquet")
	rows := []parquetRow{
		{FileName: "ant1.jpg", Genus: "Solenopsis", Species: "invicta", ShotType: "dorsal"},
		{FileName: "ant2.jpg", Genus: "Lasius", Species: "niger"},
	}
	if err := parquet.WriteFile(path, rows); err != nil {
		t.Fatalf("Failed to write parquet file: %v", err)
	}

	records, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if records[0].ShotType != "dorsal" || records[1].Genus != "Lasius" {
		t.Errorf("Unexpected records: %+v", records)
	}
}

func TestLoadParquetCaseInsensitiveColumns(t *testing.T) {
	type lowerRow struct {
		FileName string `parquet:"filename"`
		Genus    string `parquet:"genus"`
		Species  string `parquet:"SPECIES"`
	}
	path := filepath.Join(t.TempDir(), "summary.parquet")
	if err := parquet.WriteFile(path, []lowerRow{{FileName: "ant1.jpg", Genus: "Solenopsis", Species: "invicta"}}); err != nil {
		t.Fatalf("Failed to write parquet file: %v", err)
	}

	records, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}
	if got := records[0]; got.FileName != "ant1.jpg" || got.Genus != "Solenopsis" || got.Species != "invicta" {
		t.Errorf("Expected values read through lower-case columns, got %+v", got)
	}
}

func TestLoadXLS(t *testing.T) {
	records, err := Load(filepath.Join("testdata", "manifest.xls"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Expected 3 records, got %d: %+v", len(records), records)
	}

	want := []Record{
		{Row: 1, FileName: "ant1.jpg", Genus: "Solenopsis", Species: "invicta", ShotType: "dorsal"},
		{Row: 2, FileName: "ant2.png", Genus: "Camponotus", Species: "pennsylvanicus"},
		{Row: 4, FileName: "ant3.jpg", Genus: "Atta", Species: "cephalotes", ShotType: "H"},
	}
	for i, w := range want {
		if records[i] != w {
			t.Errorf("Record %d: expected %+v, got %+v", i, w, records[i])
		}
	}
}

func TestLoadXLSMissingField(t *testing.T) {
	_, err := Load(filepath.Join("testdata", "missing_species.xls"))
	var missing *MissingFieldError
	if !errors.As(err, &missing) || missing.Field != FieldSpecies {
		t.Errorf("Expected missing Species, got %v", err)
	}
}

func TestLoadParquetMissingField(t *testing.T) {
	type partial struct {
		FileName string `parquet:"FileName"`
		Genus    string `parquet:"Genus"`
	}
	path := filepath.Join(t.TempDir(), "summary.parquet")
	if err := parquet.WriteFile(path, []partial{{FileName: "a.jpg", Genus: "Atta"}}); err != nil {
		t.Fatalf("Failed to write parquet file: %v", err)
	}

	_, err := Load(path)
	var missing *MissingFieldError
	if !errors.As(err, &missing) || missing.Field != FieldSpecies {
		t.Errorf("Expected missing Species, got %v", err)
	}
}

func TestLoadOptionalShotType(t *testing.T) {
	records, err := Load(writeManifest(t, "summary.csv", "FileName,Genus,Species\nant1.jpg,Solenopsis,invicta\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}
	if records[0].ShotType != "" {
		t.Errorf("Expected empty shot type, got %q", records[0].ShotType)
	}
}

func TestLoadTrimsAndSkipsBlankRows(t *testing.T) {
	content := "\ufefffilename,GENUS,species\n  ant1.jpg , Solenopsis ,invicta \n,,\nant2.jpg,,\n"

	records, err := Load(writeManifest(t, "summary.csv", content))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if records[0].FileName != "ant1.jpg" || records[0].Genus != "Solenopsis" || records[0].Species != "invicta" {
		t.Errorf("Expected trimmed values, got %+v", records[0])
	}
	if records[1].Row != 3 {
		t.Errorf("Expected blank row to keep numbering, got row %d", records[1].Row)
	}
	if records[1].Valid() {
		t.Error("Expected record without genus/species to be invalid")
	}
}

func TestLoadMissingField(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		missing string
	}{
		{name: "no species", file: "m.csv", content: "FileName,Genus\na.jpg,Atta\n", missing: FieldSpecies},
		{name: "no filename", file: "m.txt", content: "Genus\tSpecies\nAtta\tcephalotes\n", missing: FieldFileName},
		{name: "json no genus", file: "m.json", content: `[{"FileName":"a.jpg","Species":"x"}]`, missing: FieldGenus},
		{name: "empty file", file: "m.csv", content: "", missing: FieldFileName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeManifest(t, tt.file, tt.content))
			if !errors.Is(err, ErrMissingField) {
				t.Fatalf("Expected ErrMissingField, got %v", err)
			}
			var missing *MissingFieldError
			if !errors.As(err, &missing) {
				t.Fatalf("Expected MissingFieldError, got %T", err)
			}
			if missing.Field != tt.missing {
				t.Errorf("Expected missing %s, got %s", tt.missing, missing.Field)
			}
		})
	}
}

func TestLoadUnsupportedFormat(t *testing.T) {
	for _, name := range []string{"summary.pdf", "summary.xlsx", "summary.TXT", "summary"} {
		_, err := NewLoader(name).Load()
		if !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("%s: expected ErrUnsupportedFormat, got %v", name, err)
		}
	}
}

func TestLoadNonExistentFile(t *testing.T) {
	_, err := Load("/nonexistent/path/summary.csv")
	if err == nil {
		t.Error("Expected error for non-existent file, got nil")
	}
	if errors.Is(err, ErrUnsupportedFormat) || errors.Is(err, ErrMissingField) {
		t.Errorf("Expected an I/O error, got %v", err)
	}
}
