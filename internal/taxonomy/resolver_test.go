package taxonomy

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/idantify-ai/localsource-scraper/internal/manifest"
	"github.com/idantify-ai/localsource-scraper/internal/specifier"
	"github.com/idantify-ai/localsource-scraper/internal/testsupport"
)

var fireAnt = manifest.Record{Row: 1, FileName: "ant1.jpg", Genus: "Solenopsis", Species: "invicta", ShotType: "dorsal"}

func newTestResolver(t *testing.T, api API, lookupFirst bool) *Resolver {
	t.Helper()
	r, err := NewResolver(api, Options{ImagesDir: "/images", LookupFirst: lookupFirst})
	if err != nil {
		t.Fatalf("NewResolver failed: %v", err)
	}
	return r
}

func TestResolveExample(t *testing.T) {
	fake := testsupport.NewSpecifier()
	r := newTestResolver(t, fake, true)

	res, err := r.Resolve(context.Background(), fireAnt)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	wantRanks := []Rank{Domain, Kingdom, Phylum, Class, Order, Family, Genus, Species}
	if len(res.Taxonomy) != len(wantRanks) {
		t.Fatalf("Expected %d levels, got %d", len(wantRanks), len(res.Taxonomy))
	}
	for i, rank := range wantRanks {
		if res.Taxonomy[i].Rank != rank {
			t.Errorf("Level %d: expected %s, got %s", i, rank, res.Taxonomy[i].Rank)
		}
	}
	if res.Taxonomy[6].Name != "solenopsis" || res.Taxonomy[7].Name != "invicta" {
		t.Errorf("Expected lower-cased genus and species, got %s %s", res.Taxonomy[6].Name, res.Taxonomy[7].Name)
	}

	if res.ImageID != "9" {
		t.Errorf("Expected image id 9, got %s", res.ImageID)
	}
	if res.Status != StatusAdded {
		t.Errorf("Expected status added, got %s", res.Status)
	}
	if res.ShotType.ID != "1" || res.ShotType.Defaulted {
		t.Errorf("Expected dorsal shot type 1, got %+v", res.ShotType)
	}

	want := filepath.Join("/images", "1", "2", "3", "4", "5", "6", "7", "8", "dorsal", "9.jpg")
	if res.Path() != want {
		t.Errorf("Expected path %s, got %s", want, res.Path())
	}

	if creates := fake.CallCount(http.MethodPost); creates != 9 {
		t.Errorf("Expected 9 create calls, got %d", creates)
	}
}

func TestResolvePayloadsCarryParentIDs(t *testing.T) {
	fake := testsupport.NewSpecifier()
	r := newTestResolver(t, fake, false)

	if _, err := r.Resolve(context.Background(), fireAnt); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	var creates []testsupport.Call
	for _, c := range fake.Calls() {
		if c.Method == http.MethodPost {
			creates = append(creates, c)
		}
	}
	if len(creates) != 9 {
		t.Fatalf("Expected 9 creates without lookups, got %d", len(creates))
	}

	if _, ok := creates[0].Params["name"]; !ok || len(creates[0].Params) != 1 {
		t.Errorf("Expected domain payload with only a name, got %v", creates[0].Params)
	}
	for i, level := range DefaultLevels[1:] {
		c := creates[i+1]
		if c.Endpoint != level.Endpoint {
			t.Errorf("Create %d: expected endpoint %s, got %s", i+1, level.Endpoint, c.Endpoint)
		}
		if want := strconv.Itoa(i + 1); c.Params[level.ParentKey] != want {
			t.Errorf("Create %d: expected %s=%s, got %v", i+1, level.ParentKey, want, c.Params)
		}
	}
	if creates[6].Params["familyId"] != "6" || creates[6].Params["name"] != "solenopsis" {
		t.Errorf("Unexpected genus payload: %v", creates[6].Params)
	}
	if creates[7].Params["genusId"] != "7" || creates[7].Params["name"] != "invicta" {
		t.Errorf("Unexpected species payload: %v", creates[7].Params)
	}

	image := creates[8]
	if image.Endpoint != ImagesEndpoint {
		t.Fatalf("Expected images endpoint, got %s", image.Endpoint)
	}
	if image.Params["speciesId"] != "8" || image.Params["imageShotTypeId"] != "1" || image.Params["url"] != "ant1.jpg" {
		t.Errorf("Unexpected image payload: %v", image.Params)
	}
}

func TestResolveTwiceIsIdempotent(t *testing.T) {
	tests := []struct {
		name          string
		lookupFirst   bool
		nonIdempotent bool
		secondStatus  Status
	}{
		{name: "lookup first", lookupFirst: true, secondStatus: StatusExist},
		{name: "server idempotency", lookupFirst: false, secondStatus: StatusAdded},
		{name: "lookup first against duplicating server", lookupFirst: true, nonIdempotent: true, secondStatus: StatusExist},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := testsupport.NewSpecifier()
			fake.NonIdempotent = tt.nonIdempotent
			r := newTestResolver(t, fake, tt.lookupFirst)

			first, err := r.Resolve(context.Background(), fireAnt)
			if err != nil {
				t.Fatalf("first Resolve failed: %v", err)
			}
			second, err := r.Resolve(context.Background(), fireAnt)
			if err != nil {
				t.Fatalf("second Resolve failed: %v", err)
			}

			if !first.Taxonomy.Equal(second.Taxonomy) {
				t.Errorf("Expected identical taxonomy, got %v and %v", first.Taxonomy.IDs(), second.Taxonomy.IDs())
			}
			if first.Path() != second.Path() {
				t.Errorf("Expected identical path, got %s and %s", first.Path(), second.Path())
			}
			if second.Status != tt.secondStatus {
				t.Errorf("Expected second status %s, got %s", tt.secondStatus, second.Status)
			}
			for _, level := range DefaultLevels {
				if n := fake.NodeCount(level.Endpoint); n != 1 {
					t.Errorf("Expected 1 %s node, got %d", level.Rank, n)
				}
			}
		})
	}
}

func TestResolveSharesAncestors(t *testing.T) {
	fake := testsupport.NewSpecifier()
	r := newTestResolver(t, fake, true)

	a, err := r.Resolve(context.Background(), fireAnt)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	b, err := r.Resolve(context.Background(), manifest.Record{FileName: "ant2.png", Genus: "SOLENOPSIS", Species: "geminata"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	for i := 0; i < 7; i++ {
		if a.Taxonomy[i].ID != b.Taxonomy[i].ID {
			t.Errorf("Level %s: expected shared id, got %s and %s", a.Taxonomy[i].Rank, a.Taxonomy[i].ID, b.Taxonomy[i].ID)
		}
	}
	if a.Taxonomy[7].ID == b.Taxonomy[7].ID {
		t.Error("Expected distinct species ids")
	}
	if filepath.Ext(b.File) != ".png" {
		t.Errorf("Expected .png extension, got %s", b.File)
	}
}

func TestResolveFailureStopsAtLevel(t *testing.T) {
	fake := testsupport.NewSpecifier()
	fake.Fail["phyla"] = true
	r := newTestResolver(t, fake, true)

	_, err := r.Resolve(context.Background(), fireAnt)
	if err == nil {
		t.Fatal("Expected error, got nil")
	}

	var levelErr *LevelError
	if !errors.As(err, &levelErr) || levelErr.Rank != Phylum {
		t.Errorf("Expected phylum LevelError, got %v", err)
	}
	if !errors.Is(err, specifier.ErrNetwork) {
		t.Errorf("Expected ErrNetwork, got %v", err)
	}

	for _, c := range fake.Calls() {
		switch c.Endpoint {
		case "classes", "orders", "families", "genera", "species", ImagesEndpoint, "image-shot-types":
			t.Errorf("Unexpected call after failure: %s %s", c.Method, c.Endpoint)
		}
	}
	if fake.NodeCount("kingdoms") != 1 {
		t.Error("Expected nodes created before the failure to be kept")
	}
}

func TestResolveShotTypeFailure(t *testing.T) {
	fake := testsupport.NewSpecifier()
	fake.Fail["image-shot-types"] = true
	r := newTestResolver(t, fake, true)

	_, err := r.Resolve(context.Background(), fireAnt)
	if !errors.Is(err, specifier.ErrNetwork) {
		t.Fatalf("Expected ErrNetwork, got %v", err)
	}
	if fake.NodeCount(ImagesEndpoint) != 0 {
		t.Error("Expected no image to be created")
	}

	// The list is fetched again on the next record.
	delete(fake.Fail, "image-shot-types")
	if _, err := r.Resolve(context.Background(), fireAnt); err != nil {
		t.Errorf("Expected recovery after shot types become available, got %v", err)
	}
}

func TestResolveImageFailure(t *testing.T) {
	fake := testsupport.NewSpecifier()
	fake.Fail[ImagesEndpoint] = true
	r := newTestResolver(t, fake, false)

	_, err := r.Resolve(context.Background(), fireAnt)
	if !errors.Is(err, specifier.ErrNetwork) {
		t.Errorf("Expected ErrNetwork, got %v", err)
	}
}

func TestResolveEmptyName(t *testing.T) {
	fake := testsupport.NewSpecifier()
	r := newTestResolver(t, fake, true)

	_, err := r.Resolve(context.Background(), manifest.Record{FileName: "a.jpg", Genus: "Atta", Species: "  "})
	var levelErr *LevelError
	if !errors.As(err, &levelErr) || levelErr.Rank != Species {
		t.Errorf("Expected species LevelError, got %v", err)
	}
}

func TestShotTypeMatching(t *testing.T) {
	tests := []struct {
		name      string
		label     string
		fallback  string
		wantID    string
		wantKey   string
		defaulted bool
	}{
		{name: "by name", label: "dorsal", wantID: "1", wantKey: "dorsal"},
		{name: "by source key", label: "L", wantID: "2", wantKey: "lateral"},
		{name: "source key shares name directory", label: "D", wantID: "1", wantKey: "dorsal"},
		{name: "fallback by source key", label: "P", wantID: "4", wantKey: "profile"},
		{name: "by id", label: "3", wantID: "3", wantKey: "head"},
		{name: "case and space", label: "  Head ", wantID: "3", wantKey: "head"},
		{name: "absent", label: "", wantID: "4", wantKey: "profile", defaulted: true},
		{name: "unknown", label: "ventral", wantID: "4", wantKey: "profile", defaulted: true},
		{name: "fallback not listed", label: "ventral", fallback: "99", wantID: "99", wantKey: "99", defaulted: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := testsupport.NewSpecifier()
			r, err := NewResolver(fake, Options{ImagesDir: "/images", FallbackShotTypeID: tt.fallback})
			if err != nil {
				t.Fatalf("NewResolver failed: %v", err)
			}

			m, err := r.resolveShotType(context.Background(), tt.label)
			if err != nil {
				t.Fatalf("resolveShotType failed: %v", err)
			}
			if m.ID != tt.wantID || m.Key != tt.wantKey || m.Defaulted != tt.defaulted {
				t.Errorf("Expected {%s %s %v}, got %+v", tt.wantID, tt.wantKey, tt.defaulted, m)
			}
		})
	}
}

func TestCustomLevelTable(t *testing.T) {
	fake := testsupport.NewSpecifier()
	levels := []Level{
		{Rank: Family, Endpoint: "families", Name: "apidae"},
		{Rank: Genus, Endpoint: "genera", ParentKey: "familyId", Field: manifest.FieldGenus},
		{Rank: Species, Endpoint: "species", ParentKey: "genusId", Field: manifest.FieldSpecies},
	}
	r, err := NewResolver(fake, Options{Levels: levels, ImagesDir: "/bees"})
	if err != nil {
		t.Fatalf("NewResolver failed: %v", err)
	}

	res, err := r.Resolve(context.Background(), manifest.Record{FileName: "bee.tif", Genus: "Apis", Species: "mellifera", ShotType: "lateral"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	want := filepath.Join("/bees", "1", "2", "3", "lateral", "4.tif")
	if res.Path() != want {
		t.Errorf("Expected %s, got %s", want, res.Path())
	}
}

func TestValidateLevels(t *testing.T) {
	tests := []struct {
		name    string
		levels  []Level
		wantErr bool
	}{
		{name: "default", levels: DefaultLevels},
		{name: "empty", levels: []Level{}, wantErr: true},
		{name: "root with parent", levels: []Level{{Rank: Domain, Endpoint: "domains", ParentKey: "x", Name: "eukarya"}}, wantErr: true},
		{name: "child without parent", levels: []Level{
			{Rank: Domain, Endpoint: "domains", Name: "eukarya"},
			{Rank: Kingdom, Endpoint: "kingdoms", Name: "animalia"},
		}, wantErr: true},
		{name: "name and field", levels: []Level{{Rank: Domain, Endpoint: "domains", Name: "x", Field: manifest.FieldGenus}}, wantErr: true},
		{name: "neither name nor field", levels: []Level{{Rank: Domain, Endpoint: "domains"}}, wantErr: true},
		{name: "duplicate rank", levels: []Level{
			{Rank: Domain, Endpoint: "domains", Name: "eukarya"},
			{Rank: Domain, Endpoint: "kingdoms", ParentKey: "domainId", Name: "animalia"},
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateLevels(tt.levels)
			if (err != nil) != tt.wantErr {
				t.Errorf("Expected error=%v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDestination(t *testing.T) {
	chain := Resolved{
		{Rank: Domain, ID: "10"},
		{Rank: Kingdom, ID: "../x"},
		{Rank: Species, ID: "7"},
	}

	dir, file := Destination("/root", chain, "dorsal", "55", "shots/IMG_01.JPG")
	if dir != filepath.Join("/root", "10", "___x", "7", "dorsal") {
		t.Errorf("Unexpected dir %s", dir)
	}
	if file != "55.JPG" {
		t.Errorf("Unexpected file %s", file)
	}
}
