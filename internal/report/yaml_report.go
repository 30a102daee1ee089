package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/idantify-ai/localsource-scraper/internal/ingest"
)

// RunConfig represents the configuration section of the run report
type RunConfig struct {
	RunID            string `yaml:"runid"`
	Manifest         string `yaml:"manifest"`
	APIURL           string `yaml:"apiurl"`
	ImagesDirectory  string `yaml:"imagesdirectory"`
	LookupFirst      bool   `yaml:"lookupfirst"`
	FallbackShotType string `yaml:"fallbackshottype"`
	Timestamp        string `yaml:"timestamp"`
}

// RecordResult is the outcome of one manifest row
type RecordResult struct {
	Row         int      `yaml:"row"`
	FileName    string   `yaml:"filename"`
	Genus       string   `yaml:"genus"`
	Species     string   `yaml:"species"`
	ShotType    string   `yaml:"shottype,omitempty"`
	Status      string   `yaml:"status"`
	ImageID     string   `yaml:"imageid,omitempty"`
	Taxonomy    []string `yaml:"taxonomy,flow,omitempty"`
	Destination string   `yaml:"destination,omitempty"`
	Error       string   `yaml:"error,omitempty"`
}

// RunReport is the complete report written after a run
type RunReport struct {
	Config  RunConfig      `yaml:"config"`
	Tally   ingest.Tally   `yaml:"tally"`
	Records []RecordResult `yaml:"records"`
}

// NewRunConfig stamps cfg with a fresh run id and the current time.
func NewRunConfig(cfg RunConfig) RunConfig {
	cfg.RunID = uuid.NewString()
	cfg.Timestamp = time.Now().Format(time.RFC3339)
	return cfg
}

// Build converts a run summary into a report.
func Build(cfg RunConfig, summary *ingest.Summary) *RunReport {
	rep := &RunReport{
		Config:  cfg,
		Tally:   summary.Tally,
		Records: make([]RecordResult, 0, len(summary.Outcomes)),
	}

	for _, o := range summary.Outcomes {
		r := RecordResult{
			Row:         o.Record.Row,
			FileName:    o.Record.FileName,
			Genus:       o.Record.Genus,
			Species:     o.Record.Species,
			ShotType:    o.Record.ShotType,
			Status:      string(o.Status),
			ImageID:     o.ImageID,
			Taxonomy:    o.Taxonomy,
			Destination: o.Destination,
		}
		if o.Err != nil {
			r.Error = o.Err.Error()
		}
		rep.Records = append(rep.Records, r)
	}
	return rep
}

// Save writes the report as YAML, creating the parent directory if needed.
func Save(path string, rep *RunReport) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}

	data, err := yaml.Marshal(rep)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write YAML file: %w", err)
	}
	return nil
}

// Load reads a report written by Save.
func Load(path string) (*RunReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	var rep RunReport
	if err := yaml.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &rep, nil
}
