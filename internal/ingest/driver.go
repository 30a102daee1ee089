// Package ingest drives a manifest through resolution and file placement,
// one record at a time, and keeps the run tally.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/idantify-ai/localsource-scraper/internal/fileutil"
	"github.com/idantify-ai/localsource-scraper/internal/manifest"
	"github.com/idantify-ai/localsource-scraper/internal/taxonomy"
)

var (
	// ErrLocalFileMissing indicates the manifest FileName is not a regular file.
	ErrLocalFileMissing = errors.New("local file missing")

	// ErrInvalidRecord indicates a row without genus or species.
	ErrInvalidRecord = errors.New("invalid record")
)

// Resolver turns a record into a registered image and its destination.
type Resolver interface {
	Resolve(ctx context.Context, rec manifest.Record) (*taxonomy.Result, error)
}

// MaterializeFunc copies src into dir/name, creating dir as needed.
type MaterializeFunc func(src, dir, name string) (string, error)

// Status is the per-record outcome.
type Status string

const (
	StatusAdded  Status = "added"
	StatusExist  Status = "exist"
	StatusFailed Status = "fail"
)

// Tally counts outcomes for one run.
type Tally struct {
	Total    int `yaml:"total" json:"total"`
	Added    int `yaml:"added" json:"added"`
	Existing int `yaml:"existing" json:"existing"`
	Failed   int `yaml:"failed" json:"failed"`
}

// Processed is the number of records handled so far.
func (t Tally) Processed() int {
	return t.Added + t.Existing + t.Failed
}

func (t *Tally) add(s Status) {
	switch s {
	case StatusAdded:
		t.Added++
	case StatusExist:
		t.Existing++
	default:
		t.Failed++
	}
}

// Outcome is what happened to one record.
type Outcome struct {
	Record      manifest.Record
	Status      Status
	ImageID     string
	Taxonomy    []string
	Destination string
	Err         error
}

// Summary is the result of a run.
type Summary struct {
	Tally
	Outcomes []Outcome
}

// Succeeded reports whether at least one image was added.
func (s *Summary) Succeeded() bool {
	return s.Added > 0
}

// Options configures a Driver.
type Options struct {
	Resolver    Resolver
	Materialize MaterializeFunc
	// Progress receives one line per record; nil discards it.
	Progress io.Writer
}

// Driver processes records sequentially. The tally is owned by Run and
// only updated once a record is completely finished.
type Driver struct {
	resolver    Resolver
	materialize MaterializeFunc
	progress    io.Writer
	terminal    bool
}

// NewDriver creates a run driver.
func NewDriver(opts Options) (*Driver, error) {
	if opts.Resolver == nil {
		return nil, errors.New("resolver is required")
	}
	d := &Driver{
		resolver:    opts.Resolver,
		materialize: opts.Materialize,
		progress:    opts.Progress,
	}
	if d.materialize == nil {
		d.materialize = fileutil.Materialize
	}
	if d.progress == nil {
		d.progress = io.Discard
	}
	if f, ok := d.progress.(*os.File); ok {
		d.terminal = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return d, nil
}

// Run handles records in manifest order. Per-record failures are counted and
// never stop the run; only context cancellation does, in which case the
// partial summary is returned together with the context error.
func (d *Driver) Run(ctx context.Context, records []manifest.Record) (*Summary, error) {
	summary := &Summary{
		Tally:    Tally{Total: len(records)},
		Outcomes: make([]Outcome, 0, len(records)),
	}

	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			d.finishProgress()
			return summary, err
		}

		outcome := d.process(ctx, rec)
		if outcome.Err != nil {
			slog.Warn("Failed to add image", "row", rec.Row, "file", rec.FileName, "error", outcome.Err)
		} else {
			slog.Debug("Processed image", "row", rec.Row, "file", rec.FileName, "status", outcome.Status, "destination", outcome.Destination)
		}

		summary.Outcomes = append(summary.Outcomes, outcome)
		summary.add(outcome.Status)
		d.reportProgress(i+1, summary.Tally)
	}

	d.finishProgress()
	return summary, nil
}

func (d *Driver) process(ctx context.Context, rec manifest.Record) Outcome {
	out := Outcome{Record: rec, Status: StatusFailed}

	if !rec.Valid() {
		out.Err = fmt.Errorf("%w: row %d needs both genus and species", ErrInvalidRecord, rec.Row)
		return out
	}
	if !fileutil.IsRegularFile(rec.FileName) {
		out.Err = fmt.Errorf("%w: %s", ErrLocalFileMissing, rec.FileName)
		return out
	}

	res, err := d.resolver.Resolve(ctx, rec)
	if err != nil {
		out.Err = err
		return out
	}
	out.ImageID = res.ImageID
	out.Taxonomy = res.Taxonomy.IDs()
	out.Destination = res.Path()

	if res.Status == taxonomy.StatusExist {
		// Registered by an earlier run; restore the file only if it went missing.
		if !fileutil.IsRegularFile(out.Destination) {
			if _, err := d.materialize(rec.FileName, res.Dir, res.File); err != nil {
				out.Err = err
				return out
			}
		}
		out.Status = StatusExist
		return out
	}

	if _, err := d.materialize(rec.FileName, res.Dir, res.File); err != nil {
		out.Err = err
		return out
	}
	out.Status = StatusAdded
	return out
}

func (d *Driver) reportProgress(position int, t Tally) {
	end := "\n"
	if d.terminal {
		end = "\r"
	}
	fmt.Fprintf(d.progress, "Scraping image %d/%d: %d added, %d skipped, %d failed to add.%s",
		position, t.Total, t.Added, t.Existing, t.Failed, end)
}

func (d *Driver) finishProgress() {
	if d.terminal {
		fmt.Fprintln(d.progress)
	}
}
