package cmd

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/idantify-ai/localsource-scraper/internal/report"
)

func newReportCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "report <run-report.yaml>",
		Short: "Print a run report written with --report",
		Example: `  localsource-scraper report runs/summary.yaml
  localsource-scraper report runs/summary.yaml --format csv > outcomes.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return executeReport(cmd.OutOrStdout(), args[0], format)
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "Output format: text, json, csv")

	return cmd
}

func executeReport(w io.Writer, path, format string) error {
	rep, err := report.Load(path)
	if err != nil {
		return err
	}

	switch format {
	case "text":
		return printTextReport(w, rep)
	case "json":
		return printJSONReport(w, rep)
	case "csv":
		return printCSVReport(w, rep)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func printTextReport(w io.Writer, rep *report.RunReport) error {
	fmt.Fprintf(w, "Run:      %s\n", rep.Config.RunID)
	fmt.Fprintf(w, "Manifest: %s\n", rep.Config.Manifest)
	fmt.Fprintf(w, "API:      %s\n", rep.Config.APIURL)
	fmt.Fprintf(w, "Images:   %s\n", rep.Config.ImagesDirectory)
	fmt.Fprintf(w, "Started:  %s\n", rep.Config.Timestamp)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "%d records: %d added, %d skipped, %d failed\n",
		rep.Tally.Total, rep.Tally.Added, rep.Tally.Existing, rep.Tally.Failed)

	rows := make([][]string, 0, len(rep.Records))
	for _, r := range rep.Records {
		detail := r.Destination
		if r.Error != "" {
			detail = r.Error
		}
		rows = append(rows, []string{strconv.Itoa(r.Row), r.FileName, r.Genus + " " + r.Species, r.Status, r.ImageID, truncate(detail, 80)})
	}
	fmt.Fprintln(w, renderTable([]string{"Row", "File", "Taxon", "Status", "Image", "Destination / error"}, rows, []columnAlignment{alignRight}))
	return nil
}

func printJSONReport(w io.Writer, rep *report.RunReport) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(rep)
}

func printCSVReport(w io.Writer, rep *report.RunReport) error {
	writer := csv.NewWriter(w)

	header := []string{"Row", "FileName", "Genus", "Species", "ShotType", "Status", "ImageID", "Taxonomy", "Destination", "Error"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, r := range rep.Records {
		row := []string{
			strconv.Itoa(r.Row),
			r.FileName,
			r.Genus,
			r.Species,
			r.ShotType,
			r.Status,
			r.ImageID,
			strings.Join(r.Taxonomy, "/"),
			r.Destination,
			r.Error,
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
