package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/idantify-ai/localsource-scraper/internal/fileutil"
	"github.com/idantify-ai/localsource-scraper/internal/manifest"
)

func newInspectCmd() *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Parse a manifest and list its rows without contacting the API",
		Long: `Inspect loads a manifest with the same rules as a scrape and prints every
row, flagging rows with no genus or species and files that do not exist.
Nothing is sent to the API and nothing is copied.`,
		Example: `  localsource-scraper inspect -i summary.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := manifest.Load(input)
			if err != nil {
				return fmt.Errorf("failed to load manifest: %w", err)
			}

			rows := make([][]string, 0, len(records))
			problems := 0
			for _, rec := range records {
				note := ""
				switch {
				case !rec.Valid():
					note = "missing genus or species"
				case !fileutil.IsRegularFile(rec.FileName):
					note = "file not found"
				}
				if note != "" {
					problems++
				}
				rows = append(rows, []string{
					strconv.Itoa(rec.Row), rec.FileName, rec.Genus, rec.Species, rec.ShotType, note,
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"Row", "FileName", "Genus", "Species", "ShotType", "Problem"},
				rows,
				[]columnAlignment{alignRight},
			))
			fmt.Fprintf(out, "%d records, %d with problems\n", len(records), problems)
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "Manifest to inspect (required)")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}
