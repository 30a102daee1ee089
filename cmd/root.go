package cmd

import (
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type scrapeFlags struct {
	input            string
	configPath       string
	apiURL           string
	imagesDir        string
	timeout          time.Duration
	fallbackShotType int
	noLookup         bool
	reportPath       string
}

func NewRootCmd() *cobra.Command {
	var flags scrapeFlags
	var verbose bool

	cmd := &cobra.Command{
		Use:   "localsource-scraper",
		Short: "Add locally stored specimen images to the Specifier database",
		Long: `localsource-scraper reads a manifest of local specimen images (FileName, Genus,
Species and optionally ShotType), resolves every row against the Specifier
taxonomy API and copies each image into the images directory under
<domain>/<kingdom>/<phylum>/<class>/<order>/<family>/<genus>/<species>/<shot type>/.

Manifests may be tab-delimited (.txt), comma-separated (.csv), JSON (.json),
Excel (.xls) or Parquet (.parquet).

The API URL and images directory come from SpecifierApiUrl and
SpecifierImagesDirectory (a .env file is read if present), a --config YAML
file, or flags.`,
		Example: `  # Add the images listed in summary.txt
  localsource-scraper -i summary.txt

  # Use an explicit API and images directory, and keep a run report
  localsource-scraper -i summary.csv --api-url http://localhost:8080/api/ --images-dir ./images --report runs/summary.yaml`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return executeScrape(cmd, flags)
		},
	}

	cmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Verbose logging")

	cmd.Flags().StringVarP(&flags.input, "input", "i", "", "Manifest listing the images to add (required)")
	cmd.Flags().StringVar(&flags.configPath, "config", "", "YAML configuration file")
	cmd.Flags().StringVar(&flags.apiURL, "api-url", "", "Specifier API base URL (overrides SpecifierApiUrl)")
	cmd.Flags().StringVar(&flags.imagesDir, "images-dir", "", "Images root directory (overrides SpecifierImagesDirectory)")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 0, "HTTP timeout per API call (default 30s)")
	cmd.Flags().IntVar(&flags.fallbackShotType, "fallback-shot-type", 0, "Shot type id used when ShotType is absent or unknown (default 4)")
	cmd.Flags().BoolVar(&flags.noLookup, "no-lookup", false, "Create nodes directly and rely on the API being idempotent")
	cmd.Flags().StringVar(&flags.reportPath, "report", "", "Write a YAML run report to this path")

	_ = cmd.MarkFlagRequired("input")

	// Add subcommands
	cmd.AddCommand(newInspectCmd())
	cmd.AddCommand(newLevelsCmd())
	cmd.AddCommand(newReportCmd())

	return cmd
}
