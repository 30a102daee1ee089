package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/idantify-ai/localsource-scraper/internal/config"
	"github.com/idantify-ai/localsource-scraper/internal/ingest"
	"github.com/idantify-ai/localsource-scraper/internal/manifest"
	"github.com/idantify-ai/localsource-scraper/internal/report"
	"github.com/idantify-ai/localsource-scraper/internal/specifier"
	"github.com/idantify-ai/localsource-scraper/internal/taxonomy"
)

// ErrNoImagesAdded is returned when a run finishes without adding any image.
var ErrNoImagesAdded = errors.New("no images added to the DB")

func loadConfig(cmd *cobra.Command, flags scrapeFlags) (config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return config.Config{}, err
	}

	if cmd.Flags().Changed("api-url") {
		cfg.APIURL = flags.apiURL
	}
	if cmd.Flags().Changed("images-dir") {
		cfg.ImagesDirectory = flags.imagesDir
	}
	if cmd.Flags().Changed("timeout") {
		cfg.HTTPTimeout = flags.timeout
	}
	if cmd.Flags().Changed("fallback-shot-type") {
		cfg.FallbackShotType = flags.fallbackShotType
	}
	if flags.noLookup {
		cfg.LookupFirst = false
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func executeScrape(cmd *cobra.Command, flags scrapeFlags) error {
	out := cmd.OutOrStdout()

	if _, err := os.Stat(flags.input); err != nil {
		return fmt.Errorf("manifest not found: %s", flags.input)
	}

	records, err := manifest.Load(flags.input)
	if err != nil {
		return fmt.Errorf("failed to load manifest: %w", err)
	}

	cfg, err := loadConfig(cmd, flags)
	if err != nil {
		return err
	}

	slog.Info("Starting scrape",
		"manifest", flags.input,
		"records", len(records),
		"api", cfg.APIURL,
		"images_dir", cfg.AbsImagesDirectory(),
		"lookup_first", cfg.LookupFirst)

	client := specifier.NewClient(cfg.APIURL, cfg.HTTPTimeout)
	resolver, err := taxonomy.NewResolver(client, taxonomy.Options{
		ImagesDir:          cfg.AbsImagesDirectory(),
		FallbackShotTypeID: strconv.Itoa(cfg.FallbackShotType),
		LookupFirst:        cfg.LookupFirst,
	})
	if err != nil {
		return err
	}

	driver, err := ingest.NewDriver(ingest.Options{
		Resolver: resolver,
		Progress: out,
	})
	if err != nil {
		return err
	}

	summary, runErr := driver.Run(cmd.Context(), records)

	if flags.reportPath != "" {
		rep := report.Build(report.NewRunConfig(report.RunConfig{
			Manifest:         flags.input,
			APIURL:           cfg.APIURL,
			ImagesDirectory:  cfg.AbsImagesDirectory(),
			LookupFirst:      cfg.LookupFirst,
			FallbackShotType: strconv.Itoa(cfg.FallbackShotType),
		}), summary)
		if err := report.Save(flags.reportPath, rep); err != nil {
			slog.Error("Unable to write run report", "path", flags.reportPath, "err", err)
		} else {
			slog.Info("Run report saved", "path", flags.reportPath, "run_id", rep.Config.RunID)
		}
	}

	printSummary(out, summary)

	if runErr != nil {
		return runErr
	}
	if !summary.Succeeded() {
		fmt.Fprintln(out, "Something went wrong. No images added to the DB!")
		return ErrNoImagesAdded
	}

	fmt.Fprintf(out, "%d/%d images successfully added to the DB!\n", summary.Added, summary.Total)
	return nil
}

func printSummary(w io.Writer, summary *ingest.Summary) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, renderTable(
		[]string{"Records", "Added", "Skipped", "Failed"},
		[][]string{{
			strconv.Itoa(summary.Total),
			strconv.Itoa(summary.Added),
			strconv.Itoa(summary.Existing),
			strconv.Itoa(summary.Failed),
		}},
		[]columnAlignment{alignRight, alignRight, alignRight, alignRight},
	))

	var failed [][]string
	for _, o := range summary.Outcomes {
		if o.Status == ingest.StatusFailed && o.Err != nil {
			failed = append(failed, []string{strconv.Itoa(o.Record.Row), o.Record.FileName, o.Err.Error()})
		}
	}
	if len(failed) > 0 {
		fmt.Fprintln(w, "Failed records:")
		fmt.Fprintln(w, renderTable([]string{"Row", "File", "Error"}, failed, []columnAlignment{alignRight}))
	}
}
