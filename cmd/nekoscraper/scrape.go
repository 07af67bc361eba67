package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"nekoscraper/pkg/logger"
	"nekoscraper/pkg/scraper"
)

var (
	scrapeOutput       string
	scrapeProgressFile string
	scrapeBaseURL      string
	scrapeMaxPages     int
	scrapeTarget       int
	scrapeResume       bool
	scrapeForceRestart bool
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape cat profiles and download their photos",
	Long: `Scrape the adoption site's paginated listings, fetch each cat's
profile page and download its photos into cat_<id>/ directories with an
info.json metadata file.

Progress is saved after every listing page. An interrupted run refuses to
start over silently: use --resume to continue or --force-restart to begin
from page one.`,
	Example: `  # Scrape with defaults (50 pages max, 1000 cats target)
  nekoscraper scrape

  # Scrape 10 pages into a custom directory
  nekoscraper scrape --output ./cats --max-pages 10

  # Continue an interrupted run
  nekoscraper scrape --resume

  # Throw away previous progress and start fresh
  nekoscraper scrape --force-restart`,
	RunE: runScrape,
}

func init() {
	rootCmd.AddCommand(scrapeCmd)

	scrapeCmd.Flags().StringVarP(&scrapeOutput, "output", "o", "", "output directory for the dataset")
	scrapeCmd.Flags().StringVar(&scrapeProgressFile, "progress-file", "", "path of the resume progress file")
	scrapeCmd.Flags().StringVar(&scrapeBaseURL, "base-url", "", "override the site base URL")
	scrapeCmd.Flags().IntVar(&scrapeMaxPages, "max-pages", 0, "maximum listing pages to process")
	scrapeCmd.Flags().IntVar(&scrapeTarget, "target", 0, "stop after this many cats are scraped")
	scrapeCmd.Flags().BoolVar(&scrapeResume, "resume", false, "resume from the existing progress file")
	scrapeCmd.Flags().BoolVar(&scrapeForceRestart, "force-restart", false, "delete existing progress and start fresh")
}

func runScrape(cmd *cobra.Command, args []string) error {
	if scrapeResume && scrapeForceRestart {
		return fmt.Errorf("--resume and --force-restart are mutually exclusive")
	}

	flags := map[string]interface{}{
		"output":        scrapeOutput,
		"progress-file": scrapeProgressFile,
		"base-url":      scrapeBaseURL,
		"max-pages":     scrapeMaxPages,
		"target":        scrapeTarget,
	}
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	s, err := scraper.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize scraper: %w", err)
	}

	summary, err := s.Run(ctx, scraper.Options{
		Resume:       scrapeResume,
		ForceRestart: scrapeForceRestart,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.GetLogger().Warn("scrape interrupted, progress saved")
			printScrapeSummary(summary)
			return nil
		}
		return err
	}

	printScrapeSummary(summary)
	return nil
}

func printScrapeSummary(summary *scraper.Summary) {
	if summary == nil {
		return
	}
	fmt.Printf("\nScrape summary:\n")
	fmt.Printf("  pages processed:   %d\n", summary.PagesProcessed)
	fmt.Printf("  new cats:          %d\n", summary.NewEntities)
	fmt.Printf("  skipped (done):    %d\n", summary.SkippedEntities)
	fmt.Printf("  failed:            %d\n", summary.FailedEntities)
	fmt.Printf("  images downloaded: %d\n", summary.ImagesDownloaded)
	fmt.Printf("  total scraped:     %d\n", summary.TotalScraped)
}
