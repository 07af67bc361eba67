package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"nekoscraper/pkg/cleaner"
	"nekoscraper/pkg/dataset"
	"nekoscraper/pkg/detector"
	"nekoscraper/pkg/scraper"
)

var (
	pipelineOutput     string
	pipelineMaxPages   int
	pipelineTarget     int
	pipelineProfile    string
	pipelineResume     bool
	pipelineSkipScrape bool
	pipelineSkipClean  bool
	pipelineSkipDetect bool
	pipelineSkipReorg  bool
	pipelineReorgOut   string
	pipelineNoBackup   bool
)

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Run scrape, clean, detect and reorganize as one sequence",
	Long: `Run the full dataset build: scrape the site, clean the result with
the chosen profile, filter through the detection service, then copy the
survivors into the uniform training layout. Each stage writes its usual
report; a stage failure stops the pipeline so a broken dataset is never
silently passed downstream.

Stages can be skipped individually to re-run part of the pipeline over
an existing dataset.`,
	Example: `  # Full build
  nekoscraper pipeline

  # Re-clean and re-filter an existing dataset
  nekoscraper pipeline --skip-scrape --profile aggressive`,
	RunE: runPipeline,
}

func init() {
	rootCmd.AddCommand(pipelineCmd)

	pipelineCmd.Flags().StringVarP(&pipelineOutput, "output", "o", "", "output directory for the dataset")
	pipelineCmd.Flags().IntVar(&pipelineMaxPages, "max-pages", 0, "maximum listing pages to process")
	pipelineCmd.Flags().IntVar(&pipelineTarget, "target", 0, "stop scraping after this many cats")
	pipelineCmd.Flags().StringVarP(&pipelineProfile, "profile", "p", "standard", "cleaning profile (standard, aggressive)")
	pipelineCmd.Flags().BoolVar(&pipelineResume, "resume", false, "resume scraping from the existing progress file")
	pipelineCmd.Flags().BoolVar(&pipelineSkipScrape, "skip-scrape", false, "skip the scrape stage")
	pipelineCmd.Flags().BoolVar(&pipelineSkipClean, "skip-clean", false, "skip the cleaning stage")
	pipelineCmd.Flags().BoolVar(&pipelineSkipDetect, "skip-detect", false, "skip the detection stage")
	pipelineCmd.Flags().BoolVar(&pipelineSkipReorg, "skip-reorganize", false, "skip the reorganize stage")
	pipelineCmd.Flags().StringVar(&pipelineReorgOut, "reorganize-output", "siamese_dataset", "output directory for the uniform training layout")
	pipelineCmd.Flags().BoolVar(&pipelineNoBackup, "no-backup", false, "skip backups before destructive stages (unsafe)")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	flags := map[string]interface{}{
		"output":    pipelineOutput,
		"max-pages": pipelineMaxPages,
		"target":    pipelineTarget,
	}
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	profile, err := cfg.Profile(pipelineProfile)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	datasetDir := cfg.Output.BaseDirectory

	if !pipelineSkipScrape {
		fmt.Println("==> Stage 1/4: scrape")
		s, err := scraper.New(cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize scraper: %w", err)
		}
		summary, err := s.Run(ctx, scraper.Options{Resume: pipelineResume})
		if err != nil {
			return fmt.Errorf("scrape stage failed: %w", err)
		}
		printScrapeSummary(summary)
	}

	if !pipelineSkipClean {
		fmt.Println("==> Stage 2/4: clean")
		c := cleaner.New(profile, nil)
		report, err := c.RunWithOptions(ctx, datasetDir, cleaner.Options{Backup: !pipelineNoBackup})
		if err != nil {
			return fmt.Errorf("clean stage failed: %w", err)
		}
		reportPath := fmt.Sprintf("%s_cleaning_report.json", pipelineProfile)
		if err := report.Write(reportPath); err != nil {
			return err
		}
		fmt.Printf("  removed %d of %d images (report: %s)\n",
			report.Statistics.RemovedImages, report.Statistics.TotalImagesBefore, reportPath)
	}

	if !pipelineSkipDetect {
		fmt.Println("==> Stage 3/4: detect")
		client := detector.NewClient(cfg.Detector, nil)
		filter := detector.NewFilter(client, nil)
		report, err := filter.Run(ctx, datasetDir, detector.Options{Backup: !pipelineNoBackup})
		if err != nil {
			return fmt.Errorf("detect stage failed: %w", err)
		}
		if err := report.Write("detection_report.json"); err != nil {
			return err
		}
		fmt.Printf("  removed %d of %d images (report: detection_report.json)\n",
			report.Statistics.RemovedImages, report.Statistics.TotalImagesBefore)
	}

	if !pipelineSkipReorg {
		fmt.Println("==> Stage 4/4: reorganize")
		index, err := dataset.Reorganize(datasetDir, pipelineReorgOut, nil)
		if err != nil {
			return fmt.Errorf("reorganize stage failed: %w", err)
		}
		fmt.Printf("  %d cats (%d images) copied into %s\n",
			index.TotalCats, index.TotalImages, index.OutputPath)
	}

	fmt.Println("Pipeline complete.")
	return nil
}
