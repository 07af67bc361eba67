package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"nekoscraper/pkg/cleaner"
)

var (
	cleanDataset     string
	cleanProfile     string
	cleanReportPath  string
	cleanBackupPath  string
	cleanNoBackup    bool
	cleanAnalyzeOnly bool
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove junk images from the scraped dataset",
	Long: `Run a cleaning profile over the dataset: file size bounds, known
problematic byte sizes, filename patterns, pixel dimensions, aspect
ratio, transparency and (aggressive profile) uniform-color and duplicate
checks.

The dataset is backed up before anything is deleted unless --no-backup
is given. A JSON report of every removal and its reason is written at
the end. Use --analyze-only to see what would be removed without
touching the dataset.`,
	Example: `  # Standard clean with backup
  nekoscraper clean

  # Aggressive clean of a specific dataset
  nekoscraper clean --dataset ./cats --profile aggressive

  # Dry run
  nekoscraper clean --analyze-only`,
	RunE: runClean,
}

func init() {
	rootCmd.AddCommand(cleanCmd)

	cleanCmd.Flags().StringVarP(&cleanDataset, "dataset", "d", "", "dataset directory (default: configured output directory)")
	cleanCmd.Flags().StringVarP(&cleanProfile, "profile", "p", "standard", "cleaning profile (standard, aggressive)")
	cleanCmd.Flags().StringVar(&cleanReportPath, "report", "", "report file path (default: <profile>_cleaning_report.json)")
	cleanCmd.Flags().StringVar(&cleanBackupPath, "backup-path", "", "backup directory (default: <dataset>_backup_<timestamp>)")
	cleanCmd.Flags().BoolVar(&cleanNoBackup, "no-backup", false, "skip the pre-clean backup (unsafe)")
	cleanCmd.Flags().BoolVar(&cleanAnalyzeOnly, "analyze-only", false, "report removals without deleting anything")
}

func runClean(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}

	profile, err := cfg.Profile(cleanProfile)
	if err != nil {
		return err
	}

	dataset := cleanDataset
	if dataset == "" {
		dataset = cfg.Output.BaseDirectory
	}

	ctx, cancel := signalContext()
	defer cancel()

	c := cleaner.New(profile, nil)
	report, err := c.RunWithOptions(ctx, dataset, cleaner.Options{
		Backup:      !cleanNoBackup,
		BackupPath:  cleanBackupPath,
		AnalyzeOnly: cleanAnalyzeOnly,
	})
	if err != nil {
		return err
	}

	reportPath := cleanReportPath
	if reportPath == "" {
		reportPath = fmt.Sprintf("%s_cleaning_report.json", cleanProfile)
	}
	if err := report.Write(reportPath); err != nil {
		return err
	}

	fmt.Printf("\nCleaning summary (%s profile):\n", cleanProfile)
	fmt.Printf("  cats:            %d\n", report.Statistics.TotalCats)
	fmt.Printf("  images before:   %d\n", report.Statistics.TotalImagesBefore)
	fmt.Printf("  images after:    %d\n", report.Statistics.TotalImagesAfter)
	fmt.Printf("  removed:         %d\n", report.Statistics.RemovedImages)
	fmt.Printf("  fully removed:   %d cats\n", report.Statistics.CatsFullyRemoved)
	fmt.Printf("  report:          %s\n", reportPath)
	if report.BackupPath != "" {
		fmt.Printf("  backup:          %s\n", report.BackupPath)
	}
	if cleanAnalyzeOnly {
		fmt.Println("  (analyze only - nothing was deleted)")
	}
	return nil
}
