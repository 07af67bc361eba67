package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"nekoscraper/pkg/detector"
)

var (
	detectDataset     string
	detectEndpoint    string
	detectConfidence  float64
	detectReportPath  string
	detectBackupPath  string
	detectNoBackup    bool
	detectAnalyzeOnly bool
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Remove images where no cat is detected",
	Long: `Run every dataset image through the object-detection inference
service and remove images where the cat class is not detected above the
confidence threshold.

The service is health-checked before the pass starts; an unreachable
service aborts the run rather than stripping the dataset. Images the
service fails to process are kept and counted as detection errors.`,
	Example: `  # Filter with defaults (localhost service, 0.3 confidence)
  nekoscraper detect

  # Stricter threshold against a remote service
  nekoscraper detect --endpoint http://gpu-box:8650 --confidence 0.5

  # See what would be removed
  nekoscraper detect --analyze-only`,
	RunE: runDetect,
}

func init() {
	rootCmd.AddCommand(detectCmd)

	detectCmd.Flags().StringVarP(&detectDataset, "dataset", "d", "", "dataset directory (default: configured output directory)")
	detectCmd.Flags().StringVar(&detectEndpoint, "endpoint", "", "inference service endpoint")
	detectCmd.Flags().Float64Var(&detectConfidence, "confidence", 0, "detection confidence threshold")
	detectCmd.Flags().StringVar(&detectReportPath, "report", "detection_report.json", "report file path")
	detectCmd.Flags().StringVar(&detectBackupPath, "backup-path", "", "backup directory (default: <dataset>_backup_<timestamp>)")
	detectCmd.Flags().BoolVar(&detectNoBackup, "no-backup", false, "skip the pre-filter backup (unsafe)")
	detectCmd.Flags().BoolVar(&detectAnalyzeOnly, "analyze-only", false, "report removals without deleting anything")
}

func runDetect(cmd *cobra.Command, args []string) error {
	flags := map[string]interface{}{
		"detector-endpoint": detectEndpoint,
		"confidence":        detectConfidence,
	}
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	dataset := detectDataset
	if dataset == "" {
		dataset = cfg.Output.BaseDirectory
	}

	ctx, cancel := signalContext()
	defer cancel()

	client := detector.NewClient(cfg.Detector, nil)
	filter := detector.NewFilter(client, nil)

	report, err := filter.Run(ctx, dataset, detector.Options{
		Backup:      !detectNoBackup,
		BackupPath:  detectBackupPath,
		AnalyzeOnly: detectAnalyzeOnly,
	})
	if err != nil {
		return err
	}

	if err := report.Write(detectReportPath); err != nil {
		return err
	}

	fmt.Printf("\nDetection filter summary:\n")
	fmt.Printf("  cats:             %d\n", report.Statistics.TotalCats)
	fmt.Printf("  images before:    %d\n", report.Statistics.TotalImagesBefore)
	fmt.Printf("  images after:     %d\n", report.Statistics.TotalImagesAfter)
	fmt.Printf("  with cats:        %d\n", report.Statistics.ImagesWithCats)
	fmt.Printf("  without cats:     %d\n", report.Statistics.ImagesWithoutCats)
	fmt.Printf("  detection errors: %d\n", report.Statistics.DetectionErrors)
	fmt.Printf("  avg confidence:   %.3f\n", report.Statistics.AverageConfidence)
	fmt.Printf("  report:           %s\n", detectReportPath)
	if report.BackupPath != "" {
		fmt.Printf("  backup:           %s\n", report.BackupPath)
	}
	if detectAnalyzeOnly {
		fmt.Println("  (analyze only - nothing was deleted)")
	}
	return nil
}
