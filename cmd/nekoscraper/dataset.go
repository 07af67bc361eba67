package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"nekoscraper/pkg/dataset"
)

var (
	statsDataset string
	statsOut     string
	statsTop     int

	reorganizeDataset string
	reorganizeOutput  string
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show dataset statistics",
	Long: `Walk the dataset and print per-cat and aggregate counts: images,
disk usage, cats without metadata, cats left with no images.`,
	RunE: runStats,
}

var reorganizeCmd = &cobra.Command{
	Use:   "reorganize",
	Short: "Copy the dataset into a uniform training layout",
	Long: `Copy the dataset into sequentially numbered cat_NNNN_<name>
directories with images renamed image_NNN.<ext>, plus an index.json
mapping new directories back to their sources. The source dataset is
left untouched; an existing output directory is replaced.`,
	RunE: runReorganize,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(reorganizeCmd)

	statsCmd.Flags().StringVarP(&statsDataset, "dataset", "d", "", "dataset directory (default: configured output directory)")
	statsCmd.Flags().StringVar(&statsOut, "out", "", "write the full stats JSON to this file")
	statsCmd.Flags().IntVar(&statsTop, "top", 10, "number of largest cats to list")

	reorganizeCmd.Flags().StringVarP(&reorganizeDataset, "dataset", "d", "", "dataset directory (default: configured output directory)")
	reorganizeCmd.Flags().StringVarP(&reorganizeOutput, "output", "o", "siamese_dataset", "output directory for the uniform layout")
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}

	root := statsDataset
	if root == "" {
		root = cfg.Output.BaseDirectory
	}

	stats, err := dataset.Collect(root)
	if err != nil {
		return err
	}

	fmt.Printf("\nDataset: %s\n", stats.DatasetPath)
	fmt.Printf("  cats:          %d\n", stats.TotalCats)
	fmt.Printf("  images:        %d\n", stats.TotalImages)
	fmt.Printf("  size:          %.1f MB\n", stats.TotalMB)
	fmt.Printf("  without info:  %d\n", stats.CatsWithoutInfo)
	fmt.Printf("  empty:         %d\n", stats.EmptyCats)

	if len(stats.Entities) > 0 {
		fmt.Printf("\nLargest collections:\n")
		for i, e := range stats.Entities {
			if i >= statsTop {
				break
			}
			name := e.Name
			if name == "" {
				name = "(no name)"
			}
			fmt.Printf("  %-10s %3d images  %6.1f MB  %s\n", e.CatID, e.ImageCount, e.TotalMB, name)
		}
	}

	if statsOut != "" {
		if err := stats.Write(statsOut); err != nil {
			return err
		}
		fmt.Printf("\nFull stats written to %s\n", statsOut)
	}
	return nil
}

func runReorganize(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}

	root := reorganizeDataset
	if root == "" {
		root = cfg.Output.BaseDirectory
	}

	index, err := dataset.Reorganize(root, reorganizeOutput, nil)
	if err != nil {
		return err
	}

	fmt.Printf("\nReorganized %d cats (%d images) into %s\n", index.TotalCats, index.TotalImages, index.OutputPath)
	return nil
}
