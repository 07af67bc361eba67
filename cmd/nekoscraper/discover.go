package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"nekoscraper/pkg/discover"
)

var (
	discoverMaxDepth int
	discoverMaxPages int
	discoverDelay    time.Duration
	discoverOut      string
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Crawl the site for listing pages worth scraping",
	Long: `Crawl the site from its root, within robots.txt, depth and page
bounds, and rank pages by how many cat profile links they carry. Useful
when the site layout changes and the configured listing URL patterns or
selectors stop matching.`,
	Example: `  # Shallow crawl with defaults
  nekoscraper discover

  # Deeper crawl, save candidates to a file
  nekoscraper discover --max-depth 3 --max-pages 100 --out candidates.json`,
	RunE: runDiscover,
}

func init() {
	rootCmd.AddCommand(discoverCmd)

	discoverCmd.Flags().IntVar(&discoverMaxDepth, "max-depth", 2, "maximum link depth from the site root")
	discoverCmd.Flags().IntVar(&discoverMaxPages, "max-pages", 50, "maximum pages to visit")
	discoverCmd.Flags().DurationVar(&discoverDelay, "delay", time.Second, "delay between requests")
	discoverCmd.Flags().StringVar(&discoverOut, "out", "", "write the full result JSON to this file")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	explorer, err := discover.New(discover.Options{
		BaseURL:     cfg.Site.BaseURL,
		UserAgent:   cfg.Site.UserAgent,
		MaxDepth:    discoverMaxDepth,
		MaxPages:    discoverMaxPages,
		Delay:       discoverDelay,
		RandomDelay: discoverDelay / 2,
	})
	if err != nil {
		return err
	}

	result, err := explorer.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("\nExplored %d pages (%d blocked by robots.txt)\n", result.ExploredPages, result.RobotsDisallowed)
	fmt.Printf("Found %d listing candidates, %d unique profile URLs\n\n", len(result.Candidates), len(result.EntityURLs))
	for i, c := range result.Candidates {
		if i >= 10 {
			fmt.Printf("  ... and %d more\n", len(result.Candidates)-10)
			break
		}
		marker := " "
		if c.HasPagination {
			marker = "+"
		}
		fmt.Printf("  %s %3d profiles  %s\n", marker, c.EntityProfiles, c.URL)
	}

	if discoverOut != "" {
		if err := result.Write(discoverOut); err != nil {
			return err
		}
		fmt.Printf("\nFull result written to %s\n", discoverOut)
	}
	return nil
}
