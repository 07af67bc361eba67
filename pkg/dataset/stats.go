// Package dataset provides read-only inspection and restructuring of a
// scraped dataset: summary statistics and reorganization into a uniform
// layout for training pipelines.
package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"nekoscraper/pkg/storage"
)

// EntityStats summarizes one entity directory
type EntityStats struct {
	CatID      string  `json:"cat_id"`
	Name       string  `json:"name,omitempty"`
	ImageCount int     `json:"image_count"`
	TotalMB    float64 `json:"total_mb"`
	HasInfo    bool    `json:"has_info"`
}

// Stats summarizes a whole dataset
type Stats struct {
	DatasetPath     string        `json:"dataset_path"`
	TotalCats       int           `json:"total_cats"`
	TotalImages     int           `json:"total_images"`
	TotalMB         float64       `json:"total_mb"`
	CatsWithoutInfo int           `json:"cats_without_info"`
	EmptyCats       int           `json:"empty_cats"`
	Entities        []EntityStats `json:"entities"`
}

// Collect walks the dataset and gathers per-entity and aggregate counts
func Collect(root string) (*Stats, error) {
	dirs, err := storage.EntityDirs(root)
	if err != nil {
		return nil, err
	}

	stats := &Stats{DatasetPath: root, TotalCats: len(dirs)}
	for _, dir := range dirs {
		entity := EntityStats{
			CatID: strings.TrimPrefix(filepath.Base(dir), storage.EntityDirPrefix),
		}

		if info, err := storage.ReadEntityInfo(dir); err == nil {
			entity.HasInfo = true
			entity.Name = info.Name
		} else {
			stats.CatsWithoutInfo++
		}

		files, err := storage.ImageFiles(dir)
		if err != nil {
			return nil, err
		}
		entity.ImageCount = len(files)
		if len(files) == 0 {
			stats.EmptyCats++
		}

		var bytes int64
		for _, path := range files {
			if fi, err := os.Stat(path); err == nil {
				bytes += fi.Size()
			}
		}
		entity.TotalMB = float64(bytes) / (1024 * 1024)

		stats.TotalImages += entity.ImageCount
		stats.TotalMB += entity.TotalMB
		stats.Entities = append(stats.Entities, entity)
	}

	// Largest collections first
	sort.SliceStable(stats.Entities, func(i, j int) bool {
		return stats.Entities[i].ImageCount > stats.Entities[j].ImageCount
	})

	return stats, nil
}

// Write serializes the stats to path as indented JSON
func (s *Stats) Write(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write stats: %w", err)
	}
	return nil
}
