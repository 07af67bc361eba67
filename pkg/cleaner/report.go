package cleaner

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"nekoscraper/pkg/config"
)

// Statistics aggregates removal counts across the whole pass
type Statistics struct {
	TotalCats         int `json:"total_cats"`
	TotalImagesBefore int `json:"total_images_before"`
	TotalImagesAfter  int `json:"total_images_after"`
	RemovedImages     int `json:"removed_images"`
	CatsWithRemovals  int `json:"cats_with_removals"`
	CatsFullyRemoved  int `json:"cats_fully_removed"`

	FileSizeRemovals  int `json:"file_size_removals"`
	PatternRemovals   int `json:"pattern_removals"`
	DimensionRemovals int `json:"dimension_removals"`
	ContentRemovals   int `json:"content_removals"`
	DuplicateRemovals int `json:"duplicate_removals"`
	CorruptedRemovals int `json:"corrupted_removals"`

	// DeletionErrors counts files flagged for removal that could not be
	// deleted from disk.
	DeletionErrors int `json:"deletion_errors"`
}

// addRemoval books one removed image under its category
func (s *Statistics) addRemoval(category string) {
	s.RemovedImages++
	switch category {
	case CategoryFileSize:
		s.FileSizeRemovals++
	case CategoryPattern:
		s.PatternRemovals++
	case CategoryDimension:
		s.DimensionRemovals++
	case CategoryContent:
		s.ContentRemovals++
	case CategoryDuplicate:
		s.DuplicateRemovals++
	case CategoryCorrupted:
		s.CorruptedRemovals++
	}
}

// EntityResult records the outcome for one entity directory
type EntityResult struct {
	CatID          string   `json:"cat_id"`
	ImagesBefore   int      `json:"images_before"`
	ImagesAfter    int      `json:"images_after"`
	RemovedCount   int      `json:"removed_count"`
	RemovedReasons []string `json:"removed_reasons,omitempty"`

	// FullyRemoved marks entities left with zero images after the pass
	FullyRemoved bool `json:"fully_removed"`
}

// Report is the JSON document written after a cleaning pass
type Report struct {
	CleaningTimestamp time.Time              `json:"cleaning_timestamp"`
	DatasetPath       string                 `json:"dataset_path"`
	BackupPath        string                 `json:"backup_path,omitempty"`
	Statistics        Statistics             `json:"statistics"`
	DetailedResults   []EntityResult         `json:"detailed_results"`
	RemovalCriteria   config.CleaningProfile `json:"removal_criteria"`
}

// Write serializes the report to path as indented JSON
func (r *Report) Write(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
