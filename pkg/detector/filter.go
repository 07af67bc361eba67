package detector

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"nekoscraper/pkg/logger"
	"nekoscraper/pkg/storage"
)

// Options controls a filter run
type Options struct {
	// Backup copies the dataset tree aside before deleting anything
	Backup bool

	// BackupPath overrides the default "<dataset>_backup_<timestamp>"
	BackupPath string

	// AnalyzeOnly evaluates and reports without deleting files
	AnalyzeOnly bool
}

// Statistics aggregates detection outcomes across the whole pass
type Statistics struct {
	TotalCats         int `json:"total_cats"`
	TotalImagesBefore int `json:"total_images_before"`
	TotalImagesAfter  int `json:"total_images_after"`

	ImagesWithCats    int     `json:"images_with_cats"`
	ImagesWithoutCats int     `json:"images_without_cats"`
	TotalDetections   int     `json:"total_detections"`
	AverageConfidence float64 `json:"average_confidence"`

	// DetectionErrors counts images the service still failed to process
	// after retries; those are treated as containing no target and removed.
	DetectionErrors int `json:"detection_errors"`

	RemovedImages    int `json:"removed_images"`
	CatsWithRemovals int `json:"cats_with_removals"`
	CatsFullyRemoved int `json:"cats_fully_removed"`
	DeletionErrors   int `json:"deletion_errors"`
}

// EntityResult records the outcome for one entity directory
type EntityResult struct {
	CatID          string   `json:"cat_id"`
	ImagesBefore   int      `json:"images_before"`
	ImagesAfter    int      `json:"images_after"`
	RemovedCount   int      `json:"removed_count"`
	RemovedReasons []string `json:"removed_reasons,omitempty"`
	FullyRemoved   bool     `json:"fully_removed"`
}

// Criteria describes the detection thresholds the pass applied
type Criteria struct {
	TargetClassID       int     `json:"target_class_id"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	Endpoint            string  `json:"endpoint"`
}

// Report is the JSON document written after a filter pass
type Report struct {
	FilterTimestamp time.Time      `json:"filter_timestamp"`
	DatasetPath     string         `json:"dataset_path"`
	BackupPath      string         `json:"backup_path,omitempty"`
	Statistics      Statistics     `json:"statistics"`
	DetailedResults []EntityResult `json:"detailed_results"`
	RemovalCriteria Criteria       `json:"removal_criteria"`
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

// Filter runs the detection pass over a dataset
type Filter struct {
	client *Client
	logger logger.Logger
}

// NewFilter creates a filter backed by the given detector client
func NewFilter(client *Client, log logger.Logger) *Filter {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Filter{client: client, logger: log}
}

// Run health-checks the service, then walks every entity directory and
// removes images where the target class is not detected. Per-image
// inference failures are retried by the client; an image that still
// cannot be processed counts as a detection error and is treated as
// having no target.
func (f *Filter) Run(ctx context.Context, root string, opts Options) (*Report, error) {
	if err := f.client.Health(ctx); err != nil {
		return nil, fmt.Errorf("inference service unavailable: %w", err)
	}

	dirs, err := storage.EntityDirs(root)
	if err != nil {
		return nil, err
	}
	if len(dirs) == 0 {
		return nil, fmt.Errorf("no entity directories under %s", root)
	}

	report := &Report{
		FilterTimestamp: time.Now().UTC(),
		DatasetPath:     root,
		RemovalCriteria: Criteria{
			TargetClassID:       f.client.cfg.TargetClassID,
			ConfidenceThreshold: f.client.cfg.ConfidenceThreshold,
			Endpoint:            f.client.cfg.Endpoint,
		},
	}
	report.Statistics.TotalCats = len(dirs)

	if opts.Backup && !opts.AnalyzeOnly {
		backupPath := opts.BackupPath
		if backupPath == "" {
			backupPath = fmt.Sprintf("%s_backup_%s", strings.TrimRight(root, string(os.PathSeparator)), time.Now().Format("20060102_150405"))
		}
		f.logger.WithField("backup_path", backupPath).Info("backing up dataset before filtering")
		if err := storage.BackupTree(root, backupPath); err != nil {
			return nil, fmt.Errorf("backup failed, aborting filter: %w", err)
		}
		report.BackupPath = backupPath
	}

	var confidenceSum float64
	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := f.filterEntity(ctx, dir, opts.AnalyzeOnly, &report.Statistics, &confidenceSum)
		if err != nil {
			return nil, err
		}
		report.DetailedResults = append(report.DetailedResults, result)

		if result.RemovedCount > 0 {
			report.Statistics.CatsWithRemovals++
		}
		if result.FullyRemoved {
			report.Statistics.CatsFullyRemoved++
		}
	}

	if report.Statistics.ImagesWithCats > 0 {
		report.Statistics.AverageConfidence = confidenceSum / float64(report.Statistics.ImagesWithCats)
	}
	report.Statistics.TotalImagesAfter = report.Statistics.TotalImagesBefore - report.Statistics.RemovedImages + report.Statistics.DeletionErrors

	f.logger.InfoWithFields("detection filter finished", map[string]interface{}{
		"cats":             report.Statistics.TotalCats,
		"images_before":    report.Statistics.TotalImagesBefore,
		"images_after":     report.Statistics.TotalImagesAfter,
		"with_target":      report.Statistics.ImagesWithCats,
		"without_target":   report.Statistics.ImagesWithoutCats,
		"detection_errors": report.Statistics.DetectionErrors,
		"analyze_only":     opts.AnalyzeOnly,
	})

	return report, nil
}

func (f *Filter) filterEntity(ctx context.Context, dir string, analyzeOnly bool, stats *Statistics, confidenceSum *float64) (EntityResult, error) {
	result := EntityResult{
		CatID: strings.TrimPrefix(filepath.Base(dir), storage.EntityDirPrefix),
	}

	files, err := storage.ImageFiles(dir)
	if err != nil {
		return result, err
	}
	result.ImagesBefore = len(files)
	stats.TotalImagesBefore += len(files)

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		detections, err := f.client.Detect(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			stats.DetectionErrors++
			f.logger.WithError(err).WithField("path", path).Warn("detection failed after retries, treating as no cat")
			detections = nil
		}
		stats.TotalDetections += len(detections)

		if best, found := f.client.TargetMatch(detections); found {
			stats.ImagesWithCats++
			*confidenceSum += best.Confidence
			continue
		}

		stats.ImagesWithoutCats++
		stats.RemovedImages++
		result.RemovedCount++
		result.RemovedReasons = append(result.RemovedReasons, fmt.Sprintf("%s: no %s", filepath.Base(path), f.client.Describe()))

		if analyzeOnly {
			continue
		}
		if err := os.Remove(path); err != nil {
			stats.DeletionErrors++
			f.logger.WithError(err).WithField("path", path).Error("failed to delete image")
		}
	}

	result.ImagesAfter = result.ImagesBefore - result.RemovedCount
	result.FullyRemoved = result.ImagesBefore > 0 && result.ImagesAfter == 0
	return result, nil
}
