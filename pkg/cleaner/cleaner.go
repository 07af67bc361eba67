// Package cleaner removes junk images from a scraped dataset: site chrome,
// corrupted files, thumbnails, banners and duplicates. Every pass is
// destructive, so it backs the tree up first and writes a report of what
// was removed and why.
package cleaner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"nekoscraper/pkg/config"
	"nekoscraper/pkg/logger"
	"nekoscraper/pkg/storage"
)

// Cleaner runs one profile's removal criteria over a dataset
type Cleaner struct {
	profile config.CleaningProfile
	checks  []Check
	logger  logger.Logger
}

// Options controls a cleaning run
type Options struct {
	// Backup copies the dataset tree aside before deleting anything.
	// The backup is the sole recovery mechanism, so it defaults on.
	Backup bool

	// BackupPath overrides the default "<dataset>_backup_<timestamp>"
	BackupPath string

	// AnalyzeOnly evaluates and reports without deleting files
	AnalyzeOnly bool
}

// New creates a cleaner for the given profile
func New(profile config.CleaningProfile, log logger.Logger) *Cleaner {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Cleaner{
		profile: profile,
		checks:  buildChecks(profile),
		logger:  log.WithField("profile", profile.Name),
	}
}

// Run executes the cleaning pass over the dataset rooted at root and
// returns the report. Individual deletion failures are counted, not fatal;
// the pass continues so one locked file cannot abort a long run.
func (c *Cleaner) Run(ctx context.Context, root string) (*Report, error) {
	dirs, err := storage.EntityDirs(root)
	if err != nil {
		return nil, err
	}
	if len(dirs) == 0 {
		return nil, fmt.Errorf("no entity directories under %s", root)
	}

	return c.run(ctx, root, dirs, Options{Backup: true})
}

// RunWithOptions is Run with explicit backup and analyze settings
func (c *Cleaner) RunWithOptions(ctx context.Context, root string, opts Options) (*Report, error) {
	dirs, err := storage.EntityDirs(root)
	if err != nil {
		return nil, err
	}
	if len(dirs) == 0 {
		return nil, fmt.Errorf("no entity directories under %s", root)
	}

	return c.run(ctx, root, dirs, opts)
}

func (c *Cleaner) run(ctx context.Context, root string, dirs []string, opts Options) (*Report, error) {
	report := &Report{
		CleaningTimestamp: time.Now().UTC(),
		DatasetPath:       root,
		RemovalCriteria:   c.profile,
	}
	report.Statistics.TotalCats = len(dirs)

	if opts.Backup && !opts.AnalyzeOnly {
		backupPath := opts.BackupPath
		if backupPath == "" {
			backupPath = fmt.Sprintf("%s_backup_%s", strings.TrimRight(root, string(os.PathSeparator)), time.Now().Format("20060102_150405"))
		}
		c.logger.WithField("backup_path", backupPath).Info("backing up dataset before cleaning")
		if err := storage.BackupTree(root, backupPath); err != nil {
			return nil, fmt.Errorf("backup failed, aborting clean: %w", err)
		}
		report.BackupPath = backupPath
	}

	// The dedup pass runs first so per-entity results already reflect
	// duplicate removals.
	removeReasons := make(map[string]removal)
	if c.profile.RemoveDuplicates {
		dups, err := c.findDuplicates(root)
		if err != nil {
			return nil, err
		}
		for _, d := range dups {
			removeReasons[d.path] = removal{
				category: CategoryDuplicate,
				reason:   fmt.Sprintf("duplicate of %s", filepath.Base(d.original)),
			}
		}
	}

	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := c.cleanEntity(dir, removeReasons, opts.AnalyzeOnly, &report.Statistics)
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

	report.Statistics.TotalImagesAfter = report.Statistics.TotalImagesBefore - report.Statistics.RemovedImages + report.Statistics.DeletionErrors

	c.logger.InfoWithFields("cleaning pass finished", map[string]interface{}{
		"cats":            report.Statistics.TotalCats,
		"images_before":   report.Statistics.TotalImagesBefore,
		"images_after":    report.Statistics.TotalImagesAfter,
		"removed":         report.Statistics.RemovedImages,
		"deletion_errors": report.Statistics.DeletionErrors,
		"analyze_only":    opts.AnalyzeOnly,
	})

	return report, nil
}

// removal is the verdict for one file
type removal struct {
	category string
	reason   string
}

// cleanEntity evaluates and (unless analyzing) deletes the flagged images
// of one entity directory.
func (c *Cleaner) cleanEntity(dir string, preflagged map[string]removal, analyzeOnly bool, stats *Statistics) (EntityResult, error) {
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
		verdict, flagged := preflagged[path]
		if !flagged {
			verdict, flagged = c.evaluate(path)
		}
		if !flagged {
			continue
		}

		stats.addRemoval(verdict.category)
		result.RemovedCount++
		result.RemovedReasons = append(result.RemovedReasons, fmt.Sprintf("%s: %s", filepath.Base(path), verdict.reason))

		c.logger.DebugWithFields("removing image", map[string]interface{}{
			"path":     path,
			"category": verdict.category,
			"reason":   verdict.reason,
		})

		if analyzeOnly {
			continue
		}
		if err := os.Remove(path); err != nil {
			stats.DeletionErrors++
			c.logger.WithError(err).WithField("path", path).Error("failed to delete image")
		}
	}

	result.ImagesAfter = result.ImagesBefore - result.RemovedCount
	result.FullyRemoved = result.ImagesBefore > 0 && result.ImagesAfter == 0
	return result, nil
}

// evaluate runs the check chain over one file. The first failing check
// wins. A file that cannot even be stat'd is treated as corrupted.
func (c *Cleaner) evaluate(path string) (removal, bool) {
	f, err := newImageFile(path)
	if err != nil {
		return removal{category: CategoryCorrupted, reason: err.Error()}, true
	}

	for _, check := range c.checks {
		remove, reason := check.Evaluate(f)
		if !remove {
			continue
		}
		category := check.Name()
		// Decode failures surface inside the dimension check but are a
		// distinct failure mode.
		if f.decoded && f.decodeErr != nil {
			category = CategoryCorrupted
		}
		return removal{category: category, reason: reason}, true
	}
	return removal{}, false
}
