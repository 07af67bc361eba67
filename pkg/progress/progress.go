// Package progress persists resume state for a long-running scrape so an
// interrupted run can skip already-completed entities on restart.
package progress

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"nekoscraper/pkg/logger"
)

// State is the on-disk shape of the progress file. Sets are serialized as
// sorted arrays so the file stays diffable between runs.
type State struct {
	LastPage              int       `json:"last_page"`
	ScrapedCats           []string  `json:"scraped_cats"`
	FailedPages           []int     `json:"failed_pages"`
	TotalImagesDownloaded int       `json:"total_images_downloaded"`
	TotalEntitiesFound    int       `json:"total_entities_found"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// Tracker holds the in-memory resume state and knows how to persist it.
// It is used by a single sequential process; concurrent runs against the
// same progress file are not supported.
type Tracker struct {
	path   string
	logger logger.Logger

	lastPage         int
	scraped          map[string]struct{}
	failedPages      map[int]struct{}
	imagesDownloaded int
	entitiesFound    int
}

// NewTracker creates a tracker persisting to the given path
func NewTracker(path string, log logger.Logger) *Tracker {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Tracker{
		path:        path,
		logger:      log,
		scraped:     make(map[string]struct{}),
		failedPages: make(map[int]struct{}),
	}
}

// Load reads state from disk. A missing file means a fresh session.
func (t *Tracker) Load() error {
	file, err := os.Open(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			t.logger.Info("starting fresh scraping session")
			return nil
		}
		return fmt.Errorf("failed to open progress file: %w", err)
	}
	defer file.Close()

	var state State
	if err := json.NewDecoder(file).Decode(&state); err != nil {
		return fmt.Errorf("failed to decode progress file: %w", err)
	}

	t.lastPage = state.LastPage
	t.imagesDownloaded = state.TotalImagesDownloaded
	t.entitiesFound = state.TotalEntitiesFound
	t.scraped = make(map[string]struct{}, len(state.ScrapedCats))
	for _, id := range state.ScrapedCats {
		t.scraped[id] = struct{}{}
	}
	t.failedPages = make(map[int]struct{}, len(state.FailedPages))
	for _, p := range state.FailedPages {
		t.failedPages[p] = struct{}{}
	}

	t.logger.InfoWithFields("loaded progress", map[string]interface{}{
		"last_page":    t.lastPage,
		"scraped_cats": len(t.scraped),
		"failed_pages": len(t.failedPages),
	})
	return nil
}

// Save serializes the current state back to the progress file. The write
// goes through a temp file and a rename so an interrupt cannot leave a
// truncated file behind.
func (t *Tracker) Save() error {
	state := t.snapshot()

	dir := filepath.Dir(t.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create progress directory: %w", err)
		}
	}

	tempPath := t.path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary progress file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(state); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode progress: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync progress file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close progress file: %w", err)
	}

	if err := os.Rename(tempPath, t.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace progress file: %w", err)
	}

	t.logger.DebugWithFields("progress saved", map[string]interface{}{
		"last_page":    state.LastPage,
		"scraped_cats": len(state.ScrapedCats),
	})
	return nil
}

func (t *Tracker) snapshot() State {
	scraped := make([]string, 0, len(t.scraped))
	for id := range t.scraped {
		scraped = append(scraped, id)
	}
	sort.Strings(scraped)

	failed := make([]int, 0, len(t.failedPages))
	for p := range t.failedPages {
		failed = append(failed, p)
	}
	sort.Ints(failed)

	return State{
		LastPage:              t.lastPage,
		ScrapedCats:           scraped,
		FailedPages:           failed,
		TotalImagesDownloaded: t.imagesDownloaded,
		TotalEntitiesFound:    t.entitiesFound,
		UpdatedAt:             time.Now(),
	}
}

// IsDone reports whether an entity has already been scraped
func (t *Tracker) IsDone(id string) bool {
	_, ok := t.scraped[id]
	return ok
}

// MarkDone records an entity as completed
func (t *Tracker) MarkDone(id string) {
	t.scraped[id] = struct{}{}
	t.entitiesFound++
}

// MarkFailedPage records a listing page that could not be fetched
func (t *Tracker) MarkFailedPage(page int) {
	t.failedPages[page] = struct{}{}
}

// LastPage returns the last fully processed listing page
func (t *Tracker) LastPage() int { return t.lastPage }

// SetLastPage records the last fully processed listing page
func (t *Tracker) SetLastPage(page int) { t.lastPage = page }

// AddImagesDownloaded bumps the image counter
func (t *Tracker) AddImagesDownloaded(n int) { t.imagesDownloaded += n }

// ImagesDownloaded returns the total number of downloaded images
func (t *Tracker) ImagesDownloaded() int { return t.imagesDownloaded }

// ScrapedCount returns how many entities are marked done
func (t *Tracker) ScrapedCount() int { return len(t.scraped) }

// FailedPageCount returns how many listing pages failed permanently
func (t *Tracker) FailedPageCount() int { return len(t.failedPages) }

// Delete removes the progress file (used by --force-restart)
func (t *Tracker) Delete() error {
	if err := os.Remove(t.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete progress file: %w", err)
	}
	return nil
}

// Exists reports whether a progress file is present on disk
func (t *Tracker) Exists() bool {
	_, err := os.Stat(t.path)
	return err == nil
}
