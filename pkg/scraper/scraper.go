// Package scraper orchestrates the full scrape: paginate listings, fetch
// profile pages, download images and persist resume state after every
// completed entity.
package scraper

import (
	"context"
	"fmt"
	"time"

	"nekoscraper/pkg/config"
	"nekoscraper/pkg/fetcher"
	"nekoscraper/pkg/logger"
	"nekoscraper/pkg/models"
	"nekoscraper/pkg/nekojirushi"
	"nekoscraper/pkg/progress"
	"nekoscraper/pkg/ratelimit"
	"nekoscraper/pkg/storage"
)

// Scraper drives the page loop and wires the client, fetcher, storage and
// progress tracker together.
type Scraper struct {
	client       *nekojirushi.Client
	fetcher      *fetcher.Fetcher
	store        *storage.Manager
	tracker      *progress.Tracker
	pageDelay    ratelimit.Delayer
	imageDelay   ratelimit.Delayer
	listingLimit *ratelimit.TokenBucket
	config       *config.Config
	logger       logger.Logger
}

// Options controls resume behavior for one run
type Options struct {
	// Resume continues from an existing progress file
	Resume bool

	// ForceRestart deletes any existing progress file and starts fresh
	ForceRestart bool
}

// Summary reports what one run accomplished
type Summary struct {
	PagesProcessed   int
	NewEntities      int
	SkippedEntities  int
	FailedEntities   int
	ImagesDownloaded int
	TotalScraped     int
}

// New creates a Scraper from configuration
func New(cfg *config.Config) (*Scraper, error) {
	log := logger.GetLogger()

	client := nekojirushi.NewClient(nekojirushi.Options{
		BaseURL:    cfg.Site.BaseURL,
		UserAgent:  cfg.Site.UserAgent,
		Timeout:    cfg.HTTP.Timeout,
		MaxRetries: cfg.HTTP.MaxRetries,
		RetryDelay: cfg.HTTP.RetryDelay,
		Logger:     log,
	})

	store, err := storage.NewManager(cfg.Output.BaseDirectory)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage manager: %w", err)
	}

	return &Scraper{
		client:       client,
		fetcher:      fetcher.New(client, cfg.Selectors, log),
		store:        store,
		tracker:      progress.NewTracker(cfg.Output.ProgressFile, log),
		pageDelay:    ratelimit.NewJitteredDelay(cfg.Scrape.PageDelayMin, cfg.Scrape.PageDelayMax),
		imageDelay:   ratelimit.NewJitteredDelay(cfg.Scrape.ImageDelayMin, cfg.Scrape.ImageDelayMax),
		listingLimit: ratelimit.NewTokenBucket(cfg.HTTP.ListingBurst, cfg.HTTP.ListingRefillPeriod),
		config:       cfg,
		logger:       log,
	}, nil
}

// listedEntity is one entity discovered on a listing page, from either the
// AJAX endpoint or an HTML listing fallback.
type listedEntity struct {
	id        string
	url       string
	name      string
	mainImage string
	caption   string
}

// Run executes the scrape loop. Progress is saved after every completed
// entity and page, and once more on the way out, so a cancelled run can
// resume.
func (s *Scraper) Run(ctx context.Context, opts Options) (*Summary, error) {
	if err := s.prepareTracker(opts); err != nil {
		return nil, err
	}

	startPage := 1
	if opts.Resume {
		startPage = s.tracker.LastPage() + 1
	}

	s.logger.InfoWithFields("starting scrape", map[string]interface{}{
		"start_page":      startPage,
		"max_pages":       s.config.Scrape.MaxPages,
		"target_entities": s.config.Scrape.TargetEntities,
		"already_scraped": s.tracker.ScrapedCount(),
	})

	summary := &Summary{}
	runErr := s.runPages(ctx, startPage, summary)

	// Always persist final state, even on cancellation
	if err := s.tracker.Save(); err != nil {
		s.logger.WithError(err).Error("failed to save final progress")
		if runErr == nil {
			runErr = err
		}
	}

	summary.TotalScraped = s.tracker.ScrapedCount()
	s.logger.InfoWithFields("scrape finished", map[string]interface{}{
		"pages_processed":   summary.PagesProcessed,
		"new_entities":      summary.NewEntities,
		"skipped_entities":  summary.SkippedEntities,
		"failed_entities":   summary.FailedEntities,
		"images_downloaded": summary.ImagesDownloaded,
		"total_scraped":     summary.TotalScraped,
	})

	return summary, runErr
}

// prepareTracker applies the resume and force-restart flags
func (s *Scraper) prepareTracker(opts Options) error {
	switch {
	case opts.ForceRestart && s.tracker.Exists():
		s.logger.Info("force restart: deleting existing progress file")
		if err := s.tracker.Delete(); err != nil {
			return err
		}
	case opts.Resume:
		if err := s.tracker.Load(); err != nil {
			return fmt.Errorf("failed to load progress: %w", err)
		}
	case s.tracker.Exists():
		return fmt.Errorf("progress file exists - use --resume to continue or --force-restart to start fresh")
	}
	return nil
}

func (s *Scraper) runPages(ctx context.Context, startPage int, summary *Summary) error {
	for page := startPage; page <= s.config.Scrape.MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		entities, err := s.listPage(ctx, page)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.WithError(err).WithField("page", page).Error("listing page failed")
			s.tracker.MarkFailedPage(page)
			s.tracker.SetLastPage(page)
			if err := s.tracker.Save(); err != nil {
				return err
			}
			continue
		}

		if len(entities) == 0 {
			s.logger.WithField("page", page).Info("empty listing page, assuming end of results")
			break
		}

		s.logger.InfoWithFields("processing listing page", map[string]interface{}{
			"page":     page,
			"entities": len(entities),
		})

		for _, listed := range entities {
			if err := ctx.Err(); err != nil {
				return err
			}

			if s.tracker.IsDone(listed.id) {
				summary.SkippedEntities++
				continue
			}

			if err := s.scrapeEntity(ctx, listed, summary); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				summary.FailedEntities++
				s.logger.WithError(err).WithFields(map[string]interface{}{
					"entity_id": listed.id,
					"url":       listed.url,
				}).Error("entity scrape failed")
				continue
			}

			summary.NewEntities++
			if s.config.Scrape.TargetEntities > 0 && s.tracker.ScrapedCount() >= s.config.Scrape.TargetEntities {
				s.tracker.SetLastPage(page)
				summary.PagesProcessed++
				s.logger.WithField("target", s.config.Scrape.TargetEntities).Info("target entity count reached")
				return s.tracker.Save()
			}
		}

		s.tracker.SetLastPage(page)
		summary.PagesProcessed++
		if err := s.tracker.Save(); err != nil {
			return err
		}

		if err := s.pageDelay.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// listPage discovers the entities on one listing page. The AJAX endpoint
// is authoritative; HTML listing patterns are the fallback when it fails
// or returns nothing parseable.
func (s *Scraper) listPage(ctx context.Context, page int) ([]listedEntity, error) {
	if err := s.listingLimit.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := s.client.FosterList(ctx, s.config.Site.FosterListEndpoint, page)
	if err == nil {
		entities := make([]listedEntity, 0, len(resp.FosterList))
		for _, fc := range resp.FosterList {
			entities = append(entities, listedEntity{
				id:        fc.CatID.String(),
				url:       s.client.ResolveURL(fc.URL),
				name:      fc.CatName,
				mainImage: s.client.ResolveURL(fc.Image1),
				caption:   fc.CatchCopy,
			})
		}
		return entities, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	s.logger.WithError(err).WithField("page", page).Warn("foster list endpoint failed, trying HTML listings")
	return s.listPageHTML(ctx, page)
}

// listPageHTML tries each configured listing URL pattern and returns the
// entities from the first one that yields links.
func (s *Scraper) listPageHTML(ctx context.Context, page int) ([]listedEntity, error) {
	var lastErr error
	for _, pattern := range s.config.Site.ListingPatterns {
		pageURL := nekojirushi.ListingURL(pattern, s.client.BaseURL(), page)

		body, err := s.client.GetPage(ctx, pageURL)
		if err != nil {
			lastErr = err
			continue
		}

		links, err := s.fetcher.EntityLinks(body)
		if err != nil {
			lastErr = err
			continue
		}
		if len(links) == 0 {
			continue
		}

		entities := make([]listedEntity, 0, len(links))
		for _, link := range links {
			id, err := fetcher.EntityID(link)
			if err != nil {
				s.logger.WithError(err).WithField("url", link).Debug("skipping link without numeric ID")
				continue
			}
			entities = append(entities, listedEntity{id: id, url: link})
		}
		return entities, nil
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, nil
}

// scrapeEntity fetches one profile page, downloads its images, writes the
// metadata file and marks the entity done.
func (s *Scraper) scrapeEntity(ctx context.Context, listed listedEntity, summary *Summary) error {
	var entity *models.Entity

	entity, err := s.fetcher.FetchEntity(ctx, listed.url)
	if err != nil {
		// The listing entry alone is enough to save the main image
		if listed.mainImage == "" {
			return err
		}
		s.logger.WithError(err).WithField("entity_id", listed.id).Warn("profile page failed, keeping listing data only")
		entity = &models.Entity{
			ID:      listed.id,
			URL:     listed.url,
			Details: make(map[string]string),
		}
	}

	if entity.Name == "" {
		entity.Name = listed.name
	}
	entity.ScrapedAt = time.Now().UTC()
	fetcher.PrependMainImage(entity, listed.mainImage, listed.caption)

	result, err := s.fetcher.DownloadImages(ctx, entity, s.store, s.imageDelay.Wait)
	if err != nil {
		return err
	}
	summary.ImagesDownloaded += result.Downloaded
	s.tracker.AddImagesDownloaded(result.Downloaded)

	if err := s.store.WriteEntityInfo(entity); err != nil {
		return err
	}

	s.tracker.MarkDone(entity.ID)
	// Persist after every completed entity so an abrupt termination loses
	// at most one entity's work, not a whole page.
	if err := s.tracker.Save(); err != nil {
		return fmt.Errorf("failed to save progress: %w", err)
	}
	s.logger.InfoWithFields("entity scraped", map[string]interface{}{
		"entity_id":  entity.ID,
		"name":       entity.Name,
		"downloaded": result.Downloaded,
		"skipped":    result.Skipped,
		"failed":     result.Failed,
	})
	return nil
}

// Tracker exposes the progress tracker, mainly for status reporting
func (s *Scraper) Tracker() *progress.Tracker { return s.tracker }
