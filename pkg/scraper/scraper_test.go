package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nekoscraper/pkg/config"
	"nekoscraper/pkg/progress"
	"nekoscraper/pkg/storage"
)

func testScrapeConfig(t *testing.T, serverURL string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Site.BaseURL = serverURL
	cfg.HTTP.Timeout = 5 * time.Second
	cfg.HTTP.MaxRetries = 1
	cfg.HTTP.RetryDelay = time.Millisecond
	cfg.Scrape.MaxPages = 5
	cfg.Scrape.PageDelayMin = 0
	cfg.Scrape.PageDelayMax = 0
	cfg.Scrape.ImageDelayMin = 0
	cfg.Scrape.ImageDelayMax = 0
	cfg.Output.BaseDirectory = filepath.Join(t.TempDir(), "cats")
	cfg.Output.ProgressFile = filepath.Join(t.TempDir(), "progress.json")
	return cfg
}

func profileHandler(name, imagePath string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body><h1>%s</h1><img src="%s"></body></html>`, name, imagePath)
	}
}

func imageHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "image/jpeg")
	w.Write([]byte("jpeg-bytes"))
}

// fosterSite serves one listing page with two cats through the AJAX
// endpoint, their profile pages and their images.
func fosterSite() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/foster/ajax/ajax_getFosterList.php", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(r.PostForm.Get("search_cond"), `"p":"1"`) {
			w.Write([]byte(`{
				"foster_list": [
					{"cat_id": 111, "cat_name": "Kuro", "catch_copy": "shy boy", "url": "/foster/111/", "image_1": "/img/111_main.jpg"},
					{"cat_id": 222, "cat_name": "Shiro", "catch_copy": "playful", "url": "/foster/222/", "image_1": "/img/222_main.jpg"}
				],
				"page": {"now": 1, "all_page": 1, "rows": 2}
			}`))
			return
		}
		w.Write([]byte(`{"foster_list": [], "page": {"now": 2, "all_page": 1, "rows": 2}}`))
	})
	mux.HandleFunc("/foster/111/", profileHandler("Kuro", "/img/foster/111_1.jpg"))
	mux.HandleFunc("/foster/222/", profileHandler("Shiro", "/img/foster/222_1.jpg"))
	mux.HandleFunc("/img/", imageHandler)
	return httptest.NewServer(mux)
}

func TestRunScrapesListedEntities(t *testing.T) {
	server := fosterSite()
	defer server.Close()

	cfg := testScrapeConfig(t, server.URL)
	s, err := New(cfg)
	require.NoError(t, err)

	summary, err := s.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.NewEntities)
	assert.Equal(t, 0, summary.FailedEntities)
	assert.Equal(t, 1, summary.PagesProcessed, "page 2 is empty and ends the run")
	assert.Equal(t, 4, summary.ImagesDownloaded, "main image plus one profile image per cat")
	assert.Equal(t, 2, summary.TotalScraped)

	// Main image from the listing comes first
	dir := filepath.Join(cfg.Output.BaseDirectory, "cat_111")
	assert.FileExists(t, filepath.Join(dir, "image_1.jpg"))
	assert.FileExists(t, filepath.Join(dir, "image_2.jpg"))

	entity, err := storage.ReadEntityInfo(dir)
	require.NoError(t, err)
	assert.Equal(t, "Kuro", entity.Name)
	require.Len(t, entity.Images, 2)
	assert.Equal(t, server.URL+"/img/111_main.jpg", entity.Images[0].URL)
	assert.Equal(t, "shy boy", entity.Images[0].Alt)
	assert.False(t, entity.ScrapedAt.IsZero())

	assert.True(t, s.Tracker().Exists(), "progress file persisted")
	assert.True(t, s.Tracker().IsDone("111"))
	assert.True(t, s.Tracker().IsDone("222"))
}

func TestRunRefusesExistingProgressWithoutFlags(t *testing.T) {
	server := fosterSite()
	defer server.Close()

	cfg := testScrapeConfig(t, server.URL)
	s, err := New(cfg)
	require.NoError(t, err)

	_, err = s.Run(context.Background(), Options{})
	require.NoError(t, err)

	second, err := New(cfg)
	require.NoError(t, err)
	_, err = second.Run(context.Background(), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "progress file exists")
}

func TestRunResumeContinuesFromLastPage(t *testing.T) {
	server := fosterSite()
	defer server.Close()

	cfg := testScrapeConfig(t, server.URL)
	s, err := New(cfg)
	require.NoError(t, err)

	_, err = s.Run(context.Background(), Options{})
	require.NoError(t, err)

	resumed, err := New(cfg)
	require.NoError(t, err)
	summary, err := resumed.Run(context.Background(), Options{Resume: true})
	require.NoError(t, err)

	// Page 1 is already done; page 2 is empty
	assert.Equal(t, 0, summary.NewEntities)
	assert.Equal(t, 2, summary.TotalScraped)
}

func TestRunResumeSkipsAlreadyScrapedEntities(t *testing.T) {
	server := fosterSite()
	defer server.Close()

	cfg := testScrapeConfig(t, server.URL)

	// Simulate an interrupt after the first entity: 111 done, page 1 not
	// yet completed.
	seed, err := New(cfg)
	require.NoError(t, err)
	seed.Tracker().MarkDone("111")
	require.NoError(t, seed.Tracker().Save())

	s, err := New(cfg)
	require.NoError(t, err)
	summary, err := s.Run(context.Background(), Options{Resume: true})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.SkippedEntities)
	assert.Equal(t, 1, summary.NewEntities)
	assert.Equal(t, 2, summary.TotalScraped)
	assert.NoDirExists(t, filepath.Join(cfg.Output.BaseDirectory, "cat_111"))
	assert.FileExists(t, filepath.Join(cfg.Output.BaseDirectory, "cat_222", "image_1.jpg"))
}

func TestRunThrottlesListingCalls(t *testing.T) {
	server := fosterSite()
	defer server.Close()

	cfg := testScrapeConfig(t, server.URL)
	cfg.HTTP.ListingBurst = 1
	cfg.HTTP.ListingRefillPeriod = 30 * time.Millisecond

	s, err := New(cfg)
	require.NoError(t, err)

	// Two listing calls with a burst of one: the second waits for a refill
	start := time.Now()
	summary, err := s.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.NewEntities)
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond, "second listing call should wait for a token refill")
}

func TestScrapeEntitySavesProgress(t *testing.T) {
	server := fosterSite()
	defer server.Close()

	cfg := testScrapeConfig(t, server.URL)
	s, err := New(cfg)
	require.NoError(t, err)

	listed := listedEntity{
		id:        "111",
		url:       server.URL + "/foster/111/",
		name:      "Kuro",
		mainImage: server.URL + "/img/111_main.jpg",
		caption:   "shy boy",
	}
	require.NoError(t, s.scrapeEntity(context.Background(), listed, &Summary{}))

	// No page-level save has happened yet; the file must already reflect
	// the completed entity.
	fresh := progress.NewTracker(cfg.Output.ProgressFile, nil)
	require.NoError(t, fresh.Load())
	assert.True(t, fresh.IsDone("111"))
}

func TestRunForceRestartRedownloadsNothing(t *testing.T) {
	server := fosterSite()
	defer server.Close()

	cfg := testScrapeConfig(t, server.URL)
	s, err := New(cfg)
	require.NoError(t, err)

	_, err = s.Run(context.Background(), Options{})
	require.NoError(t, err)

	restarted, err := New(cfg)
	require.NoError(t, err)
	summary, err := restarted.Run(context.Background(), Options{ForceRestart: true})
	require.NoError(t, err)

	// Entities are rescraped but images already on disk are skipped
	assert.Equal(t, 2, summary.NewEntities)
	assert.Equal(t, 0, summary.ImagesDownloaded)
}

func TestRunStopsAtTargetEntityCount(t *testing.T) {
	server := fosterSite()
	defer server.Close()

	cfg := testScrapeConfig(t, server.URL)
	cfg.Scrape.TargetEntities = 1

	s, err := New(cfg)
	require.NoError(t, err)
	summary, err := s.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.NewEntities)
	assert.Equal(t, 1, summary.TotalScraped)
}

func TestRunFallsBackToHTMLListing(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/foster/ajax/ajax_getFosterList.php", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/foster/cat/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("p") == "1" {
			w.Write([]byte(`<html><body><a class="catlist_tit" href="/foster/333/">Tama</a></body></html>`))
			return
		}
		w.Write([]byte(`<html><body><p>no more cats</p></body></html>`))
	})
	mux.HandleFunc("/foster/333/", profileHandler("Tama", "/img/foster/333_1.jpg"))
	mux.HandleFunc("/img/", imageHandler)
	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := testScrapeConfig(t, server.URL)
	cfg.Site.ListingPatterns = []string{"%s/foster/cat/?p=%d"}

	s, err := New(cfg)
	require.NoError(t, err)
	summary, err := s.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.NewEntities)
	assert.FileExists(t, filepath.Join(cfg.Output.BaseDirectory, "cat_333", "image_1.jpg"))
}

func TestRunKeepsListingDataWhenProfileFails(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/foster/ajax/ajax_getFosterList.php", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(r.PostForm.Get("search_cond"), `"p":"1"`) {
			w.Write([]byte(`{
				"foster_list": [
					{"cat_id": 444, "cat_name": "Mike", "catch_copy": "sleepy", "url": "/foster/444/", "image_1": "/img/444_main.jpg"}
				],
				"page": {"now": 1, "all_page": 1, "rows": 1}
			}`))
			return
		}
		w.Write([]byte(`{"foster_list": [], "page": {"now": 2, "all_page": 1, "rows": 1}}`))
	})
	// Profile page is gone, only the listing data survives
	mux.HandleFunc("/foster/444/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/img/", imageHandler)
	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := testScrapeConfig(t, server.URL)
	s, err := New(cfg)
	require.NoError(t, err)

	summary, err := s.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.NewEntities)
	assert.Equal(t, 0, summary.FailedEntities)
	assert.Equal(t, 1, summary.ImagesDownloaded)

	dir := filepath.Join(cfg.Output.BaseDirectory, "cat_444")
	entity, err := storage.ReadEntityInfo(dir)
	require.NoError(t, err)
	assert.Equal(t, "Mike", entity.Name)
	require.Len(t, entity.Images, 1)
	assert.FileExists(t, filepath.Join(dir, "image_1.jpg"))
}

func TestRunMarksFailedListingPages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := testScrapeConfig(t, server.URL)
	cfg.Scrape.MaxPages = 2
	cfg.Site.ListingPatterns = []string{"%s/foster/cat/?p=%d"}

	s, err := New(cfg)
	require.NoError(t, err)

	summary, err := s.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 0, summary.NewEntities)
	assert.Equal(t, 0, summary.PagesProcessed)
	assert.Equal(t, 2, s.Tracker().FailedPageCount())
}
