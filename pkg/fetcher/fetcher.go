// Package fetcher turns listing and profile page bodies into entity URLs,
// metadata and image candidates, and downloads image bytes to disk.
package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"nekoscraper/pkg/config"
	errs "nekoscraper/pkg/errors"
	"nekoscraper/pkg/logger"
	"nekoscraper/pkg/models"
	"nekoscraper/pkg/nekojirushi"
)

// entityIDPattern extracts the numeric profile ID embedded in an entity
// URL path.
var entityIDPattern = regexp.MustCompile(`/(\d+)/?(?:$|[?#])`)

// Fetcher extracts structured data from site pages
type Fetcher struct {
	client    *nekojirushi.Client
	selectors config.SelectorConfig
	logger    logger.Logger
}

// New creates a Fetcher
func New(client *nekojirushi.Client, selectors config.SelectorConfig, log logger.Logger) *Fetcher {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Fetcher{
		client:    client,
		selectors: selectors,
		logger:    log,
	}
}

// EntityLinks extracts entity URLs from a listing page body. The selector
// chain is tried in order and the first non-empty match set wins. URLs are
// absolutized and deduplicated preserving first-discovery order.
func (f *Fetcher) EntityLinks(body []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, errs.New(errs.ErrorTypeParsing, 0, "failed to parse listing HTML: %v", err)
	}

	sel := firstMatch(doc, f.selectors.EntityLinks)
	if sel == nil {
		return nil, nil
	}

	seen := make(map[string]struct{})
	var links []string
	sel.Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		abs := normalizeURL(f.client.ResolveURL(strings.TrimSpace(href)))
		if abs == "" {
			return
		}
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		links = append(links, abs)
	})

	return links, nil
}

// normalizeURL strips fragments and trailing slashes so the same page
// discovered under two spellings deduplicates to one entry.
func normalizeURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	parsed.Fragment = ""
	parsed.Path = strings.TrimRight(parsed.Path, "/")
	return parsed.String()
}

// EntityID extracts the numeric profile ID from an entity URL
func EntityID(entityURL string) (string, error) {
	if m := entityIDPattern.FindStringSubmatch(entityURL); m != nil {
		return m[1], nil
	}
	// Fall back to the last run of digits anywhere in the path
	parsed, err := url.Parse(entityURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse entity URL: %w", err)
	}
	digits := regexp.MustCompile(`(\d+)`).FindAllString(parsed.Path, -1)
	if len(digits) == 0 {
		return "", fmt.Errorf("no numeric ID in entity URL %s", entityURL)
	}
	return digits[len(digits)-1], nil
}

// ParseEntity extracts an entity's metadata and image candidates from its
// profile page body.
func (f *Fetcher) ParseEntity(body []byte, entityURL string) (*models.Entity, error) {
	id, err := EntityID(entityURL)
	if err != nil {
		return nil, errs.New(errs.ErrorTypeParsing, 0, "%v", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, errs.New(errs.ErrorTypeParsing, 0, "failed to parse entity HTML: %v", err)
	}

	entity := &models.Entity{
		ID:      id,
		URL:     entityURL,
		Details: make(map[string]string),
	}

	entity.Name = firstText(doc, f.selectors.Names)
	if entity.Name == "" {
		entity.Name = strings.TrimSpace(doc.Find("title").First().Text())
	}

	for field, chain := range f.selectors.Details {
		if value := firstText(doc, chain); value != "" {
			entity.Details[field] = value
		}
	}

	entity.Images = f.imageCandidates(doc)
	if len(entity.Images) == 0 {
		// Not an error: some profiles genuinely carry no photos
		f.logger.WarnWithFields("no images found for entity", map[string]interface{}{
			"entity_id": id,
			"url":       entityURL,
		})
	}

	return entity, nil
}

// imageCandidates applies the image selector chain and filters out site
// chrome by URL substring.
func (f *Fetcher) imageCandidates(doc *goquery.Document) []models.ImageRef {
	sel := firstMatch(doc, f.selectors.Images)
	if sel == nil {
		return nil
	}

	seen := make(map[string]struct{})
	var images []models.ImageRef
	sel.Each(func(_ int, img *goquery.Selection) {
		src := imageSrc(img)
		if src == "" {
			return
		}
		abs := f.client.ResolveURL(src)
		if containsAny(abs, f.selectors.ExcludeSubstrings) {
			return
		}
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}

		alt, _ := img.Attr("alt")
		title, _ := img.Attr("title")
		images = append(images, models.ImageRef{
			URL:   abs,
			Alt:   strings.TrimSpace(alt),
			Title: strings.TrimSpace(title),
		})
	})

	return images
}

// PrependMainImage puts the listing's main image first unless it is
// already among the candidates.
func PrependMainImage(entity *models.Entity, mainURL, caption string) {
	if mainURL == "" {
		return
	}
	for _, img := range entity.Images {
		if img.URL == mainURL {
			return
		}
	}
	entity.Images = append([]models.ImageRef{{
		URL:   mainURL,
		Alt:   caption,
		Title: caption,
	}}, entity.Images...)
}

// FetchEntity downloads and parses one entity profile page
func (f *Fetcher) FetchEntity(ctx context.Context, entityURL string) (*models.Entity, error) {
	body, err := f.client.GetPage(ctx, entityURL)
	if err != nil {
		return nil, err
	}
	return f.ParseEntity(body, entityURL)
}
