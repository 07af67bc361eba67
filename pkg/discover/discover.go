// Package discover crawls the target site looking for listing pages worth
// scraping: pages that link to entity profiles or carry pagination. Output
// is a ranked candidate list, used to keep the selector and URL-pattern
// configuration current when the site layout shifts.
package discover

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/gocolly/colly"
	"github.com/temoto/robotstxt"

	"nekoscraper/pkg/logger"
)

// profilePattern matches entity profile paths like /foster/123456/
var profilePattern = regexp.MustCompile(`/foster/\d+/?`)

// sectionKeywords mark links worth following when hunting for listings
var sectionKeywords = []string{"foster", "cat", "adopt", "list", "search"}

// Options configures a discovery crawl
type Options struct {
	BaseURL   string
	UserAgent string

	// MaxDepth bounds link-following from the start page
	MaxDepth int

	// MaxPages bounds the total number of pages visited
	MaxPages int

	Delay       time.Duration
	RandomDelay time.Duration

	Logger logger.Logger
}

// Candidate is one page that looks like an entity listing
type Candidate struct {
	URL            string `json:"url"`
	EntityProfiles int    `json:"entity_profiles"`
	HasPagination  bool   `json:"has_pagination"`
}

// Result summarizes a discovery crawl
type Result struct {
	BaseURL          string      `json:"base_url"`
	ExploredPages    int         `json:"explored_pages"`
	RobotsDisallowed int         `json:"robots_disallowed"`
	Candidates       []Candidate `json:"candidates"`
	EntityURLs       []string    `json:"entity_urls"`
}

// Write serializes the result to path as indented JSON
func (r *Result) Write(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal discovery result: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write discovery result: %w", err)
	}
	return nil
}

// Explorer crawls the site within depth, page and robots.txt bounds
type Explorer struct {
	opts   Options
	logger logger.Logger
	robots *robotstxt.Group
}

// New creates an Explorer for the configured site
func New(opts Options) (*Explorer, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 2
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 50
	}
	if opts.Delay <= 0 {
		opts.Delay = time.Second
	}
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	return &Explorer{opts: opts, logger: log}, nil
}

// loadRobots fetches and parses robots.txt. A missing or broken robots.txt
// is treated as allow-all, matching common crawler behavior.
func (e *Explorer) loadRobots(ctx context.Context) {
	robotsURL := strings.TrimRight(e.opts.BaseURL, "/") + "/robots.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return
	}
	req.Header.Set("User-Agent", e.opts.UserAgent)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		e.logger.WithError(err).Warn("failed to fetch robots.txt, assuming allow-all")
		return
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		e.logger.WithError(err).Warn("failed to parse robots.txt, assuming allow-all")
		return
	}
	e.robots = data.FindGroup(e.opts.UserAgent)
}

// allowed checks a path against robots.txt
func (e *Explorer) allowed(path string) bool {
	if e.robots == nil {
		return true
	}
	return e.robots.Test(path)
}

// Run crawls from the site root and returns ranked listing candidates
func (e *Explorer) Run(ctx context.Context) (*Result, error) {
	base, err := url.Parse(e.opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	e.loadRobots(ctx)

	result := &Result{BaseURL: e.opts.BaseURL}
	entitySeen := make(map[string]struct{})

	c := colly.NewCollector(
		colly.AllowedDomains(base.Host),
		colly.UserAgent(e.opts.UserAgent),
		colly.MaxDepth(e.opts.MaxDepth),
	)

	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		Delay:       e.opts.Delay,
		RandomDelay: e.opts.RandomDelay,
	}); err != nil {
		return nil, fmt.Errorf("failed to configure crawl limits: %w", err)
	}

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		if result.ExploredPages >= e.opts.MaxPages {
			r.Abort()
			return
		}
		if !e.allowed(r.URL.Path) {
			result.RobotsDisallowed++
			e.logger.WithField("url", r.URL.String()).Debug("skipping robots.txt disallowed URL")
			r.Abort()
		}
	})

	c.OnHTML("html", func(h *colly.HTMLElement) {
		result.ExploredPages++
		pageURL := h.Request.URL.String()

		profiles := 0
		pagination := false

		h.ForEach("a[href]", func(_ int, a *colly.HTMLElement) {
			href := a.Attr("href")
			abs := a.Request.AbsoluteURL(href)
			if abs == "" || !strings.Contains(abs, base.Host) {
				return
			}

			if profilePattern.MatchString(abs) {
				profiles++
				if _, dup := entitySeen[abs]; !dup {
					entitySeen[abs] = struct{}{}
					result.EntityURLs = append(result.EntityURLs, abs)
				}
				return
			}

			if strings.Contains(abs, "p=") || strings.Contains(abs, "page=") {
				pagination = true
			}

			lower := strings.ToLower(abs)
			for _, kw := range sectionKeywords {
				if strings.Contains(lower, kw) {
					// Visit errors here are bounds being enforced, not failures
					_ = h.Request.Visit(abs)
					return
				}
			}
		})

		if profiles > 0 || pagination {
			result.Candidates = append(result.Candidates, Candidate{
				URL:            pageURL,
				EntityProfiles: profiles,
				HasPagination:  pagination,
			})
			e.logger.InfoWithFields("listing candidate found", map[string]interface{}{
				"url":        pageURL,
				"profiles":   profiles,
				"pagination": pagination,
			})
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		e.logger.WarnWithFields("crawl request failed", map[string]interface{}{
			"url":    r.Request.URL.String(),
			"status": r.StatusCode,
			"error":  err.Error(),
		})
	})

	if err := c.Visit(e.opts.BaseURL); err != nil {
		return nil, fmt.Errorf("crawl failed to start: %w", err)
	}
	c.Wait()

	if err := ctx.Err(); err != nil {
		return result, err
	}

	// Pages with the most profile links first
	sort.SliceStable(result.Candidates, func(i, j int) bool {
		return result.Candidates[i].EntityProfiles > result.Candidates[j].EntityProfiles
	})
	sort.Strings(result.EntityURLs)

	e.logger.InfoWithFields("discovery finished", map[string]interface{}{
		"explored_pages": result.ExploredPages,
		"candidates":     len(result.Candidates),
		"entity_urls":    len(result.EntityURLs),
	})

	return result, nil
}
