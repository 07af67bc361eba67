// Package nekojirushi talks HTTP to the adoption site: listing pages,
// the foster-list AJAX endpoint, profile pages and image downloads.
package nekojirushi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	errs "nekoscraper/pkg/errors"
	"nekoscraper/pkg/logger"
	"nekoscraper/pkg/retry"
)

// Client is the HTTP client for the adoption site
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	baseURL    string
	retrier    *retry.Retrier
	logger     logger.Logger
}

// Options configures a Client
type Options struct {
	BaseURL    string
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	Logger     logger.Logger
}

// NewClient creates a site client with browser-like headers and a bounded
// linear-backoff retry policy.
func NewClient(opts Options) *Client {
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 2 * time.Second
	}

	headers := map[string]string{
		"User-Agent":      opts.UserAgent,
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.5",
		"Accept-Encoding": "gzip, deflate",
		"Connection":      "keep-alive",
	}

	return &Client{
		httpClient: &http.Client{Timeout: opts.Timeout},
		headers:    headers,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		retrier:    retry.NewHTTPRetrier(opts.MaxRetries, opts.RetryDelay, log),
		logger:     log,
	}
}

// BaseURL returns the configured site root
func (c *Client) BaseURL() string { return c.baseURL }

// SetHeader sets a custom header for all subsequent requests
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// doRequest performs a single HTTP request with the configured headers
func (c *Client) doRequest(req *http.Request) (*http.Response, error) {
	for key, value := range c.headers {
		if req.Header.Get(key) == "" {
			req.Header.Set(key, value)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		c.logger.WarnWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      req.URL.String(),
			"error":    err.Error(),
			"duration": duration.String(),
		})
		return nil, errs.New(errs.ErrorTypeNetwork, 0, "network error: %v", err)
	}

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"method":   req.Method,
		"url":      req.URL.String(),
		"status":   resp.StatusCode,
		"duration": duration.String(),
	})

	return resp, nil
}

// checkResponseStatus converts non-200 statuses into typed errors
func (c *Client) checkResponseStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return errs.New(errs.ErrorTypeNotFound, resp.StatusCode, "resource not found")
	case resp.StatusCode == http.StatusTooManyRequests:
		return errs.New(errs.ErrorTypeRateLimit, resp.StatusCode, "rate limited")
	case resp.StatusCode >= 500:
		return errs.New(errs.ErrorTypeServerError, resp.StatusCode, "server returned status %d", resp.StatusCode)
	default:
		return errs.New(errs.ErrorTypeUnknown, resp.StatusCode, "unexpected status %d", resp.StatusCode)
	}
}

// fetch runs one request through the retry policy and returns the body
func (c *Client) fetch(ctx context.Context, build func() (*http.Request, error)) ([]byte, string, error) {
	var body []byte
	var contentType string

	op := func() error {
		req, err := build()
		if err != nil {
			return err
		}
		req = req.WithContext(ctx)

		resp, err := c.doRequest(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if err := c.checkResponseStatus(resp); err != nil {
			return err
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return errs.New(errs.ErrorTypeNetwork, resp.StatusCode, "failed to read response body: %v", err)
		}
		contentType = resp.Header.Get("Content-Type")
		return nil
	}

	if err := c.retrier.WithContext(ctx).Do(op); err != nil {
		return nil, "", err
	}
	return body, contentType, nil
}

// GetPage fetches a page body by URL
func (c *Client) GetPage(ctx context.Context, pageURL string) ([]byte, error) {
	body, _, err := c.fetch(ctx, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, pageURL, nil)
		if err != nil {
			return nil, errs.New(errs.ErrorTypeUnknown, 0, "failed to create request: %v", err)
		}
		return req, nil
	})
	return body, err
}

// GetImage fetches image bytes, returning the body and the response
// content type (used to derive a file extension when the URL has none).
func (c *Client) GetImage(ctx context.Context, imageURL string) ([]byte, string, error) {
	return c.fetch(ctx, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, imageURL, nil)
		if err != nil {
			return nil, errs.New(errs.ErrorTypeUnknown, 0, "failed to create request: %v", err)
		}
		req.Header.Set("Accept", "image/*,*/*;q=0.8")
		return req, nil
	})
}

// FosterList queries the foster-list AJAX endpoint for one listing page.
// A malformed JSON response is a parsing error the caller treats as
// "nothing found on this page".
func (c *Client) FosterList(ctx context.Context, endpoint string, page int) (*FosterListResponse, error) {
	form, err := FosterListForm(NewSearchCond(page))
	if err != nil {
		return nil, err
	}

	apiURL := c.baseURL + endpoint
	body, _, err := c.fetch(ctx, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, apiURL, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, errs.New(errs.ErrorTypeUnknown, 0, "failed to create request: %v", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
		req.Header.Set("X-Requested-With", "XMLHttpRequest")
		req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
		req.Header.Set("Referer", fmt.Sprintf("%s/foster/cat/contents/?p=%d", c.baseURL, page))
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	var result FosterListResponse
	if err := json.Unmarshal(body, &result); err != nil {
		preview := string(body)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		c.logger.WarnWithFields("failed to parse foster list JSON", map[string]interface{}{
			"page":         page,
			"error":        err.Error(),
			"body_preview": preview,
		})
		return nil, errs.New(errs.ErrorTypeParsing, 0, "failed to parse foster list JSON: %v", err)
	}

	return &result, nil
}

// ResolveURL absolutizes a possibly relative URL against the site root
func (c *Client) ResolveURL(ref string) string {
	if ref == "" {
		return ""
	}
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return ref
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(parsed).String()
}
