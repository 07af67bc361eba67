// Package detector filters a scraped dataset through an object-detection
// inference service, keeping only images where the target class is
// detected above a confidence threshold.
package detector

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"nekoscraper/pkg/config"
	errs "nekoscraper/pkg/errors"
	"nekoscraper/pkg/logger"
)

// Detection is one detected object in an image
type Detection struct {
	ClassID    int        `json:"class_id"`
	ClassName  string     `json:"class_name"`
	Confidence float64    `json:"confidence"`
	Box        [4]float64 `json:"box"`
}

type detectResponse struct {
	Detections []Detection `json:"detections"`
}

type healthResponse struct {
	Status string `json:"status"`
}

// Client talks to the detection inference service over HTTP
type Client struct {
	http       *resty.Client
	cfg        config.DetectorConfig
	retryPause time.Duration
	logger     logger.Logger
}

// NewClient creates a detector client for the configured endpoint
func NewClient(cfg config.DetectorConfig, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(cfg.Endpoint).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")

	return &Client{
		http:       httpClient,
		cfg:        cfg,
		retryPause: 2 * time.Second,
		logger:     log.WithField("endpoint", cfg.Endpoint),
	}
}

// attempts returns the configured attempt count, at least two
func (c *Client) attempts() int {
	if c.cfg.MaxRetries <= 0 {
		return 2
	}
	return c.cfg.MaxRetries
}

// Health verifies the inference service is reachable and loaded. One
// retry after a short pause, then the error is returned for the caller to
// treat as fatal: running the filter against a dead service would remove
// every image.
func (c *Client) Health(ctx context.Context) error {
	attempts := c.attempts()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		var health healthResponse
		resp, err := c.http.R().
			SetContext(ctx).
			SetResult(&health).
			Get("/health")

		switch {
		case err != nil:
			lastErr = errs.New(errs.ErrorTypeDetector, 0, "detector health check failed: %v", err)
		case !resp.IsSuccess():
			lastErr = errs.New(errs.ErrorTypeDetector, resp.StatusCode(), "detector health check returned status %d", resp.StatusCode())
		case health.Status != "ok":
			lastErr = errs.New(errs.ErrorTypeDetector, resp.StatusCode(), "detector not ready: %s", health.Status)
		default:
			return nil
		}

		c.logger.WarnWithFields("detector health check failed", map[string]interface{}{
			"attempt": attempt,
			"error":   lastErr.Error(),
		})

		if attempt < attempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryPause):
			}
		}
	}

	return lastErr
}

// Detect runs inference on one image file and returns all detections.
// Transport failures and retryable statuses are retried up to the
// configured attempt count before the error is returned.
func (c *Client) Detect(ctx context.Context, imagePath string) ([]Detection, error) {
	attempts := c.attempts()

	var lastErr *errs.Error
	for attempt := 1; attempt <= attempts; attempt++ {
		detections, err := c.detectOnce(ctx, imagePath)
		if err == nil {
			return detections, nil
		}
		lastErr = err

		if !errs.IsRetryableStatusCode(err.Code) {
			break
		}
		c.logger.WarnWithFields("detection request failed", map[string]interface{}{
			"attempt": attempt,
			"path":    imagePath,
			"error":   err.Error(),
		})

		if attempt < attempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryPause):
			}
		}
	}

	return nil, lastErr
}

func (c *Client) detectOnce(ctx context.Context, imagePath string) ([]Detection, *errs.Error) {
	var result detectResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetFile("image", imagePath).
		SetResult(&result).
		Post("/detect")
	if err != nil {
		return nil, errs.New(errs.ErrorTypeDetector, 0, "detection request failed: %v", err)
	}
	if !resp.IsSuccess() {
		return nil, errs.New(errs.ErrorTypeDetector, resp.StatusCode(), "detection returned status %d", resp.StatusCode())
	}
	return result.Detections, nil
}

// TargetMatch returns the highest-confidence detection of the target
// class at or above the configured threshold, if any.
func (c *Client) TargetMatch(detections []Detection) (Detection, bool) {
	var best Detection
	found := false
	for _, d := range detections {
		if d.ClassID != c.cfg.TargetClassID || d.Confidence < c.cfg.ConfidenceThreshold {
			continue
		}
		if !found || d.Confidence > best.Confidence {
			best = d
			found = true
		}
	}
	return best, found
}

// Describe returns a short human-readable summary of the criteria
func (c *Client) Describe() string {
	return fmt.Sprintf("class %d at confidence >= %.2f", c.cfg.TargetClassID, c.cfg.ConfidenceThreshold)
}
