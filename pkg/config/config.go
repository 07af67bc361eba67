package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the scraper and cleaners
type Config struct {
	// Site describes the target adoption site
	Site SiteConfig `yaml:"site" json:"site"`

	// HTTP settings shared by all fetches
	HTTP HTTPConfig `yaml:"http" json:"http"`

	// Scrape loop settings
	Scrape ScrapeConfig `yaml:"scrape" json:"scrape"`

	// Selectors used to pull data out of listing and profile pages
	Selectors SelectorConfig `yaml:"selectors" json:"selectors"`

	// Cleaning profiles (named, independently tunable)
	Cleaning CleaningConfig `yaml:"cleaning" json:"cleaning"`

	// Detector settings for the object-detection pass
	Detector DetectorConfig `yaml:"detector" json:"detector"`

	// Output settings
	Output OutputConfig `yaml:"output" json:"output"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// SiteConfig holds target-site specific configuration
type SiteConfig struct {
	BaseURL string `yaml:"base_url" json:"base_url"`

	// FosterListEndpoint is the AJAX endpoint returning paginated
	// profile listings as JSON.
	FosterListEndpoint string `yaml:"foster_list_endpoint" json:"foster_list_endpoint"`

	// ListingPatterns are printf-style URL patterns tried in order when
	// falling back to HTML listing pages. Each takes (base URL, page).
	ListingPatterns []string `yaml:"listing_patterns" json:"listing_patterns"`

	UserAgent string `yaml:"user_agent" json:"user_agent"`
}

// HTTPConfig holds request-level settings
type HTTPConfig struct {
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
	MaxRetries int           `yaml:"max_retries" json:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay"`

	// Token bucket for the AJAX listing endpoint, which tolerates far
	// fewer calls than static pages.
	ListingBurst        int           `yaml:"listing_burst" json:"listing_burst"`
	ListingRefillPeriod time.Duration `yaml:"listing_refill_period" json:"listing_refill_period"`
}

// ScrapeConfig holds scrape loop settings
type ScrapeConfig struct {
	MaxPages       int `yaml:"max_pages" json:"max_pages"`
	TargetEntities int `yaml:"target_entities" json:"target_entities"`

	// Politeness delays. Actual delay is uniform between min and max.
	PageDelayMin  time.Duration `yaml:"page_delay_min" json:"page_delay_min"`
	PageDelayMax  time.Duration `yaml:"page_delay_max" json:"page_delay_max"`
	ImageDelayMin time.Duration `yaml:"image_delay_min" json:"image_delay_min"`
	ImageDelayMax time.Duration `yaml:"image_delay_max" json:"image_delay_max"`
}

// SelectorConfig holds the ordered selector chains. Each chain is tried
// in sequence and the first selector with a non-empty match set wins.
type SelectorConfig struct {
	EntityLinks []string            `yaml:"entity_links" json:"entity_links"`
	Names       []string            `yaml:"names" json:"names"`
	Images      []string            `yaml:"images" json:"images"`
	Details     map[string][]string `yaml:"details" json:"details"`

	// ExcludeSubstrings filters image URLs pointing at site chrome
	ExcludeSubstrings []string `yaml:"exclude_substrings" json:"exclude_substrings"`

	// FallbackExtension is used when neither the URL path nor the
	// response content type yields an image extension.
	FallbackExtension string `yaml:"fallback_extension" json:"fallback_extension"`
}

// CleaningConfig holds the named cleaning profiles
type CleaningConfig struct {
	Profiles map[string]CleaningProfile `yaml:"profiles" json:"profiles"`
}

// CleaningProfile is one self-contained set of removal criteria
type CleaningProfile struct {
	Name string `yaml:"name" json:"name"`

	MinFileSize     int64   `yaml:"min_file_size" json:"min_file_size"`
	MaxFileSize     int64   `yaml:"max_file_size" json:"max_file_size"`
	SuspiciousSizes []int64 `yaml:"suspicious_sizes" json:"suspicious_sizes"`

	// FilenameDenylist substrings mark site chrome; empty disables the check
	FilenameDenylist []string `yaml:"filename_denylist" json:"filename_denylist"`

	MinWidth  int `yaml:"min_width" json:"min_width"`
	MinHeight int `yaml:"min_height" json:"min_height"`
	MaxWidth  int `yaml:"max_width" json:"max_width"`
	MaxHeight int `yaml:"max_height" json:"max_height"`

	MinAspectRatio float64 `yaml:"min_aspect_ratio" json:"min_aspect_ratio"`
	MaxAspectRatio float64 `yaml:"max_aspect_ratio" json:"max_aspect_ratio"`

	// MostlyTransparentAlphaMax rejects alpha images whose maximum
	// alpha value is below this threshold.
	MostlyTransparentAlphaMax uint8 `yaml:"mostly_transparent_alpha_max" json:"mostly_transparent_alpha_max"`

	// UniformColorFraction rejects opaque images where one color covers
	// more than this fraction of sampled pixels; 0 disables the check.
	UniformColorFraction float64 `yaml:"uniform_color_fraction" json:"uniform_color_fraction"`

	// RemoveDuplicates enables the dataset-wide content-hash dedup pass
	RemoveDuplicates bool `yaml:"remove_duplicates" json:"remove_duplicates"`
}

// DetectorConfig holds object-detection pass settings
type DetectorConfig struct {
	Endpoint            string        `yaml:"endpoint" json:"endpoint"`
	ConfidenceThreshold float64       `yaml:"confidence_threshold" json:"confidence_threshold"`
	TargetClassID       int           `yaml:"target_class_id" json:"target_class_id"`
	Timeout             time.Duration `yaml:"timeout" json:"timeout"`
	MaxRetries          int           `yaml:"max_retries" json:"max_retries"`
}

// OutputConfig holds output directory configuration
type OutputConfig struct {
	BaseDirectory string `yaml:"base_directory" json:"base_directory"`
	ProgressFile  string `yaml:"progress_file" json:"progress_file"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			BaseURL:            "https://www.neko-jirushi.com",
			FosterListEndpoint: "/foster/ajax/ajax_getFosterList.php",
			ListingPatterns: []string{
				"%s/foster/cat/?p=%d",
				"%s/foster/cat?p=%d",
				"%s/cat/foster/?p=%d",
				"%s/cats/?p=%d",
			},
			UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		},
		HTTP: HTTPConfig{
			Timeout:             30 * time.Second,
			MaxRetries:          3,
			RetryDelay:          2 * time.Second,
			ListingBurst:        10,
			ListingRefillPeriod: time.Minute,
		},
		Scrape: ScrapeConfig{
			MaxPages:       50,
			TargetEntities: 1000,
			PageDelayMin:   3 * time.Second,
			PageDelayMax:   7 * time.Second,
			ImageDelayMin:  500 * time.Millisecond,
			ImageDelayMax:  1500 * time.Millisecond,
		},
		Selectors: DefaultSelectors(),
		Cleaning: CleaningConfig{
			Profiles: map[string]CleaningProfile{
				"standard":   StandardCleaningProfile(),
				"aggressive": AggressiveCleaningProfile(),
			},
		},
		Detector: DetectorConfig{
			Endpoint:            "http://127.0.0.1:8650",
			ConfidenceThreshold: 0.3,
			TargetClassID:       CatClassID,
			Timeout:             60 * time.Second,
			MaxRetries:          2,
		},
		Output: OutputConfig{
			BaseDirectory: "scraped_cats",
			ProgressFile:  "scraper_progress.json",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if baseURL := os.Getenv("NEKOSCRAPER_BASE_URL"); baseURL != "" {
		c.Site.BaseURL = baseURL
	}
	if outputDir := os.Getenv("NEKOSCRAPER_OUTPUT_DIR"); outputDir != "" {
		c.Output.BaseDirectory = outputDir
	}
	if progressFile := os.Getenv("NEKOSCRAPER_PROGRESS_FILE"); progressFile != "" {
		c.Output.ProgressFile = progressFile
	}
	if endpoint := os.Getenv("NEKOSCRAPER_DETECTOR_ENDPOINT"); endpoint != "" {
		c.Detector.Endpoint = endpoint
	}
	if logLevel := os.Getenv("NEKOSCRAPER_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
	if userAgent := os.Getenv("NEKOSCRAPER_USER_AGENT"); userAgent != "" {
		c.Site.UserAgent = userAgent
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for a config file in standard locations
func (c *Config) findConfigFile() string {
	locations := []string{
		".nekoscraper.yaml",
		".nekoscraper.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "nekoscraper", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".nekoscraper.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Profile returns the named cleaning profile
func (c *Config) Profile(name string) (CleaningProfile, error) {
	profile, ok := c.Cleaning.Profiles[name]
	if !ok {
		known := make([]string, 0, len(c.Cleaning.Profiles))
		for k := range c.Cleaning.Profiles {
			known = append(known, k)
		}
		return CleaningProfile{}, fmt.Errorf("unknown cleaning profile %q (known: %s)", name, strings.Join(known, ", "))
	}
	return profile, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Site.BaseURL == "" {
		errs = append(errs, errors.New("site base URL is required"))
	}
	if !strings.HasPrefix(c.Site.BaseURL, "http://") && !strings.HasPrefix(c.Site.BaseURL, "https://") {
		errs = append(errs, errors.New("site base URL must be absolute"))
	}
	if c.HTTP.Timeout <= 0 {
		errs = append(errs, errors.New("HTTP timeout must be positive"))
	}
	if c.HTTP.MaxRetries < 0 {
		errs = append(errs, errors.New("max retries cannot be negative"))
	}
	if c.HTTP.ListingBurst <= 0 {
		errs = append(errs, errors.New("listing burst must be positive"))
	}
	if c.HTTP.ListingRefillPeriod <= 0 {
		errs = append(errs, errors.New("listing refill period must be positive"))
	}
	if c.Scrape.MaxPages <= 0 {
		errs = append(errs, errors.New("max pages must be positive"))
	}
	if c.Scrape.PageDelayMin > c.Scrape.PageDelayMax {
		errs = append(errs, errors.New("page delay min must not exceed max"))
	}
	if c.Output.BaseDirectory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	if len(c.Selectors.EntityLinks) == 0 {
		errs = append(errs, errors.New("at least one entity link selector is required"))
	}
	if len(c.Selectors.Images) == 0 {
		errs = append(errs, errors.New("at least one image selector is required"))
	}

	for name, profile := range c.Cleaning.Profiles {
		if profile.MinFileSize < 0 || profile.MaxFileSize <= profile.MinFileSize {
			errs = append(errs, fmt.Errorf("profile %q: file size bounds invalid", name))
		}
		if profile.MinWidth <= 0 || profile.MinHeight <= 0 {
			errs = append(errs, fmt.Errorf("profile %q: minimum dimensions must be positive", name))
		}
		if profile.MinAspectRatio <= 0 || profile.MaxAspectRatio <= profile.MinAspectRatio {
			errs = append(errs, fmt.Errorf("profile %q: aspect ratio band invalid", name))
		}
	}

	if c.Detector.ConfidenceThreshold < 0 || c.Detector.ConfidenceThreshold > 1 {
		errs = append(errs, errors.New("detector confidence threshold must be in [0,1]"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// MergeCommandLineFlags merges command line flag values into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if baseURL, ok := flags["base-url"].(string); ok && baseURL != "" {
		c.Site.BaseURL = baseURL
	}
	if outputDir, ok := flags["output"].(string); ok && outputDir != "" {
		c.Output.BaseDirectory = outputDir
	}
	if progressFile, ok := flags["progress-file"].(string); ok && progressFile != "" {
		c.Output.ProgressFile = progressFile
	}
	if maxPages, ok := flags["max-pages"].(int); ok && maxPages > 0 {
		c.Scrape.MaxPages = maxPages
	}
	if target, ok := flags["target"].(int); ok && target > 0 {
		c.Scrape.TargetEntities = target
	}
	if endpoint, ok := flags["detector-endpoint"].(string); ok && endpoint != "" {
		c.Detector.Endpoint = endpoint
	}
	if confidence, ok := flags["confidence"].(float64); ok && confidence > 0 {
		c.Detector.ConfidenceThreshold = confidence
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Load loads configuration from all sources with proper precedence.
// Precedence order: flags > environment > .env file > config file > defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".nekoscraper.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
