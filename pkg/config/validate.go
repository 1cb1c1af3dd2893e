package config

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Sriram-PR/catalog-scraper/pkg/models"
	"github.com/Sriram-PR/catalog-scraper/pkg/utils"
)

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	catalogWarnings, err := c.Catalog.Validate()
	warnings = append(warnings, catalogWarnings...)
	if err != nil {
		return warnings, err
	}

	// Files
	if c.FiltersFile == "" {
		warnings = append(warnings, "filters_file is empty, defaulting to 'filters.html'")
		c.FiltersFile = "filters.html"
	}
	if c.CheckpointFile == "" {
		warnings = append(warnings, "checkpoint_file is empty, defaulting to 'entertainment.json'")
		c.CheckpointFile = "entertainment.json"
	}
	if c.ExportFile == "" {
		warnings = append(warnings, "export_file is empty, defaulting to 'entertainment.csv'")
		c.ExportFile = "entertainment.csv"
	}
	if c.CheckpointFile == c.ExportFile {
		return warnings, fmt.Errorf("%w: checkpoint_file and export_file must differ (%q)",
			utils.ErrConfigValidation, c.CheckpointFile)
	}

	// CSV delimiter
	if c.CSVDelimiter == "" {
		c.CSVDelimiter = ","
	} else if utf8.RuneCountInString(c.CSVDelimiter) != 1 {
		return warnings, fmt.Errorf("%w: csv_delimiter must be a single character, got %q",
			utils.ErrConfigValidation, c.CSVDelimiter)
	} else if strings.ContainsAny(c.CSVDelimiter, "\"\r\n") {
		return warnings, fmt.Errorf("%w: csv_delimiter %q is not usable", utils.ErrConfigValidation, c.CSVDelimiter)
	}

	// StateDir
	if c.StateDir == "" {
		warnings = append(warnings, "state_dir is empty, defaulting to './crawler_state'")
		c.StateDir = "./crawler_state"
	}

	// Headers
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Accept == "" {
		c.Accept = DefaultAccept
	}

	// RequestDelay
	if c.RequestDelay < 0 {
		warnings = append(warnings, "request_delay cannot be negative, setting to 0 (no throttling)")
		c.RequestDelay = 0
	}

	// MaxRetries
	if c.MaxRetries < 0 {
		warnings = append(warnings, "max_retries cannot be negative, setting to 0")
		c.MaxRetries = 0
	}
	if c.MaxRetries == 0 && c.InitialRetryDelay == 0 {
		c.MaxRetries = 2
	}

	// Retry delays (only if retries enabled)
	if c.MaxRetries > 0 {
		if c.InitialRetryDelay <= 0 {
			c.InitialRetryDelay = 500 * time.Millisecond
		}
		if c.MaxRetryDelay <= 0 {
			c.MaxRetryDelay = c.InitialRetryDelay
		}
	}

	// InitialRetryDelay > MaxRetryDelay check
	if c.InitialRetryDelay > c.MaxRetryDelay && c.MaxRetryDelay > 0 {
		warnings = append(warnings, fmt.Sprintf(
			"initial_retry_delay (%v) > max_retry_delay (%v), using max_retry_delay for initial",
			c.InitialRetryDelay, c.MaxRetryDelay))
		c.InitialRetryDelay = c.MaxRetryDelay
	}

	// ListingRetries
	if c.ListingRetries < 0 {
		warnings = append(warnings, "listing_retries cannot be negative, setting to 0")
		c.ListingRetries = 0
	} else if c.ListingRetries == 0 && c.RetryDelay == 0 {
		c.ListingRetries = 2
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 5 * time.Second
	}

	// GlobalCrawlTimeout
	if c.GlobalCrawlTimeout < 0 {
		warnings = append(warnings, "global_crawl_timeout cannot be negative, disabling timeout")
		c.GlobalCrawlTimeout = 0
	}

	// Journal skipping needs the journal
	if c.SkipCompletedPairs && !c.EnableJournal {
		warnings = append(warnings, "skip_completed_pairs requires the pair journal, enabling enable_journal")
		c.EnableJournal = true
	}

	// HTTPClientSettings defaults
	c.validateHTTPClientSettings()

	return warnings, nil
}

// validateHTTPClientSettings applies defaults to HTTP client settings.
func (c *AppConfig) validateHTTPClientSettings() {
	h := &c.HTTPClientSettings
	if h.Timeout <= 0 {
		h.Timeout = 5 * time.Second
	}
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 100
	}
	if h.MaxIdleConnsPerHost <= 0 {
		h.MaxIdleConnsPerHost = 2
	}
	if h.IdleConnTimeout <= 0 {
		h.IdleConnTimeout = 90 * time.Second
	}
	if h.TLSHandshakeTimeout <= 0 {
		h.TLSHandshakeTimeout = 10 * time.Second
	}
	if h.ExpectContinueTimeout <= 0 {
		h.ExpectContinueTimeout = 1 * time.Second
	}
	if h.DialerTimeout <= 0 {
		h.DialerTimeout = 15 * time.Second
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}
}

// Validate checks CatalogConfig fields and applies defaults.
// Partition IDs must be unique and the default partition must be one of them.
func (c *CatalogConfig) Validate() (warnings []string, err error) {
	if c.Scheme == "" {
		c.Scheme = "https"
	}
	if c.Host == "" {
		c.Host = "zoon.ru"
	}
	c.Host = strings.Trim(c.Host, "/")

	// SearchPath normalization: no leading slash, trailing slash
	c.SearchPath = strings.TrimLeft(c.SearchPath, "/")
	if c.SearchPath == "" {
		warnings = append(warnings, "catalog.search_path is empty, defaulting to 'entertainment/'")
		c.SearchPath = "entertainment/"
	} else if !strings.HasSuffix(c.SearchPath, "/") {
		c.SearchPath += "/"
	}

	if c.APIQuery == "" {
		c.APIQuery = "?action=listJson&type=service"
	} else if !strings.HasPrefix(c.APIQuery, "?") {
		c.APIQuery = "?" + c.APIQuery
	}

	if len(c.Partitions) == 0 {
		warnings = append(warnings, "catalog.partitions is empty, using the built-in city list")
		c.Partitions = make([]models.Partition, len(DefaultPartitions))
		copy(c.Partitions, DefaultPartitions)
	}
	seen := make(map[string]bool, len(c.Partitions))
	for i, p := range c.Partitions {
		if p.ID == "" {
			return warnings, fmt.Errorf("%w: partition #%d has no id", utils.ErrConfigValidation, i)
		}
		if strings.ContainsAny(p.ID, "./|") {
			return warnings, fmt.Errorf("%w: partition id %q contains a reserved character", utils.ErrConfigValidation, p.ID)
		}
		if seen[p.ID] {
			return warnings, fmt.Errorf("%w: duplicate partition id %q", utils.ErrConfigValidation, p.ID)
		}
		seen[p.ID] = true
		if p.City == "" || p.Region == "" {
			warnings = append(warnings, fmt.Sprintf("partition %q is missing a city or region label", p.ID))
		}
	}

	if c.DefaultPartition == "" {
		c.DefaultPartition = c.Partitions[0].ID
		warnings = append(warnings, fmt.Sprintf("catalog.default_partition is empty, defaulting to %q", c.DefaultPartition))
	} else if _, ok := c.PartitionByID(c.DefaultPartition); !ok {
		return warnings, fmt.Errorf("%w: default_partition %q is not a configured partition",
			utils.ErrConfigValidation, c.DefaultPartition)
	}

	if c.ItemsPerPage <= 0 {
		warnings = append(warnings, "catalog.items_per_page should be > 0, defaulting to 30")
		c.ItemsPerPage = 30
	}
	if c.PageLimit <= 0 {
		warnings = append(warnings, "catalog.page_limit should be > 0, defaulting to 8")
		c.PageLimit = 8
	}
	if c.MoreMarker == "" {
		c.MoreMarker = "Показать еще"
	}
	if c.ListingPayload == nil {
		c.ListingPayload = DefaultListingPayload()
	}
	if c.MaxPhotos < 0 {
		warnings = append(warnings, "catalog.max_photos cannot be negative, defaulting to 16")
	}
	if c.MaxPhotos <= 0 {
		c.MaxPhotos = 16
	}
	if c.SocialAnchor == "" {
		c.SocialAnchor = models.FieldHours
	}

	return warnings, nil
}
