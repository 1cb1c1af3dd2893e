package config

import (
	"strings"
	"testing"
	"time"

	"github.com/Sriram-PR/catalog-scraper/pkg/models"
	"github.com/Sriram-PR/catalog-scraper/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppConfig_Validate_Defaults(t *testing.T) {
	cfg := AppConfig{} // Zero value
	warnings, err := cfg.Validate()

	require.NoError(t, err)

	// Catalog defaults
	assert.Equal(t, "https", cfg.Catalog.Scheme)
	assert.Equal(t, "zoon.ru", cfg.Catalog.Host)
	assert.Equal(t, "entertainment/", cfg.Catalog.SearchPath)
	assert.Equal(t, "?action=listJson&type=service", cfg.Catalog.APIQuery)
	assert.Len(t, cfg.Catalog.Partitions, 12)
	assert.Equal(t, "msk", cfg.Catalog.DefaultPartition)
	assert.Equal(t, 30, cfg.Catalog.ItemsPerPage)
	assert.Equal(t, 8, cfg.Catalog.PageLimit)
	assert.Equal(t, "Показать еще", cfg.Catalog.MoreMarker)
	assert.Equal(t, 16, cfg.Catalog.MaxPhotos)
	assert.Equal(t, models.FieldHours, cfg.Catalog.SocialAnchor)
	assert.Equal(t, map[string]string{"need[]": "items", "search_query_form": "1"}, cfg.Catalog.ListingPayload)

	// Files and fetch defaults
	assert.Equal(t, "filters.html", cfg.FiltersFile)
	assert.Equal(t, "entertainment.json", cfg.CheckpointFile)
	assert.Equal(t, "entertainment.csv", cfg.ExportFile)
	assert.Equal(t, ",", cfg.CSVDelimiter)
	assert.Equal(t, "./crawler_state", cfg.StateDir)
	assert.Equal(t, DefaultUserAgent, cfg.UserAgent)
	assert.Equal(t, "*/*", cfg.Accept)
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.InitialRetryDelay)
	assert.Equal(t, 500*time.Millisecond, cfg.MaxRetryDelay)
	assert.Equal(t, 2, cfg.ListingRetries)
	assert.Equal(t, 5*time.Second, cfg.RetryDelay)

	// Check HTTP client defaults
	assert.Equal(t, 5*time.Second, cfg.HTTPClientSettings.Timeout)
	assert.Equal(t, 100, cfg.HTTPClientSettings.MaxIdleConns)
	assert.Equal(t, 2, cfg.HTTPClientSettings.MaxIdleConnsPerHost)
	assert.Equal(t, 90*time.Second, cfg.HTTPClientSettings.IdleConnTimeout)
	assert.Equal(t, 10*time.Second, cfg.HTTPClientSettings.TLSHandshakeTimeout)
	assert.Equal(t, 1*time.Second, cfg.HTTPClientSettings.ExpectContinueTimeout)
	assert.Equal(t, 15*time.Second, cfg.HTTPClientSettings.DialerTimeout)
	assert.Equal(t, 30*time.Second, cfg.HTTPClientSettings.DialerKeepAlive)

	// Check warnings generated
	assert.True(t, containsWarning(warnings, "catalog.partitions is empty"))
	assert.True(t, containsWarning(warnings, "catalog.items_per_page should be > 0"))
	assert.True(t, containsWarning(warnings, "catalog.page_limit should be > 0"))
	assert.True(t, containsWarning(warnings, "filters_file is empty"))
	assert.True(t, containsWarning(warnings, "state_dir is empty"))
}

func TestDefaultAppConfig_IsValidAndQuiet(t *testing.T) {
	cfg := DefaultAppConfig()
	warnings, err := cfg.Validate()

	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, 500*time.Millisecond, cfg.RequestDelay)
	assert.Equal(t, "msk", cfg.Catalog.Partitions[0].ID)
	assert.Equal(t, "krasnoyarsk", cfg.Catalog.Partitions[11].ID)
}

func TestDefaultAppConfig_DoesNotShareSlices(t *testing.T) {
	a := DefaultAppConfig()
	a.Catalog.Partitions[0].City = "changed"
	a.Catalog.ListingPayload["extra"] = "1"

	b := DefaultAppConfig()
	assert.Equal(t, "Москва", b.Catalog.Partitions[0].City)
	assert.Equal(t, "Москва", DefaultPartitions[0].City)
	assert.NotContains(t, b.Catalog.ListingPayload, "extra")
}

func TestAppConfig_Validate_NegativeValues(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(*AppConfig)
		wantWarning string
		check       func(*testing.T, *AppConfig)
	}{
		{
			name: "negative max_retries",
			setup: func(c *AppConfig) {
				c.MaxRetries = -1
				c.InitialRetryDelay = 1 * time.Second // Prevent the default of 2 retries
			},
			wantWarning: "max_retries cannot be negative",
			check: func(t *testing.T, c *AppConfig) {
				assert.Equal(t, 0, c.MaxRetries)
			},
		},
		{
			name:        "negative request_delay",
			setup:       func(c *AppConfig) { c.RequestDelay = -time.Second },
			wantWarning: "request_delay cannot be negative",
			check: func(t *testing.T, c *AppConfig) {
				assert.Equal(t, time.Duration(0), c.RequestDelay)
			},
		},
		{
			name:        "negative listing_retries",
			setup:       func(c *AppConfig) { c.ListingRetries = -3 },
			wantWarning: "listing_retries cannot be negative",
			check: func(t *testing.T, c *AppConfig) {
				assert.Equal(t, 0, c.ListingRetries)
			},
		},
		{
			name:        "negative global_crawl_timeout",
			setup:       func(c *AppConfig) { c.GlobalCrawlTimeout = -1 * time.Second },
			wantWarning: "global_crawl_timeout cannot be negative",
			check: func(t *testing.T, c *AppConfig) {
				assert.Equal(t, time.Duration(0), c.GlobalCrawlTimeout)
			},
		},
		{
			name:        "negative max_photos",
			setup:       func(c *AppConfig) { c.Catalog.MaxPhotos = -1 },
			wantWarning: "catalog.max_photos cannot be negative",
			check: func(t *testing.T, c *AppConfig) {
				assert.Equal(t, 16, c.Catalog.MaxPhotos)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := AppConfig{}
			tt.setup(&cfg)

			warnings, err := cfg.Validate()

			require.NoError(t, err)
			assert.True(t, containsWarning(warnings, tt.wantWarning),
				"expected warning containing %q, got %v", tt.wantWarning, warnings)
			tt.check(t, &cfg)
		})
	}
}

func TestAppConfig_Validate_RetryDelayInversion(t *testing.T) {
	cfg := AppConfig{
		MaxRetries:        3,
		InitialRetryDelay: 60 * time.Second, // Greater than max
		MaxRetryDelay:     10 * time.Second,
	}

	warnings, err := cfg.Validate()

	require.NoError(t, err)
	assert.True(t, containsWarning(warnings, "initial_retry_delay"))
	assert.Equal(t, 10*time.Second, cfg.InitialRetryDelay) // Should be clamped
}

func TestAppConfig_Validate_SkipCompletedEnablesJournal(t *testing.T) {
	cfg := AppConfig{SkipCompletedPairs: true}

	warnings, err := cfg.Validate()

	require.NoError(t, err)
	assert.True(t, cfg.EnableJournal)
	assert.True(t, containsWarning(warnings, "skip_completed_pairs requires the pair journal"))
}

func TestAppConfig_Validate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(*AppConfig)
		wantErr string
	}{
		{
			name: "checkpoint equals export",
			setup: func(c *AppConfig) {
				c.CheckpointFile = "out.txt"
				c.ExportFile = "out.txt"
			},
			wantErr: "must differ",
		},
		{
			name:    "multi-character delimiter",
			setup:   func(c *AppConfig) { c.CSVDelimiter = ";;" },
			wantErr: "single character",
		},
		{
			name:    "quote delimiter",
			setup:   func(c *AppConfig) { c.CSVDelimiter = `"` },
			wantErr: "not usable",
		},
		{
			name: "duplicate partition",
			setup: func(c *AppConfig) {
				c.Catalog.Partitions = []models.Partition{{ID: "msk"}, {ID: "msk"}}
			},
			wantErr: "duplicate partition id",
		},
		{
			name: "empty partition id",
			setup: func(c *AppConfig) {
				c.Catalog.Partitions = []models.Partition{{City: "Москва"}}
			},
			wantErr: "has no id",
		},
		{
			name: "reserved character in id",
			setup: func(c *AppConfig) {
				c.Catalog.Partitions = []models.Partition{{ID: "a.b"}}
			},
			wantErr: "reserved character",
		},
		{
			name: "unknown default partition",
			setup: func(c *AppConfig) {
				c.Catalog.Partitions = []models.Partition{{ID: "spb", City: "x", Region: "y"}}
				c.Catalog.DefaultPartition = "msk"
			},
			wantErr: "not a configured partition",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := AppConfig{}
			tt.setup(&cfg)

			_, err := cfg.Validate()

			require.Error(t, err)
			assert.ErrorIs(t, err, utils.ErrConfigValidation)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCatalogConfig_Validate_Normalization(t *testing.T) {
	tests := []struct {
		searchPath, apiQuery         string
		wantSearchPath, wantAPIQuery string
	}{
		{"entertainment", "action=listJson", "entertainment/", "?action=listJson"},
		{"/beauty/", "?x=1", "beauty/", "?x=1"},
		{"", "", "entertainment/", "?action=listJson&type=service"},
	}

	for _, tt := range tests {
		t.Run(tt.searchPath, func(t *testing.T) {
			cfg := CatalogConfig{SearchPath: tt.searchPath, APIQuery: tt.apiQuery}
			_, err := cfg.Validate()

			require.NoError(t, err)
			assert.Equal(t, tt.wantSearchPath, cfg.SearchPath)
			assert.Equal(t, tt.wantAPIQuery, cfg.APIQuery)
		})
	}
}

func TestCatalogConfig_Validate_DefaultPartitionFallsBackToFirst(t *testing.T) {
	cfg := CatalogConfig{Partitions: []models.Partition{
		{ID: "spb", City: "Санкт-Петербург", Region: "Санкт-Петербург"},
		{ID: "nsk", City: "Новосибирск", Region: "Новосибирская область"},
	}}

	warnings, err := cfg.Validate()

	require.NoError(t, err)
	assert.Equal(t, "spb", cfg.DefaultPartition)
	assert.True(t, containsWarning(warnings, "default_partition is empty"))
}

// containsWarning checks if any warning contains the substring.
func containsWarning(warnings []string, substr string) bool {
	for _, w := range warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}
