package config

import (
	"time"

	"github.com/Sriram-PR/catalog-scraper/pkg/models"
)

// CatalogConfig describes the remote catalog: where it lives, how it is
// partitioned and how its listing pages behave
type CatalogConfig struct {
	Scheme           string             `yaml:"scheme"`
	Host             string             `yaml:"host"`
	SearchPath       string             `yaml:"search_path"`       // Category path, e.g. "entertainment/"
	APIQuery         string             `yaml:"api_query"`         // Appended to the listing URL to get the JSON endpoint
	DefaultPartition string             `yaml:"default_partition"` // Partition served from the bare host
	Partitions       []models.Partition `yaml:"partitions"`
	ItemsPerPage     int                `yaml:"items_per_page"`
	PageLimit        int                `yaml:"page_limit"`
	MoreMarker       string             `yaml:"more_marker"`               // Text of the "more results" control
	ListingPayload   map[string]string  `yaml:"listing_payload,omitempty"` // Fixed form fields sent with every listing request
	MaxPhotos        int                `yaml:"max_photos"`
	SocialAnchor     string             `yaml:"social_anchor"` // Export column the social columns are inserted before
}

// AppConfig holds the global application configuration
type AppConfig struct {
	Catalog            CatalogConfig    `yaml:"catalog"`
	FiltersFile        string           `yaml:"filters_file"`
	CheckpointFile     string           `yaml:"checkpoint_file"`
	ExportFile         string           `yaml:"export_file"`
	CSVDelimiter       string           `yaml:"csv_delimiter"`
	StateDir           string           `yaml:"state_dir"`
	EnableJournal      bool             `yaml:"enable_journal,omitempty"`
	SkipCompletedPairs bool             `yaml:"skip_completed_pairs,omitempty"`
	UserAgent          string           `yaml:"user_agent"`
	Accept             string           `yaml:"accept,omitempty"`
	ProxyAddress       string           `yaml:"proxy_address,omitempty"` // SOCKS5 host:port, e.g. Tor at 127.0.0.1:9050
	RequestDelay       time.Duration    `yaml:"request_delay"`
	MaxRetries         int              `yaml:"max_retries,omitempty"`
	InitialRetryDelay  time.Duration    `yaml:"initial_retry_delay,omitempty"`
	MaxRetryDelay      time.Duration    `yaml:"max_retry_delay,omitempty"`
	ListingRetries     int              `yaml:"listing_retries,omitempty"` // Extra rounds for a listing page after the fetcher gives up
	RetryDelay         time.Duration    `yaml:"retry_delay,omitempty"`     // Wait between listing rounds
	GlobalCrawlTimeout time.Duration    `yaml:"global_crawl_timeout,omitempty"`
	LogLevel           string           `yaml:"log_level,omitempty"`
	LogFile            string           `yaml:"log_file,omitempty"`
	HTTPClientSettings HTTPClientConfig `yaml:"http_client_settings,omitempty"`
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	Timeout               time.Duration `yaml:"timeout,omitempty"`                 // Overall request timeout
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`          // Max total idle connections
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"` // Max idle connections per host
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`       // Timeout for idle connections
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`   // Timeout for TLS handshake
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"` // Timeout for 100-continue
	ForceAttemptHTTP2     *bool         `yaml:"force_attempt_http2,omitempty"`     // nil=default, true=force, false=disable
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`          // Connection dial timeout
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`       // TCP keep-alive interval
}

const (
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 6.1; rv:88.0) Gecko/20100101 Firefox/88.0"
	DefaultAccept    = "*/*"
)

// DefaultPartitions is the city list the catalog is split into. "msk" is served from the bare host.
var DefaultPartitions = []models.Partition{
	{ID: "msk", City: "Москва", Region: "Москва"},
	{ID: "spb", City: "Санкт-Петербург", Region: "Санкт-Петербург"},
	{ID: "nsk", City: "Новосибирск", Region: "Новосибирская область"},
	{ID: "ekb", City: "Екатеринбург", Region: "Свердловская область"},
	{ID: "kazan", City: "Казань", Region: "Республика Татарстан"},
	{ID: "nn", City: "Нижний Новгород", Region: "Нижегородская область"},
	{ID: "chelyabinsk", City: "Челябинск", Region: "Челябинская область"},
	{ID: "samara", City: "Самара", Region: "Самарская область"},
	{ID: "omsk", City: "Омск", Region: "Омская область"},
	{ID: "rostov", City: "Ростов-на-Дону", Region: "Ростовская область"},
	{ID: "ufa", City: "Уфа", Region: "Республика Башкортостан"},
	{ID: "krasnoyarsk", City: "Красноярск", Region: "Красноярский край"},
}

// DefaultListingPayload returns the form fields sent with every listing request
func DefaultListingPayload() map[string]string {
	return map[string]string{
		"need[]":            "items",
		"search_query_form": "1",
	}
}

// DefaultCatalogConfig returns the catalog layout of the entertainment directory
func DefaultCatalogConfig() CatalogConfig {
	partitions := make([]models.Partition, len(DefaultPartitions))
	copy(partitions, DefaultPartitions)
	return CatalogConfig{
		Scheme:           "https",
		Host:             "zoon.ru",
		SearchPath:       "entertainment/",
		APIQuery:         "?action=listJson&type=service",
		DefaultPartition: "msk",
		Partitions:       partitions,
		ItemsPerPage:     30,
		PageLimit:        8,
		MoreMarker:       "Показать еще",
		ListingPayload:   DefaultListingPayload(),
		MaxPhotos:        16,
		SocialAnchor:     models.FieldHours,
	}
}

// DefaultAppConfig returns a fully populated configuration that runs without a config file
func DefaultAppConfig() AppConfig {
	cfg := AppConfig{
		Catalog:        DefaultCatalogConfig(),
		FiltersFile:    "filters.html",
		CheckpointFile: "entertainment.json",
		ExportFile:     "entertainment.csv",
		CSVDelimiter:   ",",
		StateDir:       "./crawler_state",
		UserAgent:      DefaultUserAgent,
		Accept:         DefaultAccept,
		RequestDelay:   500 * time.Millisecond,
	}
	cfg.Validate()
	return cfg
}

// PartitionByID returns the configured partition with the given ID
func (c CatalogConfig) PartitionByID(id string) (models.Partition, bool) {
	for _, p := range c.Partitions {
		if p.ID == id {
			return p, true
		}
	}
	return models.Partition{}, false
}

// GetEffectiveDelimiter returns the first rune of the configured CSV delimiter
func GetEffectiveDelimiter(cfg AppConfig) rune {
	for _, r := range cfg.CSVDelimiter {
		return r
	}
	return ','
}
