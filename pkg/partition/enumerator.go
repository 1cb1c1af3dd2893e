package partition

import (
	"net/url"
	"strings"

	"github.com/Sriram-PR/catalog-scraper/pkg/config"
	"github.com/Sriram-PR/catalog-scraper/pkg/models"
)

// Enumerator expands the configured partitions into crawl targets
type Enumerator struct {
	cfg     config.CatalogConfig
	targets []models.Target
	byID    map[string]models.Partition
}

// New builds an Enumerator. cfg is expected to be validated.
func New(cfg config.CatalogConfig) *Enumerator {
	e := &Enumerator{
		cfg:     cfg,
		targets: make([]models.Target, 0, len(cfg.Partitions)),
		byID:    make(map[string]models.Partition, len(cfg.Partitions)),
	}
	for _, p := range cfg.Partitions {
		listing := e.listingURL(p.ID)
		e.targets = append(e.targets, models.Target{
			Partition:  p,
			ListingURL: listing,
			APIURL:     listing + cfg.APIQuery,
		})
		e.byID[p.ID] = p
	}
	return e
}

// listingURL returns the human-facing catalog URL. The default partition lives
// under a path on the bare host, every other one on its own subdomain.
func (e *Enumerator) listingURL(id string) string {
	if id == e.cfg.DefaultPartition {
		return e.cfg.Scheme + "://" + e.cfg.Host + "/" + id + "/" + e.cfg.SearchPath
	}
	return e.cfg.Scheme + "://" + id + "." + e.cfg.Host + "/" + e.cfg.SearchPath
}

// Targets returns every partition with its endpoints, in configured order
func (e *Enumerator) Targets() []models.Target {
	out := make([]models.Target, len(e.targets))
	copy(out, e.targets)
	return out
}

// Worklist returns partitions x filters, partition-major
func (e *Enumerator) Worklist(filters []models.Filter) []models.Pair {
	pairs := make([]models.Pair, 0, len(e.targets)*len(filters))
	for _, t := range e.targets {
		for _, f := range filters {
			pairs = append(pairs, models.Pair{Target: t, Filter: f})
		}
	}
	return pairs
}

// Default returns the default partition
func (e *Enumerator) Default() models.Partition {
	p, _ := e.cfg.PartitionByID(e.cfg.DefaultPartition)
	return p
}

// PartitionForURL maps an item URL to its partition by the first host label.
// Anything unrecognised, including the bare host, maps to the default partition.
func (e *Enumerator) PartitionForURL(rawURL string) models.Partition {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return e.Default()
	}
	label, _, _ := strings.Cut(u.Hostname(), ".")
	if p, ok := e.byID[strings.ToLower(label)]; ok {
		return p
	}
	return e.Default()
}
