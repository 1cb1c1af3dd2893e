package walker

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/catalog-scraper/pkg/config"
	"github.com/Sriram-PR/catalog-scraper/pkg/models"
	"github.com/Sriram-PR/catalog-scraper/pkg/utils"
)

// Fetcher retrieves a document; fetch.Fetcher satisfies it
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, params url.Values, usePost bool) ([]byte, error)
}

// Extractor turns listing and item documents into references and records; extract.Extractor satisfies it
type Extractor interface {
	ParseListing(body []byte) (models.ListingPage, error)
	ParseItem(body []byte, ref models.ItemReference, partition models.Partition) (models.Record, error)
}

// Ledger answers whether a reference has already been collected
type Ledger interface {
	Contains(ref models.ItemReference) bool
}

// Stats summarizes one walk
type Stats struct {
	Pages          int // Listing pages parsed
	References     int // References seen across all pages
	Known          int // References skipped because the ledger already had them
	NewRecords     int // Records handed to yield
	ItemFailures   int // Item pages that could not be fetched or parsed
	ListingRetries int // Extra listing rounds after fetcher failures
	BlockedRounds  int // Times the walk entered the blocked state
}

// Walker pages through one (partition, filter) listing and extracts every unseen item
type Walker struct {
	fetcher   Fetcher
	extractor Extractor
	recoverer Recoverer
	catalog   config.CatalogConfig

	listingRetries int
	retryDelay     time.Duration

	log *logrus.Entry
}

// New creates a Walker
func New(fetcher Fetcher, extractor Extractor, recoverer Recoverer, cfg *config.AppConfig, log *logrus.Entry) *Walker {
	return &Walker{
		fetcher:        fetcher,
		extractor:      extractor,
		recoverer:      recoverer,
		catalog:        cfg.Catalog,
		listingRetries: cfg.ListingRetries,
		retryDelay:     cfg.RetryDelay,
		log:            log.WithField("component", "walker"),
	}
}

// Walk requests listing pages for pair starting at page 1 until a short page, a page
// without the "more" marker, or the page ceiling. Every reference not in seen is
// fetched and parsed and the record is passed to yield before the next reference.
//
// Item failures are logged and skipped. A listing that can't be read ends the pair.
// Errors returned are cancellation, an aborted recovery, or a yield failure.
func (w *Walker) Walk(ctx context.Context, pair models.Pair, seen Ledger, yield func(models.Record) error) (Stats, error) {
	var stats Stats
	log := w.log.WithFields(logrus.Fields{
		"partition": pair.Target.Partition.ID,
		"filter":    string(pair.Filter),
	})

	for page := 1; page <= w.catalog.PageLimit; page++ {
		pageLog := log.WithField("page", page)

		listing, err := w.fetchListing(ctx, pair, page, pageLog, &stats)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return stats, ctxErr
			}
			if errors.Is(err, utils.ErrRecoveryAborted) {
				return stats, err
			}
			pageLog.WithError(err).WithField("error_type", utils.CategorizeError(err)).Warn("Listing page unreadable, ending pair")
			return stats, nil
		}
		stats.Pages++
		stats.References += len(listing.Refs)
		pageLog.Debugf("Listing page has %d references of %d entries (more=%t)", len(listing.Refs), listing.Entries, listing.HasMore)

		for _, ref := range listing.Refs {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return stats, ctxErr
			}
			if seen.Contains(ref) {
				stats.Known++
				continue
			}

			rec, err := w.fetchItem(ctx, ref, pair.Target.Partition)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return stats, ctxErr
				}
				stats.ItemFailures++
				pageLog.WithError(err).WithFields(logrus.Fields{
					"url":        string(ref),
					"error_type": utils.CategorizeError(err),
				}).Warn("Skipping item")
				continue
			}

			if err := yield(rec); err != nil {
				return stats, fmt.Errorf("storing %s: %w", ref, err)
			}
			stats.NewRecords++
		}

		if listing.Entries < w.catalog.ItemsPerPage {
			pageLog.Debug("Short page, listing exhausted")
			break
		}
		if !listing.HasMore {
			pageLog.Debug("No more-results marker, listing exhausted")
			break
		}
		if page == w.catalog.PageLimit {
			pageLog.Infof("Page ceiling of %d reached", w.catalog.PageLimit)
		}
	}

	return stats, nil
}

// fetchListing requests one listing page until it yields a usable envelope.
// Fetcher-level failures get listingRetries extra rounds before the page is treated
// as blocked; a malformed envelope is treated as blocked at once. While blocked the
// page is not advanced and the identical request is re-issued after each recovery.
func (w *Walker) fetchListing(ctx context.Context, pair models.Pair, page int, log *logrus.Entry, stats *Stats) (models.ListingPage, error) {
	params := w.listingParams(pair.Filter, page)
	failures := 0

	for {
		body, err := w.fetcher.Fetch(ctx, pair.Target.APIURL, params, true)
		if err == nil {
			listing, parseErr := w.extractor.ParseListing(body)
			if parseErr == nil {
				return listing, nil
			}
			if !errors.Is(parseErr, utils.ErrSuspectedBlock) {
				return models.ListingPage{}, parseErr
			}
			err = parseErr
		} else {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return models.ListingPage{}, ctxErr
			}
			failures++
			if failures <= w.listingRetries {
				stats.ListingRetries++
				log.WithError(err).WithField("error_type", utils.CategorizeError(err)).
					Warnf("Listing request failed (round %d of %d), retrying in %v", failures, w.listingRetries+1, w.retryDelay)
				if err := sleepCtx(ctx, w.retryDelay); err != nil {
					return models.ListingPage{}, err
				}
				continue
			}
			err = fmt.Errorf("%w: listing unavailable after %d rounds: %w", utils.ErrSuspectedBlock, failures, err)
		}

		stats.BlockedRounds++
		log.WithError(err).WithField("error_type", utils.CategorizeError(err)).Warn("Listing blocked, waiting for recovery")
		if recErr := w.recoverer.AwaitRecovery(ctx, err); recErr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return models.ListingPage{}, ctxErr
			}
			if !errors.Is(recErr, utils.ErrRecoveryAborted) {
				recErr = fmt.Errorf("%w: %w", utils.ErrRecoveryAborted, recErr)
			}
			return models.ListingPage{}, recErr
		}
		log.Info("Recovery confirmed, re-requesting page")
		failures = 0
	}
}

// fetchItem downloads and parses one item page
func (w *Walker) fetchItem(ctx context.Context, ref models.ItemReference, partition models.Partition) (models.Record, error) {
	body, err := w.fetcher.Fetch(ctx, string(ref), nil, false)
	if err != nil {
		return models.Record{}, err
	}
	return w.extractor.ParseItem(body, ref, partition)
}

// listingParams builds the form body for a listing page request
func (w *Walker) listingParams(filter models.Filter, page int) url.Values {
	params := url.Values{}
	for k, v := range w.catalog.ListingPayload {
		params.Set(k, v)
	}
	params.Set("page", strconv.Itoa(page))
	params.Set(string(filter), "1")
	return params
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
