package extract

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/catalog-scraper/pkg/config"
	"github.com/Sriram-PR/catalog-scraper/pkg/models"
	"github.com/Sriram-PR/catalog-scraper/pkg/utils"
)

// Selectors for the listing fragment and the item page
const (
	itemLinkSelector   = "div.service-description"
	itemAnchorSelector = "a.js-item-url"
)

// Extractor turns fetched documents into item references and records
type Extractor struct {
	cfg  config.CatalogConfig
	base *url.URL // Resolves relative item links
	log  *logrus.Entry
}

// New creates an Extractor for the given catalog
func New(cfg config.CatalogConfig, log *logrus.Entry) *Extractor {
	base, err := url.Parse(cfg.Scheme + "://" + cfg.Host + "/")
	if err != nil {
		base = nil
	}
	return &Extractor{cfg: cfg, base: base, log: log}
}

// listingEnvelope is the JSON body of a listing API response
type listingEnvelope struct {
	HTML *string `json:"html"`
}

// ParseListing reads one listing API response: the item references in page
// order, the number of entries on the page and whether it advertises more
// results. Entries without a usable link are counted but yield no reference.
// A body that is not the expected JSON envelope is reported as ErrSuspectedBlock.
func (e *Extractor) ParseListing(body []byte) (models.ListingPage, error) {
	var env listingEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return models.ListingPage{}, fmt.Errorf("%w: listing response is not JSON: %v", utils.ErrSuspectedBlock, err)
	}
	if env.HTML == nil {
		return models.ListingPage{}, fmt.Errorf("%w: listing response has no html field", utils.ErrSuspectedBlock)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(*env.HTML))
	if err != nil {
		return models.ListingPage{}, fmt.Errorf("%w: listing html: %v", utils.ErrExtraction, err)
	}

	entries := doc.Find(itemLinkSelector)
	refs := make([]models.ItemReference, 0, entries.Length())
	entries.Each(func(_ int, div *goquery.Selection) {
		href, ok := div.Find(itemAnchorSelector).First().Attr("href")
		if !ok {
			e.log.Warn("Listing entry without an item link, skipping")
			return
		}
		ref, err := CanonicalReference(e.base, href)
		if err != nil {
			e.log.WithError(err).Warn("Skipping unusable item link")
			return
		}
		refs = append(refs, ref)
	})

	return models.ListingPage{Refs: refs, Entries: entries.Length(), HasMore: e.hasMore(doc)}, nil
}

// hasMore reports whether the "more results" control is present
func (e *Extractor) hasMore(doc *goquery.Document) bool {
	found := false
	doc.Find("span").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.TrimSpace(s.Text()) == e.cfg.MoreMarker {
			found = true
			return false
		}
		return true
	})
	return found
}
