package models

import (
	"fmt"
	"strings"
)

// Partition identifies one site sub-namespace (a city) and its two locale labels
type Partition struct {
	ID     string `yaml:"id" json:"id"`         // Sub-namespace, e.g. "msk" or "spb"
	City   string `yaml:"city" json:"city"`     // Locale label used for sorting and the city column
	Region string `yaml:"region" json:"region"` // Locale label for the region column
}

// Filter is an opaque selector narrowing a partition's listing, e.g. "m[5a7bf6f2c1098a2bef1ecea6]"
type Filter string

// ItemReference is the canonical URL of one catalog entry
type ItemReference string

// String implements fmt.Stringer
func (r ItemReference) String() string { return string(r) }

// ListingPage is one parsed listing response
type ListingPage struct {
	Refs    []ItemReference // Usable item references in page order
	Entries int             // Entries on the page, including ones without a usable link
	HasMore bool            // The page shows the "more results" control
}

// Target is a Partition expanded with its derived endpoints
type Target struct {
	Partition  Partition
	ListingURL string // Human-facing catalog URL
	APIURL     string // Listing URL plus the JSON API query
}

// Pair is one unit of the crawl worklist
type Pair struct {
	Target Target
	Filter Filter
}

// Key returns the stable journal key for the pair
func (p Pair) Key() PairKey {
	return NewPairKey(p.Target.Partition.ID, p.Filter)
}

// String implements fmt.Stringer for logging
func (p Pair) String() string {
	return fmt.Sprintf("%s/%s", p.Target.Partition.ID, p.Filter)
}

// PairKey identifies a (partition, filter) pair in the pair journal
type PairKey string

const pairKeySeparator = "|"

// NewPairKey builds the journal key for a partition ID and filter
func NewPairKey(partitionID string, filter Filter) PairKey {
	return PairKey(partitionID + pairKeySeparator + string(filter))
}

// Split returns the partition ID and filter encoded in the key
func (k PairKey) Split() (partitionID string, filter Filter) {
	id, f, found := strings.Cut(string(k), pairKeySeparator)
	if !found {
		return string(k), ""
	}
	return id, Filter(f)
}
