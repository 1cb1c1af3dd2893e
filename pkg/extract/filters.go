package extract

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Sriram-PR/catalog-scraper/pkg/models"
	"github.com/Sriram-PR/catalog-scraper/pkg/utils"
)

// FileFilterSource loads the filter set from a saved copy of the catalog's filter form
type FileFilterSource struct {
	Path string
}

// LoadFilters implements the crawler's filter source
func (s FileFilterSource) LoadFilters() ([]models.Filter, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening filters file: %v", utils.ErrConfigValidation, err)
	}
	defer f.Close()

	filters, err := ParseFilters(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.Path, err)
	}
	return filters, nil
}

// ParseFilters returns the name attribute of every <input> in document order.
// Unnamed inputs and repeated names are skipped; an empty result is an error.
func ParseFilters(r io.Reader) ([]models.Filter, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing filters document: %v", utils.ErrConfigValidation, err)
	}

	var filters []models.Filter
	seen := make(map[string]bool)
	doc.Find("input").Each(func(_ int, in *goquery.Selection) {
		name, ok := in.Attr("name")
		name = strings.TrimSpace(name)
		if !ok || name == "" || seen[name] {
			return
		}
		seen[name] = true
		filters = append(filters, models.Filter(name))
	})

	if len(filters) == 0 {
		return nil, fmt.Errorf("%w: filters document has no named inputs", utils.ErrConfigValidation)
	}
	return filters, nil
}
