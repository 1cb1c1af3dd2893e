package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Sriram-PR/catalog-scraper/pkg/models"
	"github.com/Sriram-PR/catalog-scraper/pkg/utils"
)

// Captions of the <dt>/<dd> parameter table on an item page
const (
	captionDescription = "Описание"
	captionCategory    = "Развлечения"
	captionHours       = "Время работы"
	captionSocial      = "Страница в соцсетях"

	metroPrefix = "Метро: "
)

// redirectRe pulls the external target out of the site's outbound redirect links
var redirectRe = regexp.MustCompile(`redirect/\?to=(.+)&hash=`)

// ParseItem extracts a Record from an item page. The locale fields come from the
// partition the item was listed under. Missing address or name is an ErrExtraction.
func (e *Extractor) ParseItem(body []byte, ref models.ItemReference, partition models.Partition) (models.Record, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return models.Record{}, fmt.Errorf("%w: item page %s: %v", utils.ErrExtraction, ref, err)
	}

	rec := models.NewRecord()
	rec.Fields[models.FieldSlug] = Slug(ref)
	rec.Fields[models.FieldRegion] = partition.Region
	rec.Fields[models.FieldCity] = partition.City

	address, err := parseAddress(doc)
	if err != nil {
		return models.Record{}, fmt.Errorf("%w: %s: %v", utils.ErrExtraction, ref, err)
	}
	rec.Fields[models.FieldAddress] = address

	h1 := doc.Find("h1").First()
	if h1.Length() == 0 {
		return models.Record{}, fmt.Errorf("%w: %s: no name heading", utils.ErrExtraction, ref)
	}
	rec.Fields[models.FieldName] = cleanText(h1.Text())

	rec.Fields[models.FieldDescription] = ""
	if cell := paramCell(doc, captionDescription); cell != nil {
		rec.Fields[models.FieldDescription] = strings.Join(texts(cell.Find("p")), NL)
	}

	var phones []string
	doc.Find("div.service-phones-list").First().Find("span.js-phone").Each(func(_ int, s *goquery.Selection) {
		if n, ok := s.Attr("data-number"); ok {
			if n = cleanText(n); n != "" {
				phones = append(phones, n)
			}
		}
	})
	rec.Fields[models.FieldPhone] = strings.Join(phones, ", ")

	var photos []string
	doc.Find("a.s-icons-white-dot-opacity").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if e.cfg.MaxPhotos > 0 && len(photos) >= e.cfg.MaxPhotos {
			return false
		}
		if src, ok := s.Attr("data-original"); ok {
			photos = append(photos, src)
		}
		return true
	})
	rec.Fields[models.FieldPhotos] = strings.Join(photos, "; ")

	rec.Fields[models.FieldURL] = string(ref)

	rec.Fields[models.FieldCategory] = ""
	if cell := paramCell(doc, captionCategory); cell != nil {
		rec.Fields[models.FieldCategory] = strings.Join(texts(cell.Find("a")), ", ")
	}

	rec.Fields[models.FieldHours] = ""
	if cell := paramCell(doc, captionHours); cell != nil {
		// Every child node of the first div is one line, text nodes included
		rec.Fields[models.FieldHours] = strings.Join(texts(cell.Find("div").First().Contents()), "; ")
	}

	if cell := paramCell(doc, captionSocial); cell != nil {
		cell.Find("div").First().Find("a").Each(func(_ int, a *goquery.Selection) {
			name := cleanText(a.Text())
			href, ok := a.Attr("href")
			if name == "" || !ok {
				return
			}
			rec.Social[name] = socialTarget(href)
		})
	}

	return rec, nil
}

// parseAddress joins the street address, its extension line and the nearby metro stations
func parseAddress(doc *goquery.Document) (string, error) {
	addr := doc.Find("address.iblock").First()
	if addr.Length() == 0 {
		return "", fmt.Errorf("no address block")
	}
	lines := []string{cleanText(addr.Text())}

	if ext := addr.NextAllFiltered("div").First(); ext.Length() > 0 {
		lines = append(lines, cleanText(ext.Text()))
	}

	if metros := texts(doc.Find("div.address-metro")); len(metros) > 0 {
		lines = append(lines, metroPrefix+strings.Join(metros, " "))
	}
	return strings.Join(lines, NL), nil
}

// socialTarget unwraps the site's outbound redirect to the real external link
func socialTarget(href string) string {
	unquoted, err := url.PathUnescape(href)
	if err != nil {
		unquoted = href
	}
	if m := redirectRe.FindStringSubmatch(unquoted); m != nil {
		return m[1]
	}
	return unquoted
}
