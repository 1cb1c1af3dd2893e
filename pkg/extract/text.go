package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// NL separates lines inside a single exported field
const NL = "\r\n"

// cleanText trims and collapses every run of whitespace into one space
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// paramCell returns the <dd> following the first <dt> whose text is caption
func paramCell(doc *goquery.Document, caption string) *goquery.Selection {
	var cell *goquery.Selection
	doc.Find("dt").EachWithBreak(func(_ int, dt *goquery.Selection) bool {
		if cleanText(dt.Text()) == caption {
			cell = dt.NextAllFiltered("dd").First()
			return false
		}
		return true
	})
	if cell == nil || cell.Length() == 0 {
		return nil
	}
	return cell
}

// texts returns the cleaned, non-empty texts of a selection
func texts(sel *goquery.Selection) []string {
	out := make([]string, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		if t := cleanText(s.Text()); t != "" {
			out = append(out, t)
		}
	})
	return out
}
