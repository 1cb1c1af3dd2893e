package collection

import "github.com/Sriram-PR/catalog-scraper/pkg/models"

// Prune splits records into those carrying the nested social map and those that
// do not (damaged or legacy entries). Order is preserved in both.
func Prune(records []models.Record) (kept, removed []models.Record) {
	kept = make([]models.Record, 0, len(records))
	for _, rec := range records {
		if rec.Social == nil {
			removed = append(removed, rec)
			continue
		}
		kept = append(kept, rec)
	}
	return kept, removed
}

// Relabel rewrites the city and region columns from the partition resolved for each
// record's URL. It returns the number of records that changed.
func Relabel(records []models.Record, resolve func(rawURL string) models.Partition) int {
	changed := 0
	for i := range records {
		rec := records[i]
		p := resolve(string(rec.Reference()))
		if rec.Fields[models.FieldCity] == p.City && rec.Fields[models.FieldRegion] == p.Region {
			continue
		}
		rec.Fields[models.FieldCity] = p.City
		rec.Fields[models.FieldRegion] = p.Region
		changed++
	}
	return changed
}
