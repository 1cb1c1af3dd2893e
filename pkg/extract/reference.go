package extract

import (
	"fmt"
	"net"
	"net/url"
	"path"
	"strings"

	"github.com/Sriram-PR/catalog-scraper/pkg/models"
	"github.com/Sriram-PR/catalog-scraper/pkg/utils"
)

// CanonicalReference resolves href against base and standardizes it into an ItemReference.
// Scheme and host are lowercased, default ports dropped, query and fragment removed.
// The path is kept as is, including its trailing slash, because the catalog's entry
// URLs end in one and the slug is read from the last segment.
func CanonicalReference(base *url.URL, href string) (models.ItemReference, error) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", fmt.Errorf("%w: empty item link", utils.ErrExtraction)
	}
	var u *url.URL
	var err error
	if base != nil {
		u, err = base.Parse(href)
	} else {
		u, err = url.Parse(href)
	}
	if err != nil {
		return "", fmt.Errorf("%w: bad item link %q: %v", utils.ErrExtraction, href, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return "", fmt.Errorf("%w: item link %q is not absolute", utils.ErrExtraction, href)
	}

	normalized := *u
	normalized.Scheme = strings.ToLower(normalized.Scheme)
	normalized.Host = strings.ToLower(normalized.Host)

	// Remove default ports
	if host, port, err := net.SplitHostPort(normalized.Host); err == nil {
		if (normalized.Scheme == "http" && port == "80") ||
			(normalized.Scheme == "https" && port == "443") {
			normalized.Host = host
		}
	}
	if normalized.Path == "" {
		normalized.Path = "/"
	}
	normalized.Fragment = ""
	normalized.RawFragment = ""
	normalized.RawQuery = ""
	normalized.ForceQuery = false

	return models.ItemReference(normalized.String()), nil
}

// Slug returns the last path segment of an item reference,
// e.g. "semejnyj_park" for "https://zoon.ru/msk/entertainment/semejnyj_park/"
func Slug(ref models.ItemReference) string {
	u, err := url.Parse(string(ref))
	if err != nil {
		return ""
	}
	p := strings.TrimSuffix(u.Path, "/")
	if p == "" {
		return ""
	}
	return path.Base(p)
}
