package utils

import "strings"

const maxFilenameLength = 100

// SanitizeFilename turns name (typically a catalog host) into a single path
// component. Characters that are invalid on Windows or Unix become '_', runs of
// '_' collapse to one, and the result is trimmed and capped at maxFilenameLength
// bytes. An empty result becomes "untitled".
func SanitizeFilename(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	lastUnderscore := false
	for _, r := range name {
		if r < 0x20 || strings.ContainsRune(`<>:"/\|?*`, r) {
			r = '_'
		}
		if r == '_' {
			if lastUnderscore {
				continue
			}
			lastUnderscore = true
		} else {
			lastUnderscore = false
		}
		b.WriteRune(r)
	}

	sanitized := strings.Trim(b.String(), "_ ")
	if len(sanitized) > maxFilenameLength {
		sanitized = strings.Trim(sanitized[:maxFilenameLength], "_ ")
	}
	if sanitized == "" {
		return "untitled"
	}
	return sanitized
}
