// Package filename parses release-style file names into searchable titles.
package filename

import (
	"regexp"
	"strconv"
	"strings"
)

// videoExtPattern matches known video file extensions at the end of a name.
var videoExtPattern = regexp.MustCompile(`(?i)\.(mkv|mp4|avi|mov|wmv|flv|webm|m4v|mpg|mpeg|ts)$`)

// yearPattern matches a 4-digit year token in the range 1900-2099.
var yearPattern = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)

// separatorPattern matches runs of dot/underscore/dash separators.
var separatorPattern = regexp.MustCompile(`[._\-]+`)

// spacePattern collapses repeated whitespace.
var spacePattern = regexp.MustCompile(`\s+`)

// frenchTokens are release markers that indicate a French-language file.
// Matched case-insensitively against whole tokens of the cleaned name.
var frenchTokens = map[string]bool{
	"french":     true,
	"truefrench": true,
	"vf":         true,
	"vff":        true,
	"vfq":        true,
	"vostfr":     true,
	"multi":      true,
	"fr":         true,
}

// Parse extracts a search title and optional release year from a raw file
// name such as "The.Thing.2023.1080p.x264.mkv". A year of 0 means no year
// token was found. Quality and codec tags generally follow the year, so
// everything at and after the year token is discarded. When no year is
// present the trailing tags stay in the title (best effort).
func Parse(name string) (string, int) {
	cleaned := videoExtPattern.ReplaceAllString(name, "")
	cleaned = separatorPattern.ReplaceAllString(cleaned, " ")

	year := 0
	if loc := yearPattern.FindStringIndex(cleaned); loc != nil {
		year, _ = strconv.Atoi(cleaned[loc[0]:loc[1]])
		cleaned = cleaned[:loc[0]]
	}

	cleaned = strings.NewReplacer("(", " ", ")", " ", "[", " ", "]", " ").Replace(cleaned)
	cleaned = spacePattern.ReplaceAllString(cleaned, " ")

	return strings.TrimSpace(cleaned), year
}

// IsFrenchRelease reports whether the file name carries a French release
// marker (dub, subtitle or multi-language tags). Used to pick a localized
// catalog search strategy before falling back to the default one.
func IsFrenchRelease(name string) bool {
	cleaned := videoExtPattern.ReplaceAllString(name, "")
	cleaned = separatorPattern.ReplaceAllString(cleaned, " ")

	for _, token := range strings.Fields(cleaned) {
		if frenchTokens[strings.ToLower(token)] {
			return true
		}
	}
	return false
}
