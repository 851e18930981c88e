package search

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"streamgate/addonservice/internal/domain"
)

var (
	episodePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bs\d{1,2}e\d{1,2}\b`),
		regexp.MustCompile(`(?i)\bs\d{1,2}\s*-\s*e\d{1,2}\b`),
		regexp.MustCompile(`(?i)\bseason\s+\d{1,2}\s+episode\s+\d{1,3}\b`),
		regexp.MustCompile(`(?i)\bepisode\s+\d{1,3}\b`),
	}
	packPattern = regexp.MustCompile(`(?i)\b(complete|full\s+season|season\s+pack|box\s*set)\b`)

	seriesPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bs\d{1,2}\b`),
		regexp.MustCompile(`(?i)\bseason\s+\d{1,2}\b`),
		regexp.MustCompile(`(?i)\bseries\s+\d{1,2}\b`),
		regexp.MustCompile(`(?i)\bcomplete\s+series\b`),
		regexp.MustCompile(`(?i)\bbox\s*set\b`),
		regexp.MustCompile(`(?i)\bcomplete\s+collection\b`),
	}

	resolutionPattern = regexp.MustCompile(`(?i)\b(2160p|1080p|720p|480p|360p)\b`)
	yearTokenPattern  = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	bracketPattern    = regexp.MustCompile(`[\[\]\(\)\{\}]`)
	controlPattern    = regexp.MustCompile(`[\x00-\x1f\x7f<>]`)
)

const maxDisplayTitleLength = 500

// Classify applies the ordered series/movie heuristics to one canonical
// torrent. Classification reads the title only; indexer category metadata is
// not consulted.
func Classify(torrent domain.CanonicalTorrent) domain.ClassifiedItem {
	// Scene names use dots as separators; normalize before word-boundary
	// matching so "Show.Name.S01E03" matches the episode patterns.
	title := strings.NewReplacer(".", " ", "_", " ").Replace(torrent.Title)

	item := domain.ClassifiedItem{
		CanonicalTorrent: torrent,
		ContentType:      domain.ContentTypeMovie,
		StableID:         domain.StableID(torrent.IMDBID, torrent.GUID, torrent.Link, torrent.Title),
		DisplayTitle:     CleanDisplayTitle(torrent.Title),
	}

	if matchesAny(episodePatterns, title) && !packPattern.MatchString(title) {
		item.ContentType = domain.ContentTypeSeries
		item.IsSingleEpisode = true
		return item
	}
	if matchesAny(seriesPatterns, title) {
		item.ContentType = domain.ContentTypeSeries
		return item
	}
	return item
}

func matchesAny(patterns []*regexp.Regexp, title string) bool {
	for _, pattern := range patterns {
		if pattern.MatchString(title) {
			return true
		}
	}
	return false
}

// CleanDisplayTitle strips resolution tokens, year tokens and brackets,
// collapses whitespace, and sanitizes characters that could leak into
// downstream protocol fields (headers, markup). Capped at 500 characters.
func CleanDisplayTitle(raw string) string {
	value := strings.NewReplacer(".", " ", "_", " ").Replace(raw)
	value = resolutionPattern.ReplaceAllString(value, " ")
	value = yearTokenPattern.ReplaceAllString(value, " ")
	value = bracketPattern.ReplaceAllString(value, " ")
	value = controlPattern.ReplaceAllString(value, "")
	value = strings.Join(strings.Fields(value), " ")
	if len(value) > maxDisplayTitleLength {
		cut := maxDisplayTitleLength
		// Back off to a rune boundary so the cap never emits invalid UTF-8.
		for cut > 0 && !utf8.RuneStart(value[cut]) {
			cut--
		}
		value = value[:cut]
	}
	return value
}
