package search

import (
	"sort"

	"streamgate/addonservice/internal/domain"
)

// FilterByType drops items whose content type does not match the requested
// one. Mixed mode retains both kinds, each tagged individually.
func FilterByType(items []domain.ClassifiedItem, requested domain.ContentType) []domain.ClassifiedItem {
	if requested == domain.ContentTypeAll {
		return items
	}
	filtered := make([]domain.ClassifiedItem, 0, len(items))
	for _, item := range items {
		if item.ContentType == requested {
			filtered = append(filtered, item)
		}
	}
	return filtered
}

// Dedupe keeps the first occurrence of each stable id. Later duplicates are
// discarded, not merged: a duplicate with more seeders does not override an
// earlier entry.
func Dedupe(items []domain.ClassifiedItem) []domain.ClassifiedItem {
	seen := make(map[string]struct{}, len(items))
	deduped := make([]domain.ClassifiedItem, 0, len(items))
	for _, item := range items {
		if _, exists := seen[item.StableID]; exists {
			continue
		}
		seen[item.StableID] = struct{}{}
		deduped = append(deduped, item)
	}
	return deduped
}

// SortBySeeders orders search catalogs, best-seeded first.
func SortBySeeders(items []domain.ClassifiedItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Seeders > items[j].Seeders
	})
}

// SortByPublishDate orders browse catalogs, newest first. Unknown dates (0)
// sort last.
func SortByPublishDate(items []domain.ClassifiedItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].PublishDate > items[j].PublishDate
	})
}

func Truncate(items []domain.ClassifiedItem, max int) []domain.ClassifiedItem {
	if max <= 0 || len(items) <= max {
		return items
	}
	return items[:max]
}
