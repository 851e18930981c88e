package search

import (
	"testing"

	"streamgate/addonservice/internal/domain"
)

func classified(stableID string, contentType domain.ContentType, seeders int) domain.ClassifiedItem {
	return domain.ClassifiedItem{
		CanonicalTorrent: domain.CanonicalTorrent{Title: stableID, Seeders: seeders},
		ContentType:      contentType,
		StableID:         stableID,
	}
}

func TestFilterByType(t *testing.T) {
	items := []domain.ClassifiedItem{
		classified("movie-a", domain.ContentTypeMovie, 10),
		classified("series-a", domain.ContentTypeSeries, 20),
		classified("movie-b", domain.ContentTypeMovie, 5),
		classified("series-b", domain.ContentTypeSeries, 1),
	}

	cases := []struct {
		name      string
		requested domain.ContentType
		wantIDs   []string
	}{
		{name: "movies only", requested: domain.ContentTypeMovie, wantIDs: []string{"movie-a", "movie-b"}},
		{name: "series only", requested: domain.ContentTypeSeries, wantIDs: []string{"series-a", "series-b"}},
		{name: "mixed keeps both kinds", requested: domain.ContentTypeAll, wantIDs: []string{"movie-a", "series-a", "movie-b", "series-b"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := FilterByType(items, tc.requested)
			if len(got) != len(tc.wantIDs) {
				t.Fatalf("got %d items, want %d", len(got), len(tc.wantIDs))
			}
			for i, item := range got {
				if item.StableID != tc.wantIDs[i] {
					t.Fatalf("item %d = %s, want %s", i, item.StableID, tc.wantIDs[i])
				}
			}
		})
	}
}

// Mixed mode passes items through without rewriting their per-item tags.
func TestFilterByTypeMixedPreservesTags(t *testing.T) {
	items := []domain.ClassifiedItem{
		classified("movie-a", domain.ContentTypeMovie, 10),
		classified("series-a", domain.ContentTypeSeries, 20),
	}
	got := FilterByType(items, domain.ContentTypeAll)
	if got[0].ContentType != domain.ContentTypeMovie {
		t.Fatalf("first item tagged %s, want %s", got[0].ContentType, domain.ContentTypeMovie)
	}
	if got[1].ContentType != domain.ContentTypeSeries {
		t.Fatalf("second item tagged %s, want %s", got[1].ContentType, domain.ContentTypeSeries)
	}
}

func TestTruncate(t *testing.T) {
	items := make([]domain.ClassifiedItem, 5)

	if got := Truncate(items, 3); len(got) != 3 {
		t.Fatalf("got %d items, want 3", len(got))
	}
	if got := Truncate(items, 5); len(got) != 5 {
		t.Fatalf("got %d items, want 5", len(got))
	}
	if got := Truncate(items, 10); len(got) != 5 {
		t.Fatalf("got %d items, want all 5", len(got))
	}
	if got := Truncate(items, 0); len(got) != 5 {
		t.Fatalf("zero max should not truncate, got %d items", len(got))
	}
}
