package tree

import (
	"reflect"
	"testing"

	"github.com/glabrego/tvguide-cli/internal/tvapi"
)

func sampleChannels() []tvapi.Channel {
	return []tvapi.Channel{
		{ID: "s1", Name: "Sport One", Group: "Sports"},
		{ID: "n1", Name: "News 24", Group: "News"},
		{ID: "s2", Name: "Arena", Group: "Sports"},
		{ID: "m1", Name: "Movies Max", Group: ""},
		{ID: "n2", Name: "World News", Group: "News"},
		{ID: "s3", Name: "Sport Two", Group: "Sports"},
	}
}

func rowIDs(rows []Row, channels []tvapi.Channel) []string {
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		if row.Kind == RowGroup {
			out = append(out, "#"+row.Group.Name)
			continue
		}
		out = append(out, channels[row.ChannelIndex].ID)
	}
	return out
}

func TestBuildRows_EmptyInput(t *testing.T) {
	rows := BuildRows(nil, BuildOptions{})
	if rows == nil || len(rows) != 0 {
		t.Fatalf("expected empty non-nil rows, got %#v", rows)
	}
}

func TestBuildRows_AllCollapsedYieldsOneRowPerGroup(t *testing.T) {
	channels := sampleChannels()
	rows := BuildRows(channels, BuildOptions{})
	got := rowIDs(rows, channels)
	want := []string{"#Sports", "#News", "#" + tvapi.UncategorizedGroup}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected rows: got=%v want=%v", got, want)
	}
	if rows[0].Group.Count != 3 || rows[1].Group.Count != 2 || rows[2].Group.Count != 1 {
		t.Fatalf("unexpected counts: %+v", rows)
	}
}

func TestBuildRows_ExpandingGroupInsertsMembersAfterHeader(t *testing.T) {
	channels := sampleChannels()
	collapsed := BuildRows(channels, BuildOptions{})
	expanded := BuildRows(channels, BuildOptions{Expanded: map[string]bool{"News": true}})

	newsHeader := GroupRow(expanded, "News")
	if newsHeader < 0 {
		t.Fatal("missing News header")
	}
	count := expanded[newsHeader].Group.Count
	if len(expanded) != len(collapsed)+count {
		t.Fatalf("expected %d rows, got %d", len(collapsed)+count, len(expanded))
	}
	if !expanded[newsHeader].Group.Expanded {
		t.Fatal("expected header to be marked expanded")
	}
	got := rowIDs(expanded[newsHeader:newsHeader+1+count], channels)
	want := []string{"#News", "n1", "n2"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected members to follow header in source order, got %v", got)
	}
}

func TestBuildRows_SearchFlattensRegardlessOfExpansion(t *testing.T) {
	channels := sampleChannels()
	rows := BuildRows(channels, BuildOptions{
		Expanded:      map[string]bool{"Sports": true, "News": true},
		Filter:        MatchSearch("sport"),
		FlattenFilter: true,
	})
	for _, row := range rows {
		if row.Kind == RowGroup {
			t.Fatalf("expected no group headers while searching, got %+v", rows)
		}
	}
	got := rowIDs(rows, channels)
	if !reflect.DeepEqual(got, []string{"s1", "s3"}) {
		t.Fatalf("unexpected search results: %v", got)
	}
	if HeaderIndex(rows, 0) != -1 {
		t.Fatal("expected flat rows to have no header")
	}
}

func TestBuildRows_FilterWithoutFlattenKeepsGroupsWithMatches(t *testing.T) {
	channels := sampleChannels()
	rows := BuildRows(channels, BuildOptions{
		Expanded: map[string]bool{"News": true},
		Filter:   MatchSearch("news"),
	})
	got := rowIDs(rows, channels)
	want := []string{"#News", "n1", "n2"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected rows: got=%v want=%v", got, want)
	}
}

func TestBuildRows_ServerGroupsDefineOrderAndCounts(t *testing.T) {
	channels := []tvapi.Channel{
		{ID: "n1", Name: "News 24", Group: "News"},
	}
	rows := BuildRows(channels, BuildOptions{
		Groups: []tvapi.Group{{Name: "Kids", Count: 4}, {Name: "News", Count: 9}},
	})
	got := rowIDs(rows, channels)
	if !reflect.DeepEqual(got, []string{"#Kids", "#News"}) {
		t.Fatalf("unexpected rows: %v", got)
	}
	if rows[0].Group.Count != 4 || rows[1].Group.Count != 9 {
		t.Fatalf("expected server counts, got %+v", rows)
	}
}

func TestBuildRows_StableSortKeepsSourceOrderOnTies(t *testing.T) {
	channels := []tvapi.Channel{
		{ID: "b", Name: "Same", Group: "G"},
		{ID: "a", Name: "Alpha", Group: "G"},
		{ID: "c", Name: "same", Group: "G"},
	}
	rows := BuildRows(channels, BuildOptions{Expanded: map[string]bool{"G": true}, Less: ByName})
	got := rowIDs(rows, channels)
	if !reflect.DeepEqual(got, []string{"#G", "a", "b", "c"}) {
		t.Fatalf("unexpected order: %v", got)
	}
}

func TestBuildRows_FavoriteFlipDoesNotReorder(t *testing.T) {
	channels := sampleChannels()
	opts := BuildOptions{Expanded: map[string]bool{"Sports": true, "News": true}}
	before := rowIDs(BuildRows(channels, opts), channels)
	channels[2].IsFavorite = true
	after := rowIDs(BuildRows(channels, opts), channels)
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("expected identical order, got %v vs %v", before, after)
	}
}

func TestRowLookups(t *testing.T) {
	channels := sampleChannels()
	rows := BuildRows(channels, BuildOptions{Expanded: map[string]bool{"News": true}})
	if got := FirstChannelRow(rows); got != 2 {
		t.Fatalf("expected first channel row 2, got %d", got)
	}
	if got := ChannelRow(rows, channels, "n2"); got != 3 {
		t.Fatalf("expected n2 at row 3, got %d", got)
	}
	if got := HeaderIndex(rows, 3); got != 1 {
		t.Fatalf("expected header 1, got %d", got)
	}
	if got := ChannelRow(rows, channels, "s1"); got != -1 {
		t.Fatalf("expected collapsed channel to be absent, got %d", got)
	}
}
